package client_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
	"github.com/lehigh-university-libraries/framepicker/internal/simulator"
)

func newSimulated(t *testing.T, cfg simulator.Config) (*client.Client, *simulator.Server) {
	t.Helper()
	sim := simulator.New(cfg, nil)
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return client.New(srv.URL, 5*time.Second, nil), sim
}

func writeMedia(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not really a video"), 0644))
	return path
}

func completedTask(t *testing.T, c *client.Client) string {
	t.Helper()
	ctx := context.Background()
	taskID, err := c.Upload(ctx, client.DefaultUploadRequest(writeMedia(t, "clip.mp4")))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		status, err := c.Status(ctx, taskID)
		require.NoError(t, err)
		if status.Status == models.TaskStatusCompleted {
			return taskID
		}
	}
	t.Fatal("task never completed")
	return ""
}

func TestUploadAndStatus(t *testing.T) {
	c, sim := newSimulated(t, simulator.Config{Frames: 3, Steps: 1, TotalFrames: 90})
	ctx := context.Background()

	req := client.DefaultUploadRequest(writeMedia(t, "clip.mov"))
	req.Interval = 2.5
	req.RequireText = false
	taskID, err := c.Upload(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, ok := sim.Store().Get(taskID)
	require.True(t, ok)
	assert.Equal(t, "clip.mov", task.Filename)
	assert.Equal(t, 2.5, task.Interval)
	assert.False(t, task.RequireText)

	status, err := c.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, status.Status)

	status, err = c.Status(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusProcessing, status.Status)
	require.NotNil(t, status.Progress)
}

func TestUploadRejectsLocally(t *testing.T) {
	c, sim := newSimulated(t, simulator.DefaultConfig())

	tests := []struct {
		name string
		req  client.UploadRequest
	}{
		{name: "bad extension", req: client.DefaultUploadRequest(writeMedia(t, "notes.txt"))},
		{name: "missing path", req: client.DefaultUploadRequest("")},
		{name: "threshold out of range", req: func() client.UploadRequest {
			r := client.DefaultUploadRequest(writeMedia(t, "a.mp4"))
			r.Threshold = 2
			return r
		}()},
		{name: "zero interval", req: func() client.UploadRequest {
			r := client.DefaultUploadRequest(writeMedia(t, "a.mp4"))
			r.Interval = 0
			return r
		}()},
		{name: "file missing on disk", req: client.DefaultUploadRequest(filepath.Join(t.TempDir(), "gone.mp4"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Upload(context.Background(), tt.req)
			assert.Error(t, err)
		})
	}
	assert.Equal(t, int64(0), sim.Stats().Uploads)
}

func TestStatusUnknownTask(t *testing.T) {
	c, _ := newSimulated(t, simulator.DefaultConfig())

	_, err := c.Status(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "task not found", apiErr.Message)
}

func TestStatusRejectsUnknownValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"exploded"}`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, time.Second, nil).Status(context.Background(), "T1")
	assert.ErrorContains(t, err, "unknown task status")
}

func TestImagesRejectsDuplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[{"filename":"a.png"},{"filename":"a.png"}]}`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL, time.Second, nil).Images(context.Background(), "T1")
	assert.ErrorContains(t, err, "duplicate filename")
}

func TestImagesAndImage(t *testing.T) {
	c, _ := newSimulated(t, simulator.Config{Frames: 4, FlagEvery: 2, Steps: 0})
	taskID := completedTask(t, c)
	ctx := context.Background()

	resp, err := c.Images(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, resp.Images, 4)
	assert.True(t, resp.Images[1].IsFlagged)
	assert.Equal(t, 2, *resp.PageTurnCount)

	data, err := c.Image(ctx, taskID, resp.Images[0].Filename)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestDownloads(t *testing.T) {
	c, sim := newSimulated(t, simulator.Config{Frames: 3, Steps: 0})
	taskID := completedTask(t, c)
	ctx := context.Background()

	var all bytes.Buffer
	n, err := c.DownloadAll(ctx, taskID, &all)
	require.NoError(t, err)
	assert.Equal(t, int64(all.Len()), n)
	zr, err := zip.NewReader(bytes.NewReader(all.Bytes()), n)
	require.NoError(t, err)
	assert.Len(t, zr.File, 3)

	var subset bytes.Buffer
	_, err = c.DownloadSelected(ctx, taskID, []string{"frame_0002.png"}, &subset)
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_0002.png"}, sim.Stats().LastDownloadFiles)
	assert.Equal(t, int64(2), sim.Stats().DownloadRequests)
}

func TestDownloadSelectedEmptySendsNothing(t *testing.T) {
	c, sim := newSimulated(t, simulator.DefaultConfig())

	_, err := c.DownloadSelected(context.Background(), "T1", nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, client.ErrEmptySelection)
	assert.Equal(t, int64(0), sim.Stats().DownloadRequests)
}

func TestDownloadServerFailure(t *testing.T) {
	c, _ := newSimulated(t, simulator.Config{Frames: 2, Steps: 0, FailDownloads: true})
	taskID := completedTask(t, c)

	_, err := c.DownloadAll(context.Background(), taskID, &bytes.Buffer{})
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestValidateDefaults(t *testing.T) {
	req := client.DefaultUploadRequest("/tmp/video.MP4")
	assert.NoError(t, req.Validate())
	assert.Equal(t, "chi_sim+eng", req.TextLang)
	assert.Equal(t, 0.95, req.Threshold)
}
