package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/framepicker/internal/report"
	"github.com/lehigh-university-libraries/framepicker/internal/simulator"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func startSimulator(t *testing.T, cfg simulator.Config) (string, *simulator.Server) {
	t.Helper()
	sim := simulator.New(cfg, nil)
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return srv.URL, sim
}

func completedTaskID(t *testing.T, url string) string {
	t.Helper()
	media := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(media, []byte("media"), 0644))
	archive := filepath.Join(t.TempDir(), "all.zip")

	out, err := execute(t, "", "run", media, "--server", url, "--poll-interval", "5ms", "--no-review", "--out", archive, "--log-level", "error")
	require.NoError(t, err, out)

	i := strings.Index(out, "Task ")
	require.GreaterOrEqual(t, i, 0, out)
	return strings.Fields(out[i+len("Task "):])[0]
}

func TestRunNoReview(t *testing.T) {
	url, sim := startSimulator(t, simulator.Config{Frames: 4, FlagEvery: 2, Steps: 2, TotalFrames: 40})
	media := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(media, []byte("media"), 0644))
	archive := filepath.Join(t.TempDir(), "all.zip")

	out, err := execute(t, "", "run", media, "--server", url, "--poll-interval", "5ms", "--no-review", "--out", archive, "--log-level", "error")
	require.NoError(t, err, out)

	assert.Contains(t, out, "Uploading...")
	assert.Contains(t, out, "converting")
	assert.Contains(t, out, "Conversion complete")
	assert.Contains(t, out, "Saved 4 images to "+archive)

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()
	assert.Len(t, zr.File, 4)
	assert.Equal(t, int64(1), sim.Stats().Uploads)
}

func TestRunReviewShell(t *testing.T) {
	url, sim := startSimulator(t, simulator.Config{Frames: 3, Steps: 0})
	media := filepath.Join(t.TempDir(), "clip.mkv")
	require.NoError(t, os.WriteFile(media, []byte("media"), 0644))
	archive := filepath.Join(t.TempDir(), "picked.zip")

	out, err := execute(t, "toggle 2\nexport "+archive+"\nquit\n",
		"run", media, "--server", url, "--poll-interval", "5ms", "--log-level", "error")
	require.NoError(t, err, out)

	assert.Contains(t, out, "2 / 3 selected")
	assert.Equal(t, []string{"frame_0001.png", "frame_0003.png"}, sim.Stats().LastDownloadFiles)
	assert.FileExists(t, archive)
}

func TestRunRejectsBadMedia(t *testing.T) {
	url, sim := startSimulator(t, simulator.DefaultConfig())

	_, err := execute(t, "", "run", "notes.txt", "--server", url, "--log-level", "error")
	assert.ErrorContains(t, err, "unsupported file format")
	assert.Equal(t, int64(0), sim.Stats().Uploads)
}

func TestRunServerFailure(t *testing.T) {
	url, _ := startSimulator(t, simulator.Config{Frames: 2, Steps: 1, FailWith: "no frames found"})
	media := filepath.Join(t.TempDir(), "clip.avi")
	require.NoError(t, os.WriteFile(media, []byte("media"), 0644))

	out, err := execute(t, "", "run", media, "--server", url, "--poll-interval", "5ms", "--no-review", "--log-level", "error")
	assert.EqualError(t, err, "no frames found")
	assert.Contains(t, out, "Conversion failed: no frames found")
}

func TestStatusExportReport(t *testing.T) {
	url, sim := startSimulator(t, simulator.Config{Frames: 4, FlagEvery: 2, Steps: 0})
	taskID := completedTaskID(t, url)

	out, err := execute(t, "", "status", taskID, "--server", url, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved images:     4")

	archive := filepath.Join(t.TempDir(), "visible.zip")
	_, err = execute(t, "", "export", taskID, "--server", url, "--hide-flagged", "--out", archive, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_0001.png", "frame_0003.png"}, sim.Stats().LastDownloadFiles)

	_, err = execute(t, "", "export", taskID, "--server", url, "--files", "frame_0009.png", "--log-level", "error")
	assert.ErrorContains(t, err, "image not in collection")

	out, err = execute(t, "", "report", taskID, "--server", url, "--format", "json", "--log-level", "error")
	require.NoError(t, err)
	var r report.Report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, 4, r.Summary.Total)
	assert.Equal(t, 2, r.Summary.Flagged)
}

func TestPull(t *testing.T) {
	url, _ := startSimulator(t, simulator.Config{Frames: 3, Steps: 0})
	taskID := completedTaskID(t, url)
	dir := filepath.Join(t.TempDir(), "frames")

	out, err := execute(t, "", "pull", taskID, "--server", url, "--dir", dir, "--files", "frame_0002.png", "--pull-rate", "0", "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Pulled 1 images")
	assert.FileExists(t, filepath.Join(dir, "frame_0002.png"))
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "", "status", "T1", "--server", "not a url")
	assert.ErrorContains(t, err, "failed to load configuration")
}

func TestSimulateRejectsNegativeFrames(t *testing.T) {
	_, err := execute(t, "", "simulate", "--port", "0", "--frames", "-1")
	assert.ErrorContains(t, err, "invalid simulator configuration")
}

func TestExportFailureKeepsExistingArchive(t *testing.T) {
	url, _ := startSimulator(t, simulator.Config{Frames: 2, Steps: 0, FailDownloads: true})
	media := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(media, []byte("media"), 0644))

	archive := filepath.Join(t.TempDir(), "frames.zip")
	require.NoError(t, os.WriteFile(archive, []byte("saved earlier"), 0644))

	_, err := execute(t, "", "run", media, "--server", url, "--poll-interval", "5ms", "--no-review", "--out", archive, "--log-level", "error")
	require.Error(t, err)

	data, err := os.ReadFile(archive)
	require.NoError(t, err)
	assert.Equal(t, "saved earlier", string(data))

	entries, err := os.ReadDir(filepath.Dir(archive))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
