package console

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/framepicker/internal/controller"
	"github.com/lehigh-university-libraries/framepicker/internal/images"
	"github.com/lehigh-university-libraries/framepicker/internal/lifecycle"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
	"github.com/lehigh-university-libraries/framepicker/internal/report"
	"github.com/lehigh-university-libraries/framepicker/internal/review"
)

func intPtr(n int) *int { return &n }

type pngLoader struct{}

func (pngLoader) Image(ctx context.Context, taskID, filename string) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 4))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type fakeBackend struct {
	session   *review.Session
	exported  []bool
	exportErr error
	pulled    []string
}

func (f *fakeBackend) Review() *review.Session { return f.session }

func (f *fakeBackend) Export(ctx context.Context, w io.Writer) (*controller.ExportResult, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	touched := f.session.Selection().Touched()
	if touched && f.session.Selection().Len() == 0 {
		return nil, controller.ErrEmptySelection
	}
	f.exported = append(f.exported, !touched)
	n, err := w.Write([]byte("zip"))
	return &controller.ExportResult{TaskID: f.session.TaskID(), Full: !touched, Files: f.session.Selection().Len(), Bytes: int64(n)}, err
}

func (f *fakeBackend) Pull(ctx context.Context, dir string) (*images.PullResult, error) {
	f.pulled = append(f.pulled, dir)
	return &images.PullResult{Downloaded: f.session.Selection().Filenames()}, nil
}

func newBackend() *fakeBackend {
	collection := review.NewCollection([]models.ImageDescriptor{
		{Filename: "a.png"},
		{Filename: "b.png", IsFlagged: true},
		{Filename: "c.png"},
	})
	return &fakeBackend{session: review.NewSession("T1", collection, false, pngLoader{}, nil)}
}

func TestStatusWord(t *testing.T) {
	assert.Equal(t, "waiting", StatusWord(models.TaskStatusPending))
	assert.Equal(t, "converting", StatusWord(models.TaskStatusProcessing))
}

func TestProgressLine(t *testing.T) {
	tests := []struct {
		name     string
		progress *models.Progress
		want     string
	}{
		{name: "nil", progress: nil, want: "0%"},
		{
			name:     "basic counters",
			progress: &models.Progress{FrameCount: 50, TotalFrames: 200, SavedCount: 3, SkippedCount: 10},
			want:     "25% | frames 50/200 | saved 3 | skipped 10",
		},
		{
			name: "optional counters",
			progress: &models.Progress{
				FrameCount: 10, TotalFrames: 10, SavedCount: 2, SkippedCount: 1,
				QualityFiltered: intPtr(4), TextFiltered: intPtr(0), Percentage: intPtr(100),
			},
			want: "100% | frames 10/10 | saved 2 | skipped 1 | quality 4 | text 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgressLine(tt.progress))
		})
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, &models.Progress{FrameCount: 90, SavedCount: 6, SkippedCount: 20, TextFiltered: intPtr(3)})

	out := buf.String()
	assert.Contains(t, out, "Total frames:     90")
	assert.Contains(t, out, "Saved images:     6")
	assert.Contains(t, out, "Text filtered:    3")
	assert.NotContains(t, out, "Quality")
}

func TestWriteGridAndCounter(t *testing.T) {
	b := newBackend()
	_, err := b.session.Toggle("c.png")
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteGrid(&buf, b.session)
	assert.Equal(t, ""+
		" [x]   1 a.png\n"+
		" [x]   2 b.png (flagged)\n"+
		" [ ]   3 c.png\n"+
		"2 / 3 selected\n", buf.String())
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf)

	handle := &models.TaskHandle{ID: "T1", Status: models.TaskStatusPending}
	p.Print(lifecycle.Transition{From: lifecycle.StateIdle, To: lifecycle.StateSubmitting})
	p.Print(lifecycle.Transition{From: lifecycle.StateSubmitting, To: lifecycle.StatePolling, Handle: handle})
	p.Print(lifecycle.Transition{From: lifecycle.StatePolling, To: lifecycle.StatePolling, Handle: &models.TaskHandle{
		ID: "T1", Status: models.TaskStatusProcessing,
		Progress: &models.Progress{FrameCount: 1, TotalFrames: 2},
	}})
	p.Print(lifecycle.Transition{From: lifecycle.StatePolling, To: lifecycle.StateError, Handle: &models.TaskHandle{
		ID: "T1", Status: models.TaskStatusError, ErrorMessage: "boom",
	}})

	assert.Equal(t, ""+
		"Uploading...\n"+
		"Task T1 submitted\n"+
		"converting 50% | frames 1/2 | saved 0 | skipped 0\n"+
		"Conversion failed: boom\n", buf.String())
}

func TestShellSelectionCommands(t *testing.T) {
	b := newBackend()
	var out bytes.Buffer
	shell := NewShell(b, nil, &out)
	ctx := context.Background()

	require.NoError(t, shell.Execute(ctx, "filter on"))
	assert.Contains(t, out.String(), "2 / 2 selected")

	require.NoError(t, shell.Execute(ctx, "toggle 2"))
	assert.False(t, b.session.Selection().Has("c.png"))
	assert.True(t, b.session.Selection().Has("b.png"), "hidden selection survives")

	require.NoError(t, shell.Execute(ctx, "none"))
	assert.Equal(t, 0, b.session.Selection().Len())

	require.NoError(t, shell.Execute(ctx, "all"))
	assert.Equal(t, []string{"a.png", "c.png"}, b.session.Selection().Filenames())

	err := shell.Execute(ctx, "toggle b.png")
	assert.ErrorIs(t, err, review.ErrNotVisible)

	assert.Error(t, shell.Execute(ctx, "filter sideways"))
	assert.ErrorContains(t, shell.Execute(ctx, "dance"), "unknown command")
}

func TestShellPreviewCommands(t *testing.T) {
	b := newBackend()
	var out bytes.Buffer
	shell := NewShell(b, nil, &out)
	ctx := context.Background()

	assert.ErrorIs(t, shell.Execute(ctx, "next"), review.ErrNoPreview)

	require.NoError(t, shell.Execute(ctx, "open 1"))
	assert.Contains(t, out.String(), "preview 1/3 [x] a.png 8x4")

	require.NoError(t, shell.Execute(ctx, "prev"))
	assert.Equal(t, "a.png", b.session.Preview().Cursor())

	require.NoError(t, shell.Execute(ctx, "next"))
	require.NoError(t, shell.Execute(ctx, "check"))
	assert.False(t, b.session.Selection().Has("b.png"))

	require.NoError(t, shell.Execute(ctx, "filter on"))
	assert.False(t, b.session.Preview().IsOpen())
}

func TestShellExport(t *testing.T) {
	b := newBackend()
	var out bytes.Buffer
	shell := NewShell(b, nil, &out)
	path := filepath.Join(t.TempDir(), "frames.zip")

	require.NoError(t, shell.Execute(context.Background(), "export "+path))
	assert.Equal(t, []bool{true}, b.exported)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
	assert.Contains(t, out.String(), "all images")

	b.exportErr = controller.ErrEmptySelection
	failed := filepath.Join(t.TempDir(), "empty.zip")
	assert.ErrorIs(t, shell.Execute(context.Background(), "export "+failed), controller.ErrEmptySelection)
	assert.NoFileExists(t, failed)
}

func TestShellFailedExportKeepsEarlierArchive(t *testing.T) {
	b := newBackend()
	shell := NewShell(b, nil, io.Discard)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "frames_T1.zip")

	require.NoError(t, shell.Execute(ctx, "export "+path))
	require.NoError(t, shell.Execute(ctx, "none"))
	assert.ErrorIs(t, shell.Execute(ctx, "export "+path), controller.ErrEmptySelection)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "zip", string(data))
}

func TestShellEchoesSessionEvents(t *testing.T) {
	b := newBackend()
	var out bytes.Buffer
	shell := NewShell(b, nil, &out)
	ctx := context.Background()

	require.NoError(t, shell.Execute(ctx, "toggle 1"))
	assert.Equal(t, "a.png deselected | 2 / 3 selected\n", out.String())

	out.Reset()
	b.session.SelectAllVisible()
	assert.Equal(t, "3 / 3 selected\n", out.String(), "changes made outside a command are rendered too")

	out.Reset()
	require.NoError(t, shell.Execute(ctx, "open b.png"))
	require.NoError(t, shell.Execute(ctx, "filter on"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "preview 2/3 [x] b.png (flagged) 8x4"), lines[0])
	assert.Equal(t, "preview closed", lines[1])
	assert.Equal(t, "Filter: hiding flagged images | 2 / 2 selected", lines[2])

	out.Reset()
	require.NoError(t, shell.Execute(ctx, "all"))
	assert.Empty(t, out.String(), "no change, no output")
}

func TestShellReportAndPull(t *testing.T) {
	b := newBackend()
	var out bytes.Buffer
	shell := NewShell(b, nil, &out)
	ctx := context.Background()

	require.NoError(t, shell.Execute(ctx, "report json"))
	var r report.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, 3, r.Summary.Total)

	out.Reset()
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, shell.Execute(ctx, "report csv "+path))
	assert.FileExists(t, path)

	require.NoError(t, shell.Execute(ctx, "pull out"))
	assert.Equal(t, []string{"out"}, b.pulled)
	assert.Contains(t, out.String(), "Pulled 3 images into out")
}

func TestShellRun(t *testing.T) {
	b := newBackend()
	var out bytes.Buffer
	in := strings.NewReader("toggle 1\nbogus\nquit\ntoggle 2\n")

	require.NoError(t, NewShell(b, in, &out).Run(context.Background()))

	assert.False(t, b.session.Selection().Has("a.png"))
	assert.True(t, b.session.Selection().Has("b.png"), "commands after quit are not run")
	assert.Contains(t, out.String(), "Error: unknown command: bogus")
}

func TestShellRunWithoutReview(t *testing.T) {
	err := NewShell(&fakeBackend{}, strings.NewReader(""), io.Discard).Run(context.Background())
	assert.True(t, errors.Is(err, controller.ErrNoReview))
}
