package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.Server.URL)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 0.95, cfg.Upload.Threshold)
	assert.Equal(t, "chi_sim+eng", cfg.Upload.TextLang)
	assert.True(t, cfg.Upload.RequireText)
	assert.False(t, cfg.Review.HideFlagged)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framepicker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  url: http://files.example.org:5000
poll:
  interval: 250ms
review:
  hide_flagged: true
log:
  level: debug
`), 0644))

	t.Setenv("FRAMEPICKER_SERVER_URL", "http://env.example.org")
	t.Setenv("FRAMEPICKER_UPLOAD_THRESHOLD", "0.8")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.Float64("pull-rate", 10, "")
	require.NoError(t, flags.Parse([]string{"--pull-rate", "2"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.org", cfg.Server.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 0.8, cfg.Upload.Threshold)
	assert.True(t, cfg.Review.HideFlagged)
	assert.Equal(t, 2.0, cfg.Review.PullRate)
	assert.Equal(t, "debug", cfg.Log.Level, "unset flag must not override the file")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad url", env: map[string]string{"FRAMEPICKER_SERVER_URL": "not a url"}},
		{name: "threshold range", env: map[string]string{"FRAMEPICKER_UPLOAD_THRESHOLD": "3"}},
		{name: "zero poll interval", env: map[string]string{"FRAMEPICKER_POLL_INTERVAL": "0s"}},
		{name: "unknown level", env: map[string]string{"FRAMEPICKER_LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			assert.ErrorContains(t, err, "invalid configuration")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestDerivedOptions(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	req := cfg.UploadRequest("/media/talk.mp4")
	assert.Equal(t, "/media/talk.mp4", req.FilePath)
	assert.NoError(t, req.Validate())

	opts := cfg.ControllerOptions()
	assert.Equal(t, cfg.Poll.Interval, opts.Poll.Interval)
	assert.Equal(t, cfg.Review.PullRate, opts.PullRate)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
