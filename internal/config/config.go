// Package config loads framepicker settings from defaults, an optional YAML
// file, FRAMEPICKER_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/controller"
	"github.com/lehigh-university-libraries/framepicker/internal/lifecycle"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "FRAMEPICKER"

// Config holds all application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Poll   PollConfig   `mapstructure:"poll"`
	Upload UploadConfig `mapstructure:"upload"`
	Review ReviewConfig `mapstructure:"review"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig locates the extraction server
type ServerConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// PollConfig controls status polling
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// UploadConfig holds the extraction parameters sent with every upload
type UploadConfig struct {
	RequireText bool    `mapstructure:"require_text"`
	Interval    float64 `mapstructure:"interval" validate:"gt=0"`
	Threshold   float64 `mapstructure:"threshold" validate:"gte=0,lte=1"`
	Sharpness   float64 `mapstructure:"sharpness" validate:"gte=0"`
	Contrast    float64 `mapstructure:"contrast" validate:"gte=0"`
	TextLang    string  `mapstructure:"text_lang" validate:"required"`
}

// ReviewConfig holds review defaults
type ReviewConfig struct {
	HideFlagged bool    `mapstructure:"hide_flagged"`
	PullRate    float64 `mapstructure:"pull_rate" validate:"gte=0"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// flagKeys maps command line flag names to configuration keys
var flagKeys = map[string]string{
	"server":        "server.url",
	"timeout":       "server.timeout",
	"poll-interval": "poll.interval",
	"require-text":  "upload.require_text",
	"interval":      "upload.interval",
	"threshold":     "upload.threshold",
	"sharpness":     "upload.sharpness",
	"contrast":      "upload.contrast",
	"text-lang":     "upload.text_lang",
	"hide-flagged":  "review.hide_flagged",
	"pull-rate":     "review.pull_rate",
	"log-level":     "log.level",
}

func setDefaults(v *viper.Viper) {
	upload := client.DefaultUploadRequest("")

	v.SetDefault("server.url", "http://localhost:5000")
	v.SetDefault("server.timeout", 5*time.Minute)
	v.SetDefault("poll.interval", lifecycle.DefaultConfig().Interval)
	v.SetDefault("upload.require_text", upload.RequireText)
	v.SetDefault("upload.interval", upload.Interval)
	v.SetDefault("upload.threshold", upload.Threshold)
	v.SetDefault("upload.sharpness", upload.Sharpness)
	v.SetDefault("upload.contrast", upload.Contrast)
	v.SetDefault("upload.text_lang", upload.TextLang)
	v.SetDefault("review.hide_flagged", false)
	v.SetDefault("review.pull_rate", 10.0)
	v.SetDefault("log.level", "info")
}

// Load builds the configuration. path names an optional YAML file; flags, when
// non-nil, contributes every flag listed in flagKeys that the user set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// UploadRequest builds an upload request for path from the configured parameters
func (c *Config) UploadRequest(path string) client.UploadRequest {
	return client.UploadRequest{
		FilePath:    path,
		RequireText: c.Upload.RequireText,
		Interval:    c.Upload.Interval,
		Threshold:   c.Upload.Threshold,
		Sharpness:   c.Upload.Sharpness,
		Contrast:    c.Upload.Contrast,
		TextLang:    c.Upload.TextLang,
	}
}

// ControllerOptions maps the configuration onto controller options
func (c *Config) ControllerOptions() controller.Options {
	return controller.Options{
		Poll:        lifecycle.Config{Interval: c.Poll.Interval},
		HideFlagged: c.Review.HideFlagged,
		PullRate:    c.Review.PullRate,
	}
}

// Level returns the configured slog level, defaulting to info
func (c *Config) Level() slog.Level {
	return ParseLevel(c.Log.Level)
}

// ParseLevel parses a level name case-insensitively, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
