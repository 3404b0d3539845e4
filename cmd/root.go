package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/config"
	"github.com/lehigh-university-libraries/framepicker/internal/controller"
)

// app carries the loaded configuration to subcommands
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Server.URL, a.cfg.Server.Timeout, a.logger)
}

func (a *app) controller() *controller.Controller {
	return controller.New(a.client(), a.cfg.ControllerOptions(), a.logger)
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "framepicker",
		Short: "Submit videos for frame extraction and pick the frames to keep",
		Long: `Framepicker drives a frame extraction server from the terminal.

It uploads a video, follows the conversion until it finishes, then lets you
review the extracted images, hide frames flagged as page turns, select the
ones you want and download them as a zip archive.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
			slog.SetDefault(a.logger)

			a.logger.Debug("Configuration loaded",
				"server", cfg.Server.URL,
				"poll_interval", cfg.Poll.Interval,
				"hide_flagged", cfg.Review.HideFlagged)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	flags.String("server", "http://localhost:5000", "Extraction server base URL")
	flags.Duration("timeout", 5*time.Minute, "Per-request timeout; 0 disables it")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("hide-flagged", false, "Hide images flagged as page turns when reviewing")

	// Add subcommands
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newPullCmd(a))
	cmd.AddCommand(newReportCmd(a))
	cmd.AddCommand(newSimulateCmd(a))

	return cmd
}
