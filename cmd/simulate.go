package cmd

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/framepicker/internal/simulator"
)

func newSimulateCmd(a *app) *cobra.Command {
	var port int
	cfg := simulator.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory extraction server for local testing",
		Long: `Starts a stand-in for the extraction server that accepts uploads, walks each
task through pending and processing, and serves synthetic PNG frames.`,
		Example: `  # Start the simulator on the default port 5000
  framepicker simulate

  # Slow, larger tasks that end in an error
  framepicker simulate --frames 40 --steps 10 --fail-with "no frames found"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := a.logger
			sim := simulator.New(cfg, logger)

			addr := ":" + strconv.Itoa(port)
			server := &http.Server{
				Addr:              addr,
				Handler:           sim,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				logger.Info("Simulator available", "addr", addr, "url", "http://localhost"+addr, "frames", cfg.Frames, "steps", cfg.Steps)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				logger.Info("Shutting down simulator...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Simulator shutdown failed", "err", err)
					return err
				}
				stats := sim.Stats()
				logger.Info("Simulator stopped", "uploads", stats.Uploads, "status_requests", stats.StatusRequests, "downloads", stats.DownloadRequests)
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "Port to listen on")
	cmd.Flags().IntVar(&cfg.Frames, "frames", cfg.Frames, "Images produced per task")
	cmd.Flags().IntVar(&cfg.FlagEvery, "flag-every", cfg.FlagEvery, "Flag every Nth image as a page turn; 0 disables")
	cmd.Flags().IntVar(&cfg.Steps, "steps", cfg.Steps, "Processing polls before a task completes")
	cmd.Flags().IntVar(&cfg.TotalFrames, "total-frames", cfg.TotalFrames, "Reported frame count of each video")
	cmd.Flags().StringVar(&cfg.FailWith, "fail-with", "", "End every task in the error state with this message")
	cmd.Flags().DurationVar(&cfg.StatusDelay, "status-delay", 0, "Latency added to every status response")

	return cmd
}
