package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/console"
	"github.com/lehigh-university-libraries/framepicker/internal/images"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
	"github.com/lehigh-university-libraries/framepicker/internal/report"
	"github.com/lehigh-university-libraries/framepicker/internal/review"
)

// loadSession fetches the images of a completed task into a fresh review session
func loadSession(ctx context.Context, a *app, api *client.Client, taskID string) (*review.Session, error) {
	resp, err := api.Images(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return review.NewSession(taskID, review.NewCollection(resp.Images), a.cfg.Review.HideFlagged, api, a.logger), nil
}

// chooseFiles returns the explicitly named files after checking them against
// the collection, or the visible images when none were named
func chooseFiles(session *review.Session, files []string) ([]string, error) {
	if len(files) == 0 {
		return session.Visible(), nil
	}
	for _, f := range files {
		if !session.Collection().Contains(f) {
			return nil, fmt.Errorf("%w: %s", review.ErrUnknownImage, f)
		}
	}
	return files, nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Query the state of a task once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.client().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch status.Status {
			case models.TaskStatusCompleted:
				result := status.Result
				if result == nil {
					result = status.Progress
				}
				console.WriteSummary(out, result)
			case models.TaskStatusError:
				msg := status.Error
				if msg == "" {
					msg = "conversion failed"
				}
				fmt.Fprintf(out, "Conversion failed: %s\n", msg)
			default:
				line := console.StatusWord(status.Status)
				if status.Progress != nil {
					line += " " + console.ProgressLine(status.Progress)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var (
		files []string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "export <task-id>",
		Short: "Download the frames of a completed task as a zip archive",
		Long: `Downloads the archive of a completed task. Without --files every frame is
included; with --hide-flagged only frames not flagged as page turns are.`,
		Example: `  framepicker export 3f1c... --out frames.zip
  framepicker export 3f1c... --files frame_0001.png,frame_0004.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			taskID := args[0]
			api := a.client()

			if out == "" {
				out = fmt.Sprintf("frames_%s.zip", taskID)
			}

			var selected []string
			if len(files) > 0 || a.cfg.Review.HideFlagged {
				session, err := loadSession(ctx, a, api, taskID)
				if err != nil {
					return err
				}
				if selected, err = chooseFiles(session, files); err != nil {
					return err
				}
				if len(selected) == 0 {
					return client.ErrEmptySelection
				}
			}

			var n int64
			err := images.WriteOutput(out, func(w io.Writer) error {
				var err error
				if selected == nil {
					n, err = api.DownloadAll(ctx, taskID, w)
				} else {
					n, err = api.DownloadSelected(ctx, taskID, selected, w)
				}
				return err
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved archive to %s (%d bytes)\n", out, n)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&files, "files", nil, "Comma separated filenames to include")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Archive path (default frames_<task-id>.zip)")

	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	var (
		files []string
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "pull <task-id>",
		Short: "Save individual frames of a completed task into a directory",
		Long: `Downloads frames one by one instead of as an archive. Files that already
exist in the directory are skipped, so an interrupted pull can be resumed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			taskID := args[0]
			api := a.client()

			session, err := loadSession(ctx, a, api, taskID)
			if err != nil {
				return err
			}
			selected, err := chooseFiles(session, files)
			if err != nil {
				return err
			}
			if len(selected) == 0 {
				return client.ErrEmptySelection
			}

			if dir == "" {
				dir = fmt.Sprintf("frames_%s", taskID)
			}
			result, err := images.NewPuller(api, a.cfg.Review.PullRate, a.logger).Pull(ctx, taskID, selected, dir)
			if result != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d images into %s (%d skipped, %d failed, %d bytes)\n",
					len(result.Downloaded), dir, len(result.Skipped), len(result.Failed), result.Bytes)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&files, "files", nil, "Comma separated filenames to pull (default all visible)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (default frames_<task-id>)")
	cmd.Flags().Float64("pull-rate", 10, "Maximum image requests per second; 0 means unlimited")

	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "report <task-id>",
		Short: "Describe the frames of a completed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := loadSession(cmd.Context(), a, a.client(), args[0])
			if err != nil {
				return err
			}
			r := report.Build(session)

			if out == "" {
				return report.Write(cmd.OutOrStdout(), r, format)
			}

			return images.WriteOutput(out, func(w io.Writer) error {
				return report.Write(w, r, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, csv, yaml, parquet)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to a file instead of stdout")

	return cmd
}
