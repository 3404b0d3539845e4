package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/console"
	"github.com/lehigh-university-libraries/framepicker/internal/controller"
	"github.com/lehigh-university-libraries/framepicker/internal/images"
	"github.com/lehigh-university-libraries/framepicker/internal/lifecycle"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		noReview bool
		out      string
	)

	cmd := &cobra.Command{
		Use:   "run <media-file>",
		Short: "Upload a video, follow the conversion and review the frames",
		Long: `Uploads a video to the extraction server and polls it once per interval
until the conversion finishes. The extracted frames are then opened in the
review shell, or downloaded as a full archive with --no-review.

Supported formats: mp4, avi, mov, mkv, flv, wmv (max 100MB).`,
		Example: `  # Convert a lecture and review the frames
  framepicker run lecture.mp4

  # Keep English text frames only and save everything without reviewing
  framepicker run lecture.mp4 --text-lang eng --no-review --out lecture.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := a.cfg.UploadRequest(args[0])
			if err := req.Validate(); err != nil {
				return err
			}

			c := a.controller()
			defer c.Close()

			return followAndReview(cmd, c, func(ctx context.Context) (lifecycle.Token, error) {
				return c.Submit(ctx, req)
			}, noReview, out)
		},
	}

	defaults := client.DefaultUploadRequest("")
	cmd.Flags().Bool("require-text", defaults.RequireText, "Keep only frames that contain text")
	cmd.Flags().Float64("interval", defaults.Interval, "Seconds between sampled frames")
	cmd.Flags().Float64("threshold", defaults.Threshold, "Similarity above which a frame is skipped (0-1)")
	cmd.Flags().Float64("sharpness", defaults.Sharpness, "Minimum sharpness score")
	cmd.Flags().Float64("contrast", defaults.Contrast, "Minimum contrast score")
	cmd.Flags().String("text-lang", defaults.TextLang, "OCR language(s) used for text detection")
	cmd.Flags().Duration("poll-interval", lifecycle.DefaultConfig().Interval, "Delay between status queries")
	cmd.Flags().BoolVar(&noReview, "no-review", false, "Download every frame instead of opening the review shell")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Archive path for --no-review (default frames_<task-id>.zip)")

	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		noReview bool
		out      string
	)

	cmd := &cobra.Command{
		Use:   "watch <task-id>",
		Short: "Follow an existing task and review its frames",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.controller()
			defer c.Close()

			return followAndReview(cmd, c, func(ctx context.Context) (lifecycle.Token, error) {
				return c.Attach(args[0])
			}, noReview, out)
		},
	}

	cmd.Flags().Duration("poll-interval", lifecycle.DefaultConfig().Interval, "Delay between status queries")
	cmd.Flags().BoolVar(&noReview, "no-review", false, "Download every frame instead of opening the review shell")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Archive path for --no-review (default frames_<task-id>.zip)")

	return cmd
}

// followAndReview starts a task, prints its progress until it is terminal
// and then hands the result to the review shell or downloads it whole
func followAndReview(cmd *cobra.Command, c *controller.Controller, start func(context.Context) (lifecycle.Token, error), noReview bool, out string) error {
	ctx := cmd.Context()
	stdout := cmd.OutOrStdout()

	printer := console.NewProgressPrinter(stdout)
	c.Poller().Subscribe(printer.Print)

	if _, err := start(ctx); err != nil {
		return err
	}

	state, handle, err := c.Wait(ctx)
	if err != nil {
		return err
	}
	if state != lifecycle.StateCompleted {
		msg := "conversion failed"
		if handle != nil && handle.ErrorMessage != "" {
			msg = handle.ErrorMessage
		}
		return errors.New(msg)
	}

	if !noReview {
		return console.NewShell(c, cmd.InOrStdin(), stdout).Run(ctx)
	}

	if out == "" {
		out = fmt.Sprintf("frames_%s.zip", handle.ID)
	}
	var result *controller.ExportResult
	err = images.WriteOutput(out, func(w io.Writer) error {
		var err error
		result, err = c.Export(ctx, w)
		return err
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Saved %d images to %s (%d bytes)\n", result.Files, out, result.Bytes)
	return nil
}
