// Package console renders task progress and the review session as plain text
// and runs the interactive review shell.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/framepicker/internal/lifecycle"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
	"github.com/lehigh-university-libraries/framepicker/internal/review"
)

// StatusWord is the short label shown while a task is in flight
func StatusWord(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return "waiting"
	case models.TaskStatusProcessing:
		return "converting"
	case models.TaskStatusCompleted:
		return "completed"
	case models.TaskStatusError:
		return "failed"
	default:
		return string(status)
	}
}

// ProgressLine formats p as "NN% | frames a/b | saved s | skipped k" with the
// optional filter counters appended when the server reported them
func ProgressLine(p *models.Progress) string {
	if p == nil {
		return "0%"
	}
	parts := []string{
		fmt.Sprintf("%d%%", p.Percent()),
		fmt.Sprintf("frames %d/%d", p.FrameCount, p.TotalFrames),
		fmt.Sprintf("saved %d", p.SavedCount),
		fmt.Sprintf("skipped %d", p.SkippedCount),
	}
	if p.QualityFiltered != nil {
		parts = append(parts, fmt.Sprintf("quality %d", *p.QualityFiltered))
	}
	if p.TextFiltered != nil {
		parts = append(parts, fmt.Sprintf("text %d", *p.TextFiltered))
	}
	return strings.Join(parts, " | ")
}

// WriteSummary prints the result counters of a completed task
func WriteSummary(w io.Writer, result *models.Progress) {
	if result == nil {
		fmt.Fprintln(w, "Conversion complete")
		return
	}
	fmt.Fprintln(w, "Conversion complete")
	fmt.Fprintf(w, "  Total frames:     %d\n", result.FrameCount)
	fmt.Fprintf(w, "  Saved images:     %d\n", result.SavedCount)
	fmt.Fprintf(w, "  Skipped similar:  %d\n", result.SkippedCount)
	if result.QualityFiltered != nil {
		fmt.Fprintf(w, "  Quality filtered: %d\n", *result.QualityFiltered)
	}
	if result.TextFiltered != nil {
		fmt.Fprintf(w, "  Text filtered:    %d\n", *result.TextFiltered)
	}
}

// Counter formats the "M / N selected" line
func Counter(session *review.Session) string {
	selected, total := session.Count()
	return fmt.Sprintf("%d / %d selected", selected, total)
}

// WriteGrid prints one line per visible image followed by the counter
func WriteGrid(w io.Writer, session *review.Session) {
	grid := session.Grid()
	if len(grid) == 0 {
		fmt.Fprintln(w, "(no visible images)")
	}
	for _, item := range grid {
		mark := "[ ]"
		if item.Selected {
			mark = "[x]"
		}
		cursor := " "
		if item.Previewing {
			cursor = ">"
		}
		line := fmt.Sprintf("%s%s %3d %s", cursor, mark, item.Index, item.Filename)
		if item.Flagged {
			line += " (flagged)"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, Counter(session))
}

// PreviewLine describes the open preview, or reports that none is open
func PreviewLine(state review.PreviewState) string {
	if !state.Open {
		return "preview closed"
	}
	mark := "[ ]"
	if state.Selected {
		mark = "[x]"
	}
	line := fmt.Sprintf("preview %d/%d %s %s", state.Index+1, state.Total, mark, state.Filename)
	if state.Flagged {
		line += " (flagged)"
	}
	if state.Width > 0 && state.Height > 0 {
		line += fmt.Sprintf(" %dx%d", state.Width, state.Height)
	}
	line += fmt.Sprintf(" %d bytes", len(state.Content))

	var nav []string
	if state.HasPrev {
		nav = append(nav, "prev")
	}
	if state.HasNext {
		nav = append(nav, "next")
	}
	if len(nav) > 0 {
		line += " [" + strings.Join(nav, "/") + "]"
	}
	return line
}

// ProgressPrinter writes one line per lifecycle transition
type ProgressPrinter struct {
	w io.Writer
}

// NewProgressPrinter creates a printer writing to w
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{w: w}
}

// Print is a lifecycle.Poller subscriber. It only writes to its writer and
// never calls back into the poller.
func (p *ProgressPrinter) Print(t lifecycle.Transition) {
	switch t.To {
	case lifecycle.StateSubmitting:
		fmt.Fprintln(p.w, "Uploading...")
	case lifecycle.StateIdle:
		if t.Err != nil {
			fmt.Fprintf(p.w, "Upload failed: %v\n", t.Err)
		}
	case lifecycle.StatePolling:
		if t.Handle == nil {
			return
		}
		if t.From != lifecycle.StatePolling {
			fmt.Fprintf(p.w, "Task %s submitted\n", t.Handle.ID)
			return
		}
		line := StatusWord(t.Handle.Status)
		if t.Handle.Progress != nil {
			line += " " + ProgressLine(t.Handle.Progress)
		}
		fmt.Fprintln(p.w, line)
	case lifecycle.StateCompleted:
		if t.Handle != nil {
			WriteSummary(p.w, t.Handle.Result)
		}
	case lifecycle.StateError:
		msg := "conversion failed"
		if t.Handle != nil && t.Handle.ErrorMessage != "" {
			msg = t.Handle.ErrorMessage
		}
		fmt.Fprintf(p.w, "Conversion failed: %s\n", msg)
	}
}
