// Package report renders the review state of a task in machine and human
// readable formats.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/framepicker/internal/review"
)

// Formats lists the supported output formats
var Formats = []string{"text", "json", "csv", "yaml", "parquet"}

// Row describes one image of the collection
type Row struct {
	Index    int    `json:"index" yaml:"index" parquet:"index"`
	Filename string `json:"filename" yaml:"filename" parquet:"filename"`
	Flagged  bool   `json:"flagged" yaml:"flagged" parquet:"flagged"`
	Selected bool   `json:"selected" yaml:"selected" parquet:"selected"`
	Visible  bool   `json:"visible" yaml:"visible" parquet:"visible"`
}

// Summary holds the collection-wide counts
type Summary struct {
	Total           int `json:"total" yaml:"total"`
	Flagged         int `json:"flagged" yaml:"flagged"`
	Visible         int `json:"visible" yaml:"visible"`
	Selected        int `json:"selected" yaml:"selected"`
	SelectedVisible int `json:"selected_visible" yaml:"selected_visible"`
}

// Report is a snapshot of a review session
type Report struct {
	TaskID        string  `json:"task_id" yaml:"task_id"`
	FilterEnabled bool    `json:"filter_enabled" yaml:"filter_enabled"`
	Summary       Summary `json:"summary" yaml:"summary"`
	Rows          []Row   `json:"rows" yaml:"rows"`
}

// Build snapshots session. Rows cover the whole collection in collection order,
// hidden images included.
func Build(session *review.Session) *Report {
	collection := session.Collection()
	selection := session.Selection()

	visible := make(map[string]bool)
	for _, name := range session.Visible() {
		visible[name] = true
	}

	r := &Report{
		TaskID:        session.TaskID(),
		FilterEnabled: session.FilterEnabled(),
		Rows:          make([]Row, 0, collection.Len()),
	}
	for i, img := range collection.Items() {
		row := Row{
			Index:    i + 1,
			Filename: img.Filename,
			Flagged:  img.IsFlagged,
			Selected: selection.Has(img.Filename),
			Visible:  visible[img.Filename],
		}
		r.Rows = append(r.Rows, row)

		r.Summary.Total++
		if row.Flagged {
			r.Summary.Flagged++
		}
		if row.Visible {
			r.Summary.Visible++
		}
		if row.Selected {
			r.Summary.Selected++
			if row.Visible {
				r.Summary.SelectedVisible++
			}
		}
	}

	return r
}

// Write renders r to w in format
func Write(w io.Writer, r *Report, format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		return writeText(w, r)
	case "json":
		return writeJSON(w, r)
	case "csv":
		return writeCSV(w, r)
	case "yaml", "yml":
		return writeYAML(w, r)
	case "parquet":
		return writeParquet(w, r)
	default:
		return fmt.Errorf("unsupported format: %s (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

func writeText(w io.Writer, r *Report) error {
	var b strings.Builder
	b.WriteString("========================================\n")
	b.WriteString("Frame Selection Report\n")
	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "Task:     %s\n", r.TaskID)
	fmt.Fprintf(&b, "Filter:   %s\n", onOff(r.FilterEnabled))
	fmt.Fprintf(&b, "Images:   %d (%d flagged)\n", r.Summary.Total, r.Summary.Flagged)
	fmt.Fprintf(&b, "Selected: %d / %d visible, %d overall\n", r.Summary.SelectedVisible, r.Summary.Visible, r.Summary.Selected)
	b.WriteString("\n")

	for _, row := range r.Rows {
		mark := "[ ]"
		if row.Selected {
			mark = "[x]"
		}
		var notes []string
		if row.Flagged {
			notes = append(notes, "flagged")
		}
		if !row.Visible {
			notes = append(notes, "hidden")
		}
		fmt.Fprintf(&b, "%s %3d %s", mark, row.Index, row.Filename)
		if len(notes) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(notes, ", "))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeJSON(w io.Writer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func writeCSV(w io.Writer, r *Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"Index", "Filename", "Flagged", "Selected", "Visible"}); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := []string{
			strconv.Itoa(row.Index),
			row.Filename,
			strconv.FormatBool(row.Flagged),
			strconv.FormatBool(row.Selected),
			strconv.FormatBool(row.Visible),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeYAML(w io.Writer, r *Report) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return encoder.Close()
}

// writeParquet writes only the rows; the summary is derivable from them
func writeParquet(w io.Writer, r *Report) error {
	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(r.Rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "hide flagged"
	}
	return "show all"
}
