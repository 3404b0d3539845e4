package review

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ImageLoader fetches the bytes of one result image
type ImageLoader interface {
	Image(ctx context.Context, taskID, filename string) ([]byte, error)
}

// PreviewState is a read-only snapshot of the preview for rendering
type PreviewState struct {
	Open     bool
	Filename string
	Index    int // 0-based position within the visible set
	Total    int
	Selected bool
	Flagged  bool
	HasPrev  bool
	HasNext  bool
	Content  []byte
	Width    int
	Height   int
}

// Navigator is the full-screen single image viewer. Its range is always the
// session's current visible set, never a snapshot taken at open time.
type Navigator struct {
	taskID    string
	visible   func() []string
	selection *Selection
	loader    ImageLoader

	cursor  string
	content []byte
	width   int
	height  int
}

func newNavigator(taskID string, visible func() []string, selection *Selection, loader ImageLoader) *Navigator {
	return &Navigator{
		taskID:    taskID,
		visible:   visible,
		selection: selection,
		loader:    loader,
	}
}

// IsOpen reports whether a preview is showing
func (n *Navigator) IsOpen() bool {
	return n.cursor != ""
}

// Cursor returns the open filename, or "" when closed
func (n *Navigator) Cursor() string {
	return n.cursor
}

// Open loads filename into the preview. The filename must be visible.
// On a load failure the previous preview, if any, stays open.
func (n *Navigator) Open(ctx context.Context, filename string) error {
	if indexOf(n.visible(), filename) < 0 {
		if n.selection.collection.Contains(filename) {
			return fmt.Errorf("%w: %s", ErrNotVisible, filename)
		}
		return fmt.Errorf("%w: %s", ErrUnknownImage, filename)
	}

	content, err := n.loader.Image(ctx, n.taskID, filename)
	if err != nil {
		return fmt.Errorf("failed to load preview for %s: %w", filename, err)
	}

	n.cursor = filename
	n.content = content
	n.width, n.height = 0, 0
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(content)); err == nil {
		n.width, n.height = cfg.Width, cfg.Height
	}
	return nil
}

// Close clears the cursor and releases the loaded content
func (n *Navigator) Close() {
	n.cursor = ""
	n.content = nil
	n.width, n.height = 0, 0
}

// Step moves the preview by delta within the current visible set.
// Stepping past either end is a no-op.
func (n *Navigator) Step(ctx context.Context, delta int) error {
	if !n.IsOpen() {
		return ErrNoPreview
	}
	visible := n.visible()
	i := indexOf(visible, n.cursor)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotVisible, n.cursor)
	}
	target := i + delta
	if delta == 0 || target < 0 || target > len(visible)-1 {
		return nil
	}
	return n.Open(ctx, visible[target])
}

// ToggleSelection flips the selection of the open image and returns the new state
func (n *Navigator) ToggleSelection() (bool, error) {
	if !n.IsOpen() {
		return false, ErrNoPreview
	}
	return n.selection.Toggle(n.cursor)
}

// State returns the current preview snapshot. Selection and boundary flags
// are read from their sources on every call.
func (n *Navigator) State() PreviewState {
	if !n.IsOpen() {
		return PreviewState{}
	}
	visible := n.visible()
	i := indexOf(visible, n.cursor)
	d, _ := n.selection.collection.Get(n.cursor)
	return PreviewState{
		Open:     true,
		Filename: n.cursor,
		Index:    i,
		Total:    len(visible),
		Selected: n.selection.Has(n.cursor),
		Flagged:  d.IsFlagged,
		HasPrev:  i > 0,
		HasNext:  i >= 0 && i < len(visible)-1,
		Content:  n.content,
		Width:    n.width,
		Height:   n.height,
	}
}

func indexOf(list []string, filename string) int {
	for i, f := range list {
		if f == filename {
			return i
		}
	}
	return -1
}
