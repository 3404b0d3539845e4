package review

import (
	"context"
	"log/slog"
	"strconv"
)

// GridItem is one row of the thumbnail grid, derived on demand
type GridItem struct {
	Index      int // 1-based position within the visible set
	Filename   string
	Flagged    bool
	Selected   bool
	Previewing bool
}

// Event is delivered to session subscribers after any change that affects rendering
type Event struct {
	Kind      EventKind
	Selection *Change
}

// EventKind names what changed in a session
type EventKind string

const (
	EventSelection EventKind = "selection"
	EventFilter    EventKind = "filter"
	EventPreview   EventKind = "preview"
)

// Session is the review state for one completed task
type Session struct {
	taskID        string
	collection    *Collection
	filterEnabled bool
	selection     *Selection
	preview       *Navigator
	listeners     []func(Event)
	logger        *slog.Logger
}

// NewSession builds a review session and seeds the selection with the
// initially visible images
func NewSession(taskID string, collection *Collection, filterEnabled bool, loader ImageLoader, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		taskID:        taskID,
		collection:    collection,
		filterEnabled: filterEnabled,
		logger:        logger.With("component", "review", "task_id", taskID),
	}
	s.selection = NewSelection(collection, Visible(collection, filterEnabled))
	s.preview = newNavigator(taskID, s.Visible, s.selection, loader)
	s.selection.Subscribe(func(c Change) {
		s.emit(Event{Kind: EventSelection, Selection: &c})
	})

	s.logger.Debug("Review session created",
		"images", collection.Len(),
		"flagged", collection.FlaggedCount(),
		"filter_enabled", filterEnabled)
	return s
}

// TaskID returns the id of the task under review
func (s *Session) TaskID() string {
	return s.taskID
}

// Collection returns the image collection
func (s *Session) Collection() *Collection {
	return s.collection
}

// Selection returns the selection set
func (s *Session) Selection() *Selection {
	return s.selection
}

// Preview returns the preview navigator
func (s *Session) Preview() *Navigator {
	return s.preview
}

// Subscribe registers fn for change events
func (s *Session) Subscribe(fn func(Event)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Session) emit(e Event) {
	for _, fn := range s.listeners {
		fn(e)
	}
}

// FilterEnabled reports whether flagged images are hidden
func (s *Session) FilterEnabled() bool {
	return s.filterEnabled
}

// Visible returns the currently visible filenames
func (s *Session) Visible() []string {
	return Visible(s.collection, s.filterEnabled)
}

// SetFilter changes the flagged-image filter. The selection is left intact;
// an open preview whose image becomes hidden is closed.
func (s *Session) SetFilter(enabled bool) {
	if s.filterEnabled == enabled {
		return
	}
	s.filterEnabled = enabled
	s.logger.Debug("Filter changed", "filter_enabled", enabled)

	if s.preview.IsOpen() && indexOf(s.Visible(), s.preview.Cursor()) < 0 {
		s.preview.Close()
		s.emit(Event{Kind: EventPreview})
	}
	s.emit(Event{Kind: EventFilter})
}

// ToggleFilter flips the filter and returns the new state
func (s *Session) ToggleFilter() bool {
	s.SetFilter(!s.filterEnabled)
	return s.filterEnabled
}

// Toggle flips selection of filename, as a grid click does
func (s *Session) Toggle(filename string) (bool, error) {
	return s.selection.Toggle(filename)
}

// SelectAllVisible adds every visible image to the selection
func (s *Session) SelectAllVisible() {
	s.selection.AddAll(s.Visible())
}

// ClearSelection removes every selection
func (s *Session) ClearSelection() {
	s.selection.Clear()
}

// Count returns how many visible images are selected and how many are visible
func (s *Session) Count() (selectedVisible, totalVisible int) {
	visible := s.Visible()
	return s.selection.CountIn(visible), len(visible)
}

// Grid returns the visible images with their current selection state
func (s *Session) Grid() []GridItem {
	visible := s.Visible()
	items := make([]GridItem, 0, len(visible))
	for i, f := range visible {
		d, _ := s.collection.Get(f)
		items = append(items, GridItem{
			Index:      i + 1,
			Filename:   f,
			Flagged:    d.IsFlagged,
			Selected:   s.selection.Has(f),
			Previewing: s.preview.Cursor() == f,
		})
	}
	return items
}

// Open shows filename in the preview
func (s *Session) Open(ctx context.Context, filename string) error {
	if err := s.preview.Open(ctx, filename); err != nil {
		return err
	}
	s.emit(Event{Kind: EventPreview})
	return nil
}

// Close hides the preview
func (s *Session) Close() {
	if !s.preview.IsOpen() {
		return
	}
	s.preview.Close()
	s.emit(Event{Kind: EventPreview})
}

// Step moves the preview by delta within the visible set
func (s *Session) Step(ctx context.Context, delta int) error {
	before := s.preview.Cursor()
	if err := s.preview.Step(ctx, delta); err != nil {
		return err
	}
	if s.preview.Cursor() != before {
		s.emit(Event{Kind: EventPreview})
	}
	return nil
}

// TogglePreviewSelection flips the selection of the previewed image
func (s *Session) TogglePreviewSelection() (bool, error) {
	return s.preview.ToggleSelection()
}

// ResolveVisible maps a visible filename or a 1-based grid index to a
// visible filename. An exact filename match wins over an index.
func (s *Session) ResolveVisible(ref string) (string, bool) {
	visible := s.Visible()
	if indexOf(visible, ref) >= 0 {
		return ref, true
	}
	if n, ok := parseIndex(ref); ok && n >= 1 && n <= len(visible) {
		return visible[n-1], true
	}
	return "", false
}

func parseIndex(ref string) (int, bool) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return 0, false
	}
	return n, true
}
