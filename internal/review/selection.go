package review

import (
	"fmt"
)

// Change describes one effective selection mutation
type Change struct {
	Filenames []string
	Selected  bool
}

// Selection is the single source of truth for which images are marked for export
type Selection struct {
	collection *Collection
	members    map[string]struct{}
	touched    bool
	observers  []func(Change)
}

// NewSelection creates a selection over collection seeded with initial
func NewSelection(collection *Collection, initial []string) *Selection {
	s := &Selection{
		collection: collection,
		members:    make(map[string]struct{}, len(initial)),
	}
	for _, f := range initial {
		if collection.Contains(f) {
			s.members[f] = struct{}{}
		}
	}
	return s
}

// Subscribe registers fn to be called after every effective mutation
func (s *Selection) Subscribe(fn func(Change)) {
	s.observers = append(s.observers, fn)
}

// Has reports whether filename is selected
func (s *Selection) Has(filename string) bool {
	_, ok := s.members[filename]
	return ok
}

// Len returns the number of selected filenames, visible or not
func (s *Selection) Len() int {
	return len(s.members)
}

// Touched reports whether the user has mutated the selection since it was seeded
func (s *Selection) Touched() bool {
	return s.touched
}

// Select adds filename to the selection
func (s *Selection) Select(filename string) error {
	return s.set(filename, true)
}

// Deselect removes filename from the selection
func (s *Selection) Deselect(filename string) error {
	return s.set(filename, false)
}

// Toggle flips membership of filename and returns the new state
func (s *Selection) Toggle(filename string) (bool, error) {
	selected := !s.Has(filename)
	if err := s.set(filename, selected); err != nil {
		return false, err
	}
	return selected, nil
}

func (s *Selection) set(filename string, selected bool) error {
	if !s.collection.Contains(filename) {
		return fmt.Errorf("%w: %s", ErrUnknownImage, filename)
	}
	s.touched = true
	if s.Has(filename) == selected {
		return nil
	}
	if selected {
		s.members[filename] = struct{}{}
	} else {
		delete(s.members, filename)
	}
	s.notify(Change{Filenames: []string{filename}, Selected: selected})
	return nil
}

// AddAll selects every filename in visible without removing anything
func (s *Selection) AddAll(visible []string) {
	s.touched = true
	var added []string
	for _, f := range visible {
		if !s.collection.Contains(f) || s.Has(f) {
			continue
		}
		s.members[f] = struct{}{}
		added = append(added, f)
	}
	if len(added) > 0 {
		s.notify(Change{Filenames: added, Selected: true})
	}
}

// Clear removes every selection, visible or hidden
func (s *Selection) Clear() {
	s.touched = true
	if len(s.members) == 0 {
		return
	}
	removed := s.Filenames()
	s.members = make(map[string]struct{})
	s.notify(Change{Filenames: removed, Selected: false})
}

// Filenames returns the selected filenames in collection order
func (s *Selection) Filenames() []string {
	out := make([]string, 0, len(s.members))
	for _, d := range s.collection.items {
		if s.Has(d.Filename) {
			out = append(out, d.Filename)
		}
	}
	return out
}

// CountIn returns how many of visible are selected
func (s *Selection) CountIn(visible []string) int {
	n := 0
	for _, f := range visible {
		if s.Has(f) {
			n++
		}
	}
	return n
}

func (s *Selection) notify(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}
