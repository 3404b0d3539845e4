// Package review holds the client-side result review state: the image
// collection fetched once per task, the visibility filter derived from it,
// the selection set, and the preview navigator.
//
// Nothing here is safe for concurrent use. A Session is driven by one
// goroutine (the console loop), matching the serialized event model of the
// controller.
package review

import (
	"errors"

	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

var (
	// ErrUnknownImage is returned when a filename is not part of the collection
	ErrUnknownImage = errors.New("image not in collection")
	// ErrNotVisible is returned when opening a filename hidden by the filter
	ErrNotVisible = errors.New("image not visible")
	// ErrNoPreview is returned by preview operations while nothing is open
	ErrNoPreview = errors.New("no image open in preview")
)

// Collection is the immutable, ordered list of image descriptors of one task
type Collection struct {
	items []models.ImageDescriptor
	index map[string]int
}

// NewCollection copies descriptors into a collection. Order is preserved.
func NewCollection(descriptors []models.ImageDescriptor) *Collection {
	items := make([]models.ImageDescriptor, len(descriptors))
	copy(items, descriptors)

	index := make(map[string]int, len(items))
	for i, d := range items {
		index[d.Filename] = i
	}

	return &Collection{items: items, index: index}
}

// Len returns the number of descriptors
func (c *Collection) Len() int {
	return len(c.items)
}

// Items returns a copy of the descriptors in collection order
func (c *Collection) Items() []models.ImageDescriptor {
	out := make([]models.ImageDescriptor, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the descriptor for filename
func (c *Collection) Get(filename string) (models.ImageDescriptor, bool) {
	i, ok := c.index[filename]
	if !ok {
		return models.ImageDescriptor{}, false
	}
	return c.items[i], true
}

// Contains reports whether filename belongs to the collection
func (c *Collection) Contains(filename string) bool {
	_, ok := c.index[filename]
	return ok
}

// FlaggedCount returns how many descriptors are flagged
func (c *Collection) FlaggedCount() int {
	n := 0
	for _, d := range c.items {
		if d.IsFlagged {
			n++
		}
	}
	return n
}

// Visible returns the filenames shown for the given filter state, in
// collection order. With the filter enabled flagged images are excluded.
// The result is always freshly computed.
func Visible(c *Collection, filterEnabled bool) []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.items))
	for _, d := range c.items {
		if filterEnabled && d.IsFlagged {
			continue
		}
		out = append(out, d.Filename)
	}
	return out
}
