package simulator

import (
	"sync"
	"time"

	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// Task is the simulated server-side record of one extraction job
type Task struct {
	ID          string
	Filename    string
	RequireText bool
	Interval    float64
	Threshold   float64
	Sharpness   float64
	Contrast    float64
	TextLang    string
	Polls       int
	Frames      []Frame
	CreatedAt   time.Time
}

// Frame is one synthetic output image
type Frame struct {
	Filename string
	Flagged  bool
	Data     []byte
}

// TaskStore keeps simulated tasks in memory
type TaskStore struct {
	tasks map[string]*Task
	mu    sync.RWMutex
}

// NewTaskStore creates an empty store
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
	}
}

// Get returns the task with id
func (s *TaskStore) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, exists := s.tasks[id]
	return task, exists
}

// Set stores task under id
func (s *TaskStore) Set(id string, task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = task
}

// Advance records one status poll and returns the poll count
func (s *TaskStore) Advance(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.tasks[id]
	if !exists {
		return 0, false
	}
	task.Polls++
	return task.Polls, true
}

// Polls returns how many status polls the task has received
func (s *TaskStore) Polls(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if task, exists := s.tasks[id]; exists {
		return task.Polls
	}
	return 0
}

// Len returns the number of stored tasks
func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func progressFor(step, steps, totalFrames, saved int) *models.Progress {
	if steps < 1 {
		steps = 1
	}
	if step > steps {
		step = steps
	}
	frameCount := totalFrames * step / steps
	savedCount := saved * step / steps
	skipped := frameCount / 4
	quality := frameCount / 10
	text := frameCount / 20
	percentage := 0
	if totalFrames > 0 {
		percentage = frameCount * 100 / totalFrames
	}
	return &models.Progress{
		FrameCount:      frameCount,
		TotalFrames:     totalFrames,
		SavedCount:      savedCount,
		SkippedCount:    skipped,
		QualityFiltered: &quality,
		TextFiltered:    &text,
		Percentage:      &percentage,
	}
}
