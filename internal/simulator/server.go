// Package simulator is an in-memory stand-in for the extraction server. It
// speaks the same JSON API, produces synthetic frames, and counts requests so
// client behaviour can be observed in tests and during local development.
package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// Config controls how simulated tasks behave
type Config struct {
	// Frames is the number of images each completed task yields
	Frames int `validate:"gte=0,lte=9999"`
	// FlagEvery marks every Nth frame as a page turn; 0 disables flagging
	FlagEvery int `validate:"gte=0"`
	// Steps is the number of processing polls before a task completes
	Steps int `validate:"gte=0"`
	// TotalFrames is the reported size of the source media in frames
	TotalFrames int `validate:"gte=0"`
	// FailWith, when set, ends every task in the error state with this message
	FailWith string
	// StatusDelay is added to every status response
	StatusDelay time.Duration `validate:"gte=0"`
	// FailImages makes GET /api/images fail with a server error
	FailImages bool
	// FailDownloads makes both download endpoints fail with a server error
	FailDownloads bool
}

var validate = validator.New()

// Validate rejects task shapes the simulator cannot produce
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid simulator configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid simulator configuration: %w", err)
	}
	return nil
}

// DefaultConfig returns a small, fast task shape
func DefaultConfig() Config {
	return Config{
		Frames:      6,
		FlagEvery:   3,
		Steps:       3,
		TotalFrames: 300,
	}
}

// Stats counts requests served
type Stats struct {
	Uploads           int64
	StatusRequests    int64
	ImagesRequests    int64
	ImageRequests     int64
	DownloadRequests  int64
	MaxStatusInFlight int64
	LastDownloadFiles []string
}

// Server implements the extraction server API in memory
type Server struct {
	config Config
	store  *TaskStore
	mux    *http.ServeMux
	logger *slog.Logger

	uploads          atomic.Int64
	statusRequests   atomic.Int64
	imagesRequests   atomic.Int64
	imageRequests    atomic.Int64
	downloadRequests atomic.Int64
	statusInFlight   atomic.Int64
	maxInFlight      atomic.Int64

	mu           sync.Mutex
	lastDownload []string
}

// New creates a simulator with its routes registered
func New(config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: config,
		store:  NewTaskStore(),
		mux:    http.NewServeMux(),
		logger: logger.With("component", "simulator"),
	}

	s.mux.HandleFunc("POST /api/upload", s.HandleUpload)
	s.mux.HandleFunc("GET /api/status/{task_id}", s.HandleStatus)
	s.mux.HandleFunc("GET /api/images/{task_id}", s.HandleImages)
	s.mux.HandleFunc("GET /api/image/{task_id}/{filename}", s.HandleImage)
	s.mux.HandleFunc("GET /api/download/{task_id}", s.HandleDownload)
	s.mux.HandleFunc("POST /api/download/{task_id}", s.HandleDownload)
	s.mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.Error("Unable to write healthcheck", "err", err)
		}
	})

	return s
}

// ServeHTTP makes the simulator an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Store exposes the task store, mainly for tests
func (s *Server) Store() *TaskStore {
	return s.store
}

// Stats returns a snapshot of the request counters
func (s *Server) Stats() Stats {
	s.mu.Lock()
	last := append([]string(nil), s.lastDownload...)
	s.mu.Unlock()
	return Stats{
		Uploads:           s.uploads.Load(),
		StatusRequests:    s.statusRequests.Load(),
		ImagesRequests:    s.imagesRequests.Load(),
		ImageRequests:     s.imageRequests.Load(),
		DownloadRequests:  s.downloadRequests.Load(),
		MaxStatusInFlight: s.maxInFlight.Load(),
		LastDownloadFiles: last,
	}
}

// Response helpers
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, code int) {
	s.logger.Warn(message, "status", code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse{Error: message}); err != nil {
		s.logger.Error("Unable to encode error response", "err", err)
	}
}

func (s *Server) getTaskOrError(w http.ResponseWriter, taskID string) (*Task, bool) {
	task, exists := s.store.Get(taskID)
	if !exists {
		s.writeError(w, "task not found", http.StatusNotFound)
		return nil, false
	}
	return task, true
}

// HandleStatus advances the task by one poll and reports its state
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s.statusRequests.Add(1)
	inflight := s.statusInFlight.Add(1)
	defer s.statusInFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if inflight <= peak || s.maxInFlight.CompareAndSwap(peak, inflight) {
			break
		}
	}

	if s.config.StatusDelay > 0 {
		select {
		case <-time.After(s.config.StatusDelay):
		case <-r.Context().Done():
			return
		}
	}

	taskID := r.PathValue("task_id")
	polls, exists := s.store.Advance(taskID)
	if !exists {
		s.writeError(w, "task not found", http.StatusNotFound)
		return
	}
	task, _ := s.store.Get(taskID)

	s.writeJSON(w, s.statusAt(task, polls))
}

// statusAt derives the reported status after polls status requests:
// the first poll sees pending, then Steps processing polls, then the terminal state
func (s *Server) statusAt(task *Task, polls int) models.StatusResponse {
	steps := s.config.Steps
	switch {
	case polls <= 1:
		return models.StatusResponse{Status: models.TaskStatusPending}
	case polls <= steps+1:
		return models.StatusResponse{
			Status:   models.TaskStatusProcessing,
			Progress: progressFor(polls-1, steps+1, s.config.TotalFrames, len(task.Frames)),
		}
	case s.config.FailWith != "":
		return models.StatusResponse{
			Status:   models.TaskStatusError,
			Progress: progressFor(steps, steps+1, s.config.TotalFrames, len(task.Frames)),
			Error:    s.config.FailWith,
		}
	default:
		final := progressFor(1, 1, s.config.TotalFrames, len(task.Frames))
		return models.StatusResponse{
			Status:   models.TaskStatusCompleted,
			Progress: final,
			Result:   final,
		}
	}
}

func (s *Server) completed(task *Task) bool {
	polls := s.store.Polls(task.ID)
	return s.statusAt(task, polls).Status == models.TaskStatusCompleted
}

// HandleImages lists the descriptors of a completed task
func (s *Server) HandleImages(w http.ResponseWriter, r *http.Request) {
	s.imagesRequests.Add(1)
	task, ok := s.getTaskOrError(w, r.PathValue("task_id"))
	if !ok {
		return
	}
	if s.config.FailImages {
		s.writeError(w, "failed to list images", http.StatusInternalServerError)
		return
	}
	if !s.completed(task) {
		s.writeError(w, "task not completed", http.StatusBadRequest)
		return
	}

	resp := models.ImagesResponse{Images: make([]models.ImageDescriptor, 0, len(task.Frames))}
	flagged := 0
	for _, f := range task.Frames {
		resp.Images = append(resp.Images, models.ImageDescriptor{Filename: f.Filename, IsFlagged: f.Flagged})
		if f.Flagged {
			flagged++
		}
	}
	resp.PageTurnCount = &flagged

	s.writeJSON(w, resp)
}

// HandleImage serves the bytes of one frame
func (s *Server) HandleImage(w http.ResponseWriter, r *http.Request) {
	s.imageRequests.Add(1)
	task, ok := s.getTaskOrError(w, r.PathValue("task_id"))
	if !ok {
		return
	}

	filename := r.PathValue("filename")
	for _, f := range task.Frames {
		if f.Filename == filename {
			w.Header().Set("Content-Type", "image/png")
			if _, err := w.Write(f.Data); err != nil {
				s.logger.Error("Unable to write image", "filename", filename, "err", err)
			}
			return
		}
	}

	s.writeError(w, "image not found", http.StatusNotFound)
}

// HandleDownload returns a zip of every frame (GET) or the requested subset (POST)
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	s.downloadRequests.Add(1)
	task, ok := s.getTaskOrError(w, r.PathValue("task_id"))
	if !ok {
		return
	}
	if s.config.FailDownloads {
		s.writeError(w, "failed to build archive", http.StatusInternalServerError)
		return
	}
	if !s.completed(task) {
		s.writeError(w, "task not completed", http.StatusBadRequest)
		return
	}

	frames := task.Frames
	if r.Method == http.MethodPost {
		var req models.DownloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Files) == 0 {
			s.writeError(w, "no files requested", http.StatusBadRequest)
			return
		}

		byName := make(map[string]Frame, len(task.Frames))
		for _, f := range task.Frames {
			byName[f.Filename] = f
		}
		frames = make([]Frame, 0, len(req.Files))
		for _, name := range req.Files {
			f, ok := byName[name]
			if !ok {
				s.writeError(w, "unknown file: "+name, http.StatusBadRequest)
				return
			}
			frames = append(frames, f)
		}
	}

	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Filename
	}
	s.mu.Lock()
	s.lastDownload = names
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=frames_"+task.ID+".zip")
	if err := writeArchive(w, frames); err != nil {
		s.logger.Error("Unable to write archive", "task_id", task.ID, "err", err)
	}
}
