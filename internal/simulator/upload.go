package simulator

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// HandleUpload accepts a media file and creates a new task
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, client.MaxUploadBytes+1024*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.writeError(w, "no file selected", http.StatusBadRequest)
		return
	}
	if !allowedMedia(header.Filename) {
		s.writeError(w, "unsupported file format: "+header.Filename, http.StatusBadRequest)
		return
	}

	size, err := io.Copy(io.Discard, io.LimitReader(file, client.MaxUploadBytes+1))
	if err != nil {
		s.writeError(w, "Failed to read file contents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if size > client.MaxUploadBytes {
		s.writeError(w, fmt.Sprintf("File too large (max %dMB)", client.MaxUploadBytes/1024/1024), http.StatusBadRequest)
		return
	}

	task, err := parseTaskParams(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	frames, err := renderFrames(s.config.Frames, s.config.FlagEvery)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	task.ID = uuid.NewString()
	task.Filename = header.Filename
	task.Frames = frames
	task.CreatedAt = time.Now()
	s.store.Set(task.ID, task)
	s.uploads.Add(1)

	s.logger.Info("Task created", "task_id", task.ID, "file", header.Filename, "bytes", size, "frames", len(frames))
	s.writeJSON(w, models.UploadResponse{TaskID: task.ID})
}

// parseTaskParams reads the extraction parameters, falling back to the
// server defaults for any field left out of the form
func parseTaskParams(r *http.Request) (*Task, error) {
	defaults := client.DefaultUploadRequest("")
	task := &Task{
		RequireText: defaults.RequireText,
		Interval:    defaults.Interval,
		Threshold:   defaults.Threshold,
		Sharpness:   defaults.Sharpness,
		Contrast:    defaults.Contrast,
		TextLang:    defaults.TextLang,
	}

	if v := r.FormValue("require_text"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid require_text: %q", v)
		}
		task.RequireText = b
	}
	if v := r.FormValue("text_lang"); v != "" {
		task.TextLang = v
	}

	floats := []struct {
		name  string
		dst   *float64
		valid func(float64) bool
	}{
		{"interval", &task.Interval, func(f float64) bool { return f > 0 }},
		{"threshold", &task.Threshold, func(f float64) bool { return f >= 0 && f <= 1 }},
		{"sharpness", &task.Sharpness, func(f float64) bool { return f >= 0 }},
		{"contrast", &task.Contrast, func(f float64) bool { return f >= 0 }},
	}
	for _, f := range floats {
		v := r.FormValue(f.name)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || !f.valid(parsed) {
			return nil, fmt.Errorf("invalid %s: %q", f.name, v)
		}
		*f.dst = parsed
	}

	return task, nil
}

func allowedMedia(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, allowed := range client.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
