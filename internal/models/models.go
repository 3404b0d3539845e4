package models

// TaskStatus is the server-reported state of an extraction task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// IsTerminal reports whether no further progress can be observed for the status
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// FailureKind distinguishes why a task ended in the error state
type FailureKind string

const (
	// FailureServer means the server reported the job as failed
	FailureServer FailureKind = "server"
	// FailureQuery means the client could not obtain or parse a status or collection response
	FailureQuery FailureKind = "query"
)

// Progress is the aggregate counter snapshot reported for a task.
// The same shape is used for in-flight progress and the final result.
type Progress struct {
	FrameCount      int  `json:"frame_count" yaml:"frame_count"`
	TotalFrames     int  `json:"total_frames" yaml:"total_frames"`
	SavedCount      int  `json:"saved_count" yaml:"saved_count"`
	SkippedCount    int  `json:"skipped_count" yaml:"skipped_count"`
	QualityFiltered *int `json:"quality_filtered,omitempty" yaml:"quality_filtered,omitempty"`
	TextFiltered    *int `json:"text_filtered,omitempty" yaml:"text_filtered,omitempty"`
	Percentage      *int `json:"percentage,omitempty" yaml:"percentage,omitempty"`
}

// Percent returns the reported percentage, or derives it from the frame counters
func (p Progress) Percent() int {
	if p.Percentage != nil {
		return *p.Percentage
	}
	if p.TotalFrames <= 0 {
		return 0
	}
	return p.FrameCount * 100 / p.TotalFrames
}

// TaskHandle is the client's last-known view of one server task
type TaskHandle struct {
	ID           string      `json:"id"`
	Status       TaskStatus  `json:"status"`
	Progress     *Progress   `json:"progress,omitempty"`
	Result       *Progress   `json:"result,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	FailureKind  FailureKind `json:"failure_kind,omitempty"`
}

// Clone returns a deep copy so snapshots handed to observers cannot be mutated
func (h *TaskHandle) Clone() *TaskHandle {
	if h == nil {
		return nil
	}
	c := *h
	if h.Progress != nil {
		p := *h.Progress
		c.Progress = &p
	}
	if h.Result != nil {
		r := *h.Result
		c.Result = &r
	}
	return &c
}

// StatusResponse is the body of GET /api/status/{task_id}
type StatusResponse struct {
	Status   TaskStatus `json:"status"`
	Progress *Progress  `json:"progress,omitempty"`
	Result   *Progress  `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// ImageDescriptor is the server-reported metadata for one result image
type ImageDescriptor struct {
	Filename  string `json:"filename"`
	IsFlagged bool   `json:"is_page_turn,omitempty"`
}

// ImagesResponse is the body of GET /api/images/{task_id}
type ImagesResponse struct {
	Images        []ImageDescriptor `json:"images"`
	PageTurnCount *int              `json:"page_turn_count,omitempty"`
}

// UploadResponse is the body of a successful POST /api/upload
type UploadResponse struct {
	TaskID string `json:"task_id"`
}

// DownloadRequest is the body of POST /api/download/{task_id}
type DownloadRequest struct {
	Files []string `json:"files"`
}

// ErrorResponse is the body returned with non-2xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}
