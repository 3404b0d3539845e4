package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// Uploader submits media and returns the new task id
type Uploader interface {
	Upload(ctx context.Context, req client.UploadRequest) (string, error)
}

// StatusQuerier reports the server-side state of a task
type StatusQuerier interface {
	Status(ctx context.Context, taskID string) (*models.StatusResponse, error)
}

// API is the part of the extraction server the poller talks to
type API interface {
	Uploader
	StatusQuerier
}

// CompletionHook runs once when the server reports completion, before the
// poller commits the completed state. A returned error ends the session in
// the error state instead.
type CompletionHook func(ctx context.Context, token Token, handle *models.TaskHandle) error

// Config holds poller settings
type Config struct {
	// Interval is the delay between the end of one status query and the start of the next
	Interval time.Duration
}

// DefaultConfig returns the one second polling cadence the server expects
func DefaultConfig() Config {
	return Config{Interval: time.Second}
}

type session struct {
	token  Token
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller drives one server task at a time from submission to a terminal state
type Poller struct {
	api      API
	config   Config
	logger   *slog.Logger
	onDone   CompletionHook
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	seq      uint64
	state    State
	handle   *models.TaskHandle
	active   *session
	history  []State
	lastErr  error
	watchers []func(Transition)
}

// New creates a poller in the idle state
func New(api API, config Config, logger *slog.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		api:     api,
		config:  config,
		logger:  logger.With("component", "lifecycle_poller"),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
		history: []State{StateIdle},
	}
}

// SetCompletionHook installs the hook run on completion. Call before submitting.
func (p *Poller) SetCompletionHook(hook CompletionHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDone = hook
}

// Subscribe registers fn for every transition. fn is called with the poller
// lock held, in transition order, and must not call back into the poller.
func (p *Poller) Subscribe(fn func(Transition)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchers = append(p.watchers, fn)
}

// State returns the current state
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Handle returns a snapshot of the current task handle, or nil
func (p *Poller) Handle() *models.TaskHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle.Clone()
}

// Current returns the active token, state and handle snapshot atomically
func (p *Poller) Current() (Token, State, *models.TaskHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var token Token
	if p.active != nil {
		token = p.active.token
	}
	return token, p.state, p.handle.Clone()
}

// IsActive reports whether token belongs to the current session
func (p *Poller) IsActive(token Token) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil && p.active.token == token
}

// History returns the states visited since the last submission
func (p *Poller) History() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, len(p.history))
	copy(out, p.history)
	return out
}

// LastError returns the error that ended the last submission or session
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Submit uploads media and starts polling the new task. Any previous session
// is discarded first. On upload failure the poller returns to idle.
func (p *Poller) Submit(ctx context.Context, req client.UploadRequest) (Token, error) {
	seq, err := p.begin()
	if err != nil {
		return Token{}, err
	}

	taskID, err := p.api.Upload(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != seq {
		return Token{}, ErrSuperseded
	}
	if err != nil {
		p.lastErr = err
		p.transitionLocked(StateIdle, Token{}, err)
		p.logger.Warn("Submission failed", "error", err)
		return Token{}, fmt.Errorf("failed to submit media: %w", err)
	}

	return p.startLocked(seq, taskID), nil
}

// Attach starts polling a task that was submitted earlier, discarding any
// previous session
func (p *Poller) Attach(taskID string) (Token, error) {
	if taskID == "" {
		return Token{}, errors.New("task id is required")
	}
	seq, err := p.begin()
	if err != nil {
		return Token{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != seq {
		return Token{}, ErrSuperseded
	}
	return p.startLocked(seq, taskID), nil
}

// begin cancels the active session and moves to submitting
func (p *Poller) begin() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateSubmitting {
		return 0, ErrSubmitInProgress
	}

	p.stopLocked()
	p.handle = nil
	p.lastErr = nil
	p.seq++
	p.history = nil
	p.transitionLocked(StateSubmitting, Token{}, nil)
	return p.seq, nil
}

func (p *Poller) startLocked(seq uint64, taskID string) Token {
	ctx, cancel := context.WithCancel(p.ctx)
	s := &session{
		token:  Token{seq: seq, taskID: taskID},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.active = s
	p.handle = &models.TaskHandle{ID: taskID, Status: models.TaskStatusPending}
	p.transitionLocked(StatePolling, s.token, nil)

	p.logger.Info("Polling task", "task_id", taskID, "interval", p.config.Interval)

	p.wg.Add(1)
	go p.run(s)
	return s.token
}

// stopLocked cancels the active session's timer and context. Its goroutine
// exits on its own; late responses are discarded by token.
func (p *Poller) stopLocked() {
	if p.active == nil {
		return
	}
	p.logger.Debug("Cancelling polling session", "task_id", p.active.token.taskID)
	p.active.cancel()
	p.active = nil
}

// run issues one status query per tick. The timer is re-armed only after the
// previous query resolved, so queries never overlap.
func (p *Poller) run(s *session) {
	defer p.wg.Done()
	defer close(s.done)

	timer := time.NewTimer(p.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}

		resp, err := p.api.Status(s.ctx, s.token.taskID)
		if !p.apply(s, resp, err) {
			return
		}
		timer.Reset(p.config.Interval)
	}
}

// apply folds one status response into the handle. It returns false when the
// session must stop polling.
func (p *Poller) apply(s *session, resp *models.StatusResponse, queryErr error) bool {
	p.mu.Lock()
	if p.active != s {
		p.mu.Unlock()
		p.logger.Debug("Discarding stale status response", "task_id", s.token.taskID)
		return false
	}

	if queryErr != nil {
		p.failLocked(s, models.FailureQuery, queryErr.Error(), queryErr)
		p.mu.Unlock()
		return false
	}

	switch resp.Status {
	case models.TaskStatusPending, models.TaskStatusProcessing:
		p.handle.Status = resp.Status
		if resp.Progress != nil {
			progress := *resp.Progress
			p.handle.Progress = &progress
		}
		p.transitionLocked(StatePolling, s.token, nil)
		p.mu.Unlock()
		return true

	case models.TaskStatusError:
		msg := resp.Error
		if msg == "" {
			msg = "conversion failed"
		}
		p.failLocked(s, models.FailureServer, msg, errors.New(msg))
		p.mu.Unlock()
		return false

	case models.TaskStatusCompleted:
		hook := p.onDone
		result := resp.Result
		if result == nil {
			result = resp.Progress
		}
		if result == nil {
			result = &models.Progress{}
		}
		pending := p.handle.Clone()
		pending.Status = models.TaskStatusCompleted
		pending.Result = result
		p.mu.Unlock()

		var hookErr error
		if hook != nil {
			hookErr = hook(s.ctx, s.token, pending)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.active != s {
			p.logger.Debug("Discarding stale completion", "task_id", s.token.taskID)
			return false
		}
		if hookErr != nil {
			p.failLocked(s, models.FailureQuery, hookErr.Error(), hookErr)
			return false
		}
		p.handle = pending
		p.transitionLocked(StateCompleted, s.token, nil)
		p.logger.Info("Task completed", "task_id", s.token.taskID, "saved", result.SavedCount)
		return false
	}

	p.failLocked(s, models.FailureQuery, fmt.Sprintf("unknown task status %q", resp.Status), nil)
	p.mu.Unlock()
	return false
}

func (p *Poller) failLocked(s *session, kind models.FailureKind, msg string, err error) {
	p.handle.Status = models.TaskStatusError
	p.handle.Result = nil
	p.handle.ErrorMessage = msg
	p.handle.FailureKind = kind
	if err == nil {
		err = errors.New(msg)
	}
	p.lastErr = err
	p.transitionLocked(StateError, s.token, err)
	p.logger.Error("Task failed", "task_id", s.token.taskID, "kind", kind, "error", msg)
}

func (p *Poller) transitionLocked(to State, token Token, err error) {
	from := p.state
	if !canTransition(from, to) {
		p.logger.Error("Rejected invalid lifecycle transition", "from", from, "to", to)
		return
	}
	p.state = to
	p.history = append(p.history, to)

	t := Transition{From: from, To: to, Token: token, Handle: p.handle.Clone(), Err: err}
	for _, fn := range p.watchers {
		fn(t)
	}
}

// Wait blocks until the active session stops polling or ctx is done, and
// returns the state and handle at that point
func (p *Poller) Wait(ctx context.Context) (State, *models.TaskHandle, error) {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil {
		return p.State(), p.Handle(), ErrNotPolling
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return p.State(), p.Handle(), ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != s {
		return p.state, p.handle.Clone(), ErrSuperseded
	}
	return p.state, p.handle.Clone(), nil
}

// Stop cancels any active session and waits for polling goroutines to exit
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
