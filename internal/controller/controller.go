package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/framepicker/internal/client"
	"github.com/lehigh-university-libraries/framepicker/internal/images"
	"github.com/lehigh-university-libraries/framepicker/internal/lifecycle"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
	"github.com/lehigh-university-libraries/framepicker/internal/review"
)

var (
	// ErrNoReview is returned when an operation needs a completed task under review
	ErrNoReview = errors.New("no completed task to review")
	// ErrEmptySelection is returned when exporting an explicitly emptied selection
	ErrEmptySelection = client.ErrEmptySelection
)

// API is everything the controller needs from the extraction server
type API interface {
	lifecycle.API
	Images(ctx context.Context, taskID string) (*models.ImagesResponse, error)
	Image(ctx context.Context, taskID, filename string) ([]byte, error)
	DownloadAll(ctx context.Context, taskID string, w io.Writer) (int64, error)
	DownloadSelected(ctx context.Context, taskID string, files []string, w io.Writer) (int64, error)
}

// Options configures a controller
type Options struct {
	Poll lifecycle.Config
	// HideFlagged is the initial state of the flagged-image filter
	HideFlagged bool
	// PullRate limits image downloads per second when pulling; 0 means unlimited
	PullRate float64
}

// ExportResult describes a finished archive download
type ExportResult struct {
	TaskID string
	Full   bool
	Files  int
	Bytes  int64
}

// Controller drives submission, polling, review and export for one task at a time
type Controller struct {
	api    API
	poller *lifecycle.Poller
	puller *images.Puller
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	review      *review.Session
	reviewToken lifecycle.Token
}

// New creates a controller around api
func New(api API, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		api:    api,
		poller: lifecycle.New(api, opts.Poll, logger),
		puller: images.NewPuller(api, opts.PullRate, logger),
		opts:   opts,
		logger: logger.With("component", "controller"),
	}
	c.poller.SetCompletionHook(c.loadCollection)
	return c
}

// Poller exposes the lifecycle poller for observation
func (c *Controller) Poller() *lifecycle.Poller {
	return c.poller
}

// Submit discards the current task and uploads new media
func (c *Controller) Submit(ctx context.Context, req client.UploadRequest) (lifecycle.Token, error) {
	c.discard()
	return c.poller.Submit(ctx, req)
}

// Attach discards the current task and starts observing an existing one
func (c *Controller) Attach(taskID string) (lifecycle.Token, error) {
	c.discard()
	return c.poller.Attach(taskID)
}

// Wait blocks until the current task is terminal or ctx is done
func (c *Controller) Wait(ctx context.Context) (lifecycle.State, *models.TaskHandle, error) {
	return c.poller.Wait(ctx)
}

// Close stops polling
func (c *Controller) Close() {
	c.poller.Stop()
}

func (c *Controller) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.review != nil {
		c.logger.Debug("Discarding review session", "task_id", c.review.TaskID())
	}
	c.review = nil
	c.reviewToken = lifecycle.Token{}
}

// loadCollection is the one-time image collection fetch run on completion
func (c *Controller) loadCollection(ctx context.Context, token lifecycle.Token, handle *models.TaskHandle) error {
	resp, err := c.api.Images(ctx, token.TaskID())
	if err != nil {
		return err
	}

	collection := review.NewCollection(resp.Images)
	session := review.NewSession(token.TaskID(), collection, c.opts.HideFlagged, c.api, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.poller.IsActive(token) {
		c.logger.Debug("Discarding images of superseded task", "task_id", token.TaskID())
		return nil
	}
	c.review = session
	c.reviewToken = token

	c.logger.Info("Loaded result images",
		"task_id", token.TaskID(),
		"images", collection.Len(),
		"flagged", collection.FlaggedCount())
	return nil
}

// Review returns the review session of the current completed task, or nil.
// Sessions built for a superseded task are never returned.
func (c *Controller) Review() *review.Session {
	c.mu.Lock()
	session, token := c.review, c.reviewToken
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	active, state, _ := c.poller.Current()
	if active != token || state != lifecycle.StateCompleted {
		return nil
	}
	return session
}

// Export downloads the archive for the reviewed task into w. Without any
// selection action the full archive is requested; otherwise only the
// selected images, and an empty selection is rejected before any request.
func (c *Controller) Export(ctx context.Context, w io.Writer) (*ExportResult, error) {
	session := c.Review()
	if session == nil {
		return nil, ErrNoReview
	}
	taskID := session.TaskID()
	selection := session.Selection()

	if !selection.Touched() {
		n, err := c.api.DownloadAll(ctx, taskID, w)
		if err != nil {
			return nil, err
		}
		return &ExportResult{TaskID: taskID, Full: true, Files: session.Collection().Len(), Bytes: n}, nil
	}

	files := selection.Filenames()
	if len(files) == 0 {
		return nil, ErrEmptySelection
	}

	n, err := c.api.DownloadSelected(ctx, taskID, files, w)
	if err != nil {
		return nil, err
	}
	return &ExportResult{TaskID: taskID, Files: len(files), Bytes: n}, nil
}

// Pull saves the selected images of the reviewed task into dir
func (c *Controller) Pull(ctx context.Context, dir string) (*images.PullResult, error) {
	session := c.Review()
	if session == nil {
		return nil, ErrNoReview
	}
	files := session.Selection().Filenames()
	if len(files) == 0 {
		return nil, ErrEmptySelection
	}
	result, err := c.puller.Pull(ctx, session.TaskID(), files, dir)
	if err != nil {
		return result, fmt.Errorf("failed to pull images: %w", err)
	}
	return result, nil
}
