package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// ErrEmptySelection is returned when a subset download names no files.
// It is raised before any request is sent.
var ErrEmptySelection = errors.New("no images selected")

// APIError is returned for non-2xx responses from the extraction server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the extraction server's JSON API
type Client struct {
	BaseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new API client. A zero timeout disables the per-request limit.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "api_client"),
	}
}

// Status queries the current state of a task
func (c *Client) Status(ctx context.Context, taskID string) (*models.StatusResponse, error) {
	var status models.StatusResponse
	if err := c.getJSON(ctx, c.endpoint("status", taskID), &status); err != nil {
		return nil, fmt.Errorf("failed to query status: %w", err)
	}

	switch status.Status {
	case models.TaskStatusPending, models.TaskStatusProcessing, models.TaskStatusCompleted, models.TaskStatusError:
	default:
		return nil, fmt.Errorf("failed to query status: unknown task status %q", status.Status)
	}

	return &status, nil
}

// Images fetches the ordered image descriptors of a completed task
func (c *Client) Images(ctx context.Context, taskID string) (*models.ImagesResponse, error) {
	var images models.ImagesResponse
	if err := c.getJSON(ctx, c.endpoint("images", taskID), &images); err != nil {
		return nil, fmt.Errorf("failed to fetch images: %w", err)
	}

	seen := make(map[string]struct{}, len(images.Images))
	for _, img := range images.Images {
		if img.Filename == "" {
			return nil, fmt.Errorf("failed to fetch images: descriptor without filename")
		}
		if _, dup := seen[img.Filename]; dup {
			return nil, fmt.Errorf("failed to fetch images: duplicate filename %q", img.Filename)
		}
		seen[img.Filename] = struct{}{}
	}

	return &images, nil
}

// Image downloads the raw bytes of one result image
func (c *Client) Image(ctx context.Context, taskID, filename string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("image", taskID, filename), nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return data, nil
}

// DownloadAll streams the archive containing every result image into w
func (c *Client) DownloadAll(ctx context.Context, taskID string, w io.Writer) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint("download", taskID), nil, "")
	if err != nil {
		return 0, fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write archive: %w", err)
	}

	c.logger.Info("Downloaded full archive", "task_id", taskID, "bytes", n)
	return n, nil
}

// DownloadSelected streams an archive containing only the named files into w
func (c *Client) DownloadSelected(ctx context.Context, taskID string, files []string, w io.Writer) (int64, error) {
	if len(files) == 0 {
		return 0, ErrEmptySelection
	}

	body, err := json.Marshal(models.DownloadRequest{Files: files})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal download request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.endpoint("download", taskID), bytes.NewReader(body), "application/json")
	if err != nil {
		return 0, fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write archive: %w", err)
	}

	c.logger.Info("Downloaded selected archive", "task_id", taskID, "files", len(files), "bytes", n)
	return n, nil
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.BaseURL + "/api/" + strings.Join(escaped, "/")
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends the request and converts non-2xx responses into *APIError.
// On success the caller owns the response body.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Debug("Sending request", "method", method, "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}

	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
