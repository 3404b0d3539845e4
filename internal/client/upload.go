package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lehigh-university-libraries/framepicker/internal/models"
)

// MaxUploadBytes mirrors the server's request size cap
const MaxUploadBytes = 100 * 1024 * 1024

// AllowedExtensions are the media formats the server accepts
var AllowedExtensions = []string{"mp4", "avi", "mov", "mkv", "flv", "wmv"}

var validate = validator.New(validator.WithRequiredStructEnabled())

// UploadRequest describes one media submission
type UploadRequest struct {
	FilePath    string  `validate:"required"`
	RequireText bool
	Interval    float64 `validate:"gt=0"`
	Threshold   float64 `validate:"gte=0,lte=1"`
	Sharpness   float64 `validate:"gte=0"`
	Contrast    float64 `validate:"gte=0"`
	TextLang    string  `validate:"required"`
}

// DefaultUploadRequest returns a request carrying the server's default parameters
func DefaultUploadRequest(path string) UploadRequest {
	return UploadRequest{
		FilePath:    path,
		RequireText: true,
		Interval:    1.0,
		Threshold:   0.95,
		Sharpness:   150,
		Contrast:    20,
		TextLang:    "chi_sim+eng",
	}
}

// Validate checks the request without touching the network
func (r UploadRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid upload parameters: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid upload parameters: %w", err)
	}

	if !allowedFile(r.FilePath) {
		return fmt.Errorf("unsupported file format: %s (supported: %s)", filepath.Base(r.FilePath), strings.Join(AllowedExtensions, ", "))
	}

	return nil
}

func allowedFile(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Upload submits the media file and returns the new task id
func (c *Client) Upload(ctx context.Context, req UploadRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	file, err := os.Open(req.FilePath)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat media file: %w", err)
	}
	if info.Size() > MaxUploadBytes {
		return "", fmt.Errorf("file too large (max %dMB)", MaxUploadBytes/1024/1024)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, file, req))
	}()

	resp, err := c.do(ctx, http.MethodPost, c.BaseURL+"/api/upload", pr, mw.FormDataContentType())
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()

	var body models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if body.TaskID == "" {
		return "", fmt.Errorf("failed to upload media: server returned no task id")
	}

	c.logger.Info("Media uploaded", "file", filepath.Base(req.FilePath), "bytes", info.Size(), "task_id", body.TaskID)
	return body.TaskID, nil
}

func writeUploadForm(mw *multipart.Writer, file *os.File, req UploadRequest) error {
	part, err := mw.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy media into form: %w", err)
	}

	fields := [][2]string{
		{"require_text", strconv.FormatBool(req.RequireText)},
		{"interval", strconv.FormatFloat(req.Interval, 'f', -1, 64)},
		{"threshold", strconv.FormatFloat(req.Threshold, 'f', -1, 64)},
		{"sharpness", strconv.FormatFloat(req.Sharpness, 'f', -1, 64)},
		{"contrast", strconv.FormatFloat(req.Contrast, 'f', -1, 64)},
		{"text_lang", req.TextLang},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	return mw.Close()
}
