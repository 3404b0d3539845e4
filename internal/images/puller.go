package images

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// Loader retrieves the bytes of one result image
type Loader interface {
	Image(ctx context.Context, taskID, filename string) ([]byte, error)
}

// Puller saves result images to a local directory, one request at a time
type Puller struct {
	loader  Loader
	limiter *rate.Limiter
	logger  *slog.Logger
}

// PullResult summarizes one pull
type PullResult struct {
	Downloaded []string
	Skipped    []string
	Failed     map[string]error
	Bytes      int64
}

// NewPuller creates a puller limited to rps image requests per second.
// A non-positive rps disables the limit.
func NewPuller(loader Loader, rps float64, logger *slog.Logger) *Puller {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Puller{
		loader:  loader,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "image_puller"),
	}
}

// Pull downloads filenames of taskID into outputDir. Files already present
// are skipped. A failure on one image does not stop the others; the returned
// error reports how many failed.
func (p *Puller) Pull(ctx context.Context, taskID string, filenames []string, outputDir string) (*PullResult, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &PullResult{Failed: make(map[string]error)}

	for i, filename := range filenames {
		outputPath, err := safeJoin(outputDir, filename)
		if err != nil {
			result.Failed[filename] = err
			continue
		}

		if _, err := os.Stat(outputPath); err == nil {
			p.logger.Debug("Image already exists, skipping", "filename", filename)
			result.Skipped = append(result.Skipped, filename)
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("failed waiting for rate limiter: %w", err)
		}

		data, err := p.loader.Image(ctx, taskID, filename)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			p.logger.Warn("Failed to download image", "task_id", taskID, "filename", filename, "error", err)
			result.Failed[filename] = err
			continue
		}

		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			result.Failed[filename] = fmt.Errorf("failed to write image file: %w", err)
			continue
		}

		result.Downloaded = append(result.Downloaded, filename)
		result.Bytes += int64(len(data))
		p.logger.Debug("Downloaded image", "index", i+1, "total", len(filenames), "filename", filename, "bytes", len(data))
	}

	p.logger.Info("Pull finished",
		"task_id", taskID,
		"downloaded", len(result.Downloaded),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("failed to download %d of %d images", len(result.Failed), len(filenames))
	}
	return result, nil
}

// safeJoin rejects filenames that would land outside dir
func safeJoin(dir, filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid image filename: %q", filename)
	}
	return filepath.Join(dir, filename), nil
}
