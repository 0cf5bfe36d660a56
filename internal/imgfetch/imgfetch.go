// Package imgfetch downloads observation photos to local disk with bounded
// parallelism.
package imgfetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/averho/wildset/internal/errors"
	"github.com/averho/wildset/internal/logging"
	"github.com/averho/wildset/internal/obs"
)

// Package-level logger specific to image downloading
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := "logs/imgfetch.log"
	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "imgfetch", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.DiscardLogger("imgfetch")
		closeLogger = func() error { return nil }
	}
}

// sizeVariants are the photo size names the source serves.
var sizeVariants = map[string]bool{
	"square":   true,
	"small":    true,
	"medium":   true,
	"large":    true,
	"original": true,
}

// Config bundles downloader settings.
type Config struct {
	// Dir is the destination directory for downloaded photos.
	Dir string
	// Size selects the photo variant to fetch, e.g. "medium" or "original".
	Size string
	// Workers bounds concurrent downloads.
	Workers int
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// SkipExisting reuses files already on disk instead of refetching.
	SkipExisting bool
}

// Downloader fetches observation photos.
type Downloader struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a photo downloader.
func New(cfg Config) (*Downloader, error) {
	if cfg.Dir == "" {
		return nil, errors.Newf("download directory is required").
			Component("imgfetch").
			Category(errors.CategoryValidation).
			Context("parameter", "dir").
			Build()
	}
	if cfg.Size == "" {
		cfg.Size = "medium"
	}
	if !sizeVariants[cfg.Size] {
		return nil, errors.Newf("unknown photo size %q", cfg.Size).
			Component("imgfetch").
			Category(errors.CategoryValidation).
			Context("parameter", "size").
			Build()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Downloader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Download fetches the first photo of each observation. It returns local
// paths keyed by observation ID and the number of observations that could
// not be downloaded. Individual download failures degrade to warnings; only
// context cancellation aborts the whole batch.
func (d *Downloader) Download(ctx context.Context, observations []obs.Observation) (map[int64]string, int, error) {
	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return nil, 0, errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryFileIO).
			Context("operation", "create_download_directory").
			Context("dir", d.cfg.Dir).
			Build()
	}

	paths := make([]string, len(observations))
	var failed atomic.Int64
	var skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	for i := range observations {
		o := &observations[i]
		if len(o.Photos) == 0 {
			failed.Add(1)
			logger.Warn("observation has no photos", "observation_id", o.ID)
			continue
		}

		photoURL := variantURL(o.Photos[0].URL, d.cfg.Size)
		dest := filepath.Join(d.cfg.Dir, strconv.FormatInt(o.ID, 10)+"."+fileExt(photoURL))

		if d.cfg.SkipExisting {
			if _, err := os.Stat(dest); err == nil {
				paths[i] = dest
				skipped.Add(1)
				continue
			}
		}

		idx := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.downloadOne(ctx, photoURL, dest); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				logger.Warn("photo download failed",
					"observation_id", o.ID,
					"url", photoURL,
					"error", err)
				return nil
			}
			paths[idx] = dest
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	byID := make(map[int64]string, len(observations))
	for i := range observations {
		if paths[i] != "" {
			byID[observations[i].ID] = paths[i]
		}
	}

	logger.Info("photo download finished",
		"requested", len(observations),
		"downloaded", len(byID)-int(skipped.Load()),
		"reused", skipped.Load(),
		"failed", failed.Load())
	return byID, int(failed.Load()), nil
}

// downloadOne writes one photo to dest via a temp file so partial downloads
// never land under the final name.
func (d *Downloader) downloadOne(ctx context.Context, photoURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryValidation).
			Context("operation", "create_request").
			Build()
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryNetwork).
			NetworkContext(photoURL, time.Since(start)).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("photo request failed with status %d", resp.StatusCode).
			Component("imgfetch").
			Category(errors.CategoryImageDownload).
			Context("status_code", resp.StatusCode).
			NetworkContext(photoURL, time.Since(start)).
			Build()
	}

	tmp, err := os.CreateTemp(d.cfg.Dir, ".download-*")
	if err != nil {
		return errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryFileIO).
			Context("operation", "create_temp_file").
			Build()
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryImageDownload).
			Context("operation", "write_photo").
			NetworkContext(photoURL, time.Since(start)).
			Build()
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryFileIO).
			Context("operation", "close_temp_file").
			Build()
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return errors.New(err).
			Component("imgfetch").
			Category(errors.CategoryFileIO).
			FileContext(dest, 0).
			Context("operation", "finalize_photo").
			Build()
	}
	return nil
}

// variantURL rewrites the size segment of a photo URL, e.g.
// ".../photos/123/square.jpg" becomes ".../photos/123/large.jpg".
func variantURL(raw, size string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	dir, file := path.Split(u.Path)
	for v := range sizeVariants {
		if strings.HasPrefix(file, v+".") {
			u.Path = dir + size + strings.TrimPrefix(file, v)
			return u.String()
		}
	}
	return raw
}

// fileExt extracts a lowercase filename extension from a photo URL,
// defaulting to jpg.
func fileExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "jpg"
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if ext == "" {
		return "jpg"
	}
	return strings.ToLower(ext)
}
