package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"mediadesk/internal/logging"
)

const lockRetryDelay = 250 * time.Millisecond

// Progress reports download progress for one weight file.
type Progress struct {
	File       string
	Progress   float64
	Downloaded int64
	Total      int64
}

// Fetcher makes catalog entries available on local disk.
type Fetcher struct {
	catalog *Catalog
	index   *Index
	dir     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewFetcher stores weights in dir and records them in index. A zero timeout
// leaves downloads bounded only by the caller's context.
func NewFetcher(catalog *Catalog, index *Index, dir string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		catalog: catalog,
		index:   index,
		dir:     dir,
		client:  &http.Client{},
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "modelcache"),
	}
}

// Catalog returns the catalog the fetcher resolves against.
func (f *Fetcher) Catalog() *Catalog { return f.catalog }

// Cached returns the local path of e when it is indexed and intact. A row
// whose file is gone or has the wrong size is dropped from the index.
func (f *Fetcher) Cached(ctx context.Context, e Entry) (string, bool, error) {
	rec, ok, err := f.index.Lookup(ctx, e.Name)
	if err != nil || !ok {
		return "", false, err
	}
	info, err := os.Stat(rec.Path)
	if err != nil || info.Size() != rec.SizeBytes {
		f.logger.Info("dropping stale model record", "model", e.Name, "path", rec.Path)
		if err := f.index.Remove(ctx, e.Name); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return rec.Path, true, nil
}

// Ensure returns the local path of e's weight file, downloading it when it is
// not already indexed. progress may be nil.
func (f *Fetcher) Ensure(ctx context.Context, e Entry, progress func(Progress)) (string, error) {
	if path, ok, err := f.Cached(ctx, e); err != nil || ok {
		return path, err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure model directory: %w", err)
	}

	lock := flock.New(filepath.Join(f.dir, ".fetch.lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("acquire fetch lock: %w", err)
	}
	if !locked {
		return "", errors.New("acquire fetch lock: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished the download while we waited.
	if path, ok, err := f.Cached(ctx, e); err != nil || ok {
		return path, err
	}

	target := filepath.Join(f.dir, e.FileName)
	if info, statErr := os.Stat(target); statErr == nil && !info.IsDir() {
		if err := f.adopt(ctx, e, target); err != nil {
			return "", err
		}
		return target, nil
	}

	if err := f.download(ctx, e, target, progress); err != nil {
		return "", err
	}
	return target, nil
}

// adopt indexes a weight file that is already on disk.
func (f *Fetcher) adopt(ctx context.Context, e Entry, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, file)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	f.logger.Info("indexed existing model file",
		logging.String("model", e.Name),
		logging.String("path", path),
		logging.String(logging.FieldEventType, "model_adopted"),
	)
	return f.index.Put(ctx, Record{ModelID: e.Name, FileName: e.FileName, Path: path, SizeBytes: size, SHA256: hex.EncodeToString(hasher.Sum(nil))})
}

func (f *Fetcher) download(ctx context.Context, e Entry, target string, progress func(Progress)) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	url := f.catalog.URL(e)
	logger := logging.WithContext(ctx, f.logger).With(logging.String("model", e.Name))
	logger.Info("downloading model", logging.String("url", url), logging.String(logging.FieldEventType, "model_download_start"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", e.FileName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", e.FileName, resp.Status)
	}

	tmp, err := os.CreateTemp(f.dir, e.FileName+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	hasher := sha256.New()
	counter := &progressWriter{
		file:    e.FileName,
		total:   resp.ContentLength,
		report:  progress,
		sampler: logging.NewProgressSampler(10),
		logger:  logger,
	}
	counter.emit()
	size, copyErr := io.Copy(io.MultiWriter(tmp, hasher, counter), resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return fmt.Errorf("download %s: %w", e.FileName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("write %s: %w", e.FileName, closeErr)
	}
	if resp.ContentLength > 0 && size != resp.ContentLength {
		return fmt.Errorf("download %s: got %d of %d bytes", e.FileName, size, resp.ContentLength)
	}
	counter.finish()

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("install %s: %w", e.FileName, err)
	}
	rec := Record{ModelID: e.Name, FileName: e.FileName, Path: target, SizeBytes: size, SHA256: hex.EncodeToString(hasher.Sum(nil))}
	if err := f.index.Put(ctx, rec); err != nil {
		return fmt.Errorf("index %s: %w", e.FileName, err)
	}
	logger.Info("model downloaded",
		logging.Int64("size_bytes", size),
		logging.String("sha256", rec.SHA256),
		logging.String(logging.FieldEventType, "model_download_complete"),
	)
	return nil
}

// progressWriter counts bytes and reports whole-percent changes.
type progressWriter struct {
	file       string
	total      int64
	downloaded int64
	last       float64
	report     func(Progress)
	sampler    *logging.ProgressSampler
	logger     *slog.Logger
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.downloaded += int64(len(b))
	if p.total > 0 {
		percent := float64(p.downloaded*100/p.total)
		if percent > p.last {
			p.last = percent
			p.emit()
		}
	}
	return len(b), nil
}

func (p *progressWriter) emit() {
	percent := p.last
	if p.total <= 0 {
		percent = -1
	}
	if p.sampler.ShouldLog(percent, p.file) {
		p.logger.Debug("model download progress",
			logging.String("file", p.file),
			logging.Float64("percent", p.last),
			logging.Int64("downloaded", p.downloaded),
		)
	}
	if p.report != nil {
		p.report(Progress{File: p.file, Progress: p.last, Downloaded: p.downloaded, Total: p.total})
	}
}

func (p *progressWriter) finish() {
	if p.last < 100 {
		p.last = 100
		p.emit()
	}
}
