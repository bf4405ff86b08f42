package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackzampolin/folio/internal/failure"
)

// DefaultMaxBytes bounds a single document download.
const DefaultMaxBytes = 200 << 20

// Fetcher retrieves document bytes from a source URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	Timeout  time.Duration
	MaxBytes int64
	Client   *http.Client // Optional (tests)
	Logger   *slog.Logger
}

// HTTPFetcher downloads documents over HTTP(S). file:// and bare paths are
// read from disk so the CLI can work on local files.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{client: client, maxBytes: cfg.MaxBytes, logger: logger}
}

// Fetch returns the full body at url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return f.readLocal(strings.TrimPrefix(url, "file://"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, failure.Wrap(failure.KindOf(ctx.Err()), "fetch", ctx.Err())
		}
		return nil, failure.Network("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, failure.FromStatus("fetch", resp.StatusCode, fmt.Sprintf("fetch failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))), 0)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, failure.New(failure.KindUnsupportedFormat, "fetch", fmt.Sprintf("document is %d bytes, limit is %d", resp.ContentLength, f.maxBytes))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, failure.Network("fetch", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, failure.New(failure.KindUnsupportedFormat, "fetch", fmt.Sprintf("document exceeds %d bytes", f.maxBytes))
	}

	f.logger.Debug("fetched document", "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

func (f *HTTPFetcher) readLocal(p string) ([]byte, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("document not found: %s", p)
		}
		return nil, err
	}
	if info.Size() > f.maxBytes {
		return nil, failure.New(failure.KindUnsupportedFormat, "fetch", fmt.Sprintf("document exceeds %d bytes", f.maxBytes))
	}
	return os.ReadFile(p)
}

var _ Fetcher = (*HTTPFetcher)(nil)
