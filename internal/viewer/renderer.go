package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/pdfdoc"
)

// Rasterizer renders one PDF page to PNG. pdfdoc.Rasterizer implements it.
type Rasterizer interface {
	Render(ctx context.Context, h *pdfdoc.Handle, page int, opts pdfdoc.RenderOptions) ([]byte, error)
}

// Reporter receives page-level render events. Controller implements it.
type Reporter interface {
	RenderStarted(page int) error
	RenderSucceeded(page int) error
	RenderFailed(page int, err error) error
}

// RenderedPage is one rasterised page.
type RenderedPage struct {
	Page      int     `json:"page" yaml:"page"`
	Zoom      float64 `json:"zoom" yaml:"zoom"`
	Rotation  int     `json:"rotation" yaml:"rotation"`
	Width     float64 `json:"width" yaml:"width"`   // Intrinsic size in points
	Height    float64 `json:"height" yaml:"height"` // Intrinsic size in points
	PNG       []byte  `json:"-" yaml:"-"`
	FromCache bool    `json:"from_cache" yaml:"from_cache"`
}

// RendererConfig configures a PageRenderer.
type RendererConfig struct {
	Rasterizer Rasterizer
	Reporter   Reporter

	// Policy retries a failed page; defaults to failure.DefaultPagePolicy.
	Policy failure.Policy

	// Home and DocID enable the on-disk render cache.
	Home  *home.Dir
	DocID string

	// OnDimensions receives the page sizes once per document, after the
	// first successful render.
	OnDimensions func(dims []pdfdoc.Dim)

	Logger *slog.Logger
}

// PageRenderer renders pages of one document. Page failures are retried
// on their own and only the final outcome is reported.
type PageRenderer struct {
	raster   Rasterizer
	reporter Reporter
	policy   failure.Policy
	home     *home.Dir
	docID    string
	onDims   func([]pdfdoc.Dim)
	logger   *slog.Logger

	mu       sync.Mutex
	dims     []pdfdoc.Dim
	dimsFrom *pdfdoc.Handle
}

// NewPageRenderer creates a renderer.
func NewPageRenderer(cfg RendererConfig) *PageRenderer {
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = pdfdoc.Rasterizer{}
	}
	if cfg.Policy.Attempts == 0 {
		cfg.Policy = failure.DefaultPagePolicy
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy.Logger == nil {
		cfg.Policy.Logger = logger
	}
	return &PageRenderer{
		raster:   cfg.Rasterizer,
		reporter: cfg.Reporter,
		policy:   cfg.Policy,
		home:     cfg.Home,
		docID:    cfg.DocID,
		onDims:   cfg.OnDimensions,
		logger:   logger,
	}
}

// Dimensions returns the page sizes recorded for h, if any.
func (r *PageRenderer) Dimensions(h *pdfdoc.Handle) ([]pdfdoc.Dim, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dimsFrom != h || r.dims == nil {
		return nil, false
	}
	return r.dims, true
}

// Render rasterises page at zoom and rotation.
func (r *PageRenderer) Render(ctx context.Context, h *pdfdoc.Handle, page int, zoom float64, rotation int) (*RenderedPage, error) {
	if h == nil || h.Closed() {
		return nil, pdfdoc.ErrClosed
	}
	if page < 1 || page > h.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, h.PageCount())
	}
	zoom = ClampZoom(zoom)
	rotation = NormalizeRotation(rotation)

	if r.reporter != nil {
		if err := r.reporter.RenderStarted(page); err != nil {
			r.logger.Debug("render start not recorded", "page", page, "error", err)
		}
	}

	start := time.Now()
	out := &RenderedPage{Page: page, Zoom: zoom, Rotation: rotation}
	if data, ok := r.cached(page, zoom, rotation); ok {
		out.PNG = data
		out.FromCache = true
	} else {
		opts := pdfdoc.RenderOptions{Zoom: zoom, Rotation: rotation}
		data, err := failure.DoValue(ctx, r.policy, "render", func(ctx context.Context) ([]byte, error) {
			data, err := r.raster.Render(ctx, h, page, opts)
			if err != nil && ctx.Err() != nil {
				return nil, failure.Wrap(failure.KindCancelled, "render", ctx.Err())
			}
			return data, err
		})
		if err != nil {
			return nil, r.fail(page, err)
		}
		out.PNG = data
		r.store(page, zoom, rotation, data)
	}

	if dims := r.dimensions(h); page <= len(dims) {
		out.Width, out.Height = dims[page-1].Width, dims[page-1].Height
	}

	if r.reporter != nil {
		if err := r.reporter.RenderSucceeded(page); err != nil {
			r.logger.Debug("render success not recorded", "page", page, "error", err)
		}
	}
	r.logger.Debug("rendered page",
		"doc_id", r.docID,
		"page", page,
		"zoom", zoom,
		"rotation", rotation,
		"cached", out.FromCache,
		"duration", time.Since(start))
	return out, nil
}

func (r *PageRenderer) fail(page int, err error) error {
	if errors.Is(err, context.Canceled) || failure.Is(err, failure.KindCancelled) {
		return err
	}
	if r.reporter != nil {
		if rerr := r.reporter.RenderFailed(page, err); rerr != nil {
			r.logger.Debug("render failure not recorded", "page", page, "error", rerr)
		}
	}
	return fmt.Errorf("render page %d: %w", page, err)
}

// dimensions loads page sizes once per document and reports them.
func (r *PageRenderer) dimensions(h *pdfdoc.Handle) []pdfdoc.Dim {
	r.mu.Lock()
	if r.dimsFrom == h && r.dims != nil {
		dims := r.dims
		r.mu.Unlock()
		return dims
	}
	dims, err := h.Dims()
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("failed to read page dimensions", "doc_id", r.docID, "error", err)
		return nil
	}
	r.dims, r.dimsFrom = dims, h
	onDims := r.onDims
	r.mu.Unlock()

	if onDims != nil {
		onDims(dims)
	}
	return dims
}

func (r *PageRenderer) cached(page int, zoom float64, rotation int) ([]byte, bool) {
	if r.home == nil || r.docID == "" {
		return nil, false
	}
	data, err := os.ReadFile(r.home.RenderPath(r.docID, page, zoom, rotation))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (r *PageRenderer) store(page int, zoom float64, rotation int, data []byte) {
	if r.home == nil || r.docID == "" {
		return
	}
	path := r.home.RenderPath(r.docID, page, zoom, rotation)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.logger.Warn("failed to create render cache", "path", filepath.Dir(path), "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn("failed to cache render", "path", path, "error", err)
	}
}
