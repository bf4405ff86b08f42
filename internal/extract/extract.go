// Package extract obtains page text from a document: the embedded text
// layer, an OCR engine, the office parser or a manual edit.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/providers"
)

// DefaultLineThreshold is the vertical distance in points beyond which two
// fragments are placed on separate lines.
const DefaultLineThreshold = 5.0

// Result is the text obtained for one page.
type Result struct {
	Page       int      `json:"page"`
	Text       string   `json:"text"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Empty reports whether the result carries no usable text.
func (r *Result) Empty() bool {
	return r == nil || isBlank(r.Text)
}

// ExtractorConfig configures a TextExtractor.
type ExtractorConfig struct {
	LineThreshold float64
	Fetcher       document.Fetcher // Used when no handle is open
	Logger        *slog.Logger
}

// TextExtractor reads a page's embedded text layer.
type TextExtractor struct {
	lineThreshold float64
	fetcher       document.Fetcher
	logger        *slog.Logger
}

// NewTextExtractor creates an extractor.
func NewTextExtractor(cfg ExtractorConfig) *TextExtractor {
	if cfg.LineThreshold <= 0 {
		cfg.LineThreshold = DefaultLineThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{
		lineThreshold: cfg.LineThreshold,
		fetcher:       cfg.Fetcher,
		logger:        logger,
	}
}

// Extract returns the text layer of page. It uses h when it is open;
// otherwise it opens the document from ref.URL and releases it before
// returning. A page without a text layer yields "" and no error.
func (e *TextExtractor) Extract(ctx context.Context, h *pdfdoc.Handle, ref document.Ref, page int) (string, error) {
	var text string
	err := e.WithHandle(ctx, h, ref, func(h *pdfdoc.Handle) error {
		var err error
		text, err = e.pageText(h, page)
		return err
	})
	return text, err
}

// ExtractAll returns the text layer of every page, opening the document at
// most once.
func (e *TextExtractor) ExtractAll(ctx context.Context, h *pdfdoc.Handle, ref document.Ref) ([]Result, error) {
	var results []Result
	err := e.WithHandle(ctx, h, ref, func(h *pdfdoc.Handle) error {
		results = make([]Result, 0, h.PageCount())
		for page := 1; page <= h.PageCount(); page++ {
			if err := ctx.Err(); err != nil {
				return failure.Wrap(failure.KindCancelled, "extract", err)
			}
			text, err := e.pageText(h, page)
			if err != nil {
				return err
			}
			results = append(results, Result{Page: page, Text: text, Source: providers.SourceTextLayer})
		}
		return nil
	})
	return results, err
}

// WithHandle calls fn with h if it is open, or with a handle opened from
// ref.URL that is closed as soon as fn returns.
func (e *TextExtractor) WithHandle(ctx context.Context, h *pdfdoc.Handle, ref document.Ref, fn func(*pdfdoc.Handle) error) error {
	if h != nil && !h.Closed() {
		return fn(h)
	}
	if e.fetcher == nil {
		return fmt.Errorf("extract: no open document and no fetcher configured")
	}

	data, err := e.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return err
	}
	opened, err := pdfdoc.Open(data)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	defer opened.Close()

	e.logger.Debug("opened document for extraction", "doc", ref.ID, "bytes", len(data), "pages", opened.PageCount())
	return fn(opened)
}

func (e *TextExtractor) pageText(h *pdfdoc.Handle, page int) (string, error) {
	frags, err := h.Fragments(page)
	if err == nil {
		return Layout(frags, e.lineThreshold), nil
	}
	if errors.Is(err, pdfdoc.ErrClosed) {
		return "", err
	}

	e.logger.Warn("positioned text unavailable, using plain text", "page", page, "error", err)
	text, plainErr := h.PlainText(page)
	if plainErr != nil {
		return "", err
	}
	return normalize(text), nil
}

// Source binds the extractor to one document so it can feed the classifier.
func (e *TextExtractor) Source(h *pdfdoc.Handle, ref document.Ref) TextSource {
	return &layerSource{e: e, h: h, ref: ref}
}

type layerSource struct {
	e   *TextExtractor
	h   *pdfdoc.Handle
	ref document.Ref
}

func (s *layerSource) PageText(ctx context.Context, page int) (string, error) {
	return s.e.Extract(ctx, s.h, s.ref, page)
}
