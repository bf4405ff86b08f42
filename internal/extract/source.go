package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"sync"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/providers"
)

// DefaultOCRZoom is the zoom pages are rasterised at before OCR.
const DefaultOCRZoom = 2.0

// Rasterizer renders a PDF page to PNG.
type Rasterizer interface {
	Render(ctx context.Context, h *pdfdoc.Handle, page int, opts pdfdoc.RenderOptions) ([]byte, error)
}

// OfficeParser returns the text of an office document page.
type OfficeParser interface {
	Extract(ctx context.Context, req providers.ExtractRequest) (string, error)
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Extractor  *TextExtractor
	Rasterizer Rasterizer
	Office     OfficeParser
	Fetcher    document.Fetcher
	OCRZoom    float64
	Logger     *slog.Logger
}

// Pipeline chooses the extraction strategy for each page of a document.
type Pipeline struct {
	extractor  *TextExtractor
	rasterizer Rasterizer
	office     OfficeParser
	fetcher    document.Fetcher
	ocrZoom    float64
	logger     *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.OCRZoom <= 0 {
		cfg.OCRZoom = DefaultOCRZoom
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewTextExtractor(ExtractorConfig{Fetcher: cfg.Fetcher, Logger: logger})
	}
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = pdfdoc.Rasterizer{}
	}
	return &Pipeline{
		extractor:  cfg.Extractor,
		rasterizer: cfg.Rasterizer,
		office:     cfg.Office,
		fetcher:    cfg.Fetcher,
		ocrZoom:    cfg.OCRZoom,
		logger:     logger,
	}
}

// Extractor returns the pipeline's text-layer extractor.
func (p *Pipeline) Extractor() *TextExtractor {
	return p.extractor
}

// For binds the pipeline to one open document. h may be nil, in which case
// each extraction opens and releases the document.
func (p *Pipeline) For(h *pdfdoc.Handle, ref document.Ref) *DocumentSource {
	return &DocumentSource{
		p:       p,
		h:       h,
		ref:     ref,
		results: make(map[int]*Result),
		manual:  make(map[int]*Result),
	}
}

// DocumentSource yields page text for one document. Without an OCR engine a
// page with no text layer yields an empty result; once the user picks an
// engine such pages are recognised with it. Manual edits take precedence
// over everything else.
type DocumentSource struct {
	p   *Pipeline
	h   *pdfdoc.Handle
	ref document.Ref

	mu       sync.Mutex
	engine   providers.OCREngine
	progress func(page, percent int)
	results  map[int]*Result
	manual   map[int]*Result
}

// Ref returns the bound document.
func (s *DocumentSource) Ref() document.Ref {
	return s.ref
}

// SetEngine selects the OCR engine for pages without a text layer. Results
// recognised with a previous engine are discarded.
func (s *DocumentSource) SetEngine(engine providers.OCREngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
	for page, r := range s.results {
		if r.Source != providers.SourceTextLayer {
			delete(s.results, page)
		}
	}
}

// Engine returns the selected OCR engine, or nil.
func (s *DocumentSource) Engine() providers.OCREngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// OnProgress registers a callback for OCR progress.
func (s *DocumentSource) OnProgress(fn func(page, percent int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = fn
}

// ManualEdit records user-supplied text for page. It replaces any earlier
// result and stops OCR from running on the page.
func (s *DocumentSource) ManualEdit(page int, text string) (*Result, error) {
	r, err := ManualEdit(page, text)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.manual[page] = r
	s.mu.Unlock()
	return r, nil
}

// ManualEdit builds a manual-edit result. Blank text is rejected.
func ManualEdit(page int, text string) (*Result, error) {
	text = normalize(text)
	if isBlank(text) {
		return nil, failure.EmptyExtraction("manual-edit", page)
	}
	return &Result{Page: page, Text: text, Source: providers.SourceManualEdit}, nil
}

// PageText returns the text of page, or "" when none is available yet.
func (s *DocumentSource) PageText(ctx context.Context, page int) (string, error) {
	r, err := s.Page(ctx, page)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

// Page returns the extraction result for page.
func (s *DocumentSource) Page(ctx context.Context, page int) (*Result, error) {
	s.mu.Lock()
	if r, ok := s.manual[page]; ok {
		s.mu.Unlock()
		return r, nil
	}
	if r, ok := s.results[page]; ok {
		s.mu.Unlock()
		return r, nil
	}
	engine := s.engine
	progress := s.progress
	s.mu.Unlock()

	var (
		r   *Result
		err error
	)
	switch s.ref.Category {
	case document.CategoryPDF:
		r, err = s.pdfPage(ctx, page, engine, progress)
	case document.CategoryOffice:
		r, err = s.officePage(ctx, page)
	case document.CategoryImage:
		r, err = s.imagePage(ctx, page, engine, progress)
	case document.CategoryText:
		r, err = s.textPage(ctx, page)
	default:
		err = failure.Unsupported("extract", s.ref.MIMEType)
	}
	if err != nil {
		return nil, err
	}

	if !r.Empty() {
		s.mu.Lock()
		s.results[page] = r
		s.mu.Unlock()
	}
	return r, nil
}

func (s *DocumentSource) pdfPage(ctx context.Context, page int, engine providers.OCREngine, progress func(int, int)) (*Result, error) {
	var r *Result
	err := s.p.extractor.WithHandle(ctx, s.h, s.ref, func(h *pdfdoc.Handle) error {
		text, err := s.p.extractor.pageText(h, page)
		if err != nil {
			return err
		}
		if !isBlank(text) || engine == nil {
			r = &Result{Page: page, Text: text, Source: providers.SourceTextLayer}
			return nil
		}

		img, err := s.p.rasterizer.Render(ctx, h, page, pdfdoc.RenderOptions{Zoom: s.p.ocrZoom})
		if err != nil {
			return fmt.Errorf("render page %d for ocr: %w", page, err)
		}
		r, err = s.recognize(ctx, engine, providers.PageImage{Page: page, PNG: img, Scale: s.p.ocrZoom}, progress)
		return err
	})
	return r, err
}

func (s *DocumentSource) officePage(ctx context.Context, page int) (*Result, error) {
	if s.p.office == nil {
		return nil, fmt.Errorf("extract: no office parser configured")
	}
	text, err := s.p.office.Extract(ctx, providers.ExtractRequest{DocumentURL: s.ref.URL, PageNumber: page})
	if err != nil {
		return nil, err
	}
	return &Result{Page: page, Text: normalize(text), Source: providers.SourceTextLayer}, nil
}

func (s *DocumentSource) imagePage(ctx context.Context, page int, engine providers.OCREngine, progress func(int, int)) (*Result, error) {
	if page != 1 {
		return nil, fmt.Errorf("page %d out of range [1, 1]", page)
	}
	if engine == nil {
		return &Result{Page: page, Source: providers.SourceTextLayer}, nil
	}
	data, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	img, err := toPNG(data)
	if err != nil {
		return nil, failure.Wrap(failure.KindUnsupportedFormat, "extract", err)
	}
	return s.recognize(ctx, engine, providers.PageImage{Page: page, PNG: img, Scale: 1}, progress)
}

func (s *DocumentSource) textPage(ctx context.Context, page int) (*Result, error) {
	if page != 1 {
		return nil, fmt.Errorf("page %d out of range [1, 1]", page)
	}
	data, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Page: page, Text: normalize(string(data)), Source: providers.SourceTextLayer}, nil
}

func (s *DocumentSource) recognize(ctx context.Context, engine providers.OCREngine, img providers.PageImage, progress func(int, int)) (*Result, error) {
	var report providers.ProgressFunc
	if progress != nil {
		report = func(p int) { progress(img.Page, p) }
	}

	s.p.logger.Info("running ocr", "doc", s.ref.ID, "page", img.Page, "engine", engine.Name(), "remote", engine.Remote())
	res, err := engine.Recognize(ctx, img, report)
	if err != nil {
		return nil, err
	}
	conf := res.Confidence
	return &Result{
		Page:       img.Page,
		Text:       normalize(res.Text),
		Source:     res.Source,
		Confidence: &conf,
	}, nil
}

func (s *DocumentSource) fetch(ctx context.Context) ([]byte, error) {
	if s.p.fetcher == nil {
		return nil, fmt.Errorf("extract: no fetcher configured")
	}
	return s.p.fetcher.Fetch(ctx, s.ref.URL)
}

// toPNG re-encodes any supported raster image as PNG.
func toPNG(data []byte) ([]byte, error) {
	if http.DetectContentType(data) == "image/png" {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
