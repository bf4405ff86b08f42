package svcctx

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/extract"
	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/translate"
	"github.com/jackzampolin/folio/internal/viewer"
)

// OpenOptions selects the document and how it is viewed.
type OpenOptions struct {
	Source   string // http(s) URL, gs:// URL, file:// URL or local path
	MIMEType string // Guessed from Source when empty
	Device   viewer.Device
	Lang     string // Initial target language

	// Translator names a registry translator; defaults to translation.translator.
	Translator string

	// OCREngine names a registry OCR engine used for pages without a text
	// layer. Empty leaves such pages blank until an engine is chosen.
	OCREngine string

	OnNotice func(viewer.Notice)
}

// Workspace is one open document with its viewer, extraction source and
// translation session wired together. Changing the controller's page or
// language cancels translations that are no longer selected, and switching
// documents resets the translation cache.
type Workspace struct {
	Ref          document.Ref
	Handle       *pdfdoc.Handle // nil unless the document is a PDF
	Controller   *viewer.Controller
	Renderer     *viewer.PageRenderer
	Source       *extract.DocumentSource
	Orchestrator *translate.Orchestrator
	Stream       bool

	logger *slog.Logger
}

// DocumentID derives a stable ID from a source location so render caches
// survive between runs.
func DocumentID(source string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(source)).String()
}

// Open fetches and loads a document. Load failures are reported to the
// controller before being returned, so a workspace that failed to load
// still reflects the failure in its state.
func (s *Services) Open(ctx context.Context, opts OpenOptions) (*Workspace, error) {
	cfg := s.Config.Get()
	logger := s.Logger

	ref, err := s.resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	var translator providers.Translator
	name := opts.Translator
	if name == "" {
		name = cfg.Translation.Translator
	}
	if t, err := s.Registry.GetTranslator(name); err == nil {
		translator = t
	} else {
		logger.Debug("translation unavailable", "translator", name, "error", err)
	}

	cache := translate.NewCache()
	var orch *translate.Orchestrator

	ctrl := viewer.NewController(viewer.ControllerConfig{
		FailureThreshold:  cfg.Viewer.FailureThreshold,
		DesktopTimeout:    cfg.Viewer.DesktopTimeout.Std(),
		MobileTimeout:     cfg.Viewer.MobileTimeout.Std(),
		MobileMaxPDFBytes: cfg.Viewer.MobileMaxPDFBytes,
		FallbackNotice:    cfg.Viewer.FallbackNotice,
		Device:            opts.Device,
		OnNotice:          opts.OnNotice,
		OnSelectionChange: func(int, string) {
			if orch != nil {
				orch.SelectionChanged()
			}
		},
		OnDocumentChange: func(docID string) {
			if orch != nil {
				orch.CancelAll()
			}
			if docID == "" {
				cache.Close()
				return
			}
			cache.Open(docID)
		},
		Logger: logger,
	})

	documentURL := ref.URL
	if s.GCS != nil && strings.HasPrefix(ref.URL, "gs://") {
		if signed, err := s.GCS.SignedURL(ctx, ref.Name); err == nil {
			documentURL = signed
		} else {
			logger.Warn("failed to sign document url", "doc_id", ref.ID, "error", err)
		}
	}

	w := &Workspace{
		Ref:        ref,
		Controller: ctrl,
		Stream:     cfg.Translation.Stream,
		logger:     logger,
	}

	if err := ctrl.Open(ref); err != nil {
		return nil, err
	}

	data, err := s.Fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		ctrl.LoadFailed(err)
		return w, fmt.Errorf("load %s: %w", ref.Name, err)
	}
	if ref.Size == 0 {
		w.Ref.Size = int64(len(data))
	}

	pageCount := 1
	if ref.Category == document.CategoryPDF {
		h, err := pdfdoc.Open(data)
		if err != nil {
			ctrl.LoadFailed(err)
			return w, fmt.Errorf("load %s: %w", ref.Name, err)
		}
		w.Handle = h
		pageCount = h.PageCount()
		w.Ref.PageCount = pageCount
	}
	if err := ctrl.Loaded(pageCount); err != nil {
		w.Close()
		return nil, err
	}

	w.Renderer = viewer.NewPageRenderer(viewer.RendererConfig{
		Rasterizer: s.Rasterizer,
		Reporter:   ctrl,
		Home:       s.Home,
		DocID:      ref.ID,
		Logger:     logger,
	})
	w.Source = s.Pipeline().For(w.Handle, w.Ref)
	if opts.OCREngine != "" {
		engine, err := s.Registry.GetOCR(opts.OCREngine)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.Source.SetEngine(engine)
	}

	orch = translate.New(translate.Config{
		Translator:  translator,
		Cache:       cache,
		Source:      w.Source,
		Selection:   ctrl,
		DocumentURL: documentURL,
		Timeout:     cfg.Translation.Timeout.Std(),
		Logger:      logger,
	})
	w.Orchestrator = orch

	lang := opts.Lang
	if lang == "" {
		lang = cfg.Translation.DefaultLanguage
	}
	if err := ctrl.SetLanguage(lang); err != nil {
		w.Close()
		return nil, err
	}

	logger.Info("opened document",
		"doc_id", ref.ID,
		"category", ref.Category,
		"pages", pageCount,
		"path", ctrl.Path())
	return w, nil
}

// resolve builds the Ref for opts.Source.
func (s *Services) resolve(ctx context.Context, opts OpenOptions) (document.Ref, error) {
	src := strings.TrimSpace(opts.Source)
	if src == "" {
		return document.Ref{}, fmt.Errorf("document source is required")
	}
	if s.GCS != nil && strings.HasPrefix(src, "gs://") {
		object, err := s.GCS.ObjectName(src)
		if err != nil {
			return document.Ref{}, err
		}
		ref, err := s.GCS.Lookup(ctx, object)
		if err != nil {
			return document.Ref{}, err
		}
		ref.ID = DocumentID(src)
		if opts.MIMEType != "" {
			ref.MIMEType = opts.MIMEType
			ref.Category = document.Categorize(opts.MIMEType)
		}
		return ref, nil
	}
	ref := document.NewRef(DocumentID(src), src, opts.MIMEType)
	ref.Name = path.Base(strings.TrimPrefix(src, "file://"))
	return ref, nil
}

// Translate selects page and lang in the viewer and translates the page.
func (w *Workspace) Translate(ctx context.Context, page int, lang string, onUpdate func(string)) (string, error) {
	if err := w.Controller.SetLanguage(lang); err != nil {
		return "", err
	}
	if _, err := w.Controller.GoTo(page); err != nil {
		return "", err
	}
	sel, code := w.Controller.Selected()
	if sel != page {
		return "", fmt.Errorf("page %d out of range [1, %d]", page, w.Controller.Session().PageCount)
	}
	return w.Orchestrator.Translate(ctx, translate.Request{
		Key:      translate.Key{Page: page, Lang: code},
		Stream:   w.Stream,
		OnUpdate: onUpdate,
	})
}

// Render rasterises the controller's current page. Only PDFs have a page
// renderer; other categories report no renderable page.
func (w *Workspace) Render(ctx context.Context) (*viewer.RenderedPage, error) {
	if w.Handle == nil {
		return nil, failure.New(failure.KindUnsupportedFormat, "render", fmt.Sprintf("%s documents are not rasterised", w.Ref.Category))
	}
	if w.Controller.Path() == viewer.PathFallback {
		return nil, fmt.Errorf("render: %w", viewer.ErrControlsUnavailable)
	}
	sess := w.Controller.Session()
	return w.Renderer.Render(ctx, w.Handle, sess.Page, sess.Zoom, sess.Rotation)
}

// Close ends the viewing session and releases the document.
func (w *Workspace) Close() error {
	if w.Orchestrator != nil {
		w.Orchestrator.CancelAll()
	}
	w.Controller.Close()
	if w.Handle != nil {
		return w.Handle.Close()
	}
	return nil
}
