package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/lang"
	"github.com/jackzampolin/folio/internal/providers"
)

// errStale stops a stream whose result can no longer be applied.
var errStale = errors.New("selection changed")

// TextSource yields the text of one page when a request carries none.
type TextSource interface {
	PageText(ctx context.Context, page int) (string, error)
}

// Selection reports the page and language the viewer currently shows.
type Selection interface {
	Selected() (page int, lang string)
}

// Request asks for one page translation.
type Request struct {
	Key    Key
	Text   string // Extracted from the source when empty
	Stream bool

	// OnUpdate receives the accumulated text each time it grows, and the
	// final text for atomic requests. It is called with the orchestrator's
	// lock held and must not call back into the Orchestrator.
	OnUpdate func(text string)
}

// Config configures an Orchestrator.
type Config struct {
	Translator  providers.Translator
	Cache       *Cache
	Source      TextSource
	Selection   Selection // Optional; nil accepts every key
	DocumentURL string

	// Timeout bounds each request, including extraction.
	Timeout time.Duration

	// Policy governs automatic retries. Quota errors are never retried
	// whatever the policy says.
	Policy failure.Policy

	Logger *slog.Logger
}

type flight struct {
	id         uint64
	cancel     context.CancelFunc
	background bool
}

type batchRun struct {
	lang   string
	cancel context.CancelFunc
}

// Orchestrator issues translation requests for a session. At most one
// request per key is in flight; a newer request for the same key cancels
// the older one, and a result is only applied while its key is still
// selected and the cache still belongs to the same document.
type Orchestrator struct {
	translator  providers.Translator
	cache       *Cache
	source      TextSource
	selection   Selection
	documentURL string
	timeout     time.Duration
	policy      failure.Policy
	logger      *slog.Logger

	mu       sync.Mutex
	nextID   uint64
	inflight map[Key]*flight
	failed   map[Key]Request
	batch    *batchRun
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Timeout == 0 {
		cfg.Timeout = providers.DefaultTranslateTimeout
	}
	if cfg.Policy.Attempts == 0 {
		cfg.Policy = failure.NoRetry
	}
	if cfg.Cache == nil {
		cfg.Cache = NewCache()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy.Logger == nil {
		cfg.Policy.Logger = logger
	}
	return &Orchestrator{
		translator:  cfg.Translator,
		cache:       cfg.Cache,
		source:      cfg.Source,
		selection:   cfg.Selection,
		documentURL: cfg.DocumentURL,
		timeout:     cfg.Timeout,
		policy:      cfg.Policy,
		logger:      logger,
		inflight:    make(map[Key]*flight),
		failed:      make(map[Key]Request),
	}
}

// Cache returns the session cache.
func (o *Orchestrator) Cache() *Cache {
	return o.cache
}

// Translate returns the translation for req.Key, from the cache when
// possible. Without text in the request the page is extracted first, and a
// page with no text fails with an empty-extraction error before the
// backend is contacted.
func (o *Orchestrator) Translate(ctx context.Context, req Request) (string, error) {
	return o.run(ctx, req, false)
}

// InFlight reports whether a request for key is running.
func (o *Orchestrator) InFlight(key Key) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[key]
	return ok
}

// Failed returns the keys whose last request failed.
func (o *Orchestrator) Failed() []Key {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]Key, 0, len(o.failed))
	for k := range o.failed {
		keys = append(keys, k)
	}
	return keys
}

// Retry re-issues the last failed request for key.
func (o *Orchestrator) Retry(ctx context.Context, key Key) (string, error) {
	o.mu.Lock()
	req, ok := o.failed[key]
	o.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no failed translation for %s", key)
	}
	o.logger.Info("retrying translation", "page", key.Page, "lang", key.Lang)
	return o.Translate(ctx, req)
}

// SelectionChanged cancels interactive requests for keys that are no longer
// selected, and a batch in another language.
func (o *Orchestrator) SelectionChanged() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, f := range o.inflight {
		if !f.background && !o.selected(key) {
			f.cancel()
			delete(o.inflight, key)
			o.dropPartial(key)
			o.logger.Debug("cancelled stale translation", "page", key.Page, "lang", key.Lang)
		}
	}
	if o.batch != nil && o.selection != nil {
		if _, l := o.selection.Selected(); canonical(l) != o.batch.lang {
			o.batch.cancel()
			o.batch = nil
		}
	}
}

// CancelAll cancels every running request, including a batch. It is called
// when the session closes.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, f := range o.inflight {
		f.cancel()
		delete(o.inflight, key)
		o.dropPartial(key)
	}
	if o.batch != nil {
		o.batch.cancel()
		o.batch = nil
	}
}

// dropPartial removes an unfinished entry for key. It must be called with
// o.mu held.
func (o *Orchestrator) dropPartial(key Key) {
	if e, ok := o.cache.Get(key); ok && (e.Status == StatusPending || e.Status == StatusStreaming) {
		o.cache.Delete(key)
	}
}

func (o *Orchestrator) run(ctx context.Context, req Request, background bool) (string, error) {
	if req.Key.Page < 1 {
		return "", fmt.Errorf("invalid page %d", req.Key.Page)
	}
	code, err := lang.Parse(req.Key.Lang)
	if err != nil {
		return "", err
	}
	req.Key.Lang = code
	key := req.Key

	if text, ok := o.cache.Text(key); ok {
		return text, nil
	}
	if o.cache.DocumentID() == "" {
		return "", fmt.Errorf("translate: no document open")
	}
	if o.translator == nil {
		return "", fmt.Errorf("translate: no translator configured")
	}

	gen := o.cache.Generation()
	fctx, id := o.begin(ctx, key, background)
	defer o.finish(key, id)

	text := req.Text
	if isBlank(text) {
		if o.source == nil {
			return "", o.fail(fctx, gen, req, id, background, failure.EmptyExtraction("translate", key.Page))
		}
		text, err = o.source.PageText(fctx, key.Page)
		if err != nil {
			return "", o.fail(fctx, gen, req, id, background, err)
		}
		if isBlank(text) {
			return "", o.fail(fctx, gen, req, id, background, failure.EmptyExtraction("translate", key.Page))
		}
	}

	if !o.apply(key, id, gen, background, func() { o.cache.Update(gen, key, StatusPending, "") }) {
		return "", staleError(key)
	}

	backendReq := providers.TranslateRequest{
		Text:           text,
		DocumentURL:    o.documentURL,
		PageNumber:     key.Page,
		TargetLanguage: key.Lang,
	}
	start := time.Now()

	var out string
	err = o.policy.Do(fctx, "translate", func(ctx context.Context) error {
		if !req.Stream {
			res, err := o.translator.Translate(ctx, backendReq)
			if err != nil {
				return err
			}
			out = res.TranslatedText
			return nil
		}

		var asm Assembler
		err := o.translator.TranslateStream(ctx, backendReq, func(ev providers.StreamEvent) error {
			if !asm.Apply(ev) {
				return nil
			}
			partial := asm.Text()
			ok := o.apply(key, id, gen, background, func() {
				o.cache.Update(gen, key, StatusStreaming, partial)
				if req.OnUpdate != nil {
					req.OnUpdate(partial)
				}
			})
			if !ok {
				return errStale
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !asm.Done() {
			return failure.New(failure.KindNetwork, "translate", "stream ended before completion")
		}
		out = asm.Text()
		return nil
	})
	if err != nil {
		return "", o.fail(fctx, gen, req, id, background, err)
	}

	committed := o.apply(key, id, gen, background, func() {
		o.cache.Commit(gen, key, out)
		delete(o.failed, key)
		if req.OnUpdate != nil && !req.Stream {
			req.OnUpdate(out)
		}
	})
	if !committed {
		return "", staleError(key)
	}

	o.logger.Info("translated page",
		"page", key.Page,
		"lang", key.Lang,
		"stream", req.Stream,
		"chars", len(out),
		"duration", time.Since(start))
	return out, nil
}

// begin registers a new request for key, cancelling any earlier one.
func (o *Orchestrator) begin(ctx context.Context, key Key, background bool) (context.Context, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if prev, ok := o.inflight[key]; ok {
		prev.cancel()
		o.logger.Debug("superseding translation", "page", key.Page, "lang", key.Lang)
	}
	o.nextID++
	fctx, cancel := context.WithTimeout(ctx, o.timeout)
	o.inflight[key] = &flight{id: o.nextID, cancel: cancel, background: background}
	return fctx, o.nextID
}

func (o *Orchestrator) finish(key Key, id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.inflight[key]; ok && f.id == id {
		f.cancel()
		delete(o.inflight, key)
		o.dropPartial(key)
	}
}

// apply runs fn while the request is still current and reports whether it ran.
func (o *Orchestrator) apply(key Key, id, gen uint64, background bool, fn func()) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(key, id, gen, background) {
		return false
	}
	fn()
	return true
}

// current must be called with o.mu held.
func (o *Orchestrator) current(key Key, id, gen uint64, background bool) bool {
	f, ok := o.inflight[key]
	if !ok || f.id != id {
		return false
	}
	if o.cache.Generation() != gen {
		return false
	}
	return background || o.selected(key)
}

// selected must be called with o.mu held.
func (o *Orchestrator) selected(key Key) bool {
	if o.selection == nil {
		return true
	}
	page, l := o.selection.Selected()
	return page == key.Page && canonical(l) == key.Lang
}

func (o *Orchestrator) fail(ctx context.Context, gen uint64, req Request, id uint64, background bool, err error) error {
	key := req.Key
	if errors.Is(err, errStale) {
		return staleError(key)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !failure.Is(err, failure.KindTimeout) {
		err = failure.Timeout("translate", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.current(key, id, gen, background) {
		return staleError(key)
	}
	if failure.Is(err, failure.KindCancelled) {
		o.cache.Delete(key)
		return err
	}
	o.cache.Fail(gen, key, err)
	o.failed[key] = req
	o.logger.Warn("translation failed",
		"page", key.Page,
		"lang", key.Lang,
		"kind", failure.KindOf(err),
		"error", err)
	return err
}

func staleError(key Key) error {
	return failure.New(failure.KindCancelled, "translate", fmt.Sprintf("%s is no longer selected", key))
}

func canonical(code string) string {
	if c, err := lang.Parse(code); err == nil {
		return c
	}
	return code
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
