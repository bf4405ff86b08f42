package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/lang"
)

const (
	DefaultFailureThreshold  = 3
	DefaultDesktopTimeout    = 10 * time.Second
	DefaultMobileTimeout     = 18 * time.Second
	DefaultMobileMaxPDFBytes = 40 << 20
	DefaultFallbackNotice    = "Switched to compatibility viewer"
)

var (
	// ErrControlsUnavailable is returned for zoom and rotation requests while
	// the compatibility viewer is active.
	ErrControlsUnavailable = errors.New("page controls are unavailable in the compatibility viewer")

	// ErrNoDocument is returned when no document is open.
	ErrNoDocument = errors.New("no document open")
)

// TransitionError reports an event that does not apply in the current state.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %s not valid in state %s", e.Event, e.From)
}

// ControllerConfig configures a Controller. Zero values take the defaults.
type ControllerConfig struct {
	FailureThreshold  int
	DesktopTimeout    time.Duration
	MobileTimeout     time.Duration
	MobileMaxPDFBytes int64
	FallbackNotice    string
	Device            Device

	// Hooks run after the controller's lock is released.
	OnNotice          func(Notice)
	OnSelectionChange func(page int, lang string)
	OnDocumentChange  func(docID string) // "" when the session closes

	Logger *slog.Logger
}

// Controller is the render-path state machine for one viewer. It is safe
// for concurrent use.
type Controller struct {
	cfg    ControllerConfig
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	session    Session
	open       bool
	ready      bool
	rendering  int
	timer      *time.Timer
	timerFired bool
	epoch      uint64
	noticeSent bool
}

// NewController creates a controller in the Idle state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.DesktopTimeout <= 0 {
		cfg.DesktopTimeout = DefaultDesktopTimeout
	}
	if cfg.MobileTimeout <= 0 {
		cfg.MobileTimeout = DefaultMobileTimeout
	}
	if cfg.MobileMaxPDFBytes <= 0 {
		cfg.MobileMaxPDFBytes = DefaultMobileMaxPDFBytes
	}
	if cfg.FallbackNotice == "" {
		cfg.FallbackNotice = DefaultFallbackNotice
	}
	if cfg.Device == "" {
		cfg.Device = DeviceDesktop
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{cfg: cfg, logger: logger, state: StateIdle}
}

// hooks collects callbacks to run once the lock is released.
type hooks []func()

func (h hooks) run() {
	for _, fn := range h {
		fn()
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Path returns the active render path.
func (c *Controller) Path() Path {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Path
}

// Selected returns the current page and target language.
func (c *Controller) Selected() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Page, c.session.Lang
}

// Timeout returns the safety timeout for the configured device.
func (c *Controller) Timeout() time.Duration {
	if c.cfg.Device == DeviceMobile {
		return c.cfg.MobileTimeout
	}
	return c.cfg.DesktopTimeout
}

// Open starts loading ref. Opening a different document resets the session,
// its counters and its timer; reopening the current one retries the load
// unless the session has already fallen back. Documents with no preview
// path fail with an unsupported-format error.
func (c *Controller) Open(ref document.Ref) error {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	same := c.open && c.session.Doc.ID == ref.ID
	if same && c.state == StateFallback {
		return nil
	}
	if !same {
		c.resetLocked(ref)
		h = append(h, c.documentChangedLocked(ref.ID), c.selectionChangedLocked())
	}

	if err := ref.Previewable(); err != nil {
		c.session.Strategy = StrategyNone
		c.setStateLocked(StateLoadError)
		c.logger.Warn("no preview available", "doc_id", ref.ID, "mime_type", ref.MIMEType)
		return err
	}

	if c.cfg.Device == DeviceMobile && ref.Category == document.CategoryPDF && ref.Size > c.cfg.MobileMaxPDFBytes {
		h = append(h, c.enterFallbackLocked("document too large for the mobile page renderer")...)
		return nil
	}

	c.ready = false
	c.setStateLocked(StateLoading)
	if c.timer == nil && !c.timerFired {
		c.armTimerLocked()
	}
	return nil
}

// Close ends the session.
func (c *Controller) Close() {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.stopTimerLocked()
	c.epoch++
	l := c.session.Lang
	c.session = Session{Lang: l}
	c.open = false
	c.ready = false
	c.setStateLocked(StateIdle)
	h = append(h, c.documentChangedLocked(""), c.selectionChangedLocked())
}

// Loaded records a successful document load. Non-paginated documents have
// one page.
func (c *Controller) Loaded(pageCount int) error {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoDocument
	}
	if !c.session.Doc.Category.Paginated() || (c.session.Doc.Category == document.CategoryOffice && pageCount < 1) {
		pageCount = 1
	}
	if c.state != StateLoading && c.state != StateFallback {
		return &TransitionError{From: c.state, Event: "loaded"}
	}
	if pageCount < 1 {
		if c.state == StateFallback {
			return nil
		}
		h = append(h, c.loadFailedLocked(fmt.Errorf("document has no pages"))...)
		return nil
	}

	before := c.session.Page
	c.session.PageCount = pageCount
	c.session.Doc.PageCount = pageCount
	c.session.Page = c.session.clampPage(c.session.Page)
	if c.session.Page != before {
		h = append(h, c.selectionChangedLocked())
	}
	if c.state.Terminal() {
		return nil
	}

	c.stopTimerLocked()
	c.ready = true
	c.session.Failures = 0
	c.setStateLocked(StateReady)
	c.logger.Info("document ready",
		"doc_id", c.session.Doc.ID,
		"pages", pageCount,
		"strategy", c.session.Strategy,
		"elapsed", time.Since(c.session.StartedAt))
	return nil
}

// LoadFailed records a failed document load. The safety timer keeps
// running, and repeated failures count toward the fallback threshold.
func (c *Controller) LoadFailed(err error) error {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoDocument
	}
	if c.state.Terminal() {
		return nil
	}
	if c.state != StateLoading {
		return &TransitionError{From: c.state, Event: "load_failed"}
	}
	h = append(h, c.loadFailedLocked(err)...)
	return nil
}

func (c *Controller) loadFailedLocked(err error) hooks {
	c.session.Failures++
	c.setStateLocked(StateLoadError)
	c.logger.Warn("document load failed",
		"doc_id", c.session.Doc.ID,
		"failures", c.session.Failures,
		"error", err)
	if c.session.Failures >= c.cfg.FailureThreshold {
		return c.enterFallbackLocked("document failed to load")
	}
	return nil
}

// RenderStarted records that page is being rendered.
func (c *Controller) RenderStarted(page int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoDocument
	}
	switch c.state {
	case StateFallback:
		return nil
	case StateReady, StateRendering, StateRenderedOK, StateRenderError:
	default:
		return &TransitionError{From: c.state, Event: "render_started"}
	}
	if page < 1 || page > c.session.PageCount {
		return fmt.Errorf("page %d out of range [1, %d]", page, c.session.PageCount)
	}
	c.rendering = page
	c.setStateLocked(StateRendering)
	return nil
}

// RenderSucceeded records a rendered page and resets the failure count.
func (c *Controller) RenderSucceeded(page int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoDocument
	}
	if c.state.Terminal() {
		return nil
	}
	if c.state != StateRendering {
		return &TransitionError{From: c.state, Event: "render_succeeded"}
	}
	if page != c.rendering {
		// A newer render has started; its outcome decides the state.
		return nil
	}
	c.session.Failures = 0
	c.setStateLocked(StateRenderedOK)
	return nil
}

// RenderFailed records a page that could not be rendered. Reaching the
// failure threshold switches the session to the compatibility viewer.
// Cancelled renders are not failures.
func (c *Controller) RenderFailed(page int, err error) error {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrNoDocument
	}
	if c.state.Terminal() || failure.Is(err, failure.KindCancelled) {
		return nil
	}
	switch c.state {
	case StateReady, StateRendering, StateRenderedOK, StateRenderError:
	default:
		return &TransitionError{From: c.state, Event: "render_failed"}
	}

	c.session.Failures++
	c.setStateLocked(StateRenderError)
	c.logger.Warn("page render failed",
		"doc_id", c.session.Doc.ID,
		"page", page,
		"failures", c.session.Failures,
		"error", err)
	if c.session.Failures >= c.cfg.FailureThreshold {
		h = append(h, c.enterFallbackLocked(fmt.Sprintf("%d consecutive render failures", c.session.Failures))...)
	}
	return nil
}

// GoTo moves to page, clamped to the document, and returns the page shown.
func (c *Controller) GoTo(page int) (int, error) {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, ErrNoDocument
	}
	p := c.session.clampPage(page)
	if p != c.session.Page {
		c.session.Page = p
		h = append(h, c.selectionChangedLocked())
	}
	return p, nil
}

// Next moves forward one page.
func (c *Controller) Next() (int, error) {
	page, _ := c.Selected()
	return c.GoTo(page + 1)
}

// Prev moves back one page.
func (c *Controller) Prev() (int, error) {
	page, _ := c.Selected()
	return c.GoTo(page - 1)
}

// SetZoom sets the zoom factor, clamped to [MinZoom, MaxZoom].
func (c *Controller) SetZoom(z float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, ErrNoDocument
	}
	if c.state == StateFallback {
		return c.session.Zoom, ErrControlsUnavailable
	}
	c.session.Zoom = ClampZoom(z)
	return c.session.Zoom, nil
}

// Rotate turns the page by deg clockwise and returns the new rotation.
func (c *Controller) Rotate(deg int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return 0, ErrNoDocument
	}
	if c.state == StateFallback {
		return c.session.Rotation, ErrControlsUnavailable
	}
	c.session.Rotation = NormalizeRotation(c.session.Rotation + deg)
	return c.session.Rotation, nil
}

// SetLanguage selects the translation target language. An empty code
// clears it.
func (c *Controller) SetLanguage(code string) error {
	var h hooks
	defer func() { h.run() }()

	if code != "" {
		parsed, err := lang.Parse(code)
		if err != nil {
			return err
		}
		code = parsed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if code != c.session.Lang {
		c.session.Lang = code
		h = append(h, c.selectionChangedLocked())
	}
	return nil
}

func (c *Controller) resetLocked(ref document.Ref) {
	c.stopTimerLocked()
	c.epoch++
	c.session = Session{
		ID:        uuid.NewString(),
		Doc:       ref,
		Device:    c.cfg.Device,
		Page:      1,
		PageCount: ref.PageCount,
		Zoom:      DefaultZoom,
		Lang:      c.session.Lang,
		Path:      PathPrimary,
		Strategy:  StrategyFor(ref.Category),
		StartedAt: time.Now(),
	}
	c.open = true
	c.ready = false
	c.rendering = 0
	c.timerFired = false
	c.noticeSent = false
	c.logger.Debug("opening document", "doc_id", ref.ID, "session_id", c.session.ID, "category", ref.Category)
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("viewer state", "from", c.state, "to", s, "doc_id", c.session.Doc.ID)
	c.state = s
}

// enterFallbackLocked switches to the compatibility viewer. The switch is
// one-way for the session and the notice is sent at most once.
func (c *Controller) enterFallbackLocked(reason string) hooks {
	c.stopTimerLocked()
	c.setStateLocked(StateFallback)
	c.session.Path = PathFallback
	c.session.Strategy = StrategyCompatibility
	c.logger.Warn("switching to compatibility viewer",
		"doc_id", c.session.Doc.ID,
		"reason", reason,
		"failures", c.session.Failures)

	if c.noticeSent || c.cfg.OnNotice == nil {
		c.noticeSent = true
		return nil
	}
	c.noticeSent = true
	n := Notice{Kind: NoticeFallback, Message: c.cfg.FallbackNotice, Reason: reason}
	fn := c.cfg.OnNotice
	return hooks{func() { fn(n) }}
}

func (c *Controller) selectionChangedLocked() func() {
	fn := c.cfg.OnSelectionChange
	if fn == nil {
		return func() {}
	}
	page, l := c.session.Page, c.session.Lang
	return func() { fn(page, l) }
}

func (c *Controller) documentChangedLocked(docID string) func() {
	fn := c.cfg.OnDocumentChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(docID) }
}

func (c *Controller) armTimerLocked() {
	epoch := c.epoch
	c.timer = time.AfterFunc(c.Timeout(), func() { c.timeoutFired(epoch) })
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) timeoutFired(epoch uint64) {
	var h hooks
	defer func() { h.run() }()

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.timer == nil {
		return
	}
	c.timer = nil
	c.timerFired = true
	if c.ready || c.state.Terminal() {
		return
	}
	h = append(h, c.enterFallbackLocked(fmt.Sprintf("not ready after %s", c.Timeout()))...)
}
