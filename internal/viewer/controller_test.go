package viewer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
)

// recorder captures controller hooks.
type recorder struct {
	mu         sync.Mutex
	notices    []Notice
	selections [][2]any
	docs       []string
}

func (r *recorder) config(cfg ControllerConfig) ControllerConfig {
	cfg.OnNotice = func(n Notice) {
		r.mu.Lock()
		r.notices = append(r.notices, n)
		r.mu.Unlock()
	}
	cfg.OnSelectionChange = func(page int, lang string) {
		r.mu.Lock()
		r.selections = append(r.selections, [2]any{page, lang})
		r.mu.Unlock()
	}
	cfg.OnDocumentChange = func(id string) {
		r.mu.Lock()
		r.docs = append(r.docs, id)
		r.mu.Unlock()
	}
	return cfg
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func pdfRef(id string) document.Ref {
	return document.NewRef(id, "https://example.com/"+id+".pdf", "application/pdf")
}

func openReady(t *testing.T, c *Controller, ref document.Ref, pages int) {
	t.Helper()
	if err := c.Open(ref); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := c.Loaded(pages); err != nil {
		t.Fatalf("Loaded() error = %v", err)
	}
}

func TestController_Lifecycle(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.config(ControllerConfig{}))
	if c.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", c.State())
	}

	if err := c.Open(pdfRef("a")); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.State() != StateLoading {
		t.Errorf("state = %s, want loading", c.State())
	}
	if err := c.Loaded(5); err != nil {
		t.Fatalf("Loaded() error = %v", err)
	}
	if c.State() != StateReady {
		t.Errorf("state = %s, want ready", c.State())
	}

	steps := []struct {
		name string
		fn   func() error
		want State
	}{
		{"render started", func() error { return c.RenderStarted(1) }, StateRendering},
		{"render succeeded", func() error { return c.RenderSucceeded(1) }, StateRenderedOK},
		{"render next", func() error { return c.RenderStarted(2) }, StateRendering},
		{"render failed", func() error { return c.RenderFailed(2, errors.New("boom")) }, StateRenderError},
		{"render again", func() error { return c.RenderStarted(2) }, StateRendering},
		{"recovered", func() error { return c.RenderSucceeded(2) }, StateRenderedOK},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
		if got := c.State(); got != s.want {
			t.Fatalf("%s: state = %s, want %s", s.name, got, s.want)
		}
	}
	if f := c.Session().Failures; f != 0 {
		t.Errorf("failures = %d after a success, want 0", f)
	}

	c.Close()
	if c.State() != StateIdle {
		t.Errorf("state after Close = %s, want idle", c.State())
	}
	if len(rec.docs) != 2 || rec.docs[0] != "a" || rec.docs[1] != "" {
		t.Errorf("document changes = %v", rec.docs)
	}
}

func TestController_InvalidTransitions(t *testing.T) {
	c := NewController(ControllerConfig{})
	if err := c.Loaded(1); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Loaded() before Open error = %v", err)
	}
	if err := c.Open(pdfRef("a")); err != nil {
		t.Fatal(err)
	}
	var te *TransitionError
	if err := c.RenderStarted(1); !errors.As(err, &te) {
		t.Errorf("RenderStarted() while loading error = %v, want transition error", err)
	}
	if err := c.Loaded(2); err != nil {
		t.Fatal(err)
	}
	if err := c.RenderStarted(3); err == nil {
		t.Error("expected out of range error")
	}
	if err := c.LoadFailed(errors.New("late")); !errors.As(err, &te) {
		t.Errorf("LoadFailed() while ready error = %v, want transition error", err)
	}
}

func TestController_FailureThreshold(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.config(ControllerConfig{}))
	openReady(t, c, pdfRef("a"), 10)

	for i := 1; i <= 2; i++ {
		c.RenderStarted(i)
		c.RenderFailed(i, errors.New("render failed"))
		if c.State() == StateFallback {
			t.Fatalf("fell back after %d failures", i)
		}
	}

	t.Run("cancellation is not a failure", func(t *testing.T) {
		c.RenderStarted(3)
		c.RenderFailed(3, failure.Wrap(failure.KindCancelled, "render", errors.New("navigated away")))
		if c.State() == StateFallback || c.Session().Failures != 2 {
			t.Errorf("state = %s, failures = %d", c.State(), c.Session().Failures)
		}
	})

	c.RenderFailed(3, errors.New("render failed"))
	if c.State() != StateFallback {
		t.Fatalf("state = %s after 3 failures, want fallback", c.State())
	}
	s := c.Session()
	if s.Path != PathFallback || s.Strategy != StrategyCompatibility {
		t.Errorf("session = %+v", s)
	}
	if rec.noticeCount() != 1 || rec.notices[0].Message != "Switched to compatibility viewer" {
		t.Errorf("notices = %+v", rec.notices)
	}

	t.Run("fallback is one-way", func(t *testing.T) {
		events := []func() error{
			func() error { return c.RenderStarted(1) },
			func() error { return c.RenderSucceeded(1) },
			func() error { return c.Loaded(10) },
			func() error { return c.LoadFailed(errors.New("x")) },
			func() error { return c.RenderFailed(1, errors.New("x")) },
			func() error { return c.Open(pdfRef("a")) },
		}
		for i, ev := range events {
			if err := ev(); err != nil {
				t.Errorf("event %d: error = %v", i, err)
			}
			if c.State() != StateFallback || c.Path() != PathFallback {
				t.Fatalf("event %d left fallback: state %s", i, c.State())
			}
		}
		if rec.noticeCount() != 1 {
			t.Errorf("notice sent %d times, want once", rec.noticeCount())
		}
	})

	t.Run("controls unavailable", func(t *testing.T) {
		if _, err := c.SetZoom(2); !errors.Is(err, ErrControlsUnavailable) {
			t.Errorf("SetZoom() error = %v", err)
		}
		if _, err := c.Rotate(90); !errors.Is(err, ErrControlsUnavailable) {
			t.Errorf("Rotate() error = %v", err)
		}
		if p, err := c.GoTo(4); err != nil || p != 4 {
			t.Errorf("GoTo() = %d, %v; navigation stays available", p, err)
		}
	})

	t.Run("new document resets", func(t *testing.T) {
		if err := c.Open(pdfRef("b")); err != nil {
			t.Fatal(err)
		}
		s := c.Session()
		if c.State() != StateLoading || s.Path != PathPrimary || s.Failures != 0 || s.Page != 1 {
			t.Errorf("state = %s, session = %+v", c.State(), s)
		}
	})
}

func TestController_LoadFailures(t *testing.T) {
	c := NewController(ControllerConfig{FailureThreshold: 2})
	ref := pdfRef("a")
	if err := c.Open(ref); err != nil {
		t.Fatal(err)
	}
	c.LoadFailed(errors.New("network"))
	if c.State() != StateLoadError {
		t.Fatalf("state = %s, want load_error", c.State())
	}

	// Retrying the same document keeps the failure count.
	if err := c.Open(ref); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateLoading || c.Session().Failures != 1 {
		t.Fatalf("state = %s, failures = %d", c.State(), c.Session().Failures)
	}
	c.LoadFailed(errors.New("network"))
	if c.State() != StateFallback {
		t.Errorf("state = %s, want fallback", c.State())
	}
}

func TestController_SafetyTimeout(t *testing.T) {
	t.Run("fires before ready", func(t *testing.T) {
		rec := &recorder{}
		c := NewController(rec.config(ControllerConfig{DesktopTimeout: 10 * time.Millisecond}))
		if err := c.Open(pdfRef("a")); err != nil {
			t.Fatal(err)
		}
		deadline := time.Now().Add(2 * time.Second)
		for c.State() != StateFallback || rec.noticeCount() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("timeout never forced fallback")
			}
			time.Sleep(time.Millisecond)
		}
		if rec.noticeCount() != 1 {
			t.Errorf("notices = %d, want 1", rec.noticeCount())
		}
		// A late load does not leave fallback.
		if err := c.Loaded(3); err != nil {
			t.Fatal(err)
		}
		if c.State() != StateFallback {
			t.Errorf("state = %s after late load", c.State())
		}
		if c.Session().PageCount != 3 {
			t.Errorf("page count = %d, want 3", c.Session().PageCount)
		}
	})

	t.Run("cleared on ready", func(t *testing.T) {
		c := NewController(ControllerConfig{DesktopTimeout: 10 * time.Millisecond})
		openReady(t, c, pdfRef("a"), 3)
		time.Sleep(40 * time.Millisecond)
		if c.State() != StateReady {
			t.Errorf("state = %s, want ready", c.State())
		}
	})

	t.Run("cleared on document change", func(t *testing.T) {
		c := NewController(ControllerConfig{DesktopTimeout: 20 * time.Millisecond})
		if err := c.Open(pdfRef("a")); err != nil {
			t.Fatal(err)
		}
		c.Close()
		time.Sleep(50 * time.Millisecond)
		if c.State() != StateIdle {
			t.Errorf("state = %s, want idle", c.State())
		}
	})

	t.Run("mobile budget is longer", func(t *testing.T) {
		desktop := NewController(ControllerConfig{})
		mobile := NewController(ControllerConfig{Device: DeviceMobile})
		if desktop.Timeout() != 10*time.Second || mobile.Timeout() != 18*time.Second {
			t.Errorf("timeouts = %s / %s", desktop.Timeout(), mobile.Timeout())
		}
	})
}

func TestController_MobileLargePDF(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.config(ControllerConfig{Device: DeviceMobile}))
	ref := pdfRef("big")
	ref.Size = 41 << 20
	if err := c.Open(ref); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateFallback {
		t.Errorf("state = %s, want fallback", c.State())
	}
	if rec.noticeCount() != 1 {
		t.Errorf("notices = %d, want 1", rec.noticeCount())
	}

	d := NewController(ControllerConfig{})
	if err := d.Open(ref); err != nil {
		t.Fatal(err)
	}
	if d.State() != StateLoading {
		t.Errorf("desktop state = %s, want loading", d.State())
	}
}

func TestController_Strategies(t *testing.T) {
	tests := []struct {
		mime     string
		strategy Strategy
		pages    int
	}{
		{"application/pdf", StrategyPages, 7},
		{"image/png", StrategyImage, 1},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", StrategyOfficePreview, 7},
		{"video/mp4", StrategyNative, 1},
		{"text/plain", StrategyNative, 1},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			c := NewController(ControllerConfig{})
			openReady(t, c, document.NewRef("d", "https://x/d", tt.mime), 7)
			s := c.Session()
			if s.Strategy != tt.strategy || s.PageCount != tt.pages {
				t.Errorf("strategy = %s, pages = %d; want %s, %d", s.Strategy, s.PageCount, tt.strategy, tt.pages)
			}
		})
	}

	t.Run("office has at least one page", func(t *testing.T) {
		c := NewController(ControllerConfig{})
		openReady(t, c, document.NewRef("d", "https://x/d.pptx", ""), 0)
		if c.Session().PageCount != 1 {
			t.Errorf("page count = %d, want 1", c.Session().PageCount)
		}
	})

	t.Run("unknown is unsupported", func(t *testing.T) {
		c := NewController(ControllerConfig{})
		err := c.Open(document.NewRef("d", "https://x/d.bin", "application/x-unknown"))
		if !errors.Is(err, failure.ErrUnsupportedFormat) {
			t.Errorf("Open() error = %v, want unsupported format", err)
		}
		if c.State() != StateLoadError {
			t.Errorf("state = %s, want load_error", c.State())
		}
	})
}

func TestController_Navigation(t *testing.T) {
	rec := &recorder{}
	c := NewController(rec.config(ControllerConfig{}))
	openReady(t, c, pdfRef("a"), 5)

	tests := []struct {
		to   int
		want int
	}{
		{3, 3},
		{0, 1},
		{-4, 1},
		{6, 5},
		{100, 5},
	}
	for _, tt := range tests {
		got, err := c.GoTo(tt.to)
		if err != nil {
			t.Fatalf("GoTo(%d) error = %v", tt.to, err)
		}
		if got != tt.want {
			t.Errorf("GoTo(%d) = %d, want %d", tt.to, got, tt.want)
		}
		if p := c.Session().Page; p < 1 || p > 5 {
			t.Fatalf("page %d outside [1, 5]", p)
		}
	}

	if p, _ := c.Next(); p != 5 {
		t.Errorf("Next() at the end = %d", p)
	}
	if p, _ := c.Prev(); p != 4 {
		t.Errorf("Prev() = %d, want 4", p)
	}

	if z, _ := c.SetZoom(10); z != MaxZoom {
		t.Errorf("SetZoom(10) = %v", z)
	}
	if z, _ := c.SetZoom(0.1); z != MinZoom {
		t.Errorf("SetZoom(0.1) = %v", z)
	}
	if r, _ := c.Rotate(-90); r != 270 {
		t.Errorf("Rotate(-90) = %d, want 270", r)
	}

	if err := c.SetLanguage("es"); err != nil {
		t.Fatal(err)
	}
	if err := c.SetLanguage("not a language!"); err == nil {
		t.Error("expected error for invalid language")
	}
	if page, l := c.Selected(); page != 4 || l != "es" {
		t.Errorf("Selected() = %d, %q", page, l)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.selections[len(rec.selections)-1]
	if last[0] != 4 || last[1] != "es" {
		t.Errorf("last selection change = %v", last)
	}
}

func TestController_LoadedClampsPage(t *testing.T) {
	c := NewController(ControllerConfig{})
	ref := pdfRef("a")
	if err := c.Open(ref); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GoTo(9); err != nil {
		t.Fatal(err)
	}
	if err := c.Loaded(4); err != nil {
		t.Fatal(err)
	}
	if p := c.Session().Page; p != 4 {
		t.Errorf("page = %d after load, want 4", p)
	}
}

func TestState_Terminal(t *testing.T) {
	states := []State{
		StateIdle, StateLoading, StateReady, StateRendering,
		StateRenderedOK, StateRenderError, StateLoadError, StateFallback,
	}
	for _, s := range states {
		if got, want := s.Terminal(), s == StateFallback; got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}
