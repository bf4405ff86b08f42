package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/testutil"
)

// fakeRasterizer fails the first failures[page] attempts for a page.
type fakeRasterizer struct {
	mu       sync.Mutex
	png      []byte
	failures map[int]int
	calls    map[int]int
	opts     []pdfdoc.RenderOptions
}

func (r *fakeRasterizer) Render(ctx context.Context, h *pdfdoc.Handle, page int, opts pdfdoc.RenderOptions) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[int]int)
	}
	r.calls[page]++
	r.opts = append(r.opts, opts)
	if r.failures[page] >= r.calls[page] {
		return nil, errors.New("pdftoppm failed")
	}
	return r.png, nil
}

func (r *fakeRasterizer) callsFor(page int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[page]
}

var fastPolicy = failure.Policy{
	Attempts: 2,
	Delay:    time.Millisecond,
	RetryIf:  failure.DefaultPagePolicy.RetryIf,
}

func openPDF(t *testing.T, pages ...string) *pdfdoc.Handle {
	t.Helper()
	h, err := pdfdoc.Open(testutil.PDF(pages...))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestPageRenderer_Render(t *testing.T) {
	h := openPDF(t, "one", "two", "three")
	raster := &fakeRasterizer{png: testutil.PNG(t, 4, 4)}
	c := NewController(ControllerConfig{})
	openReady(t, c, pdfRef("doc"), h.PageCount())

	var dimCalls int
	r := NewPageRenderer(RendererConfig{
		Rasterizer:   raster,
		Reporter:     c,
		Policy:       fastPolicy,
		OnDimensions: func([]pdfdoc.Dim) { dimCalls++ },
	})
	ctx := context.Background()

	page, err := r.Render(ctx, h, 2, 1.5, 90)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if page.Page != 2 || len(page.PNG) == 0 {
		t.Errorf("Render() = %+v", page)
	}
	if raster.opts[0].Zoom != 1.5 || raster.opts[0].Rotation != 90 {
		t.Errorf("options = %+v", raster.opts[0])
	}
	if c.State() != StateRenderedOK {
		t.Errorf("controller state = %s, want rendered_ok", c.State())
	}

	t.Run("dimensions reported once", func(t *testing.T) {
		for _, z := range []float64{0.5, 2, 3} {
			if _, err := r.Render(ctx, h, 1, z, 0); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
		}
		if dimCalls > 1 {
			t.Errorf("dimensions reported %d times", dimCalls)
		}
		if dims, ok := r.Dimensions(h); ok && dims[0].Width != 612 {
			t.Errorf("page width = %v, want 612", dims[0].Width)
		}
	})

	t.Run("zoom is clamped", func(t *testing.T) {
		page, err := r.Render(ctx, h, 1, 50, 0)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if page.Zoom != MaxZoom {
			t.Errorf("zoom = %v, want %v", page.Zoom, MaxZoom)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		if _, err := r.Render(ctx, h, 4, 1, 0); err == nil {
			t.Error("expected error")
		}
	})
}

func TestPageRenderer_Retries(t *testing.T) {
	h := openPDF(t, "a", "b", "c", "d")
	c := NewController(ControllerConfig{})
	openReady(t, c, pdfRef("doc"), h.PageCount())

	raster := &fakeRasterizer{
		png:      testutil.PNG(t, 2, 2),
		failures: map[int]int{1: 1, 2: 5, 3: 5, 4: 5},
	}
	r := NewPageRenderer(RendererConfig{Rasterizer: raster, Reporter: c, Policy: fastPolicy})
	ctx := context.Background()

	t.Run("transient page failure recovers", func(t *testing.T) {
		if _, err := r.Render(ctx, h, 1, 1, 0); err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if raster.callsFor(1) != 2 {
			t.Errorf("attempts = %d, want 2", raster.callsFor(1))
		}
		if c.Session().Failures != 0 {
			t.Errorf("failures = %d, want 0", c.Session().Failures)
		}
	})

	t.Run("persistent failures reach fallback", func(t *testing.T) {
		for page := 2; page <= 4; page++ {
			if _, err := r.Render(ctx, h, page, 1, 0); err == nil {
				t.Fatalf("Render(%d) succeeded, want error", page)
			}
			if raster.callsFor(page) != 2 {
				t.Errorf("page %d attempts = %d, want 2", page, raster.callsFor(page))
			}
		}
		if c.State() != StateFallback {
			t.Errorf("state = %s after three failed pages, want fallback", c.State())
		}
	})
}

func TestPageRenderer_Cancelled(t *testing.T) {
	h := openPDF(t, "a")
	c := NewController(ControllerConfig{})
	openReady(t, c, pdfRef("doc"), 1)

	r := NewPageRenderer(RendererConfig{
		Rasterizer: &fakeRasterizer{failures: map[int]int{1: 10}},
		Reporter:   c,
		Policy:     fastPolicy,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, h, 1, 1, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if c.Session().Failures != 0 {
		t.Errorf("failures = %d, cancellation must not count", c.Session().Failures)
	}
}

func TestPageRenderer_DiskCache(t *testing.T) {
	h := openPDF(t, "a", "b")
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	raster := &fakeRasterizer{png: testutil.PNG(t, 3, 3)}
	r := NewPageRenderer(RendererConfig{Rasterizer: raster, Home: dir, DocID: "doc", Policy: fastPolicy})
	ctx := context.Background()

	first, err := r.Render(ctx, h, 2, 1, 0)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if first.FromCache {
		t.Error("first render should not come from the cache")
	}

	again := NewPageRenderer(RendererConfig{Rasterizer: raster, Home: dir, DocID: "doc", Policy: fastPolicy})
	second, err := again.Render(ctx, h, 2, 1, 0)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !second.FromCache || raster.callsFor(2) != 1 {
		t.Errorf("FromCache = %v, rasterizer calls = %d", second.FromCache, raster.callsFor(2))
	}

	if _, err := again.Render(ctx, h, 2, 2, 0); err != nil {
		t.Fatal(err)
	}
	if raster.callsFor(2) != 2 {
		t.Error("a different zoom must not hit the cache")
	}
}

func TestPageRenderer_ClosedHandle(t *testing.T) {
	h, err := pdfdoc.Open(testutil.PDF("a"))
	if err != nil {
		t.Fatal(err)
	}
	h.Close()
	r := NewPageRenderer(RendererConfig{Rasterizer: &fakeRasterizer{}})
	if _, err := r.Render(context.Background(), h, 1, 1, 0); !errors.Is(err, pdfdoc.ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}
