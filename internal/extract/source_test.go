package extract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"sync"
	"testing"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/testutil"
)

type fakeRasterizer struct {
	mu    sync.Mutex
	pages []int
	png   []byte
}

func (r *fakeRasterizer) Render(ctx context.Context, h *pdfdoc.Handle, page int, opts pdfdoc.RenderOptions) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, page)
	return r.png, nil
}

type fakeOffice struct {
	reqs []providers.ExtractRequest
}

func (o *fakeOffice) Extract(ctx context.Context, req providers.ExtractRequest) (string, error) {
	o.reqs = append(o.reqs, req)
	return "slide text\r\n", nil
}

func TestDocumentSource_PDF(t *testing.T) {
	data := testutil.PDF("Page one has a text layer", "")
	ref := document.NewRef("doc", "mem://doc.pdf", "application/pdf")
	h, err := pdfdoc.Open(data)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	raster := &fakeRasterizer{png: testutil.PNG(t, 4, 4)}
	p := NewPipeline(PipelineConfig{Rasterizer: raster})
	src := p.For(h, ref)
	ctx := context.Background()

	t.Run("text layer", func(t *testing.T) {
		r, err := src.Page(ctx, 1)
		if err != nil {
			t.Fatalf("Page(1) error = %v", err)
		}
		if r.Source != providers.SourceTextLayer || r.Empty() {
			t.Errorf("Page(1) = %+v", r)
		}
		if r.Confidence != nil {
			t.Error("text layer results carry no confidence")
		}
	})

	t.Run("no engine yields empty", func(t *testing.T) {
		text, err := src.PageText(ctx, 2)
		if err != nil {
			t.Fatalf("PageText(2) error = %v", err)
		}
		if text != "" {
			t.Errorf("PageText(2) = %q, want empty", text)
		}
		if len(raster.pages) != 0 {
			t.Error("nothing should be rasterised without an engine")
		}
	})

	engine := providers.NewMockOCREngine(false)
	src.SetEngine(engine)
	var progress []int
	src.OnProgress(func(page, pct int) {
		if page == 2 {
			progress = append(progress, pct)
		}
	})

	t.Run("ocr after engine chosen", func(t *testing.T) {
		r, err := src.Page(ctx, 2)
		if err != nil {
			t.Fatalf("Page(2) error = %v", err)
		}
		if r.Text != "ocr text for page 2" {
			t.Errorf("Text = %q", r.Text)
		}
		if r.Source != providers.SourceBrowserOCR {
			t.Errorf("Source = %q, want %q", r.Source, providers.SourceBrowserOCR)
		}
		if r.Confidence == nil || *r.Confidence != 0.9 {
			t.Errorf("Confidence = %v", r.Confidence)
		}
		if len(raster.pages) != 1 || raster.pages[0] != 2 {
			t.Errorf("rasterised pages = %v, want [2]", raster.pages)
		}
		if len(progress) == 0 || progress[len(progress)-1] != 100 {
			t.Errorf("progress = %v", progress)
		}
	})

	t.Run("ocr result is reused", func(t *testing.T) {
		before := engine.Requests()
		if _, err := src.Page(ctx, 2); err != nil {
			t.Fatalf("Page(2) error = %v", err)
		}
		if engine.Requests() != before {
			t.Error("expected cached OCR result")
		}
	})

	t.Run("switching engine discards ocr results", func(t *testing.T) {
		remote := providers.NewMockOCREngine(true)
		src.SetEngine(remote)
		r, err := src.Page(ctx, 2)
		if err != nil {
			t.Fatalf("Page(2) error = %v", err)
		}
		if r.Source != providers.SourceAIOCR || remote.Requests() != 1 {
			t.Errorf("Page(2) = %+v, remote requests = %d", r, remote.Requests())
		}
	})

	t.Run("manual edit bypasses ocr", func(t *testing.T) {
		m := providers.NewMockOCREngine(false)
		src.SetEngine(m)
		if _, err := src.ManualEdit(2, "corrected text"); err != nil {
			t.Fatalf("ManualEdit() error = %v", err)
		}
		r, err := src.Page(ctx, 2)
		if err != nil {
			t.Fatalf("Page(2) error = %v", err)
		}
		if r.Source != providers.SourceManualEdit || r.Text != "corrected text" {
			t.Errorf("Page(2) = %+v", r)
		}
		if m.Requests() != 0 {
			t.Error("OCR must not run after a manual edit")
		}
	})

	t.Run("blank manual edit rejected", func(t *testing.T) {
		if _, err := src.ManualEdit(1, "  \n"); !errors.Is(err, failure.ErrEmptyExtraction) {
			t.Errorf("error = %v, want empty extraction", err)
		}
	})
}

func TestDocumentSource_OCRFailure(t *testing.T) {
	data := testutil.PDF("")
	ref := document.NewRef("doc", "mem://doc.pdf", "application/pdf")
	f := testutil.NewFetcher(map[string][]byte{ref.URL: data})

	p := NewPipeline(PipelineConfig{Fetcher: f, Rasterizer: &fakeRasterizer{png: testutil.PNG(t, 4, 4)}})
	src := p.For(nil, ref)
	engine := providers.NewMockOCREngine(true)
	engine.FailPages = map[int]bool{1: true}
	src.SetEngine(engine)

	_, err := src.Page(context.Background(), 1)
	if !errors.Is(err, failure.ErrEmptyExtraction) {
		t.Errorf("error = %v, want empty extraction", err)
	}
	if f.Calls() != 1 {
		t.Errorf("fetches = %d, want 1", f.Calls())
	}
}

func TestDocumentSource_Office(t *testing.T) {
	office := &fakeOffice{}
	p := NewPipeline(PipelineConfig{Office: office})
	ref := document.NewRef("deck", "https://x/deck.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation")

	r, err := p.For(nil, ref).Page(context.Background(), 3)
	if err != nil {
		t.Fatalf("Page() error = %v", err)
	}
	if r.Text != "slide text" {
		t.Errorf("Text = %q, want %q", r.Text, "slide text")
	}
	if len(office.reqs) != 1 || office.reqs[0].PageNumber != 3 || office.reqs[0].DocumentURL != ref.URL {
		t.Errorf("requests = %+v", office.reqs)
	}

	if _, err := NewPipeline(PipelineConfig{}).For(nil, ref).Page(context.Background(), 1); err == nil {
		t.Error("expected error without office parser")
	}
}

func TestDocumentSource_ImageAndText(t *testing.T) {
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	imgRef := document.NewRef("img", "mem://scan.jpg", "image/jpeg")
	txtRef := document.NewRef("txt", "mem://notes.txt", "text/plain")
	f := testutil.NewFetcher(map[string][]byte{
		imgRef.URL: jpg.Bytes(),
		txtRef.URL: []byte("line one  \r\nline two\n\n"),
	})
	p := NewPipeline(PipelineConfig{Fetcher: f})

	t.Run("image needs an engine", func(t *testing.T) {
		src := p.For(nil, imgRef)
		r, err := src.Page(context.Background(), 1)
		if err != nil {
			t.Fatalf("Page() error = %v", err)
		}
		if !r.Empty() {
			t.Errorf("expected empty result, got %+v", r)
		}

		src.SetEngine(providers.NewMockOCREngine(true))
		r, err = src.Page(context.Background(), 1)
		if err != nil {
			t.Fatalf("Page() error = %v", err)
		}
		if r.Source != providers.SourceAIOCR {
			t.Errorf("Source = %q", r.Source)
		}
		if _, err := src.Page(context.Background(), 2); err == nil {
			t.Error("expected out of range error")
		}
	})

	t.Run("plain text", func(t *testing.T) {
		text, err := p.For(nil, txtRef).PageText(context.Background(), 1)
		if err != nil {
			t.Fatalf("PageText() error = %v", err)
		}
		if text != "line one\nline two" {
			t.Errorf("PageText() = %q", text)
		}
	})

	t.Run("media unsupported", func(t *testing.T) {
		media := document.NewRef("clip", "mem://clip.mp3", "audio/mpeg")
		_, err := p.For(nil, media).Page(context.Background(), 1)
		if !errors.Is(err, failure.ErrUnsupportedFormat) {
			t.Errorf("error = %v, want unsupported format", err)
		}
	})
}

func TestToPNG(t *testing.T) {
	png := testutil.PNG(t, 2, 2)
	out, err := toPNG(png)
	if err != nil {
		t.Fatalf("toPNG() error = %v", err)
	}
	if !bytes.Equal(out, png) {
		t.Error("PNG input should pass through")
	}
	if _, err := toPNG([]byte("garbage")); err == nil {
		t.Error("expected decode error")
	}
}
