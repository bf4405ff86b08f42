package extract

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/failure"
)

// pagesSource serves fixed page texts.
type pagesSource struct {
	pages []string
	err   error
	calls atomic.Int32
}

func (s *pagesSource) PageText(ctx context.Context, page int) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.pages[page-1], nil
}

// evenly spreads total characters over n pages.
func evenly(total, n int) *pagesSource {
	pages := make([]string, n)
	for i := range pages {
		pages[i] = strings.Repeat("x", total/n)
	}
	return &pagesSource{pages: pages}
}

type staticEngines struct{ remote, local []string }

func (e staticEngines) OCRChoices() ([]string, []string) { return e.remote, e.local }

func TestIsScanned(t *testing.T) {
	tests := []struct {
		total, pages int
		want         bool
	}{
		{200, 10, true},
		{1000, 10, false},
		{499, 10, true},
		{500, 10, false},
		{0, 1, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		if got := IsScanned(tt.total, tt.pages, DefaultScannedThreshold); got != tt.want {
			t.Errorf("IsScanned(%d, %d) = %v, want %v", tt.total, tt.pages, got, tt.want)
		}
	}
}

func TestClassifier_Classify(t *testing.T) {
	pdf := document.NewRef("doc", "https://x/doc.pdf", "application/pdf")
	engines := staticEngines{remote: []string{"backend"}, local: []string{"tesseract"}}

	t.Run("sparse document is scanned", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{Engines: engines})
		got, err := c.Classify(context.Background(), pdf, 10, evenly(200, 10))
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if !got.Scanned {
			t.Error("Scanned = false, want true")
		}
		if got.AvgCharsPerPage != 20 {
			t.Errorf("AvgCharsPerPage = %v, want 20", got.AvgCharsPerPage)
		}
		if len(got.Choices) != 2 {
			t.Fatalf("got %d choices, want 2", len(got.Choices))
		}
		remote, local := got.Choices[0], got.Choices[1]
		if !remote.Remote || !remote.Cost || !remote.RequiresNetwork {
			t.Errorf("remote choice = %+v", remote)
		}
		if !local.Offline || !local.ReportsProgress || local.Cost {
			t.Errorf("local choice = %+v", local)
		}
	})

	t.Run("dense document is not scanned", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{Engines: engines})
		got, err := c.Classify(context.Background(), pdf, 10, evenly(1000, 10))
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if got.Scanned {
			t.Error("Scanned = true, want false")
		}
		if got.TotalChars != 1000 {
			t.Errorf("TotalChars = %d, want 1000", got.TotalChars)
		}
		if len(got.Choices) != 0 {
			t.Errorf("expected no OCR choices, got %v", got.Choices)
		}
	})

	t.Run("whitespace does not count", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{})
		src := &pagesSource{pages: []string{"   \n\n   " + strings.Repeat(" ", 100)}}
		got, err := c.Classify(context.Background(), pdf, 1, src)
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if !got.Scanned || got.TotalChars != 0 {
			t.Errorf("got %+v, want scanned with 0 chars", got)
		}
	})

	t.Run("custom threshold", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{Threshold: 10})
		got, err := c.Classify(context.Background(), pdf, 10, evenly(200, 10))
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if got.Scanned {
			t.Error("20 chars/page should pass a threshold of 10")
		}
	})

	t.Run("office is exempt", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{})
		office := document.NewRef("deck", "https://x/deck.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation")
		src := evenly(0, 5)
		got, err := c.Classify(context.Background(), office, 5, src)
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if !got.Exempt || got.Scanned {
			t.Errorf("got %+v, want exempt and not scanned", got)
		}
		if src.calls.Load() != 0 {
			t.Error("office documents must not be inspected")
		}
	})

	t.Run("image is scanned", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{Engines: engines})
		img := document.NewRef("scan", "https://x/scan.png", "image/png")
		got, err := c.Classify(context.Background(), img, 1, nil)
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		if !got.Scanned || len(got.Choices) != 2 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("media is unsupported", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{})
		media := document.NewRef("clip", "https://x/clip.mp4", "video/mp4")
		_, err := c.Classify(context.Background(), media, 1, nil)
		if !errors.Is(err, failure.ErrUnsupportedFormat) {
			t.Errorf("error = %v, want unsupported format", err)
		}
	})

	t.Run("unknown page count", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{})
		if _, err := c.Classify(context.Background(), pdf, 0, evenly(0, 1)); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("extraction error propagates", func(t *testing.T) {
		c := NewClassifier(ClassifierConfig{})
		src := &pagesSource{pages: make([]string, 3), err: errors.New("boom")}
		if _, err := c.Classify(context.Background(), pdf, 3, src); err == nil {
			t.Error("expected error")
		}
	})
}
