package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/jackzampolin/folio/internal/failure"
)

const (
	LocalOCRName = "tesseract"

	// DefaultUpscale is applied to page images before local recognition.
	DefaultUpscale = 2.0

	// localConfidenceScale keeps local scores below remote ones.
	localConfidenceScale = 0.85
	localMinConfidence   = 0.05
)

// ErrLocalOCRUnavailable is returned when the binary was built without
// the tesseract build tag.
var ErrLocalOCRUnavailable = errors.New("local OCR not enabled; rebuild with -tags tesseract")

// LocalOCRConfig configures on-device recognition.
type LocalOCRConfig struct {
	Languages []string // Tesseract language codes, e.g. "eng", "spa"
	Upscale   float64
}

// recognizer runs the recognition engine on PNG bytes and returns the text
// and per-word confidences in [0, 1].
type recognizer func(ctx context.Context, png []byte, languages []string) (string, []float64, error)

// LocalOCR is the on-device OCR strategy: free and offline, but CPU heavy
// and less accurate. It reports progress as it runs.
type LocalOCR struct {
	languages []string
	upscale   float64
	run       recognizer
}

// NewLocalOCR creates a local OCR engine.
func NewLocalOCR(cfg LocalOCRConfig) *LocalOCR {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	if cfg.Upscale <= 0 {
		cfg.Upscale = DefaultUpscale
	}
	return &LocalOCR{
		languages: cfg.Languages,
		upscale:   cfg.Upscale,
		run:       runTesseract,
	}
}

func (l *LocalOCR) Name() string   { return LocalOCRName }
func (l *LocalOCR) Source() string { return SourceBrowserOCR }
func (l *LocalOCR) Remote() bool   { return false }

// Recognize upscales the page and runs tesseract on it. The upscale is
// relative to 72 DPI, so an image already rendered at img.Scale is only
// enlarged by the remainder.
func (l *LocalOCR) Recognize(ctx context.Context, img PageImage, progress ProgressFunc) (*OCRResult, error) {
	start := time.Now()
	report := func(p int) {
		if progress != nil {
			progress(p)
		}
	}
	report(0)

	factor := l.upscaleFor(img)
	scaled := img.PNG
	if factor > 1 {
		var err error
		if scaled, err = Upscale(img.PNG, factor); err != nil {
			return nil, err
		}
	}
	report(20)
	if err := ctx.Err(); err != nil {
		return nil, failure.Wrap(failure.KindCancelled, "ocr", err)
	}

	text, confs, err := l.run(ctx, scaled, l.languages)
	if err != nil {
		if errors.Is(err, ErrLocalOCRUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("local ocr page %d: %w", img.Page, err)
	}
	report(90)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, failure.EmptyExtraction("ocr", img.Page)
	}
	report(100)

	return &OCRResult{
		Text:          text,
		Confidence:    localConfidence(confs),
		Source:        SourceBrowserOCR,
		ExecutionTime: time.Since(start),
		Metadata: map[string]any{
			"words":     len(confs),
			"upscale":   math.Max(factor, 1),
			"languages": l.languages,
		},
	}, nil
}

// upscaleFor returns the factor still needed to bring img to the target
// resolution.
func (l *LocalOCR) upscaleFor(img PageImage) float64 {
	if img.Scale > 0 {
		return l.upscale / img.Scale
	}
	return l.upscale
}

func localConfidence(confs []float64) float64 {
	if len(confs) == 0 {
		return localMinConfidence
	}
	var sum float64
	for _, c := range confs {
		sum += c
	}
	c := sum / float64(len(confs)) * localConfidenceScale
	if c < localMinConfidence {
		c = localMinConfidence
	}
	return c
}

// Upscale enlarges a PNG by factor with Catmull-Rom resampling.
func Upscale(data []byte, factor float64) ([]byte, error) {
	if factor == 1 {
		return data, nil
	}
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode page image: %w", err)
	}
	b := src.Bounds()
	w := int(float64(b.Dx())*factor + 0.5)
	h := int(float64(b.Dy())*factor + 0.5)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("upscale factor %v too small for %dx%d image", factor, b.Dx(), b.Dy())
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	return buf.Bytes(), nil
}

var _ OCREngine = (*LocalOCR)(nil)
