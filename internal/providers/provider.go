package providers

import (
	"context"
	"time"
)

// Extraction source tags.
const (
	SourceTextLayer  = "text-layer"
	SourceAIOCR      = "ai-ocr"
	SourceBrowserOCR = "browser-ocr"
	SourceManualEdit = "manual-edit"
)

// ProgressFunc receives recognition progress from 0 to 100.
type ProgressFunc func(percent int)

// PageImage is a rendered page handed to an OCR engine.
type PageImage struct {
	Page int
	PNG  []byte

	// Scale is the factor the image was rendered at relative to 72 DPI.
	Scale float64
}

// OCREngine turns a page image into text. Implementations fail with an
// empty-extraction error when the recognised text is blank.
type OCREngine interface {
	// Name returns the engine identifier (e.g., "backend", "vision", "tesseract").
	Name() string

	// Source returns the extraction source tag results are labelled with.
	Source() string

	// Recognize extracts text from a page image. progress may be nil.
	Recognize(ctx context.Context, img PageImage, progress ProgressFunc) (*OCRResult, error)

	// Remote reports whether the engine sends pages over the network.
	Remote() bool
}

// OCRResult is the response from an OCR engine.
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`

	Metadata      map[string]any `json:"metadata,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// TranslateRequest asks a backend to translate one page.
type TranslateRequest struct {
	Text           string `json:"text,omitempty"`
	DocumentURL    string `json:"documentUrl,omitempty"`
	PageNumber     int    `json:"pageNumber,omitempty"`
	TargetLanguage string `json:"targetLanguage"`
}

// TranslateResult is an atomic translation response.
type TranslateResult struct {
	TranslatedText string        `json:"translatedText"`
	Cached         bool          `json:"cached"`
	Provider       string        `json:"provider"`
	ExecutionTime  time.Duration `json:"execution_time"`
}

// StreamEvent is one decoded record of a streaming translation. Exactly one
// of Delta, Replace or Done is meaningful.
type StreamEvent struct {
	Delta   string
	Replace *string
	Done    bool
}

// Translator sends pages to a translation backend.
type Translator interface {
	Name() string

	// Translate returns the whole translation in one response.
	Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error)

	// TranslateStream delivers the translation incrementally. It returns
	// after the terminal event or an error. emit returning an error stops
	// the stream.
	TranslateStream(ctx context.Context, req TranslateRequest, emit func(StreamEvent) error) error
}
