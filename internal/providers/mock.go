package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/folio/internal/failure"
)

const MockName = "mock"

// MockOCREngine is an OCREngine for testing.
type MockOCREngine struct {
	// Configurable behavior
	Latency    time.Duration
	IsRemote   bool
	Confidence float64
	FailErr    error        // Returned for every page when set
	FailPages  map[int]bool // Pages that return EmptyExtraction
	TextFunc   func(page int) string

	requestCount atomic.Int64
}

// NewMockOCREngine creates a mock engine that transcribes every page as
// "ocr text for page N".
func NewMockOCREngine(remote bool) *MockOCREngine {
	return &MockOCREngine{
		Latency:    time.Millisecond,
		IsRemote:   remote,
		Confidence: 0.9,
	}
}

func (m *MockOCREngine) Name() string { return MockName }
func (m *MockOCREngine) Remote() bool { return m.IsRemote }

func (m *MockOCREngine) Source() string {
	if m.IsRemote {
		return SourceAIOCR
	}
	return SourceBrowserOCR
}

// Requests returns the number of Recognize calls made.
func (m *MockOCREngine) Requests() int64 {
	return m.requestCount.Load()
}

// Recognize returns canned text after the configured latency.
func (m *MockOCREngine) Recognize(ctx context.Context, img PageImage, progress ProgressFunc) (*OCRResult, error) {
	start := time.Now()
	m.requestCount.Add(1)
	if progress != nil {
		progress(0)
	}

	select {
	case <-time.After(m.Latency):
	case <-ctx.Done():
		return nil, failure.Wrap(failure.KindCancelled, "ocr", ctx.Err())
	}

	if m.FailErr != nil {
		return nil, m.FailErr
	}
	if m.FailPages[img.Page] {
		return nil, failure.EmptyExtraction("ocr", img.Page)
	}

	text := fmt.Sprintf("ocr text for page %d", img.Page)
	if m.TextFunc != nil {
		text = m.TextFunc(img.Page)
	}
	if progress != nil {
		progress(100)
	}
	return &OCRResult{
		Text:          text,
		Confidence:    m.Confidence,
		Source:        m.Source(),
		ExecutionTime: time.Since(start),
	}, nil
}

// MockTranslator is a Translator for testing. By default it upper-cases the
// input and streams it in word-sized chunks.
type MockTranslator struct {
	// Configurable behavior
	Latency   time.Duration
	FailErr   error
	FailPages map[int]error
	Atomic    bool // Stream requests answer with a single Replace event

	// Gate, when set, blocks each request until it receives a value or the
	// context ends. Tests use it to hold requests in flight.
	Gate chan struct{}

	mu       sync.Mutex
	requests []TranslateRequest
}

// NewMockTranslator creates a mock translator with sensible defaults.
func NewMockTranslator() *MockTranslator {
	return &MockTranslator{Latency: time.Millisecond}
}

func (m *MockTranslator) Name() string { return MockName }

// Requests returns a copy of every request received.
func (m *MockTranslator) Requests() []TranslateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TranslateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Output returns the mock translation of text for lang.
func (m *MockTranslator) Output(text, lang string) string {
	return "[" + lang + "] " + strings.ToUpper(text)
}

func (m *MockTranslator) begin(ctx context.Context, req TranslateRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return failure.Wrap(failure.KindCancelled, "translate", ctx.Err())
		}
	}
	select {
	case <-time.After(m.Latency):
	case <-ctx.Done():
		return failure.Wrap(failure.KindCancelled, "translate", ctx.Err())
	}

	if m.FailErr != nil {
		return m.FailErr
	}
	if err, ok := m.FailPages[req.PageNumber]; ok {
		return err
	}
	return nil
}

// Translate returns the mock translation.
func (m *MockTranslator) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	start := time.Now()
	if err := m.begin(ctx, req); err != nil {
		return nil, err
	}
	return &TranslateResult{
		TranslatedText: m.Output(req.Text, req.TargetLanguage),
		Provider:       MockName,
		ExecutionTime:  time.Since(start),
	}, nil
}

// TranslateStream emits the mock translation word by word.
func (m *MockTranslator) TranslateStream(ctx context.Context, req TranslateRequest, emit func(StreamEvent) error) error {
	if err := m.begin(ctx, req); err != nil {
		return err
	}
	out := m.Output(req.Text, req.TargetLanguage)
	if m.Atomic {
		if err := emit(StreamEvent{Replace: &out}); err != nil {
			return err
		}
		return emit(StreamEvent{Done: true})
	}

	words := strings.SplitAfter(out, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return failure.Wrap(failure.KindCancelled, "translate", err)
		}
		if err := emit(StreamEvent{Delta: w}); err != nil {
			return err
		}
	}
	return emit(StreamEvent{Done: true})
}

var (
	_ OCREngine  = (*MockOCREngine)(nil)
	_ Translator = (*MockTranslator)(nil)
)
