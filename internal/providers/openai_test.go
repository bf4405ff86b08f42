package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/folio/internal/failure"
)

const testCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %q}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func newOpenAITestServer(t *testing.T, h http.HandlerFunc) OpenAIConfig {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL}
}

func TestOpenAITranslator(t *testing.T) {
	t.Run("translate", func(t *testing.T) {
		cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			msgs, _ := body["messages"].([]any)
			if len(msgs) != 2 {
				t.Errorf("got %d messages, want 2", len(msgs))
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, testCompletion, "Hola mundo")
		})

		result, err := NewOpenAITranslator(cfg).Translate(context.Background(), TranslateRequest{Text: "Hello world", TargetLanguage: "es"})
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		if result.TranslatedText != "Hola mundo" {
			t.Errorf("TranslatedText = %q, want %q", result.TranslatedText, "Hola mundo")
		}
		if result.Provider != OpenAIName {
			t.Errorf("Provider = %q, want %q", result.Provider, OpenAIName)
		}
	})

	t.Run("requires text", func(t *testing.T) {
		tr := NewOpenAITranslator(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1"})
		if _, err := tr.Translate(context.Background(), TranslateRequest{TargetLanguage: "es"}); err == nil {
			t.Error("expected error for empty text")
		}
	})

	t.Run("stream", func(t *testing.T) {
		cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, part := range []string{"Hola", " mundo"} {
				fmt.Fprintf(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", part)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
		})

		var text strings.Builder
		done := false
		err := NewOpenAITranslator(cfg).TranslateStream(context.Background(), TranslateRequest{Text: "Hello world", TargetLanguage: "es"}, func(ev StreamEvent) error {
			if ev.Done {
				done = true
			}
			text.WriteString(ev.Delta)
			return nil
		})
		if err != nil {
			t.Fatalf("TranslateStream() error = %v", err)
		}
		if !done {
			t.Error("expected terminal event")
		}
		if text.String() != "Hola mundo" {
			t.Errorf("text = %q, want %q", text.String(), "Hola mundo")
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests"}}`))
		})

		_, err := NewOpenAITranslator(cfg).Translate(context.Background(), TranslateRequest{Text: "x", TargetLanguage: "es"})
		if !failure.Is(err, failure.KindRateLimit) {
			t.Errorf("error = %v, want rate limit", err)
		}
	})
}

func TestVisionOCR(t *testing.T) {
	t.Run("recognize", func(t *testing.T) {
		cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Messages []struct {
					Content []map[string]any `json:"content"`
				} `json:"messages"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
				t.Errorf("unexpected message shape: %+v", body)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, testCompletion, "Invoice 42")
		})

		result, err := NewVisionOCR(cfg).Recognize(context.Background(), PageImage{Page: 1, PNG: []byte("png")}, nil)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if result.Text != "Invoice 42" {
			t.Errorf("Text = %q", result.Text)
		}
		if result.Confidence != visionOCRConfidence {
			t.Errorf("Confidence = %v, want %v", result.Confidence, visionOCRConfidence)
		}
	})

	t.Run("blank page", func(t *testing.T) {
		cfg := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, testCompletion, "   ")
		})

		_, err := NewVisionOCR(cfg).Recognize(context.Background(), PageImage{Page: 9, PNG: []byte("png")}, nil)
		if !failure.Is(err, failure.KindEmptyExtraction) {
			t.Errorf("error = %v, want empty extraction", err)
		}
	})
}

func TestOpenAIIntegration(t *testing.T) {
	cfg := LoadTestConfig()
	if !cfg.HasOpenAI() {
		t.Skip("OPENAI_API_KEY not set")
	}

	result, err := NewOpenAITranslator(OpenAIConfig{APIKey: cfg.OpenAIAPIKey}).Translate(context.Background(), TranslateRequest{
		Text:           "Good morning",
		TargetLanguage: "es",
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if strings.TrimSpace(result.TranslatedText) == "" {
		t.Error("expected a translation")
	}
}
