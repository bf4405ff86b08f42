package translate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackzampolin/folio/internal/failure"
	"github.com/jackzampolin/folio/internal/providers"
)

func TestAssembler(t *testing.T) {
	var a Assembler
	replace := "final"

	steps := []struct {
		ev      providers.StreamEvent
		changed bool
		want    string
	}{
		{providers.StreamEvent{Delta: "Hola "}, true, "Hola "},
		{providers.StreamEvent{Delta: "mundo"}, true, "Hola mundo"},
		{providers.StreamEvent{}, false, "Hola mundo"},
		{providers.StreamEvent{Replace: &replace}, true, "final"},
		{providers.StreamEvent{Done: true}, false, "final"},
	}
	for i, s := range steps {
		if got := a.Apply(s.ev); got != s.changed {
			t.Errorf("step %d: Apply() = %v, want %v", i, got, s.changed)
		}
		if a.Text() != s.want {
			t.Errorf("step %d: Text() = %q, want %q", i, a.Text(), s.want)
		}
	}
	if !a.Done() {
		t.Error("Done() = false after terminal event")
	}
}

func TestAssemble(t *testing.T) {
	body := ": keep-alive\n\n" +
		"data: {\"delta\": \"Bonjour\"}\n\n" +
		"data: {\"delta\": \" le\"}\n\n" +
		"data: {\"delta\": \" monde\"}\n\n" +
		"data: [DONE]\n\n"
	got, err := Assemble(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if got != "Bonjour le monde" {
		t.Errorf("Assemble() = %q", got)
	}

	_, err = Assemble(strings.NewReader("data: {\"delta\": \"cut\"}\n"))
	if !errors.Is(err, failure.ErrNetwork) {
		t.Errorf("truncated stream error = %v, want network", err)
	}
}

// Streaming and atomic delivery of the same translation must agree.
func TestStreamMatchesAtomic(t *testing.T) {
	tr := providers.NewMockTranslator()
	tr.Latency = 0
	req := providers.TranslateRequest{Text: "the quick brown fox jumps", PageNumber: 1, TargetLanguage: "es"}
	ctx := context.Background()

	atomic, err := tr.Translate(ctx, req)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}

	var a Assembler
	if err := tr.TranslateStream(ctx, req, func(ev providers.StreamEvent) error {
		a.Apply(ev)
		return nil
	}); err != nil {
		t.Fatalf("TranslateStream() error = %v", err)
	}
	if a.Text() != atomic.TranslatedText {
		t.Errorf("streamed %q, atomic %q", a.Text(), atomic.TranslatedText)
	}
}
