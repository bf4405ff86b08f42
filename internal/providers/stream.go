package providers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jackzampolin/folio/internal/failure"
)

// StreamDoneSentinel terminates a translation stream.
const StreamDoneSentinel = "[DONE]"

type streamPayload struct {
	Delta          *string `json:"delta,omitempty"`
	TranslatedText *string `json:"translatedText,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// ReadStream decodes newline-delimited "data:" records from r and passes
// each to emit. Blank lines, ":" comments and other fields are skipped. A
// body that ends before the sentinel is reported as a network failure.
func ReadStream(r io.Reader, emit func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == StreamDoneSentinel {
			return emit(StreamEvent{Done: true})
		}

		var p streamPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("malformed stream record %q: %w", payload, err)
		}
		if p.Error != "" {
			return failure.New(failure.KindInternal, "translate", p.Error)
		}

		var ev StreamEvent
		switch {
		case p.TranslatedText != nil:
			ev.Replace = p.TranslatedText
		case p.Delta != nil:
			ev.Delta = *p.Delta
		default:
			continue
		}
		if err := emit(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return failure.Network("translate", err)
	}
	return failure.New(failure.KindNetwork, "translate", "stream ended before completion")
}
