package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"time"
)

type backendTranslateRequest struct {
	TranslateRequest
	Stream bool `json:"stream"`
}

// Translate requests an atomic translation.
func (c *BackendClient) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	start := time.Now()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp TranslateResult
	if err := c.postJSON(ctx, "translate", "/translate", "translate.json", backendTranslateRequest{TranslateRequest: req}, &resp); err != nil {
		return nil, err
	}
	resp.Provider = BackendName
	resp.ExecutionTime = time.Since(start)
	return &resp, nil
}

// TranslateStream requests a streamed translation. A backend that answers
// with plain JSON instead of a stream is treated as one replace event.
func (c *BackendClient) TranslateStream(ctx context.Context, req TranslateRequest, emit func(StreamEvent) error) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.post(ctx, "translate", "/translate", backendTranslateRequest{TranslateRequest: req, Stream: true}, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isEventStream(resp.Header.Get("Content-Type")) {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return transportError(ctx, "translate", err)
		}
		if err := validateResponse("translate.json", body); err != nil {
			return fmt.Errorf("translate: %w", err)
		}
		var atomic TranslateResult
		if err := json.Unmarshal(body, &atomic); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		text := atomic.TranslatedText
		if err := emit(StreamEvent{Replace: &text}); err != nil {
			return err
		}
		return emit(StreamEvent{Done: true})
	}

	err = ReadStream(resp.Body, emit)
	if err != nil && ctx.Err() != nil {
		return transportError(ctx, "translate", ctx.Err())
	}
	return err
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/event-stream" || mt == "application/x-ndjson"
}

var _ Translator = (*BackendClient)(nil)
