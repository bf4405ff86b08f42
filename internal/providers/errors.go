package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/jackzampolin/folio/internal/failure"
)

// backendErrorResponse is the error body every backend contract uses.
type backendErrorResponse struct {
	Error string `json:"error"`
}

// statusError maps a non-2xx response to a tagged error. Quota messages are
// kept verbatim.
func statusError(op string, resp *http.Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var errResp backendErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		msg = errResp.Error
	}
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return failure.FromStatus(op, resp.StatusCode, msg, retryAfter)
	}
	return failure.FromStatus(op, resp.StatusCode, fmt.Sprintf("%s error (status %d): %s", op, resp.StatusCode, msg), retryAfter)
}

// transportError tags a failed round trip.
func transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return failure.Timeout(op, ctxErr)
		}
		return failure.Wrap(failure.KindCancelled, op, ctxErr)
	}
	if failure.KindOf(err) == failure.KindTimeout {
		return failure.Timeout(op, err)
	}
	return failure.Network(op, err)
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// mapOpenAIError converts SDK errors to tagged errors.
func mapOpenAIError(ctx context.Context, op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		msg := apiErr.Message
		if msg == "" {
			msg = fmt.Sprintf("%s error (status %d)", op, apiErr.StatusCode)
		}
		return failure.FromStatus(op, apiErr.StatusCode, msg, retryAfter)
	}
	return transportError(ctx, op, err)
}
