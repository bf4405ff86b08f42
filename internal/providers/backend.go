package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/folio/internal/failure"
)

const (
	BackendName = "backend"

	// DefaultTranslateTimeout is the per-request translation budget. It is
	// longer than the render timeout since large pages legitimately take a while.
	DefaultTranslateTimeout = 90 * time.Second
)

// BackendConfig holds configuration for the extraction/OCR/translation backend.
type BackendConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64      // Requests per second (default: 5.0)
	Client    *http.Client // Optional (tests)
	Logger    *slog.Logger
}

// BackendClient talks to the document backend's JSON endpoints.
type BackendClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	limiter *RateLimiter
	client  *http.Client
	logger  *slog.Logger
}

// NewBackendClient creates a new backend client.
func NewBackendClient(cfg BackendConfig) *BackendClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTranslateTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5.0
	}
	client := cfg.Client
	if client == nil {
		// Per-request deadlines come from the context so streams are not
		// cut off by a client-wide timeout.
		client = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BackendClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		limiter: NewRateLimiter(cfg.RateLimit),
		client:  client,
		logger:  logger,
	}
}

// Name returns the provider identifier.
func (c *BackendClient) Name() string {
	return BackendName
}

// Limiter exposes the client's rate limiter.
func (c *BackendClient) Limiter() *RateLimiter {
	return c.limiter
}

// post sends a JSON body and returns the raw response. The caller closes the
// body. Non-2xx responses are converted to tagged errors here.
func (c *BackendClient) post(ctx context.Context, op, path string, body any, accept string) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%s: backend base URL not configured", op)
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(ctx, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		err := statusError(op, resp, respBody)
		if failure.Is(err, failure.KindRateLimit) {
			c.limiter.Record429(parseRetryAfter(resp.Header.Get("Retry-After")))
		}
		c.logger.Warn("backend request failed", "op", op, "status", resp.StatusCode, "error", err)
		return nil, err
	}
	return resp, nil
}

// postJSON sends body, validates the response against schema and decodes it
// into out.
func (c *BackendClient) postJSON(ctx context.Context, op, path, schema string, body, out any) error {
	resp, err := c.post(ctx, op, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, op, err)
	}
	if err := validateResponse(schema, respBody); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// withTimeout applies the client timeout unless ctx already has a deadline.
func (c *BackendClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
