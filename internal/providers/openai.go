package providers

import (
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName               = "openai"
	openAIDefaultVisionModel = "gpt-4o-mini"
	openAIDefaultChatModel   = "gpt-4o-mini"
)

// OpenAIConfig configures clients built on the official OpenAI SDK. BaseURL
// lets any OpenAI-compatible endpoint be used.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client // Optional (tests)
}

func newOpenAIClient(cfg OpenAIConfig) openai.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// Retries are owned by failure.Policy; the SDK must not retry 429s.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}
