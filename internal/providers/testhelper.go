package providers

import (
	"os"
)

// TestConfig holds provider configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey  string
	BackendURL    string
	BackendAPIKey string
	GCPProject    string
	GCPRegion     string
}

// LoadTestConfig loads provider credentials from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		BackendURL:    os.Getenv("FOLIO_BACKEND_URL"),
		BackendAPIKey: os.Getenv("FOLIO_BACKEND_API_KEY"),
		GCPProject:    os.Getenv("FOLIO_GCP_PROJECT"),
		GCPRegion:     os.Getenv("FOLIO_GCP_REGION"),
	}
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasBackend returns true if a translation backend is configured.
func (c TestConfig) HasBackend() bool {
	return c.BackendURL != ""
}

// HasVertex returns true if a GCP project is configured for Vertex AI.
func (c TestConfig) HasVertex() bool {
	return c.GCPProject != ""
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that have credentials configured. The local
// engine is always included.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		OCR: map[string]OCRProviderConfig{
			LocalOCRName: {Type: LocalOCRName, Languages: []string{"eng"}, Enabled: true},
		},
		Translators: make(map[string]TranslatorConfig),
	}

	if c.HasBackend() {
		cfg.OCR[BackendName] = OCRProviderConfig{
			Type:    BackendName,
			BaseURL: c.BackendURL,
			APIKey:  c.BackendAPIKey,
			Enabled: true,
		}
		cfg.Translators[BackendName] = TranslatorConfig{
			Type:    BackendName,
			BaseURL: c.BackendURL,
			APIKey:  c.BackendAPIKey,
			Enabled: true,
		}
	}

	if c.HasOpenAI() {
		cfg.OCR[VisionOCRName] = OCRProviderConfig{
			Type:    VisionOCRName,
			APIKey:  c.OpenAIAPIKey,
			Enabled: true,
		}
		cfg.Translators[OpenAIName] = TranslatorConfig{
			Type:    OpenAIName,
			APIKey:  c.OpenAIAPIKey,
			Enabled: true,
		}
	}

	if c.HasVertex() {
		cfg.Translators[VertexName] = TranslatorConfig{
			Type:      VertexName,
			ProjectID: c.GCPProject,
			Region:    c.GCPRegion,
			Enabled:   true,
		}
	}

	return cfg
}
