package config

import (
	"fmt"
	"time"
)

// Config holds folio configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Viewer       ViewerCfg                 `mapstructure:"viewer" yaml:"viewer"`
	Translation  TranslationCfg            `mapstructure:"translation" yaml:"translation"`
	Extraction   ExtractionCfg             `mapstructure:"extraction" yaml:"extraction"`
	Backends     BackendsCfg               `mapstructure:"backends" yaml:"backends"`
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	Translators  map[string]TranslatorCfg  `mapstructure:"translators" yaml:"translators"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
}

// ViewerCfg tunes the render supervisor.
type ViewerCfg struct {
	FailureThreshold  int      `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	DesktopTimeout    Duration `mapstructure:"desktop_timeout" yaml:"desktop_timeout"`
	MobileTimeout     Duration `mapstructure:"mobile_timeout" yaml:"mobile_timeout"`
	MobileMaxPDFBytes int64    `mapstructure:"mobile_max_pdf_bytes" yaml:"mobile_max_pdf_bytes"`
	FallbackNotice    string   `mapstructure:"fallback_notice" yaml:"fallback_notice"`
}

// TranslationCfg holds translation defaults.
type TranslationCfg struct {
	Translator      string   `mapstructure:"translator" yaml:"translator"` // Key into Translators
	DefaultLanguage string   `mapstructure:"default_language" yaml:"default_language"`
	Stream          bool     `mapstructure:"stream" yaml:"stream"`
	Timeout         Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ExtractionCfg holds text extraction and OCR defaults.
type ExtractionCfg struct {
	ScannedThreshold float64  `mapstructure:"scanned_threshold" yaml:"scanned_threshold"` // Average chars per page
	LineThreshold    float64  `mapstructure:"line_threshold" yaml:"line_threshold"`       // Points between baselines
	OCRZoom          float64  `mapstructure:"ocr_zoom" yaml:"ocr_zoom"`
	OCREngine        string   `mapstructure:"ocr_engine" yaml:"ocr_engine"` // Key into OCRProviders
	Concurrency      int      `mapstructure:"concurrency" yaml:"concurrency"`
	OCRLanguages     []string `mapstructure:"ocr_languages" yaml:"ocr_languages"`
	MaxDocumentBytes int64    `mapstructure:"max_document_bytes" yaml:"max_document_bytes"`
}

// BackendsCfg points at the document service used for office parsing.
type BackendsCfg struct {
	ExtractionURL string   `mapstructure:"extraction_url" yaml:"extraction_url"`
	APIKey        string   `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	Timeout       Duration `mapstructure:"timeout" yaml:"timeout"`
}

// OCRProviderCfg configures an OCR engine.
type OCRProviderCfg struct {
	Type      string   `mapstructure:"type" yaml:"type"`         // "backend", "vision", "tesseract"
	BaseURL   string   `mapstructure:"base_url" yaml:"base_url"` // Backend or OpenAI-compatible endpoint
	Model     string   `mapstructure:"model" yaml:"model"`
	APIKey    string   `mapstructure:"api_key" yaml:"api_key"`       // Supports ${ENV_VAR} syntax
	RateLimit float64  `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Languages []string `mapstructure:"languages" yaml:"languages"`   // Tesseract only
	Upscale   float64  `mapstructure:"upscale" yaml:"upscale"`       // Tesseract only
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
}

// TranslatorCfg configures a translation provider.
type TranslatorCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"` // "backend", "openai", "vertex"
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url"`
	Model     string  `mapstructure:"model" yaml:"model"`
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // Supports ${ENV_VAR} syntax
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	ProjectID string  `mapstructure:"project_id" yaml:"project_id"` // Vertex only
	Region    string  `mapstructure:"region" yaml:"region"`         // Vertex only
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// StorageCfg configures the Cloud Storage document store.
type StorageCfg struct {
	Bucket         string   `mapstructure:"bucket" yaml:"bucket"`
	SignedURLTTL   Duration `mapstructure:"signed_url_ttl" yaml:"signed_url_ttl"`
	GoogleAccessID string   `mapstructure:"google_access_id" yaml:"google_access_id"`
	PrivateKeyFile string   `mapstructure:"private_key_file" yaml:"private_key_file"`
}

// Duration is a time.Duration that reads and writes as "10s".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML writes d in its string form.
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Viewer: ViewerCfg{
			FailureThreshold:  3,
			DesktopTimeout:    Duration(10 * time.Second),
			MobileTimeout:     Duration(18 * time.Second),
			MobileMaxPDFBytes: 40 << 20,
			FallbackNotice:    "Switched to compatibility viewer",
		},
		Translation: TranslationCfg{
			Translator:      "backend",
			DefaultLanguage: "en",
			Stream:          true,
			Timeout:         Duration(90 * time.Second),
		},
		Extraction: ExtractionCfg{
			ScannedThreshold: 50,
			LineThreshold:    5,
			OCRZoom:          2.0,
			OCREngine:        "tesseract",
			Concurrency:      4,
			OCRLanguages:     []string{"eng"},
			MaxDocumentBytes: 200 << 20,
		},
		Backends: BackendsCfg{
			ExtractionURL: "${FOLIO_BACKEND_URL}",
			APIKey:        "${FOLIO_BACKEND_API_KEY}",
			Timeout:       Duration(60 * time.Second),
		},
		OCRProviders: map[string]OCRProviderCfg{
			"backend": {
				Type:      "backend",
				BaseURL:   "${FOLIO_BACKEND_URL}",
				APIKey:    "${FOLIO_BACKEND_API_KEY}",
				RateLimit: 2.0,
				Enabled:   false,
			},
			"vision": {
				Type:      "vision",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 1.0,
				Enabled:   false,
			},
			"tesseract": {
				Type:      "tesseract",
				Languages: []string{"eng"},
				Upscale:   2.0,
				Enabled:   true,
			},
		},
		Translators: map[string]TranslatorCfg{
			"backend": {
				Type:      "backend",
				BaseURL:   "${FOLIO_BACKEND_URL}",
				APIKey:    "${FOLIO_BACKEND_API_KEY}",
				RateLimit: 2.0,
				Enabled:   true,
			},
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: false,
			},
			"vertex": {
				Type:      "vertex",
				Model:     "gemini-1.5-flash",
				ProjectID: "${FOLIO_GCP_PROJECT}",
				Region:    "us-central1",
				Enabled:   false,
			},
		},
		Storage: StorageCfg{
			SignedURLTTL: Duration(15 * time.Minute),
		},
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Viewer.FailureThreshold < 1 {
		return fmt.Errorf("viewer.failure_threshold must be at least 1, got %d", c.Viewer.FailureThreshold)
	}
	if c.Viewer.DesktopTimeout < 0 || c.Viewer.MobileTimeout < 0 {
		return fmt.Errorf("viewer timeouts must not be negative")
	}
	if c.Translation.Timeout < 0 {
		return fmt.Errorf("translation.timeout must not be negative")
	}
	if c.Extraction.ScannedThreshold < 0 {
		return fmt.Errorf("extraction.scanned_threshold must not be negative")
	}
	for name, p := range c.OCRProviders {
		if p.Type == "" {
			return fmt.Errorf("ocr_providers.%s: type is required", name)
		}
	}
	for name, t := range c.Translators {
		if t.Type == "" {
			return fmt.Errorf("translators.%s: type is required", name)
		}
	}
	return nil
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// GetTranslator returns a translator config by name.
func (c *Config) GetTranslator(name string) (TranslatorCfg, bool) {
	cfg, ok := c.Translators[name]
	return cfg, ok
}

// EnabledOCRProviders returns all enabled OCR providers.
func (c *Config) EnabledOCRProviders() map[string]OCRProviderCfg {
	result := make(map[string]OCRProviderCfg)
	for name, cfg := range c.OCRProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledTranslators returns all enabled translators.
func (c *Config) EnabledTranslators() map[string]TranslatorCfg {
	result := make(map[string]TranslatorCfg)
	for name, cfg := range c.Translators {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
