package providers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"
)

// Registry holds the configured OCR engines and translators.
// It supports config-driven instantiation, hot-reload, and thread-safe access.
type Registry struct {
	mu          sync.RWMutex
	ocrEngines  map[string]OCREngine
	translators map[string]Translator
	ocrCfg      map[string]OCRProviderConfig
	trCfg       map[string]TranslatorConfig
	logger      *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ocrEngines:  make(map[string]OCREngine),
		translators: make(map[string]Translator),
		ocrCfg:      make(map[string]OCRProviderConfig),
		trCfg:       make(map[string]TranslatorConfig),
		logger:      slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterOCR registers an OCR engine by name.
func (r *Registry) RegisterOCR(name string, engine OCREngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocrEngines[name] = engine
	r.logger.Info("registered OCR engine", "name", name, "remote", engine.Remote())
}

// RegisterTranslator registers a translator by name.
func (r *Registry) RegisterTranslator(name string, t Translator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[name] = t
	r.logger.Info("registered translator", "name", name)
}

// GetOCR returns an OCR engine by name.
func (r *Registry) GetOCR(name string) (OCREngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.ocrEngines[name]
	if !ok {
		return nil, fmt.Errorf("OCR engine not found: %s", name)
	}
	return e, nil
}

// GetTranslator returns a translator by name.
func (r *Registry) GetTranslator(name string) (Translator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.translators[name]
	if !ok {
		return nil, fmt.Errorf("translator not found: %s", name)
	}
	return t, nil
}

// ListOCR returns registered OCR engine names, sorted.
func (r *Registry) ListOCR() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ocrEngines))
	for name := range r.ocrEngines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListTranslators returns registered translator names, sorted.
func (r *Registry) ListTranslators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.translators))
	for name := range r.translators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OCRChoices splits the registered engines into remote and local ones, the
// two options offered for scanned documents.
func (r *Registry) OCRChoices() (remote, local []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, e := range r.ocrEngines {
		if e.Remote() {
			remote = append(remote, name)
		} else {
			local = append(local, name)
		}
	}
	sort.Strings(remote)
	sort.Strings(local)
	return remote, local
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	OCR         map[string]OCRProviderConfig
	Translators map[string]TranslatorConfig
}

// OCRProviderConfig configures one OCR engine, with API keys resolved.
type OCRProviderConfig struct {
	Type      string // "backend", "vision", "tesseract"
	BaseURL   string
	Model     string
	APIKey    string
	RateLimit float64
	Timeout   time.Duration
	Languages []string
	Upscale   float64
	Enabled   bool
}

// TranslatorConfig configures one translator, with API keys resolved.
type TranslatorConfig struct {
	Type      string // "backend", "openai", "vertex"
	BaseURL   string
	Model     string
	APIKey    string
	RateLimit float64
	Timeout   time.Duration
	ProjectID string
	Region    string
	Enabled   bool
}

// NewRegistryFromConfig creates a registry populated from cfg.
func NewRegistryFromConfig(ctx context.Context, cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(ctx, cfg)
	return r
}

// Reload brings the registry in line with cfg. Providers that are no longer
// configured are dropped; providers whose settings changed are recreated.
func (r *Registry) Reload(ctx context.Context, cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, pc := range cfg.OCR {
		if !pc.Enabled {
			continue
		}
		if old, ok := r.ocrCfg[name]; ok && reflect.DeepEqual(old, pc) {
			continue
		}
		engine, err := createOCREngine(pc, r.logger)
		if err != nil {
			r.logger.Warn("skipping OCR engine", "name", name, "type", pc.Type, "error", err)
			continue
		}
		_, existed := r.ocrEngines[name]
		r.ocrEngines[name] = engine
		r.ocrCfg[name] = pc
		if existed {
			r.logger.Info("updated OCR engine", "name", name, "type", pc.Type)
		} else {
			r.logger.Info("registered OCR engine", "name", name, "type", pc.Type)
		}
	}

	for name, tc := range cfg.Translators {
		if !tc.Enabled {
			continue
		}
		if old, ok := r.trCfg[name]; ok && reflect.DeepEqual(old, tc) {
			continue
		}
		t, err := createTranslator(ctx, tc, r.logger)
		if err != nil {
			r.logger.Warn("skipping translator", "name", name, "type", tc.Type, "error", err)
			continue
		}
		prev, existed := r.translators[name]
		closeIfCloser(prev)
		r.translators[name] = t
		r.trCfg[name] = tc
		if existed {
			r.logger.Info("updated translator", "name", name, "type", tc.Type)
		} else {
			r.logger.Info("registered translator", "name", name, "type", tc.Type)
		}
	}

	for name := range r.ocrEngines {
		if pc, ok := cfg.OCR[name]; !ok || !pc.Enabled {
			delete(r.ocrEngines, name)
			delete(r.ocrCfg, name)
			r.logger.Info("unregistered OCR engine", "name", name)
		}
	}
	for name, t := range r.translators {
		if tc, ok := cfg.Translators[name]; !ok || !tc.Enabled {
			closeIfCloser(t)
			delete(r.translators, name)
			delete(r.trCfg, name)
			r.logger.Info("unregistered translator", "name", name)
		}
	}
}

// Close releases translators that hold connections.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.translators {
		closeIfCloser(t)
	}
	return nil
}

func closeIfCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

func createOCREngine(cfg OCRProviderConfig, logger *slog.Logger) (OCREngine, error) {
	switch cfg.Type {
	case BackendName:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("base_url is required")
		}
		return NewBackendOCR(NewBackendClient(BackendConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
			Logger:    logger,
		})), nil
	case VisionOCRName:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api_key is required")
		}
		return NewVisionOCR(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case LocalOCRName:
		return NewLocalOCR(LocalOCRConfig{
			Languages: cfg.Languages,
			Upscale:   cfg.Upscale,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OCR type %q", cfg.Type)
	}
}

func createTranslator(ctx context.Context, cfg TranslatorConfig, logger *slog.Logger) (Translator, error) {
	switch cfg.Type {
	case BackendName:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("base_url is required")
		}
		return NewBackendClient(BackendConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
			Logger:    logger,
		}), nil
	case OpenAIName:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("api_key is required")
		}
		return NewOpenAITranslator(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case VertexName:
		return NewVertexTranslator(ctx, VertexConfig{
			ProjectID: cfg.ProjectID,
			Region:    cfg.Region,
			Model:     cfg.Model,
		})
	default:
		return nil, fmt.Errorf("unknown translator type %q", cfg.Type)
	}
}
