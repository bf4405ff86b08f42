package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/folio/internal/providers"
)

// EnvPrefix prefixes environment overrides, e.g. FOLIO_VIEWER_FAILURE_THRESHOLD.
const EnvPrefix = "FOLIO"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// searchDirs are consulted in order when cfgFile is empty.
func NewManager(cfgFile string, searchDirs ...string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, searchDirs); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string, searchDirs []string) error {
	for _, e := range DefaultEntries() {
		cm.v.SetDefault(e.Key, e.Value)
	}

	// Environment variables with FOLIO_ prefix
	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		for _, dir := range searchDirs {
			cm.v.AddConfigPath(dir)
		}
		cm.v.AddConfigPath("$HOME/.folio")
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) && !(cfgFile != "" && errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := cm.v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

var durationType = reflect.TypeOf(Duration(0))

// durationHook decodes "90s" style strings into Duration fields.
func durationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, err
		}
		return Duration(d), nil
	case time.Duration:
		return Duration(v), nil
	}
	return data, nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Edits that fail to
// parse or validate are ignored and the previous config stays in effect.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in URLs, keys and project IDs.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		OCR:         make(map[string]providers.OCRProviderConfig),
		Translators: make(map[string]providers.TranslatorConfig),
	}

	for name, ocr := range c.OCRProviders {
		languages := ocr.Languages
		if len(languages) == 0 {
			languages = c.Extraction.OCRLanguages
		}
		cfg.OCR[name] = providers.OCRProviderConfig{
			Type:      ocr.Type,
			BaseURL:   ResolveEnvVars(ocr.BaseURL),
			Model:     ocr.Model,
			APIKey:    ResolveEnvVars(ocr.APIKey),
			RateLimit: ocr.RateLimit,
			Timeout:   c.Backends.Timeout.Std(),
			Languages: languages,
			Upscale:   ocr.Upscale,
			Enabled:   ocr.Enabled,
		}
	}

	for name, tr := range c.Translators {
		cfg.Translators[name] = providers.TranslatorConfig{
			Type:      tr.Type,
			BaseURL:   ResolveEnvVars(tr.BaseURL),
			Model:     tr.Model,
			APIKey:    ResolveEnvVars(tr.APIKey),
			RateLimit: tr.RateLimit,
			Timeout:   c.Translation.Timeout.Std(),
			ProjectID: ResolveEnvVars(tr.ProjectID),
			Region:    tr.Region,
			Enabled:   tr.Enabled,
		}
	}

	return cfg
}

// ToBackendConfig returns the document service settings with keys resolved.
// ok is false when no extraction URL is configured.
func (c *Config) ToBackendConfig() (cfg providers.BackendConfig, ok bool) {
	url := ResolveEnvVars(c.Backends.ExtractionURL)
	if url == "" {
		return providers.BackendConfig{}, false
	}
	return providers.BackendConfig{
		BaseURL: url,
		APIKey:  ResolveEnvVars(c.Backends.APIKey),
		Timeout: c.Backends.Timeout.Std(),
	}, true
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Folio configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export FOLIO_BACKEND_URL=xxx FOLIO_BACKEND_API_KEY=xxx OPENAI_API_KEY=xxx
# Any key can be overridden from the environment, e.g. FOLIO_VIEWER_FAILURE_THRESHOLD=5

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
