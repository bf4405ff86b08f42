// Package svcctx provides service context for dependency injection via context.
// Commands build Services once and pass them down through cmd.Context().
package svcctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/extract"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/pdfdoc"
	"github.com/jackzampolin/folio/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config      *config.Manager
	ConfigStore config.Store
	Registry    *providers.Registry
	Fetcher     document.Fetcher
	GCS         *document.GCSStore // nil without storage.bucket
	Rasterizer  pdfdoc.Rasterizer
	Logger      *slog.Logger
	Home        *home.Dir

	mu         sync.RWMutex
	pipeline   *extract.Pipeline
	classifier *extract.Classifier
}

// Options configures New.
type Options struct {
	ConfigFile string
	HomeDir    string
	Logger     *slog.Logger

	// Watch enables config hot reload; provider changes are applied to
	// the registry as they happen.
	Watch bool
}

// New loads configuration and builds every service from it.
func New(ctx context.Context, opts Options) (*Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h, err := home.New(opts.HomeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	mgr, err := config.NewManager(opts.ConfigFile, h.Path())
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	storePath := mgr.ConfigFile()
	if storePath == "" {
		storePath = opts.ConfigFile
	}
	if storePath == "" {
		storePath = h.ConfigPath()
	}

	s := &Services{
		Config:      mgr,
		ConfigStore: config.NewFileStore(storePath),
		Registry:    providers.NewRegistryFromConfig(ctx, cfg.ToProviderRegistryConfig(), logger),
		Logger:      logger,
		Home:        h,
	}

	httpFetcher := document.NewHTTPFetcher(document.HTTPFetcherConfig{
		MaxBytes: cfg.Extraction.MaxDocumentBytes,
		Logger:   logger,
	})
	s.Fetcher = httpFetcher
	if cfg.Storage.Bucket != "" {
		gcs, err := newGCSStore(ctx, cfg, logger)
		if err != nil {
			s.Registry.Close()
			return nil, err
		}
		s.GCS = gcs
		s.Fetcher = document.MuxFetcher{GCS: gcs, HTTP: httpFetcher}
	}

	s.rebuild(cfg)

	if opts.Watch {
		mgr.OnChange(func(cfg *config.Config) {
			logger.Info("config changed, reloading providers")
			s.Registry.Reload(ctx, cfg.ToProviderRegistryConfig())
			s.rebuild(cfg)
		})
		mgr.WatchConfig()
	}

	return s, nil
}

// rebuild recreates the extraction services from cfg.
func (s *Services) rebuild(cfg *config.Config) {
	var office extract.OfficeParser
	if bc, ok := cfg.ToBackendConfig(); ok {
		bc.Logger = s.Logger
		office = providers.NewBackendClient(bc)
	}
	pipeline := extract.NewPipeline(extract.PipelineConfig{
		Extractor: extract.NewTextExtractor(extract.ExtractorConfig{
			LineThreshold: cfg.Extraction.LineThreshold,
			Fetcher:       s.Fetcher,
			Logger:        s.Logger,
		}),
		Rasterizer: s.Rasterizer,
		Office:     office,
		Fetcher:    s.Fetcher,
		OCRZoom:    cfg.Extraction.OCRZoom,
		Logger:     s.Logger,
	})
	classifier := extract.NewClassifier(extract.ClassifierConfig{
		Threshold:   cfg.Extraction.ScannedThreshold,
		Concurrency: cfg.Extraction.Concurrency,
		Engines:     s.Registry,
		Logger:      s.Logger,
	})

	s.mu.Lock()
	s.pipeline, s.classifier = pipeline, classifier
	s.mu.Unlock()
}

// Pipeline returns the current extraction pipeline.
func (s *Services) Pipeline() *extract.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

// Classifier returns the current scanned-document classifier.
func (s *Services) Classifier() *extract.Classifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classifier
}

func newGCSStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*document.GCSStore, error) {
	gc := document.GCSConfig{
		Bucket:         cfg.Storage.Bucket,
		SignedURLTTL:   cfg.Storage.SignedURLTTL.Std(),
		GoogleAccessID: cfg.Storage.GoogleAccessID,
		MaxBytes:       cfg.Extraction.MaxDocumentBytes,
		Logger:         logger,
	}
	if cfg.Storage.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.Storage.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read storage private key: %w", err)
		}
		gc.PrivateKey = key
	}
	return document.NewGCSStore(ctx, gc)
}

// Close releases provider connections and the storage client.
func (s *Services) Close() error {
	if s.GCS != nil {
		s.GCS.Close()
	}
	return s.Registry.Close()
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// ConfigFrom extracts the current configuration from context.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.Config != nil {
		return s.Config.Get()
	}
	return nil
}

// ConfigStoreFrom extracts the config store from context.
func ConfigStoreFrom(ctx context.Context) config.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigStore
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
