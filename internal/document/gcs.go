package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/jackzampolin/folio/internal/failure"
)

// GCSConfig configures the Cloud Storage blob store.
type GCSConfig struct {
	Bucket       string
	SignedURLTTL time.Duration

	// Credentials for V4 signing. When empty the client's default
	// credentials are used to sign.
	GoogleAccessID string
	PrivateKey     []byte

	MaxBytes int64
	Logger   *slog.Logger
}

// GCSStore resolves document refs against a Cloud Storage bucket, hands out
// signed URLs for viewers and fetches bytes for extraction.
type GCSStore struct {
	client   *storage.Client
	bucket   *storage.BucketHandle
	name     string
	ttl      time.Duration
	accessID string
	key      []byte
	maxBytes int64
	logger   *slog.Logger
}

// NewGCSStore creates a store bound to cfg.Bucket.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return newGCSStore(client, cfg), nil
}

func newGCSStore(client *storage.Client, cfg GCSConfig) *GCSStore {
	if cfg.SignedURLTTL == 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{
		client:   client,
		bucket:   client.Bucket(cfg.Bucket),
		name:     cfg.Bucket,
		ttl:      cfg.SignedURLTTL,
		accessID: cfg.GoogleAccessID,
		key:      cfg.PrivateKey,
		maxBytes: cfg.MaxBytes,
		logger:   logger,
	}
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Lookup builds a Ref for an object from its attributes.
func (s *GCSStore) Lookup(ctx context.Context, object string) (Ref, error) {
	attrs, err := s.bucket.Object(object).Attrs(ctx)
	if err != nil {
		return Ref{}, s.mapErr("lookup", object, err)
	}
	ref := NewRef(object, s.gsURL(object), attrs.ContentType)
	if ref.MIMEType == "" || ref.MIMEType == "application/octet-stream" {
		ref.MIMEType = MIMEFromName(object)
		ref.Category = Categorize(ref.MIMEType)
	}
	ref.Name = object
	ref.Size = attrs.Size
	if v, ok := attrs.Metadata["access_level"]; ok {
		ref.AccessLevel = AccessLevel(v)
	}
	ref.WatermarkText = attrs.Metadata["watermark_text"]
	return ref, nil
}

// SignedURL returns a time-limited GET URL for object.
func (s *GCSStore) SignedURL(ctx context.Context, object string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.ttl),
	}
	if s.accessID != "" {
		opts.GoogleAccessID = s.accessID
		opts.PrivateKey = s.key
	}
	u, err := s.bucket.SignedURL(object, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", object, err)
	}
	s.logger.Debug("signed url", "object", object, "ttl", s.ttl)
	return u, nil
}

// Fetch reads an object. url may be gs://bucket/object or a bare object name.
func (s *GCSStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	object, err := s.ObjectName(url)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(object).NewReader(ctx)
	if err != nil {
		return nil, s.mapErr("fetch", object, err)
	}
	defer r.Close()

	if r.Attrs.Size > s.maxBytes {
		return nil, failure.New(failure.KindUnsupportedFormat, "fetch", fmt.Sprintf("document is %d bytes, limit is %d", r.Attrs.Size, s.maxBytes))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, failure.Network("fetch", err)
	}
	return data, nil
}

// Bucket returns the bucket the store is bound to.
func (s *GCSStore) Bucket() string {
	return s.name
}

// ObjectName returns the object a gs:// URL or bare name refers to. URLs
// naming a different bucket are rejected.
func (s *GCSStore) ObjectName(url string) (string, error) {
	if !strings.HasPrefix(url, "gs://") {
		if url == "" {
			return "", fmt.Errorf("object name is required")
		}
		return url, nil
	}
	bucket, object, err := ParseGSURL(url)
	if err != nil {
		return "", err
	}
	if bucket != s.name {
		return "", fmt.Errorf("%s is in bucket %q, store is bound to %q", url, bucket, s.name)
	}
	return object, nil
}

// ParseGSURL splits gs://bucket/object.
func ParseGSURL(url string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%s is not a gs:// url", url)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("%s must name a bucket and an object", url)
	}
	return bucket, object, nil
}

func (s *GCSStore) gsURL(object string) string {
	return "gs://" + s.name + "/" + object
}

func (s *GCSStore) mapErr(op, object string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s %s: %w", op, object, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Timeout(op, err)
	}
	return failure.Network(op, err)
}

var _ Fetcher = (*GCSStore)(nil)

// MuxFetcher routes gs:// URLs to a GCS store and everything else to HTTP.
type MuxFetcher struct {
	GCS  *GCSStore
	HTTP Fetcher
}

// Fetch dispatches on the URL scheme.
func (m MuxFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(url, "gs://") {
		if m.GCS == nil {
			return nil, fmt.Errorf("no gcs store configured for %s", url)
		}
		return m.GCS.Fetch(ctx, url)
	}
	return m.HTTP.Fetch(ctx, url)
}
