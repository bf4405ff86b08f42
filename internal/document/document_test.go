package document

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackzampolin/folio/internal/failure"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		mime string
		want Category
	}{
		{"application/pdf", CategoryPDF},
		{"application/pdf; charset=binary", CategoryPDF},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryOffice},
		{"application/vnd.ms-excel", CategoryOffice},
		{"image/png", CategoryImage},
		{"video/mp4", CategoryMedia},
		{"audio/mpeg", CategoryMedia},
		{"text/plain", CategoryText},
		{"application/zip", CategoryUnknown},
		{"", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := Categorize(tt.mime); got != tt.want {
				t.Errorf("Categorize(%q) = %s, want %s", tt.mime, got, tt.want)
			}
		})
	}
}

func TestNewRef(t *testing.T) {
	t.Run("infers mime from url", func(t *testing.T) {
		ref := NewRef("d1", "https://example.com/files/report.pdf?sig=abc", "")
		if ref.MIMEType != "application/pdf" {
			t.Errorf("MIMEType = %q", ref.MIMEType)
		}
		if ref.Category != CategoryPDF {
			t.Errorf("Category = %s", ref.Category)
		}
		if ref.AccessLevel != AccessViewOnly {
			t.Errorf("AccessLevel = %s", ref.AccessLevel)
		}
	})

	t.Run("unknown category is not previewable", func(t *testing.T) {
		ref := NewRef("d2", "https://example.com/archive.zip", "application/zip")
		err := ref.Previewable()
		if !failure.Is(err, failure.KindUnsupportedFormat) {
			t.Fatalf("Previewable() = %v, want unsupported format", err)
		}
	})
}

func TestHTTPFetcher(t *testing.T) {
	t.Run("fetches body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("%PDF-1.7"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(HTTPFetcherConfig{})
		data, err := f.Fetch(context.Background(), server.URL+"/doc.pdf")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(data) != "%PDF-1.7" {
			t.Errorf("unexpected body: %q", data)
		}
	})

	t.Run("server error is a network failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusBadGateway)
		}))
		defer server.Close()

		f := NewHTTPFetcher(HTTPFetcherConfig{})
		_, err := f.Fetch(context.Background(), server.URL)
		if !failure.IsTransient(err) {
			t.Fatalf("expected transient error, got %v", err)
		}
	})

	t.Run("size guard", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(strings.Repeat("x", 64)))
		}))
		defer server.Close()

		f := NewHTTPFetcher(HTTPFetcherConfig{MaxBytes: 16})
		_, err := f.Fetch(context.Background(), server.URL)
		if !failure.Is(err, failure.KindUnsupportedFormat) {
			t.Fatalf("expected size error, got %v", err)
		}
	})

	t.Run("reads local files", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "a.txt")
		if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
			t.Fatal(err)
		}
		f := NewHTTPFetcher(HTTPFetcherConfig{})
		data, err := f.Fetch(context.Background(), "file://"+p)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("got %q", data)
		}
	})
}

func TestGCSStore_ObjectName(t *testing.T) {
	store := &GCSStore{name: "docs"}
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "gs://docs/reports/q1.pdf", want: "reports/q1.pdf"},
		{url: "reports/q1.pdf", want: "reports/q1.pdf"},
		{url: "gs://other/reports/q1.pdf", wantErr: true},
		{url: "gs://docs/", wantErr: true},
		{url: "gs://docs", wantErr: true},
		{url: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := store.ObjectName(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("ObjectName(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ObjectName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}

	t.Run("fetch from another bucket is rejected", func(t *testing.T) {
		m := MuxFetcher{GCS: store}
		_, err := m.Fetch(context.Background(), "gs://other/q1.pdf")
		if err == nil || !strings.Contains(err.Error(), `bucket "other"`) {
			t.Errorf("Fetch() error = %v, want bucket mismatch", err)
		}
	})
}

func TestParseGSURL(t *testing.T) {
	bucket, object, err := ParseGSURL("gs://docs/a/b.pdf")
	if err != nil || bucket != "docs" || object != "a/b.pdf" {
		t.Errorf("ParseGSURL() = %q, %q, %v", bucket, object, err)
	}
	if _, _, err := ParseGSURL("https://docs/a.pdf"); err == nil {
		t.Error("expected error for non-gs url")
	}
}

func TestGCSStore_Integration(t *testing.T) {
	bucket := os.Getenv("FOLIO_GCS_BUCKET")
	object := os.Getenv("FOLIO_GCS_OBJECT")
	if bucket == "" || object == "" {
		t.Skip("FOLIO_GCS_BUCKET/FOLIO_GCS_OBJECT not set")
	}

	ctx := context.Background()
	store, err := NewGCSStore(ctx, GCSConfig{Bucket: bucket})
	if err != nil {
		t.Fatalf("NewGCSStore() error = %v", err)
	}
	defer store.Close()

	ref, err := store.Lookup(ctx, object)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if ref.Size == 0 {
		t.Error("expected object size")
	}
	u, err := store.SignedURL(ctx, object)
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	if !strings.HasPrefix(u, "https://") {
		t.Errorf("unexpected signed url: %s", u)
	}
}
