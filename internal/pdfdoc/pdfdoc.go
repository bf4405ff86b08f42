// Package pdfdoc opens PDF documents for text extraction and rendering.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrClosed is returned by operations on a closed Handle.
var ErrClosed = errors.New("pdf handle closed")

// Fragment is a positioned run of text on a page. Y grows upward, as in PDF
// user space.
type Fragment struct {
	X, Y     float64
	Width    float64
	FontSize float64
	Text     string
}

// Dim is a page size in PDF points.
type Dim struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Handle is an open PDF. It is safe for concurrent use; Close releases the
// parsed document and any temporary file created for rendering.
type Handle struct {
	mu      sync.Mutex
	data    []byte
	reader  *pdf.Reader
	pages   int
	dims    []Dim
	tmpPath string
	closed  bool
}

// Open parses data as a PDF.
func Open(data []byte) (*Handle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		// pdfcpu is stricter than the text reader; fall back to its count.
		pages = r.NumPage()
	}

	return &Handle{data: data, reader: r, pages: pages}, nil
}

// OpenFile reads and parses a PDF from disk.
func OpenFile(path string) (*Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return Open(data)
}

// PageCount returns the number of pages.
func (h *Handle) PageCount() int {
	return h.pages
}

// Size returns the document size in bytes.
func (h *Handle) Size() int64 {
	return int64(len(h.data))
}

// Dims returns the size of every page, computed once.
func (h *Handle) Dims() ([]Dim, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.dims != nil {
		return h.dims, nil
	}
	raw, err := api.PageDims(bytes.NewReader(h.data), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %w", err)
	}
	dims := make([]Dim, len(raw))
	for i, d := range raw {
		dims[i] = Dim{Width: d.Width, Height: d.Height}
	}
	h.dims = dims
	return dims, nil
}

// Fragments returns the positioned text on page (1-indexed). A page with no
// text layer yields no fragments and no error.
func (h *Handle) Fragments(page int) (frags []Fragment, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if page < 1 || page > h.reader.NumPage() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, h.reader.NumPage())
	}

	p := h.reader.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}

	// The content stream parser panics on some malformed pages.
	defer func() {
		if r := recover(); r != nil {
			frags = nil
			err = fmt.Errorf("page %d: malformed content: %v", page, r)
		}
	}()

	content := p.Content()
	frags = make([]Fragment, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		frags = append(frags, Fragment{X: t.X, Y: t.Y, Width: t.W, FontSize: t.FontSize, Text: t.S})
	}
	return frags, nil
}

// PlainText returns the page text as the PDF reader orders it.
func (h *Handle) PlainText(page int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrClosed
	}
	p := h.reader.Page(page)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

// Close releases the document. It is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.reader = nil
	h.data = nil
	h.dims = nil
	if h.tmpPath != "" {
		err := os.Remove(h.tmpPath)
		h.tmpPath = ""
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// path materialises the document on disk for external renderers.
func (h *Handle) path() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrClosed
	}
	if h.tmpPath != "" {
		return h.tmpPath, nil
	}
	f, err := os.CreateTemp("", "folio-doc-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(h.data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	h.tmpPath = f.Name()
	return h.tmpPath, nil
}
