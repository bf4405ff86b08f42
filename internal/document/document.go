// Package document describes the documents the viewer opens and how their
// bytes are retrieved.
package document

import (
	"mime"
	"path"
	"strings"

	"github.com/jackzampolin/folio/internal/failure"
)

// Category selects the rendering and extraction strategy for a document.
type Category string

const (
	CategoryPDF     Category = "pdf"
	CategoryOffice  Category = "office"
	CategoryImage   Category = "image"
	CategoryMedia   Category = "media"
	CategoryText    Category = "text"
	CategoryUnknown Category = "unknown"
)

// Paginated reports whether the category has discrete pages the viewer
// navigates between.
func (c Category) Paginated() bool {
	return c == CategoryPDF || c == CategoryOffice
}

// AccessLevel is passed through from the storage layer. Policy is enforced
// elsewhere.
type AccessLevel string

const (
	AccessViewOnly AccessLevel = "view_only"
	AccessDownload AccessLevel = "download"
)

// Ref identifies a document and where to fetch it.
type Ref struct {
	ID            string      `json:"id" yaml:"id"`
	URL           string      `json:"url" yaml:"url"`
	Name          string      `json:"name,omitempty" yaml:"name,omitempty"`
	MIMEType      string      `json:"mime_type" yaml:"mime_type"`
	Category      Category    `json:"category" yaml:"category"`
	Size          int64       `json:"size,omitempty" yaml:"size,omitempty"`
	AccessLevel   AccessLevel `json:"access_level,omitempty" yaml:"access_level,omitempty"`
	WatermarkText string      `json:"watermark_text,omitempty" yaml:"watermark_text,omitempty"`

	// PageCount is discovered lazily and is 0 until known.
	PageCount int `json:"page_count,omitempty" yaml:"page_count,omitempty"`
}

// NewRef builds a Ref and resolves its category. The MIME type falls back to
// the file extension of name or url when empty.
func NewRef(id, url, mimeType string) Ref {
	r := Ref{ID: id, URL: url, MIMEType: mimeType, AccessLevel: AccessViewOnly}
	if r.MIMEType == "" {
		r.MIMEType = MIMEFromName(url)
	}
	r.Category = Categorize(r.MIMEType)
	return r
}

// Previewable returns UnsupportedFormatError for documents with no preview path.
func (r Ref) Previewable() error {
	if r.Category == CategoryUnknown || r.Category == "" {
		return failure.Unsupported("preview", r.MIMEType)
	}
	return nil
}

// Downloadable reports whether the caller may offer the original file.
func (r Ref) Downloadable() bool {
	return r.AccessLevel == AccessDownload
}

var officeTypes = map[string]bool{
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                  true,
	"application/vnd.oasis.opendocument.spreadsheet":                           true,
	"application/vnd.oasis.opendocument.presentation":                          true,
	"application/rtf": true,
}

// Categorize maps a MIME type to a Category.
func Categorize(mimeType string) Category {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case mt == "application/pdf":
		return CategoryPDF
	case officeTypes[mt]:
		return CategoryOffice
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "audio/"), strings.HasPrefix(mt, "video/"):
		return CategoryMedia
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		return CategoryText
	default:
		return CategoryUnknown
	}
}

var extTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".md":   "text/markdown",
	".txt":  "text/plain",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
}

// MIMEFromName guesses a MIME type from a file name or URL path.
func MIMEFromName(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := extTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
