package viewer

import (
	"time"

	"github.com/jackzampolin/folio/internal/document"
)

const (
	MinZoom     = 0.25
	MaxZoom     = 5.0
	DefaultZoom = 1.0
)

// Session is the viewing state of one open document.
type Session struct {
	ID        string       `json:"id" yaml:"id"`
	Doc       document.Ref `json:"doc" yaml:"doc"`
	Device    Device       `json:"device" yaml:"device"`
	Page      int          `json:"page" yaml:"page"`
	PageCount int          `json:"page_count" yaml:"page_count"`
	Zoom      float64      `json:"zoom" yaml:"zoom"`
	Rotation  int          `json:"rotation" yaml:"rotation"`
	Lang      string       `json:"lang,omitempty" yaml:"lang,omitempty"`
	Path      Path         `json:"path" yaml:"path"`
	Strategy  Strategy     `json:"strategy" yaml:"strategy"`
	Failures  int          `json:"failures" yaml:"failures"`
	StartedAt time.Time    `json:"started_at" yaml:"started_at"`
}

// clampPage bounds page to [1, PageCount] once the page count is known.
func (s *Session) clampPage(page int) int {
	if page < 1 {
		return 1
	}
	if s.PageCount > 0 && page > s.PageCount {
		return s.PageCount
	}
	return page
}

// ClampZoom bounds z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	switch {
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	return z
}

// NormalizeRotation maps degrees onto 0, 90, 180 or 270. Values that are not
// multiples of 90 are rounded down to one.
func NormalizeRotation(deg int) int {
	deg = ((deg % 360) + 360) % 360
	return deg - deg%90
}
