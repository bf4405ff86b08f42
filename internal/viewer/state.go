// Package viewer supervises how a document is displayed: it picks a render
// strategy, renders pages, and falls back to a compatibility path when the
// primary renderer keeps failing or never becomes ready.
package viewer

import "github.com/jackzampolin/folio/internal/document"

// State is a render-path state.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StateRendering   State = "rendering"
	StateRenderedOK  State = "rendered_ok"
	StateRenderError State = "render_error"
	StateLoadError   State = "load_error"
	StateFallback    State = "fallback"
)

// Terminal reports whether no event can leave the state within a session.
func (s State) Terminal() bool {
	return s == StateFallback
}

// Path is the active render path.
type Path string

const (
	PathPrimary  Path = "primary"
	PathFallback Path = "fallback"
)

// Device selects timeouts and size limits.
type Device string

const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// ParseDevice maps a flag value to a Device, defaulting to desktop.
func ParseDevice(s string) Device {
	if Device(s) == DeviceMobile {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Strategy is how a document category is displayed.
type Strategy string

const (
	StrategyPages         Strategy = "pages"          // Page-by-page raster renderer
	StrategyImage         Strategy = "image"          // Single image
	StrategyOfficePreview Strategy = "office_preview" // Converted preview pages
	StrategyNative        Strategy = "native"         // Media and text players
	StrategyCompatibility Strategy = "compatibility"  // Minimal fallback viewer
	StrategyNone          Strategy = "none"
)

// StrategyFor returns the primary strategy for a category.
func StrategyFor(c document.Category) Strategy {
	switch c {
	case document.CategoryPDF:
		return StrategyPages
	case document.CategoryImage:
		return StrategyImage
	case document.CategoryOffice:
		return StrategyOfficePreview
	case document.CategoryMedia, document.CategoryText:
		return StrategyNative
	default:
		return StrategyNone
	}
}

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	NoticeFallback NoticeKind = "fallback"
)

// Notice is a one-time message for the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Reason  string     `json:"reason,omitempty"`
}
