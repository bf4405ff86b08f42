package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultDirName is the default name for the folio home directory.
	DefaultDirName = ".folio"

	// CacheDirName is the subdirectory for rendered pages.
	CacheDirName = "cache"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the folio home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.folio).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// CachePath returns the path to the render cache.
func (d *Dir) CachePath() string {
	return filepath.Join(d.path, CacheDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.CachePath(), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.MkdirAll(d.ExportsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create exports directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// RenderDir returns the render cache directory for a document.
func (d *Dir) RenderDir(docID string) string {
	return filepath.Join(d.CachePath(), "renders", safeName(docID))
}

// RenderPath returns the cached PNG path for one page at a zoom and rotation.
// Page numbers are 1-indexed.
func (d *Dir) RenderPath(docID string, page int, zoom float64, rotation int) string {
	return filepath.Join(d.RenderDir(docID), RenderFileName(page, zoom, rotation))
}

// RenderFileName names a cached page render.
func RenderFileName(page int, zoom float64, rotation int) string {
	z := strconv.FormatFloat(zoom, 'f', -1, 64)
	return fmt.Sprintf("page_%04d_z%s_r%d.png", page, z, ((rotation%360)+360)%360)
}

// EnsureRenderDir creates the render cache directory for a document.
func (d *Dir) EnsureRenderDir(docID string) error {
	return os.MkdirAll(d.RenderDir(docID), 0o755)
}

// ClearRenders removes every cached render of a document.
func (d *Dir) ClearRenders(docID string) error {
	return os.RemoveAll(d.RenderDir(docID))
}

// ExportsDir returns the directory for exported translations.
func (d *Dir) ExportsDir() string {
	return filepath.Join(d.path, "exports")
}

// ExportPath returns the path of a translation export for a document.
func (d *Dir) ExportPath(docID, lang string) string {
	return filepath.Join(d.ExportsDir(), fmt.Sprintf("%s.%s.txt", safeName(docID), safeName(lang)))
}

// safeName keeps document IDs from escaping their directory.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
