package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-folio")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-folio" {
			t.Errorf("expected path /tmp/test-folio, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-folio")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"CachePath", dir.CachePath(), "/tmp/test-folio/cache"},
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-folio/config.yaml"},
		{"RenderDir", dir.RenderDir("doc-1"), "/tmp/test-folio/cache/renders/doc-1"},
		{"RenderPath", dir.RenderPath("doc-1", 3, 1.5, 90), "/tmp/test-folio/cache/renders/doc-1/page_0003_z1.5_r90.png"},
		{"RenderPath negative rotation", dir.RenderPath("doc-1", 1, 1, -90), "/tmp/test-folio/cache/renders/doc-1/page_0001_z1_r270.png"},
		{"RenderDir escapes separators", dir.RenderDir("../etc/passwd"), "/tmp/test-folio/cache/renders/.._etc_passwd"},
		{"ExportPath", dir.ExportPath("doc-1", "pt-BR"), "/tmp/test-folio/exports/doc-1.pt-BR.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	folioDir := filepath.Join(tmpDir, "folio-test")

	dir, err := New(folioDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	for _, p := range []string{dir.CachePath(), dir.ExportsDir()} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			t.Errorf("%s should exist after EnsureExists", p)
		}
	}
}

func TestDir_Renders(t *testing.T) {
	dir, _ := New(t.TempDir())

	if err := dir.EnsureRenderDir("doc"); err != nil {
		t.Fatalf("EnsureRenderDir failed: %v", err)
	}
	if err := os.WriteFile(dir.RenderPath("doc", 1, 1, 0), []byte("png"), 0o644); err != nil {
		t.Fatalf("failed to write render: %v", err)
	}
	if err := dir.ClearRenders("doc"); err != nil {
		t.Fatalf("ClearRenders failed: %v", err)
	}
	if _, err := os.Stat(dir.RenderDir("doc")); !os.IsNotExist(err) {
		t.Error("render directory should be gone after ClearRenders")
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	configPath := dir.ConfigPath()
	if err := os.WriteFile(configPath, []byte("test: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}
