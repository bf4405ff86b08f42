package config

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDefaultEntries(t *testing.T) {
	entries := DefaultEntries()

	if len(entries) == 0 {
		t.Fatal("DefaultEntries() returned empty slice")
	}

	requiredKeys := []string{
		"viewer.failure_threshold",
		"viewer.desktop_timeout",
		"translation.timeout",
		"extraction.scanned_threshold",
		"backends.extraction_url",
		"ocr_providers.tesseract.type",
		"translators.backend.enabled",
		"storage.signed_url_ttl",
	}

	keys := make(map[string]Entry)
	for i, e := range entries {
		keys[e.Key] = e
		if i > 0 && entries[i-1].Key >= e.Key {
			t.Errorf("entries not sorted at %q", e.Key)
		}
	}

	for _, key := range requiredKeys {
		if _, ok := keys[key]; !ok {
			t.Errorf("DefaultEntries() missing required key: %s", key)
		}
	}
	if keys["viewer.desktop_timeout"].Value != "10s" {
		t.Errorf("desktop_timeout = %v, want 10s", keys["viewer.desktop_timeout"].Value)
	}
	if keys["viewer.failure_threshold"].Description == "" {
		t.Error("failure_threshold should be described")
	}
}

func TestGetDefault(t *testing.T) {
	t.Run("existing_key", func(t *testing.T) {
		entry := GetDefault("ocr_providers.tesseract.type")
		if entry == nil {
			t.Fatal("GetDefault() returned nil for existing key")
		}
		if entry.Value != "tesseract" {
			t.Errorf("GetDefault() Value = %v, want %q", entry.Value, "tesseract")
		}
	})

	t.Run("non_existent_key", func(t *testing.T) {
		entry := GetDefault("does.not.exist")
		if entry != nil {
			t.Errorf("GetDefault() = %v, want nil for non-existent key", entry)
		}
	})
}

func TestSeedDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	if err := store.Set("viewer.failure_threshold", 9); err != nil {
		t.Fatal(err)
	}

	if err := SeedDefaults(store, nil); err != nil {
		t.Fatalf("SeedDefaults() error = %v", err)
	}

	all, err := store.GetAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(DefaultEntries()) {
		t.Errorf("store has %d entries, want %d", len(all), len(DefaultEntries()))
	}
	if all["viewer.failure_threshold"].Value != 9 {
		t.Errorf("existing entry overwritten: %v", all["viewer.failure_threshold"].Value)
	}

	// The seeded file loads as a valid config.
	mgr, err := NewManager(store.Path())
	if err != nil {
		t.Fatalf("seeded config does not load: %v", err)
	}
	if mgr.Get().Viewer.FailureThreshold != 9 {
		t.Errorf("failure threshold = %d, want 9", mgr.Get().Viewer.FailureThreshold)
	}
}

func TestResetToDefault(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "config.yaml"))
	if err := store.Set("extraction.scanned_threshold", 10); err != nil {
		t.Fatal(err)
	}

	if err := ResetToDefault(store, "extraction.scanned_threshold"); err != nil {
		t.Fatalf("ResetToDefault() error = %v", err)
	}
	e, err := store.Get("extraction.scanned_threshold")
	if err != nil || e == nil {
		t.Fatalf("Get() = %v, %v", e, err)
	}
	if e.Value != 50 {
		t.Errorf("value = %v, want 50", e.Value)
	}

	if err := ResetToDefault(store, "nope.nothing"); !errors.Is(err, ErrNoDefault) {
		t.Errorf("error = %v, want ErrNoDefault", err)
	}
}
