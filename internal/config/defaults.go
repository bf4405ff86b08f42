package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v2"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// descriptions documents the settings users most often change.
var descriptions = map[string]string{
	"viewer.failure_threshold":        "Page render failures before switching to the compatibility viewer",
	"viewer.desktop_timeout":          "Time a desktop viewer may take to become ready",
	"viewer.mobile_timeout":           "Time a mobile viewer may take to become ready",
	"viewer.mobile_max_pdf_bytes":     "PDFs larger than this open straight in the compatibility viewer on mobile",
	"viewer.fallback_notice":          "Message shown once when the viewer falls back",
	"translation.translator":          "Translator used by default (key into translators)",
	"translation.default_language":    "Target language when none is given",
	"translation.stream":              "Show partial translations while they arrive",
	"translation.timeout":             "Time budget for one page translation",
	"extraction.scanned_threshold":    "Average characters per page below which a document counts as scanned",
	"extraction.line_threshold":       "Vertical gap in points that starts a new line",
	"extraction.ocr_zoom":             "Zoom pages are rasterised at before OCR",
	"extraction.ocr_engine":           "OCR engine used by default (key into ocr_providers)",
	"extraction.concurrency":          "Pages sampled in parallel when classifying",
	"extraction.ocr_languages":        "Tesseract language packs",
	"extraction.max_document_bytes":   "Largest document that will be downloaded",
	"backends.extraction_url":         "Document service used to read office files",
	"backends.api_key":                "Document service API key (uses environment variable)",
	"backends.timeout":                "HTTP timeout for document service requests",
	"storage.bucket":                  "Cloud Storage bucket documents are read from",
	"storage.signed_url_ttl":          "Lifetime of signed document URLs",
	"translators.backend.enabled":     "Whether the backend translator is enabled",
	"translators.openai.enabled":      "Whether the OpenAI translator is enabled",
	"translators.vertex.enabled":      "Whether the Vertex AI translator is enabled",
	"ocr_providers.backend.enabled":   "Whether backend OCR is enabled",
	"ocr_providers.vision.enabled":    "Whether vision-model OCR is enabled",
	"ocr_providers.tesseract.enabled": "Whether local Tesseract OCR is enabled",
}

// DefaultEntries returns the default configuration as flat dotted keys,
// sorted by key.
func DefaultEntries() []Entry {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		panic(fmt.Sprintf("config: marshal defaults: %v", err))
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}

	flat := make(map[string]any)
	flatten("", tree, flat)

	entries := make([]Entry, 0, len(flat))
	for key, value := range flat {
		entries = append(entries, Entry{Key: key, Value: value, Description: descriptions[key]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// flatten writes the leaves of a nested yaml tree into out as dotted keys.
func flatten(prefix string, node any, out map[string]any) {
	var m map[string]any
	switch v := node.(type) {
	case map[string]any:
		m = v
	case map[any]any:
		m = make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = val
		}
	default:
		out[prefix] = node
		return
	}
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, v, out)
	}
}

// SeedDefaults writes defaults for keys missing from the store.
// Existing entries are not overwritten.
func SeedDefaults(store Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	seeded := 0
	skipped := 0
	for _, entry := range DefaultEntries() {
		existing, err := store.Get(entry.Key)
		if err != nil {
			return fmt.Errorf("failed to check key %q: %w", entry.Key, err)
		}
		if existing != nil {
			skipped++
			continue
		}
		if err := store.Set(entry.Key, entry.Value); err != nil {
			return fmt.Errorf("failed to seed key %q: %w", entry.Key, err)
		}
		seeded++
	}

	if seeded > 0 {
		logger.Info("seeded default config entries", "seeded", seeded, "skipped", skipped)
	}
	return nil
}

// GetDefault returns the default value for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(key, def.Value)
}
