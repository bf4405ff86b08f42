// Package lang validates translation target languages.
package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Parse canonicalises a BCP 47 tag such as "es", "pt-BR" or "zh-Hant".
func Parse(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("target language is required")
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("invalid target language %q: %w", code, err)
	}
	if tag == language.Und {
		return "", fmt.Errorf("invalid target language %q", code)
	}
	return tag.String(), nil
}

// Name returns the English display name of code, or code itself when the
// tag is unknown.
func Name(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

// SelfName returns the language's name in that language ("Español").
func SelfName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}
