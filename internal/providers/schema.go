package providers

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response contracts of the extraction, OCR and translation backends.
const (
	ocrResponseSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

	translateResponseSchema = `{
  "type": "object",
  "required": ["translatedText"],
  "properties": {
    "translatedText": {"type": "string"},
    "cached": {"type": "boolean"}
  }
}`

	extractResponseSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string"}
  }
}`
)

var (
	schemaOnce    sync.Once
	schemas       map[string]*jsonschema.Schema
	schemaInitErr error
)

func loadSchemas() {
	raw := map[string]string{
		"ocr.json":       ocrResponseSchema,
		"translate.json": translateResponseSchema,
		"extract.json":   extractResponseSchema,
	}
	compiler := jsonschema.NewCompiler()
	for name, s := range raw {
		if err := compiler.AddResource(name, strings.NewReader(s)); err != nil {
			schemaInitErr = fmt.Errorf("failed to load %s: %w", name, err)
			return
		}
	}
	schemas = make(map[string]*jsonschema.Schema, len(raw))
	for name := range raw {
		sch, err := compiler.Compile(name)
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to compile %s: %w", name, err)
			return
		}
		schemas[name] = sch
	}
}

// validateResponse checks a backend body against its contract.
func validateResponse(name string, body []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaInitErr != nil {
		return schemaInitErr
	}
	sch, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown response schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("response does not match contract: %w", err)
	}
	return nil
}
