package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' || strings.Contains(key, "..") {
		return fmt.Errorf("%w: key cannot start or end with a dot or contain empty segments", ErrInvalidKey)
	}
	return nil
}

// Store reads and edits individual settings by dotted key.
type Store interface {
	// Get returns a single entry by key, or nil when the key is not set.
	Get(key string) (*Entry, error)

	// Set creates or updates an entry.
	Set(key string, value any) error

	// GetAll returns every leaf entry.
	GetAll() (map[string]Entry, error)

	// GetByPrefix returns entries whose key starts with prefix.
	GetByPrefix(prefix string) (map[string]Entry, error)

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(key string) error
}

// Entry represents a single configuration entry.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// FileStore implements Store over a YAML config file. Comments and key
// order in the file survive edits. The Manager's watcher picks up writes.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store for the config file at path. The file is
// created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns a single entry by key.
func (s *FileStore) Get(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	if e, ok := all[key]; ok {
		return &e, nil
	}
	return nil, nil
}

// Set creates or updates an entry, creating intermediate sections.
func (s *FileStore) Set(key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	var val yaml.Node
	if err := val.Encode(value); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	node := doc.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("cannot set %s: %s is not a section", key, strings.Join(parts[:i], "."))
		}
		idx := mappingIndex(node, part)
		last := i == len(parts)-1
		switch {
		case idx >= 0 && last:
			node.Content[idx+1] = &val
		case idx >= 0:
			node = node.Content[idx+1]
		case last:
			node.Content = append(node.Content, scalar(part), &val)
		default:
			child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			node.Content = append(node.Content, scalar(part), child)
			node = child
		}
	}
	return s.write(doc)
}

// GetAll returns every leaf entry.
func (s *FileStore) GetAll() (map[string]Entry, error) {
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var tree map[string]any
	if err := doc.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	flat := make(map[string]any)
	if tree != nil {
		flatten("", tree, flat)
	}
	result := make(map[string]Entry, len(flat))
	for key, value := range flat {
		result[key] = Entry{Key: key, Value: value, Description: descriptions[key]}
	}
	return result, nil
}

// GetByPrefix returns entries whose key starts with prefix.
func (s *FileStore) GetByPrefix(prefix string) (map[string]Entry, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	result := make(map[string]Entry)
	for key, entry := range all {
		if strings.HasPrefix(key, prefix) {
			result[key] = entry
		}
	}
	return result, nil
}

// Delete removes an entry.
func (s *FileStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	node := doc.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if node.Kind != yaml.MappingNode {
			return nil
		}
		idx := mappingIndex(node, part)
		if idx < 0 {
			return nil
		}
		if i == len(parts)-1 {
			node.Content = append(node.Content[:idx], node.Content[idx+2:]...)
			return s.write(doc)
		}
		node = node.Content[idx+1]
	}
	return nil
}

// SortedKeys returns the keys of entries in order.
func SortedKeys(entries map[string]Entry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// read loads the file as a document node. A missing or empty file yields
// an empty mapping.
func (s *FileStore) read() (*yaml.Node, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.path, err)
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse %s: top level is not a mapping", s.path)
	}
	return &doc, nil
}

func (s *FileStore) write(doc *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	return os.WriteFile(s.path, buf.Bytes(), 0o644)
}

// mappingIndex returns the index of key's key node in a mapping, or -1.
func mappingIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
