// Package translate requests, assembles and caches page translations for
// one viewing session.
package translate

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Status is the lifecycle of a cache entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Key identifies a translation: one page in one target language.
type Key struct {
	Page int    `json:"page"`
	Lang string `json:"lang"`
}

func (k Key) String() string {
	return fmt.Sprintf("page %d (%s)", k.Page, k.Lang)
}

// Entry is a cached translation. Text holds the partial translation while
// the entry is streaming.
type Entry struct {
	Key       Key       `json:"key"`
	Status    Status    `json:"status"`
	Text      string    `json:"text,omitempty"`
	Err       error     `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache holds the translations of the open document. Opening a different
// document or closing the cache drops every entry and bumps the generation,
// so writers holding an older generation are ignored.
type Cache struct {
	mu      sync.RWMutex
	docID   string
	open    bool
	gen     uint64
	entries map[Key]*Entry
}

// NewCache creates a closed, empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*Entry)}
}

// Open scopes the cache to docID. Reopening the same document keeps its
// entries.
func (c *Cache) Open(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open && c.docID == docID {
		return
	}
	c.reset()
	c.docID = docID
	c.open = true
}

// Close drops every entry.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.docID = ""
	c.open = false
}

// reset must be called with the lock held.
func (c *Cache) reset() {
	c.entries = make(map[Key]*Entry)
	c.gen++
}

// DocumentID returns the document the cache is scoped to, or "".
func (c *Cache) DocumentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docID
}

// Generation changes whenever the cache is cleared.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Text returns the completed translation for key.
func (c *Cache) Text(key Key) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.Status != StatusComplete {
		return "", false
	}
	return e.Text, true
}

// Update sets the status and text of key if gen is still current. It
// reports whether the write was applied.
func (c *Cache) Update(gen uint64, key Key, status Status, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || gen != c.gen {
		return false
	}
	c.entries[key] = &Entry{Key: key, Status: status, Text: text, UpdatedAt: time.Now()}
	return true
}

// Commit stores a completed translation if gen is still current.
func (c *Cache) Commit(gen uint64, key Key, text string) bool {
	return c.Update(gen, key, StatusComplete, text)
}

// Fail records err for key if gen is still current.
func (c *Cache) Fail(gen uint64, key Key, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || gen != c.gen {
		return false
	}
	c.entries[key] = &Entry{Key: key, Status: StatusError, Err: err, UpdatedAt: time.Now()}
	return true
}

// Delete removes key.
func (c *Cache) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Pages returns the completed translations for lang keyed by page.
func (c *Cache) Pages(lang string) map[int]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]string)
	for k, e := range c.entries {
		if k.Lang == lang && e.Status == StatusComplete {
			out[k.Page] = e.Text
		}
	}
	return out
}

// Entries returns a snapshot of all entries ordered by language then page.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Lang != out[j].Key.Lang {
			return out[i].Key.Lang < out[j].Key.Lang
		}
		return out[i].Key.Page < out[j].Key.Page
	})
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
