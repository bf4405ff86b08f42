package testutil

import (
	"context"
	"fmt"
	"sync"
)

// Fetcher serves documents from memory and counts fetches.
type Fetcher struct {
	mu    sync.Mutex
	docs  map[string][]byte
	calls int
}

// NewFetcher creates a fetcher serving docs keyed by URL.
func NewFetcher(docs map[string][]byte) *Fetcher {
	return &Fetcher{docs: docs}
}

// Fetch returns the bytes stored under url.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	data, ok := f.docs[url]
	if !ok {
		return nil, fmt.Errorf("not found: %s", url)
	}
	return data, nil
}

// Calls returns the number of Fetch calls.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
