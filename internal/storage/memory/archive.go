// Package memory keeps records and archived pages in process memory for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Archive implements crawler.Archive in memory and returns memory:// URIs.
type Archive struct {
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	contentType string
	data        []byte
}

// NewArchive creates an empty in-memory archive.
func NewArchive() *Archive {
	return &Archive{objects: make(map[string]object)}
}

// PutObject stores a copy of data under path.
func (a *Archive) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("archive path is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[path] = object{contentType: contentType, data: append([]byte(nil), data...)}
	return "memory://" + path, nil
}

// Object returns the archived bytes and content type for path.
func (a *Archive) Object(path string) ([]byte, string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	obj, ok := a.objects[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}

// Paths lists archived paths in lexical order.
func (a *Archive) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.objects))
	for p := range a.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
