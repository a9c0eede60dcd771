package operator

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"go.pieceflow.dev/core/backend"
)

// MemoryOperator is an in-memory implementation of Operator for testing.
// Keys ending in '/' are directory markers.
type MemoryOperator struct {
	Content map[string][]byte
	mu      sync.RWMutex
}

func NewMemoryOperator() *MemoryOperator {
	return &MemoryOperator{Content: make(map[string][]byte)}
}

// Put content under key.
func (m *MemoryOperator) Put(key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Content[key] = content
}

func (m *MemoryOperator) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for key, content := range m.Content {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, Entry{
			Path: key,
			Metadata: Metadata{
				ContentLength: int64(len(content)),
				IsDir:         IsDirKey(key),
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *MemoryOperator) Stat(_ context.Context, key string) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if IsDirKey(key) {
		for k := range m.Content {
			if strings.HasPrefix(k, key) {
				return Metadata{IsDir: true}, nil
			}
		}
		return Metadata{}, NotFound("stat", key)
	}
	var content, ok = m.Content[key]
	if !ok {
		return Metadata{}, NotFound("stat", key)
	}
	return Metadata{ContentLength: int64(len(content))}, nil
}

func (m *MemoryOperator) Read(_ context.Context, key string, rng *backend.Range) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var content, ok = m.Content[key]
	if !ok {
		return nil, NotFound("read", key)
	}
	if rng != nil {
		var begin, end = rng.Start, rng.End()
		if begin > uint64(len(content)) {
			begin = uint64(len(content))
		}
		if end > uint64(len(content)) {
			end = uint64(len(content))
		}
		content = content[begin:end]
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
