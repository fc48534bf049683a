package index

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps documents in a map. Used by tests and by the
// single-process development mode.
type MemoryBackend struct {
	mu   sync.Mutex
	docs map[string]Document
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: map[string]Document{}}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) EnsureSchema(context.Context) error { return nil }

func (m *MemoryBackend) Put(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	body := make(map[string]any, len(doc.Body))
	for k, v := range doc.Body {
		body[k] = v
	}
	doc.Body = body
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryBackend) Children(ctx context.Context, parent Hit) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Hit
	for _, d := range m.docs {
		if d.Parent == parent.ID && d.Relation != RelPlan {
			out = append(out, d.Hit())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, hit Hit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, hit.ID)
	return nil
}

func (m *MemoryBackend) Get(id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d, ok
}

func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryBackend) Close(context.Context) error { return nil }
