package repos

import (
	"context"
	"sort"
	"sync"

	"github.com/yungbote/plansync-backend/internal/record"
)

var _ PlanStore = (*MemoryPlanStore)(nil)

// MemoryPlanStore is an in-process PlanStore for tests and single-process
// development runs. Records are stored canonically encoded, like Redis.
type MemoryPlanStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryPlanStore() *MemoryPlanStore {
	return &MemoryPlanStore{data: map[string][]byte{}}
}

func (m *MemoryPlanStore) Put(ctx context.Context, id string, rec record.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := record.MarshalCanonical(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = raw
	return nil
}

func (m *MemoryPlanStore) Get(ctx context.Context, id string) (record.Object, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	raw, ok := m.data[id]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	obj, err := record.ParseObject(raw)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (m *MemoryPlanStore) Delete(ctx context.Context, id string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return 0, nil
	}
	delete(m.data, id)
	return 1, nil
}

// Update holds the store lock for the whole read-modify-write, so it never
// reports ErrConflict.
func (m *MemoryPlanStore) Update(ctx context.Context, id string, fn UpdateFunc) (record.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur record.Object
	raw, exists := m.data[id]
	if exists {
		obj, err := record.ParseObject(raw)
		if err != nil {
			return nil, err
		}
		cur = obj
	}
	next, err := fn(cur, exists)
	if err != nil {
		return nil, err
	}
	enc, err := record.MarshalCanonical(next)
	if err != nil {
		return nil, err
	}
	m.data[id] = enc
	return next, nil
}

func (m *MemoryPlanStore) ScanIDs(ctx context.Context, fn func(id string) error) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}
