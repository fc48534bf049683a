package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/plansync-backend/internal/data/repos"
	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

type countingSync struct {
	mu        sync.Mutex
	reindexed []string
	deleted   []string
	failOn    string
}

func (c *countingSync) Index(ctx context.Context, rec record.Object) error { return c.Reindex(ctx, rec) }

func (c *countingSync) Reindex(_ context.Context, rec record.Object) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if record.ID(rec) == c.failOn {
		return errors.New("index down")
	}
	c.reindexed = append(c.reindexed, record.ID(rec))
	return nil
}

func (c *countingSync) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, id)
	return nil
}

func TestReindexAllIsBestEffort(t *testing.T) {
	ctx := context.Background()
	store := repos.NewMemoryPlanStore()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Put(ctx, id, record.Object{"objectId": record.String(id)}))
	}
	cs := &countingSync{failOn: "b"}
	svc := NewReconcileService(logger.Nop(), store, cs, 2)

	report, err := svc.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReindexReport{Scanned: 3, Indexed: 2, Failed: 1}, report)
	assert.ElementsMatch(t, []string{"a", "c"}, cs.reindexed)
}

func TestReindexOneRemovesPlansGoneFromTheStore(t *testing.T) {
	cs := &countingSync{}
	svc := NewReconcileService(logger.Nop(), repos.NewMemoryPlanStore(), cs, 1)
	require.NoError(t, svc.ReindexOne(context.Background(), "ghost"))
	assert.Equal(t, []string{"ghost"}, cs.deleted)
}

func TestReindexOneReportsIndexOutage(t *testing.T) {
	ctx := context.Background()
	store := repos.NewMemoryPlanStore()
	require.NoError(t, store.Put(ctx, "x", record.Object{"objectId": record.String("x")}))
	svc := NewReconcileService(logger.Nop(), store, &countingSync{failOn: "x"}, 1)
	assert.ErrorIs(t, svc.ReindexOne(ctx, "x"), ErrIndexUnavailable)
}
