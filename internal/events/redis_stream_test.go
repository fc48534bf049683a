package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

func TestRedisStreamRedeliversUntilAcked(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	name := "plansync-test-" + uuid.NewString()
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), name, name+":dead").Err()
		_ = rdb.Close()
	})

	s := NewRedisStream(logger.Nop(), rdb, RedisStreamConfig{
		Stream:       name,
		Block:        100 * time.Millisecond,
		RetryBackoff: time.Millisecond,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Publish(ctx, []byte("first")))
	require.NoError(t, s.Publish(ctx, []byte("second")))

	var seen []string
	var deliveries []int64
	err := s.Subscribe(ctx, func(_ context.Context, msg Message) error {
		seen = append(seen, string(msg.Body))
		deliveries = append(deliveries, msg.Deliveries)
		if len(seen) == 1 {
			return assert.AnError
		}
		if len(seen) == 3 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "first", "second"}, seen)
	assert.Equal(t, int64(1), deliveries[0])
	assert.GreaterOrEqual(t, deliveries[1], int64(2))
}

func TestRedisStreamReplaysEntriesPendingUnderOldConsumerName(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	name := "plansync-test-" + uuid.NewString()
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), name, name+":dead").Err()
		_ = rdb.Close()
	})
	cfg := RedisStreamConfig{
		Stream:       name,
		Block:        100 * time.Millisecond,
		RetryBackoff: time.Millisecond,
	}

	podA := cfg
	podA.Consumer = "pod-a"
	a := NewRedisStream(logger.Nop(), rdb, podA)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Publish(ctx, []byte("first")))

	// pod-a takes "first" and dies before acking it.
	ctxA, stopA := context.WithCancel(ctx)
	require.NoError(t, a.Subscribe(ctxA, func(context.Context, Message) error {
		stopA()
		return assert.AnError
	}))
	require.NoError(t, a.Publish(ctx, []byte("second")))

	podB := cfg
	podB.Consumer = "pod-b"
	b := NewRedisStream(logger.Nop(), rdb, podB)
	var seen []string
	require.NoError(t, b.Subscribe(ctx, func(_ context.Context, msg Message) error {
		seen = append(seen, string(msg.Body))
		if len(seen) == 2 {
			cancel()
		}
		return nil
	}))
	assert.Equal(t, []string{"first", "second"}, seen)
}
