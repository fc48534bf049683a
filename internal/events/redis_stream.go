package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type RedisStreamConfig struct {
	Stream       string        `yaml:"stream"`
	Group        string        `yaml:"group"`
	Consumer     string        `yaml:"consumer"`
	Block        time.Duration `yaml:"block"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	// ClaimMinIdle is how long an entry must sit pending under another
	// consumer name before Subscribe takes it over.
	ClaimMinIdle time.Duration `yaml:"claim_min_idle"`
}

// RedisStream is a Stream on a Redis stream read through one consumer group.
// Unacknowledged entries stay in the group's pending list and are always
// re-read before new entries, which keeps processing in publish order.
// Entries left pending under an earlier consumer name are claimed when
// Subscribe starts.
type RedisStream struct {
	rdb goredis.UniversalClient
	cfg RedisStreamConfig
	log *logger.Logger

	// attempts counts local deliveries per entry; XPENDING's counter is
	// preferred when it is higher.
	attempts map[string]int64
}

var _ Stream = (*RedisStream)(nil)

func NewRedisStream(log *logger.Logger, rdb goredis.UniversalClient, cfg RedisStreamConfig) *RedisStream {
	if cfg.Stream == "" {
		cfg.Stream = "planQueue"
	}
	if cfg.Group == "" {
		cfg.Group = "plan-indexer"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "indexer-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &RedisStream{
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With("stream", cfg.Stream, "group", cfg.Group),
		attempts: map[string]int64{},
	}
}

func (s *RedisStream) deadStream() string { return s.cfg.Stream + ":dead" }

func (s *RedisStream) Publish(ctx context.Context, body []byte) error {
	err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.cfg.Stream,
		Values: map[string]interface{}{"body": string(body)},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: xadd: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStream) ensureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: create group: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStream) Subscribe(ctx context.Context, h Handler) error {
	if err := s.ensureGroup(ctx); err != nil {
		return err
	}
	if err := s.claimPending(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, ok, err := s.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("stream read failed", "error", err)
			if !sleepCtx(ctx, s.cfg.RetryBackoff) {
				return nil
			}
			continue
		}
		if !ok {
			continue
		}
		if err := h(ctx, msg); err != nil {
			if !sleepCtx(ctx, s.cfg.RetryBackoff) {
				return nil
			}
			continue
		}
		if err := s.rdb.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil {
			// The entry stays pending and is delivered again.
			s.log.Warn("stream ack failed", "id", msg.ID, "error", err)
			continue
		}
		delete(s.attempts, msg.ID)
	}
}

// claimPending moves every idle entry pending in the group to this consumer
// so a restart under a new name still replays it before anything newer.
func (s *RedisStream) claimPending(ctx context.Context) error {
	start := "0-0"
	claimed := 0
	for {
		ids, cursor, err := s.rdb.XAutoClaimJustID(ctx, &goredis.XAutoClaimArgs{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ClaimMinIdle,
			Start:    start,
			Count:    100,
		}).Result()
		if err != nil {
			return fmt.Errorf("%w: claim pending: %v", ErrUnavailable, err)
		}
		claimed += len(ids)
		if cursor == "" || cursor == "0-0" {
			break
		}
		start = cursor
	}
	if claimed > 0 {
		s.log.Info("claimed pending entries", "consumer", s.cfg.Consumer, "count", claimed)
	}
	return nil
}

// next returns the oldest pending entry for this consumer, or blocks for a
// new one when nothing is pending.
func (s *RedisStream) next(ctx context.Context) (Message, bool, error) {
	msg, ok, err := s.read(ctx, "0", -1)
	if err != nil || ok {
		return msg, ok, err
	}
	return s.read(ctx, ">", s.cfg.Block)
}

func (s *RedisStream) read(ctx context.Context, from string, block time.Duration) (Message, bool, error) {
	res, err := s.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, from},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	for _, st := range res {
		for _, xm := range st.Messages {
			body, _ := xm.Values["body"].(string)
			s.attempts[xm.ID]++
			deliveries := s.attempts[xm.ID]
			if n := s.retryCount(ctx, xm.ID); n > deliveries {
				deliveries = n
			}
			return Message{ID: xm.ID, Body: []byte(body), Deliveries: deliveries}, true, nil
		}
	}
	return Message{}, false, nil
}

func (s *RedisStream) retryCount(ctx context.Context, id string) int64 {
	pend, err := s.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: s.cfg.Stream,
		Group:  s.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pend) == 0 {
		return 0
	}
	return pend[0].RetryCount
}

func (s *RedisStream) DeadLetter(ctx context.Context, msg Message, reason error) error {
	r := ""
	if reason != nil {
		r = reason.Error()
	}
	err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.deadStream(),
		Values: map[string]interface{}{
			"body":       string(msg.Body),
			"source_id":  msg.ID,
			"reason":     r,
			"deliveries": msg.Deliveries,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: dead letter: %v", ErrUnavailable, err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (s *RedisStream) Close() error { return nil }
