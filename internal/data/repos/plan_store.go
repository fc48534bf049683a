package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

var (
	// ErrConflict means the key changed between the read and the write of
	// an Update.
	ErrConflict = errors.New("plan store: concurrent modification")
	// ErrUnavailable wraps connectivity and I/O failures of the backing store.
	ErrUnavailable = errors.New("plan store: unavailable")
)

// UpdateFunc receives the current record (nil, false when absent) and
// returns the record to store. Returning an error aborts without writing.
type UpdateFunc func(current record.Object, exists bool) (record.Object, error)

// PlanStore keeps whole records by primary key. There are no partial writes
// and no multi-key transactions.
type PlanStore interface {
	Put(ctx context.Context, id string, rec record.Object) error
	Get(ctx context.Context, id string) (record.Object, bool, error)
	Delete(ctx context.Context, id string) (int64, error)
	// Update runs fn against the current value and stores its result only if
	// the key was not modified in between; otherwise it returns ErrConflict.
	Update(ctx context.Context, id string, fn UpdateFunc) (record.Object, error)
	ScanIDs(ctx context.Context, fn func(id string) error) error
}

type redisPlanStore struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewRedisPlanStore(log *logger.Logger, rdb *goredis.Client, prefix string) PlanStore {
	return &redisPlanStore{
		log:    log.With("repo", "RedisPlanStore"),
		rdb:    rdb,
		prefix: prefix,
	}
}

func (s *redisPlanStore) key(id string) string { return s.prefix + id }

func (s *redisPlanStore) Put(ctx context.Context, id string, rec record.Object) error {
	raw, err := record.MarshalCanonical(rec)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, s.key(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %w", ErrUnavailable, id, err)
	}
	return nil
}

func (s *redisPlanStore) Get(ctx context.Context, id string) (record.Object, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %w", ErrUnavailable, id, err)
	}
	obj, err := record.ParseObject(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode stored plan %s: %w", id, err)
	}
	return obj, true, nil
}

func (s *redisPlanStore) Delete(ctx context.Context, id string) (int64, error) {
	n, err := s.rdb.Del(ctx, s.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: del %s: %w", ErrUnavailable, id, err)
	}
	return n, nil
}

func (s *redisPlanStore) Update(ctx context.Context, id string, fn UpdateFunc) (record.Object, error) {
	key := s.key(id)
	var out record.Object
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		cur, exists, err := s.readTx(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(cur, exists)
		if err != nil {
			return err
		}
		raw, err := record.MarshalCanonical(next)
		if err != nil {
			return fmt.Errorf("encode plan %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}, key)

	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, goredis.TxFailedErr):
		s.log.Debug("Optimistic write lost the race", "object_id", id)
		return nil, ErrConflict
	case isRedisIOError(err):
		return nil, fmt.Errorf("%w: update %s: %w", ErrUnavailable, id, err)
	default:
		return nil, err
	}
}

func (s *redisPlanStore) readTx(ctx context.Context, tx *goredis.Tx, key string) (record.Object, bool, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, redisIOError{err}
	}
	obj, err := record.ParseObject(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode stored plan %s: %w", strings.TrimPrefix(key, s.prefix), err)
	}
	return obj, true, nil
}

func (s *redisPlanStore) ScanIDs(ctx context.Context, fn func(id string) error) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		if err := fn(strings.TrimPrefix(iter.Val(), s.prefix)); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scan: %w", ErrUnavailable, err)
	}
	return nil
}

// redisIOError marks errors raised by the client inside a WATCH callback so
// they can be told apart from errors returned by the UpdateFunc.
type redisIOError struct{ err error }

func (e redisIOError) Error() string { return e.err.Error() }
func (e redisIOError) Unwrap() error { return e.err }

func isRedisIOError(err error) bool {
	var rerr redisIOError
	if errors.As(err, &rerr) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, goredis.ErrClosed)
}
