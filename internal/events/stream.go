package events

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/plansync-backend/internal/pkg/httpx"
)

// ErrUnavailable wraps broker connectivity failures.
var ErrUnavailable = errors.New("events: stream unavailable")

// Message is one delivery of a published body. Deliveries counts this
// delivery, so it is 1 the first time a message is seen.
type Message struct {
	ID         string
	Body       []byte
	Deliveries int64
}

// Handler processes one message. Returning nil acknowledges it; returning an
// error leaves it unacknowledged and the stream delivers it again before
// anything published after it.
type Handler func(ctx context.Context, msg Message) error

// Stream is an ordered, durable, at-least-once event log with a single
// logical consumer.
type Stream interface {
	Publish(ctx context.Context, body []byte) error
	// Subscribe blocks, feeding messages to h in publish order until ctx is
	// cancelled.
	Subscribe(ctx context.Context, h Handler) error
	// DeadLetter parks a message that will never succeed, with the reason.
	DeadLetter(ctx context.Context, msg Message, reason error) error
	Close() error
}

// sleepCtx waits about d, jittered, and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(httpx.JitterSleep(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
