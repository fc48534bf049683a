package events

import (
	"context"
	"fmt"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

// Synchronizer applies events to the secondary index.
type Synchronizer interface {
	Index(ctx context.Context, rec record.Object) error
	Reindex(ctx context.Context, rec record.Object) error
	Delete(ctx context.Context, objectID string) error
}

type ConsumerConfig struct {
	// MaxDeliveries is how many times a failing message is attempted before
	// it is dead-lettered. Zero retries forever.
	MaxDeliveries int64
	// Permanent reports errors that can never succeed on retry; a message
	// failing with one of them is dead-lettered on first sight.
	Permanent func(err error) bool
}

type dispatchFunc func(ctx context.Context, e Event) error

// Consumer drains the stream into the index, one event at a time.
type Consumer struct {
	stream   Stream
	sync     Synchronizer
	cfg      ConsumerConfig
	log      *logger.Logger
	dispatch map[Kind]dispatchFunc
}

func NewConsumer(log *logger.Logger, stream Stream, sync Synchronizer, cfg ConsumerConfig) *Consumer {
	c := &Consumer{
		stream: stream,
		sync:   sync,
		cfg:    cfg,
		log:    log.With("component", "EventConsumer"),
	}
	c.dispatch = map[Kind]dispatchFunc{
		KindCreate: func(ctx context.Context, e Event) error { return c.sync.Index(ctx, e.Record) },
		KindUpdate: func(ctx context.Context, e Event) error { return c.sync.Reindex(ctx, e.Record) },
		KindDelete: func(ctx context.Context, e Event) error { return c.sync.Delete(ctx, e.ObjectID) },
	}
	return c
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("Starting event consumer", "max_deliveries", c.cfg.MaxDeliveries)
	err := c.stream.Subscribe(ctx, c.Handle)
	c.log.Info("Event consumer stopped")
	return err
}

// Handle processes one delivery. A nil return acknowledges it.
func (c *Consumer) Handle(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Event handler panic", "message_id", msg.ID, "panic", r)
			err = fmt.Errorf("panic handling message %s: %v", msg.ID, r)
		}
	}()

	e, err := Decode(msg.Body)
	if err != nil {
		return c.deadLetter(ctx, msg, err)
	}
	fn, ok := c.dispatch[e.Kind]
	if !ok {
		return c.deadLetter(ctx, msg, fmt.Errorf("%w: no handler for %q", ErrMalformed, e.Kind))
	}

	err = fn(ctx, e)
	if err == nil {
		c.log.Debug("event applied", "kind", e.Kind, "object_id", e.Key(), "message_id", msg.ID)
		return nil
	}
	if c.permanent(err) {
		return c.deadLetter(ctx, msg, err)
	}
	if c.cfg.MaxDeliveries > 0 && msg.Deliveries >= c.cfg.MaxDeliveries {
		return c.deadLetter(ctx, msg, fmt.Errorf("gave up after %d deliveries: %w", msg.Deliveries, err))
	}
	c.log.Warn("event failed, will retry",
		"kind", e.Kind,
		"object_id", e.Key(),
		"message_id", msg.ID,
		"deliveries", msg.Deliveries,
		"error", err,
	)
	return err
}

func (c *Consumer) permanent(err error) bool {
	return c.cfg.Permanent != nil && c.cfg.Permanent(err)
}

// deadLetter parks msg and acknowledges it. If parking fails the message is
// left unacknowledged so it is not lost.
func (c *Consumer) deadLetter(ctx context.Context, msg Message, reason error) error {
	if err := c.stream.DeadLetter(ctx, msg, reason); err != nil {
		c.log.Error("dead letter failed", "message_id", msg.ID, "error", err)
		return err
	}
	c.log.Error("event dead-lettered", "message_id", msg.ID, "deliveries", msg.Deliveries, "reason", reason)
	return nil
}
