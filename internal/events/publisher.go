package events

import (
	"context"
	"time"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type publisher struct {
	stream Stream
	log    *logger.Logger
	now    func() time.Time
}

func NewPublisher(log *logger.Logger, stream Stream) Publisher {
	return &publisher{stream: stream, log: log.With("component", "EventPublisher"), now: time.Now}
}

func (p *publisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = p.now()
	}
	body, err := Encode(e)
	if err != nil {
		return err
	}
	if err := p.stream.Publish(ctx, body); err != nil {
		return err
	}
	p.log.Debug("event published", "kind", e.Kind, "object_id", e.Key())
	return nil
}
