package events

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

func TestAMQPStreamRequeuesAtTheHead(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set")
	}
	s := NewAMQPStream(logger.Nop(), AMQPConfig{
		URL:          url,
		Queue:        "plansync-test-" + uuid.NewString(),
		RetryBackoff: time.Millisecond,
	})
	t.Cleanup(func() {
		if ch, err := s.channel(); err == nil {
			_, _ = ch.QueueDelete(s.cfg.Queue, false, false, false)
			_, _ = ch.QueueDelete(s.deadQueue(), false, false, false)
		}
		_ = s.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Publish(ctx, []byte("first")))
	require.NoError(t, s.Publish(ctx, []byte("second")))

	var seen []string
	var deliveries []int64
	err := s.Subscribe(ctx, func(_ context.Context, msg Message) error {
		seen = append(seen, string(msg.Body))
		deliveries = append(deliveries, msg.Deliveries)
		switch len(seen) {
		case 1:
			return errors.New("index down")
		case 3:
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "first", "second"}, seen)
	assert.Equal(t, []int64{1, 2, 1}, deliveries)

	require.NoError(t, s.DeadLetter(context.Background(), Message{ID: "m1", Body: []byte("bad")}, errors.New("malformed")))
	ch, err := s.channel()
	require.NoError(t, err)
	d, ok, err := ch.Get(s.deadQueue(), true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bad", string(d.Body))
	assert.Equal(t, "malformed", d.Headers["x-reason"])
}

type stubAcknowledger struct {
	ackErr error
	acks   int
	nacks  int
}

func (a *stubAcknowledger) Ack(uint64, bool) error { a.acks++; return a.ackErr }

func (a *stubAcknowledger) Nack(uint64, bool, bool) error { a.nacks++; return nil }

func (a *stubAcknowledger) Reject(uint64, bool) error { return nil }

func TestAMQPStreamForgetsAttemptsOnceHandled(t *testing.T) {
	s := NewAMQPStream(logger.Nop(), AMQPConfig{RetryBackoff: time.Millisecond})
	ctx := context.Background()

	var got []int64
	fail := true
	h := func(_ context.Context, msg Message) error {
		got = append(got, msg.Deliveries)
		if fail {
			return assert.AnError
		}
		return nil
	}

	for name, ackErr := range map[string]error{"acked": nil, "ack failed": amqp.ErrClosed} {
		t.Run(name, func(t *testing.T) {
			got, fail = nil, true
			ack := &stubAcknowledger{ackErr: ackErr}
			d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, MessageId: "m-" + name}

			s.handle(ctx, d, h)
			fail = false
			s.handle(ctx, d, h)

			assert.Equal(t, []int64{1, 2}, got)
			assert.Equal(t, 1, ack.nacks)
			assert.Equal(t, 1, ack.acks)
			s.attemptsMu.Lock()
			assert.Empty(t, s.attempts)
			s.attemptsMu.Unlock()
		})
	}
}
