package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
)

type AMQPConfig struct {
	URL          string        `yaml:"url"`
	Queue        string        `yaml:"queue"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// AMQPStream is a Stream on a durable RabbitMQ queue. The connection is
// opened lazily and reopened after the broker drops it. Prefetch is one, so
// a rejected message is requeued ahead of everything behind it.
type AMQPStream struct {
	cfg AMQPConfig
	log *logger.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	// RabbitMQ classic queues do not count redeliveries.
	attemptsMu sync.Mutex
	attempts   map[string]int64
}

var _ Stream = (*AMQPStream)(nil)

func NewAMQPStream(log *logger.Logger, cfg AMQPConfig) *AMQPStream {
	if cfg.Queue == "" {
		cfg.Queue = "planQueue"
	}
	return &AMQPStream{
		cfg:      cfg,
		log:      log.With("queue", cfg.Queue),
		attempts: map[string]int64{},
	}
}

func (s *AMQPStream) deadQueue() string { return s.cfg.Queue + ".dead" }

func (s *AMQPStream) channel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	if s.conn == nil || s.conn.IsClosed() {
		conn, err := amqp.Dial(s.cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: dial: %v", ErrUnavailable, err)
		}
		s.conn = conn
		s.log.Info("Connected to RabbitMQ")
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: channel: %v", ErrUnavailable, err)
	}
	for _, q := range []string{s.cfg.Queue, s.deadQueue()} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("%w: declare %s: %v", ErrUnavailable, q, err)
		}
	}
	s.ch = ch
	return ch, nil
}

func (s *AMQPStream) publish(ctx context.Context, queue string, body []byte, headers amqp.Table) error {
	ch, err := s.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *AMQPStream) Publish(ctx context.Context, body []byte) error {
	return s.publish(ctx, s.cfg.Queue, body, nil)
}

func (s *AMQPStream) Subscribe(ctx context.Context, h Handler) error {
	for ctx.Err() == nil {
		if err := s.consume(ctx, h); err != nil {
			s.log.Warn("amqp consume interrupted", "error", err)
			if !sleepCtx(ctx, s.cfg.RetryBackoff) {
				return nil
			}
		}
	}
	return nil
}

func (s *AMQPStream) consume(ctx context.Context, h Handler) error {
	ch, err := s.channel()
	if err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%w: qos: %v", ErrUnavailable, err)
	}
	deliveries, err := ch.Consume(s.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume: %v", ErrUnavailable, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%w: delivery channel closed", ErrUnavailable)
			}
			s.handle(ctx, d, h)
		}
	}
}

func (s *AMQPStream) handle(ctx context.Context, d amqp.Delivery, h Handler) {
	id := d.MessageId
	if id == "" {
		id = fmt.Sprintf("tag-%d", d.DeliveryTag)
	}
	s.attemptsMu.Lock()
	s.attempts[id]++
	n := s.attempts[id]
	s.attemptsMu.Unlock()

	if err := h(ctx, Message{ID: id, Body: d.Body, Deliveries: n}); err != nil {
		sleepCtx(ctx, s.cfg.RetryBackoff)
		if nerr := d.Nack(false, true); nerr != nil {
			s.log.Warn("amqp nack failed", "id", id, "error", nerr)
		}
		return
	}
	// A failed ack means the channel is gone and the broker redelivers it.
	s.forget(id)
	if err := d.Ack(false); err != nil {
		s.log.Warn("amqp ack failed", "id", id, "error", err)
	}
}

func (s *AMQPStream) forget(id string) {
	s.attemptsMu.Lock()
	delete(s.attempts, id)
	s.attemptsMu.Unlock()
}

func (s *AMQPStream) DeadLetter(ctx context.Context, msg Message, reason error) error {
	r := ""
	if reason != nil {
		r = reason.Error()
	}
	return s.publish(ctx, s.deadQueue(), msg.Body, amqp.Table{
		"x-source-id":  msg.ID,
		"x-reason":     r,
		"x-deliveries": msg.Deliveries,
	})
}

func (s *AMQPStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}
