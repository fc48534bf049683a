package events

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStream is an in-process Stream with the same ordering and
// redelivery rules as the broker-backed ones. Nothing survives a restart.
type MemoryStream struct {
	mu      sync.Mutex
	queue   []Message
	dead    []DeadLetter
	seq     int64
	wake    chan struct{}
	backoff time.Duration
	closed  bool
}

type DeadLetter struct {
	Message Message
	Reason  string
}

var _ Stream = (*MemoryStream)(nil)

func NewMemoryStream(retryBackoff time.Duration) *MemoryStream {
	return &MemoryStream{wake: make(chan struct{}, 1), backoff: retryBackoff}
}

func (s *MemoryStream) Publish(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrUnavailable
	}
	s.seq++
	s.queue = append(s.queue, Message{ID: strconv.FormatInt(s.seq, 10), Body: append([]byte(nil), body...)})
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *MemoryStream) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *MemoryStream) Subscribe(ctx context.Context, h Handler) error {
	for {
		msg, ok := s.head()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
				continue
			}
		}
		if err := h(ctx, msg); err != nil {
			if !sleepCtx(ctx, s.backoff) {
				return nil
			}
			continue
		}
		s.ack(msg.ID)
	}
}

// head marks the first message as delivered once more and returns it.
func (s *MemoryStream) head() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Message{}, false
	}
	s.queue[0].Deliveries++
	return s.queue[0], true
}

func (s *MemoryStream) ack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 && s.queue[0].ID == id {
		s.queue = s.queue[1:]
	}
}

func (s *MemoryStream) DeadLetter(_ context.Context, msg Message, reason error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := ""
	if reason != nil {
		r = reason.Error()
	}
	s.dead = append(s.dead, DeadLetter{Message: msg, Reason: r})
	return nil
}

// Pending returns the number of unacknowledged messages.
func (s *MemoryStream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *MemoryStream) DeadLetters() []DeadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetter(nil), s.dead...)
}

func (s *MemoryStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
