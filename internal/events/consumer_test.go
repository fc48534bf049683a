package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/plansync-backend/internal/platform/logger"
	"github.com/yungbote/plansync-backend/internal/record"
)

var errPermanent = errors.New("bad record")

type call struct {
	op string
	id string
}

type fakeSync struct {
	mu       sync.Mutex
	calls    []call
	failures map[string]int
	err      error
}

func (f *fakeSync) record(op, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op, id})
	if f.failures[id] > 0 {
		f.failures[id]--
		if f.err != nil {
			return f.err
		}
		return errors.New("index down")
	}
	return nil
}

func (f *fakeSync) Index(_ context.Context, rec record.Object) error {
	return f.record("index", record.ID(rec))
}
func (f *fakeSync) Reindex(_ context.Context, rec record.Object) error {
	return f.record("reindex", record.ID(rec))
}
func (f *fakeSync) Delete(_ context.Context, id string) error { return f.record("delete", id) }

func (f *fakeSync) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func publish(t *testing.T, p Publisher, e Event) {
	t.Helper()
	require.NoError(t, p.Publish(context.Background(), e))
}

func plan(id string) record.Object { return record.Object{"objectId": record.String(id)} }

func runUntilDrained(t *testing.T, stream *MemoryStream, c *Consumer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	require.Eventually(t, func() bool { return stream.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestConsumerAppliesEventsInPublishOrder(t *testing.T) {
	stream := NewMemoryStream(0)
	fs := &fakeSync{}
	p := NewPublisher(logger.Nop(), stream)
	publish(t, p, Event{Kind: KindCreate, Record: plan("a")})
	publish(t, p, Event{Kind: KindUpdate, Record: plan("a")})
	publish(t, p, Event{Kind: KindDelete, ObjectID: "a"})

	runUntilDrained(t, stream, NewConsumer(logger.Nop(), stream, fs, ConsumerConfig{MaxDeliveries: 3}))

	assert.Equal(t, []call{{"index", "a"}, {"reindex", "a"}, {"delete", "a"}}, fs.snapshot())
	assert.Empty(t, stream.DeadLetters())
}

func TestConsumerRetriesFailedEventBeforeLaterOnes(t *testing.T) {
	stream := NewMemoryStream(time.Millisecond)
	fs := &fakeSync{failures: map[string]int{"a": 2}}
	p := NewPublisher(logger.Nop(), stream)
	publish(t, p, Event{Kind: KindCreate, Record: plan("a")})
	publish(t, p, Event{Kind: KindCreate, Record: plan("b")})

	runUntilDrained(t, stream, NewConsumer(logger.Nop(), stream, fs, ConsumerConfig{MaxDeliveries: 5}))

	assert.Equal(t, []call{{"index", "a"}, {"index", "a"}, {"index", "a"}, {"index", "b"}}, fs.snapshot())
	assert.Empty(t, stream.DeadLetters())
}

func TestConsumerDeadLettersAfterMaxDeliveries(t *testing.T) {
	stream := NewMemoryStream(time.Millisecond)
	fs := &fakeSync{failures: map[string]int{"a": 100}}
	p := NewPublisher(logger.Nop(), stream)
	publish(t, p, Event{Kind: KindCreate, Record: plan("a")})
	publish(t, p, Event{Kind: KindCreate, Record: plan("b")})

	runUntilDrained(t, stream, NewConsumer(logger.Nop(), stream, fs, ConsumerConfig{MaxDeliveries: 3}))

	calls := fs.snapshot()
	require.Len(t, calls, 4)
	assert.Equal(t, call{"index", "b"}, calls[3])
	dead := stream.DeadLetters()
	require.Len(t, dead, 1)
	assert.EqualValues(t, 3, dead[0].Message.Deliveries)
	assert.Contains(t, dead[0].Reason, "gave up after 3 deliveries")
}

func TestConsumerDeadLettersPermanentFailuresImmediately(t *testing.T) {
	stream := NewMemoryStream(time.Millisecond)
	fs := &fakeSync{failures: map[string]int{"a": 1}, err: errPermanent}
	p := NewPublisher(logger.Nop(), stream)
	publish(t, p, Event{Kind: KindCreate, Record: plan("a")})

	c := NewConsumer(logger.Nop(), stream, fs, ConsumerConfig{MaxDeliveries: 5, Permanent: func(err error) bool { return errors.Is(err, errPermanent) }})
	runUntilDrained(t, stream, c)

	assert.Len(t, fs.snapshot(), 1)
	require.Len(t, stream.DeadLetters(), 1)
}

func TestConsumerDeadLettersMalformedMessages(t *testing.T) {
	stream := NewMemoryStream(0)
	require.NoError(t, stream.Publish(context.Background(), []byte(`{"action":"explode"}`)))
	fs := &fakeSync{}

	runUntilDrained(t, stream, NewConsumer(logger.Nop(), stream, fs, ConsumerConfig{MaxDeliveries: 5}))

	assert.Empty(t, fs.snapshot())
	dead := stream.DeadLetters()
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].Reason, "unknown kind")
}

func TestConsumerRecoversFromHandlerPanic(t *testing.T) {
	stream := NewMemoryStream(0)
	c := NewConsumer(logger.Nop(), stream, &fakeSync{}, ConsumerConfig{})
	c.dispatch[KindCreate] = func(context.Context, Event) error { panic("boom") }

	body, err := Encode(Event{Kind: KindCreate, Record: plan("a")})
	require.NoError(t, err)
	err = c.Handle(context.Background(), Message{ID: "1", Body: body, Deliveries: 1})
	assert.ErrorContains(t, err, "panic")
}
