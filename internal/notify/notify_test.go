package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venueattend/internal/model"
	"venueattend/internal/queue"
)

func sampleRecord() (*model.Member, *model.Attendance) {
	phone := "+2348000000000"
	sched := "sched-1"
	m := &model.Member{ID: "m1", Code: "LA/24A/0001", FullName: "Ada Obi", Email: "ada@example.com", Phone: &phone}
	rec := &model.Attendance{
		ID:         "a1",
		MemberID:   "m1",
		LocationID: "loc-1",
		ScheduleID: &sched,
		CheckIn:    time.Date(2026, 3, 2, 7, 55, 0, 0, time.UTC),
		Date:       model.Date{Year: 2026, Month: time.March, Day: 2},
		Method:     model.MethodPIN,
		Status:     model.StatusOnTime,
	}
	return m, rec
}

func TestQueueNotifierPublishesEvent(t *testing.T) {
	q := queue.NewInMemory(1)
	n := NewQueueNotifier(q)
	m, rec := sampleRecord()

	require.NoError(t, n.AttendanceMarked(context.Background(), m, rec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-msgs

	assert.Equal(t, TypeAttendanceMarked, msg.Type)
	ev, err := DecodeEvent(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, "a1", ev.AttendanceID)
	assert.Equal(t, "LA/24A/0001", ev.MemberCode)
	assert.Equal(t, "Ada Obi", ev.MemberName)
	assert.Equal(t, "+2348000000000", ev.Phone)
	assert.Equal(t, "sched-1", ev.ScheduleID)
	assert.Equal(t, rec.Date, ev.Date)
	assert.Equal(t, model.StatusOnTime, ev.Status)
}

func TestQueueNotifierSurfacesQueueErrors(t *testing.T) {
	q := queue.NewInMemory(0)
	n := NewQueueNotifier(q)
	m, rec := sampleRecord()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n.AttendanceMarked(ctx, m, rec)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent([]byte("not json"))
	assert.Error(t, err)
}

type fakeChannel struct {
	mu        sync.Mutex
	declared  []string
	published []amqp.Publishing
	keys      []string
	failNext  int
	closed    int
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return errors.New("channel closed")
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func fakeDialer(ch *fakeChannel, dials *int) Dialer {
	return func(string) (Channel, func() error, error) {
		*dials++
		return ch, func() error { return nil }, nil
	}
}

func TestAMQPForwarderPublishesPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	dials := 0
	f := NewAMQPForwarder("amqp://test", WithDialer(fakeDialer(ch, &dials)), WithExchange("attend.x"))

	body := []byte(`{"attendance_id":"a1"}`)
	require.NoError(t, f.Forward(context.Background(), queue.Message{Type: TypeAttendanceMarked, Body: body}))
	require.NoError(t, f.Forward(context.Background(), queue.Message{Type: TypeAttendanceMarked, Body: body}))

	assert.Equal(t, 1, dials, "channel is reused")
	assert.Equal(t, []string{"attend.x:topic"}, ch.declared)
	require.Len(t, ch.published, 2)
	assert.Equal(t, "attend.x/attendance.marked", ch.keys[0])
	assert.Equal(t, "application/json", ch.published[0].ContentType)
	assert.Equal(t, amqp.Persistent, ch.published[0].DeliveryMode)
	assert.Equal(t, body, ch.published[0].Body)
}

func TestAMQPForwarderRedialsAfterFailure(t *testing.T) {
	ch := &fakeChannel{failNext: 1}
	dials := 0
	f := NewAMQPForwarder("amqp://test", WithDialer(fakeDialer(ch, &dials)))

	msg := queue.Message{Type: TypeAttendanceMarked, Body: []byte(`{}`)}
	assert.Error(t, f.Forward(context.Background(), msg))
	assert.Equal(t, 1, ch.closed)

	require.NoError(t, f.Forward(context.Background(), msg))
	assert.Equal(t, 2, dials)
	require.NoError(t, f.Close())
}

func TestAMQPForwarderRejectsUntypedMessage(t *testing.T) {
	f := NewAMQPForwarder("amqp://test", WithDialer(func(string) (Channel, func() error, error) {
		t.Fatal("should not dial")
		return nil, nil, nil
	}))
	assert.Error(t, f.Forward(context.Background(), queue.Message{}))
}

type flakyForwarder struct {
	mu       sync.Mutex
	failures int
	got      []queue.Message
}

func (f *flakyForwarder) Forward(_ context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker down")
	}
	f.got = append(f.got, msg)
	return nil
}

func (f *flakyForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type countingRecorder struct {
	mu                sync.Mutex
	forwarded, failed int
}

func (r *countingRecorder) EventForwarded() { r.mu.Lock(); r.forwarded++; r.mu.Unlock() }
func (r *countingRecorder) NotifyFailed()   { r.mu.Lock(); r.failed++; r.mu.Unlock() }

func (r *countingRecorder) snapshot() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.forwarded, r.failed
}

func TestRelayRetriesThenForwards(t *testing.T) {
	q := queue.NewInMemory(4)
	fwd := &flakyForwarder{failures: 2}
	rec := &countingRecorder{}
	relay := NewRelay(q, fwd, WithRetry(3, time.Millisecond), WithRelayRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.NoError(t, q.Publish(ctx, queue.Message{Type: TypeAttendanceMarked, Body: []byte(`{}`)}))
	require.Eventually(t, func() bool { return fwd.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	forwarded, failed := rec.snapshot()
	assert.Equal(t, 1, forwarded)
	assert.Equal(t, 0, failed)
}

func TestRelayDropsAfterRetriesExhausted(t *testing.T) {
	q := queue.NewInMemory(4)
	fwd := &flakyForwarder{failures: 100}
	rec := &countingRecorder{}
	relay := NewRelay(q, fwd, WithRetry(1, time.Millisecond), WithRelayRecorder(rec))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relay.Run(ctx) }()

	require.NoError(t, q.Publish(ctx, queue.Message{Type: TypeAttendanceMarked, Body: []byte(`{}`)}))
	require.Eventually(t, func() bool {
		_, failed := rec.snapshot()
		return failed == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, fwd.count())
}
