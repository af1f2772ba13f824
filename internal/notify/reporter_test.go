package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type call struct {
	op string
	n  Notification
}

type fakeSink struct {
	mu     sync.Mutex
	calls  []call
	closed chan string
}

func newFakeSink() *fakeSink {
	return &fakeSink{closed: make(chan string, 16)}
}

func (s *fakeSink) Show(n Notification)   { s.add(call{"show", n}) }
func (s *fakeSink) Update(n Notification) { s.add(call{"update", n}) }

func (s *fakeSink) Close(id string) {
	s.add(call{"close", Notification{ID: id}})
	s.closed <- id
}

func (s *fakeSink) add(c call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *fakeSink) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.op + ":" + c.n.ID
	}
	return out
}

func TestReporter_ShowUpdateClose(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())
	defer r.Shutdown()

	r.Show(Notification{ID: "tx1", Title: "Confirm in wallet", Status: StatusInfo})
	ok := r.Update("tx1", func(n *Notification) {
		n.Title = "Transaction Pending"
		n.Status = StatusPending
		n.ID = "ignored"
	})
	require.True(t, ok)

	got, ok := r.Get("tx1")
	require.True(t, ok)
	assert.Equal(t, "Transaction Pending", got.Title)
	assert.Equal(t, "tx1", got.ID)

	r.Close("tx1")
	_, ok = r.Get("tx1")
	assert.False(t, ok)
	assert.Equal(t, []string{"show:tx1", "update:tx1", "close:tx1"}, sink.ops())
}

func TestReporter_CloseIsIdempotent(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())

	r.Show(Notification{ID: "tx1"})
	r.Close("tx1")
	r.Close("tx1")
	r.Close("never-shown")

	assert.Equal(t, []string{"show:tx1", "close:tx1"}, sink.ops())
}

func TestReporter_UpdateUnknown(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())

	assert.False(t, r.Update("missing", func(*Notification) {}))
	assert.Empty(t, sink.ops())
}

func TestReporter_ShowReplacesInPlace(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())
	defer r.Shutdown()

	r.Show(Notification{ID: "tx1", Title: "one"})
	r.Show(Notification{ID: "tx1", Title: "two"})

	assert.Equal(t, []string{"show:tx1", "update:tx1"}, sink.ops())
	assert.Len(t, r.Active(), 1)
}

func TestReporter_AutoClose(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())

	r.Show(Notification{ID: "tx1", Status: StatusSuccess, Duration: 10 * time.Millisecond})

	select {
	case id := <-sink.closed:
		assert.Equal(t, "tx1", id)
	case <-time.After(time.Second):
		t.Fatal("notification was not auto-closed")
	}
	assert.Empty(t, r.Active())
}

func TestReporter_StickyStaysOpen(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())

	r.Show(Notification{ID: "tx1", Status: StatusPending})
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, r.Active(), 1)
	r.Shutdown()
	assert.Empty(t, r.Active())
}

func TestReporter_UpdateToStickyStopsTimer(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())
	defer r.Shutdown()

	r.Show(Notification{ID: "tx1", Duration: 10 * time.Millisecond})
	r.Update("tx1", func(n *Notification) { n.Duration = 0 })

	time.Sleep(30 * time.Millisecond)
	_, ok := r.Get("tx1")
	assert.True(t, ok)
}

func TestReporter_StaleTimerDoesNotCloseReusedID(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())
	defer r.Shutdown()

	r.Show(Notification{ID: "tx1", Duration: 5 * time.Millisecond})
	// Simulate a timer that fired but lost the race for the lock.
	r.mu.Lock()
	staleGen := r.slots["tx1"].gen
	r.mu.Unlock()

	r.Close("tx1")
	r.Show(Notification{ID: "tx1", Title: "later", Status: StatusPending})
	r.expire("tx1", staleGen)

	got, ok := r.Get("tx1")
	require.True(t, ok)
	assert.Equal(t, "later", got.Title)
}

func TestReporter_ShutdownStopsTimers(t *testing.T) {
	sink := newFakeSink()
	r := NewReporter(sink, zap.NewNop())

	for _, id := range []string{"a", "b", "c"} {
		r.Show(Notification{ID: id, Duration: time.Hour})
	}
	r.Shutdown()
	assert.Empty(t, r.Active())
	assert.Len(t, sink.ops(), 6)
}

func TestReporter_NilSink(t *testing.T) {
	r := NewReporter(nil, zap.NewNop())
	r.Show(Notification{ID: "x"})
	r.Close("x")
}

func TestBusSink(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 16)
	var mu sync.Mutex
	var got []events.NotificationEvent
	done := make(chan struct{})
	bus.SubscribeAll(events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(events.NotificationEvent))
		if len(got) == 3 {
			close(done)
		}
		return nil
	}), events.NotificationShown, events.NotificationUpdated, events.NotificationClosed)

	r := NewReporter(MultiSink{NewLogSink(zap.NewNop()), NewBusSink(bus, zap.NewNop())}, zap.NewNop())
	r.Show(Notification{ID: "tx1", Status: StatusInfo})
	r.Update("tx1", func(n *Notification) { n.Status = StatusError })
	r.Close("tx1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notification events not delivered")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	assert.Equal(t, events.NotificationShown, got[0].Type())
	assert.Equal(t, "error", got[1].Status)
	assert.Equal(t, "tx1", got[2].ID)
}
