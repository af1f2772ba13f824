package notify

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type slot struct {
	n     Notification
	timer *time.Timer
	gen   uint64
}

// Reporter keeps one live notification per lifecycle id and owns the
// auto-close timers for them.
type Reporter struct {
	mu     sync.Mutex
	sink   Sink
	slots  map[string]*slot
	gen    uint64
	logger *zap.Logger
}

func NewReporter(sink Sink, logger *zap.Logger) *Reporter {
	if sink == nil {
		sink = NopSink{}
	}
	return &Reporter{
		sink:   sink,
		slots:  make(map[string]*slot),
		logger: logger.Named("notify"),
	}
}

// Show creates the notification at n.ID or replaces the one already there.
func (r *Reporter) Show(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.slots[n.ID]
	if exists {
		r.stopTimer(s)
	} else {
		s = &slot{}
		r.slots[n.ID] = s
	}
	s.n = n
	r.arm(s)

	if exists {
		r.sink.Update(n)
	} else {
		r.sink.Show(n)
	}
}

// Update patches the notification at id in place. It returns false when no
// notification is live under id.
func (r *Reporter) Update(id string, patch func(*Notification)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		r.logger.Debug("Update for unknown notification", zap.String("id", id))
		return false
	}
	r.stopTimer(s)
	patch(&s.n)
	s.n.ID = id
	r.arm(s)
	r.sink.Update(s.n)
	return true
}

// Close removes the notification at id. Closing an unknown id is a no-op.
func (r *Reporter) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked(id)
}

// Get returns the live notification at id.
func (r *Reporter) Get(id string) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return Notification{}, false
	}
	return s.n, true
}

// Active lists live notifications ordered by id.
func (r *Reporter) Active() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s.n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown closes every live notification and stops all timers.
func (r *Reporter) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.slots {
		r.closeLocked(id)
	}
}

func (r *Reporter) closeLocked(id string) {
	s, ok := r.slots[id]
	if !ok {
		return
	}
	r.stopTimer(s)
	delete(r.slots, id)
	r.sink.Close(id)
}

// arm starts the auto-close timer for a non-sticky notification. Each arm
// gets a new generation so a timer that already fired but lost the race for
// the lock cannot close a newer notification under the same id.
func (r *Reporter) arm(s *slot) {
	r.gen++
	s.gen = r.gen
	if s.n.Sticky() {
		return
	}
	id, gen := s.n.ID, s.gen
	s.timer = time.AfterFunc(s.n.Duration, func() {
		r.expire(id, gen)
	})
}

func (r *Reporter) stopTimer(s *slot) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (r *Reporter) expire(id string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.gen != gen {
		return
	}
	s.timer = nil
	delete(r.slots, id)
	r.sink.Close(id)
}
