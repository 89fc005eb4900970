package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Clock is the time source used by the engine. Production wiring passes
// clockwork.NewRealClock(); tests pass a clockwork FakeClock so deadline and
// anti-snipe behavior is deterministic.
type Clock = clockwork.Clock

// FireFunc is invoked when a lot's armed deadline elapses.
type FireFunc func(lotID uuid.UUID, scheduledFor time.Time)

type armedTimer struct {
	timer clockwork.Timer
	gen   uint64
}

// Scheduler arms single-shot deadline callbacks per lot. Re-scheduling for
// the same lot cancels any previously pending fire, so a lot is never closed
// twice from a stale timer.
type Scheduler struct {
	clock Clock
	fire  FireFunc

	mu     sync.Mutex
	gen    uint64
	timers map[uuid.UUID]*armedTimer
}

// NewScheduler creates a scheduler firing callbacks through fire.
func NewScheduler(clk Clock, fire FireFunc) *Scheduler {
	return &Scheduler{
		clock:  clk,
		fire:   fire,
		timers: make(map[uuid.UUID]*armedTimer),
	}
}

// Clock returns the underlying time source.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// ScheduleAt arms (or re-arms) the deadline fire for a lot. A deadline in
// the past fires immediately.
func (s *Scheduler) ScheduleAt(lotID uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if armed, ok := s.timers[lotID]; ok {
		armed.timer.Stop()
	}

	s.gen++
	gen := s.gen

	d := at.Sub(s.clock.Now())
	if d < 0 {
		d = 0
	}
	timer := s.clock.AfterFunc(d, func() {
		s.onFire(lotID, gen, at)
	})
	s.timers[lotID] = &armedTimer{timer: timer, gen: gen}
}

// Cancel stops any pending fire for the lot.
func (s *Scheduler) Cancel(lotID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if armed, ok := s.timers[lotID]; ok {
		armed.timer.Stop()
		delete(s.timers, lotID)
	}
}

// CancelAll stops every pending fire. Used on shutdown and auction pause.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, armed := range s.timers {
		armed.timer.Stop()
		delete(s.timers, id)
	}
}

// onFire delivers the callback unless the timer was superseded by a
// re-schedule or cancel after it was queued.
func (s *Scheduler) onFire(lotID uuid.UUID, gen uint64, at time.Time) {
	s.mu.Lock()
	armed, ok := s.timers[lotID]
	if !ok || armed.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, lotID)
	s.mu.Unlock()

	s.fire(lotID, at)
}
