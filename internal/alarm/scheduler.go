package alarm

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// purgeGrace is how far in the past an alarm may be before Schedule drops
// it. It covers the gap between the timer firing and Fire popping the head.
const purgeGrace = time.Second

// Alarm is a deferred action identified by its label.
type Alarm struct {
	FiresAt time.Time `json:"time"`
	Label   string    `json:"description"`
}

// Equal reports whether a and b collapse into one queue entry: same label
// and same fire time to the second.
func (a Alarm) Equal(b Alarm) bool {
	return a.Label == b.Label && a.FiresAt.Truncate(time.Second).Equal(b.FiresAt.Truncate(time.Second))
}

// Handler executes the semantic action of a fired alarm.
type Handler func(ctx context.Context, a Alarm) error

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler is a delay queue of alarms with a single armed timer.
//
// The queue is a min-heap on fire time. Only the head is ever armed; Run
// owns the one timer and is woken through a channel whenever the head
// changes. Fire is exported so tests can drive the scheduler without
// waiting on real time.
//
// Thread Safety: all methods are safe for concurrent use. The handler is
// invoked without the scheduler lock held, so it may call Schedule.
type Scheduler struct {
	mu      sync.Mutex
	queue   alarmHeap
	armed   Alarm
	isArmed bool
	wake    chan struct{}

	handler Handler
	now     func() time.Time
	logger  Logger
}

// New creates a scheduler that passes fired alarms to handler.
func New(handler Handler) *Scheduler {
	return &Scheduler{
		wake:    make(chan struct{}, 1),
		handler: handler,
		now:     time.Now,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the time source. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ScheduleIn queues label to fire d from now.
func (s *Scheduler) ScheduleIn(label string, d time.Duration) {
	s.mu.Lock()
	at := s.now().Add(d)
	s.mu.Unlock()
	s.Schedule(label, at)
}

// Schedule queues label to fire at the absolute time at. Stale entries are
// purged first, and an alarm equal to one already queued is dropped.
func (s *Scheduler) Schedule(label string, at time.Time) {
	a := Alarm{FiresAt: at, Label: label}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	for _, queued := range s.queue {
		if queued.Equal(a) {
			s.logger.Debug("alarm already queued", "label", label, "fires_at", at)
			return
		}
	}
	heap.Push(&s.queue, a)
	s.rearmLocked()
}

// Reschedule replaces every pending alarm with this label by one firing d
// from now. Repeated calls during a burst leave a single trailing alarm.
func (s *Scheduler) Reschedule(label string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.queue[i].Label == label {
			heap.Remove(&s.queue, i)
		}
	}
	heap.Push(&s.queue, Alarm{FiresAt: s.now().Add(d), Label: label})
	s.rearmLocked()
}

// Fire pops the head alarm if it is due and runs its handler. Handler
// failures are logged; the queue is re-armed regardless. It reports whether
// an alarm was dispatched. Firing an empty queue is a no-op.
func (s *Scheduler) Fire(ctx context.Context) bool {
	s.mu.Lock()
	if len(s.queue) == 0 || s.queue[0].FiresAt.After(s.now()) {
		s.rearmLocked()
		s.mu.Unlock()
		return false
	}
	a := heap.Pop(&s.queue).(Alarm)
	s.isArmed = false
	s.mu.Unlock()

	if s.handler != nil {
		if err := s.runHandler(ctx, a); err != nil {
			s.logger.Error("alarm action failed", "label", a.Label, "error", err)
		}
	}

	s.mu.Lock()
	s.purgeLocked()
	s.rearmLocked()
	s.mu.Unlock()
	return true
}

// runHandler isolates the scheduler from panics in alarm actions.
func (s *Scheduler) runHandler(ctx context.Context, a Alarm) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in alarm %q: %v", a.Label, r)
		}
	}()
	return s.handler(ctx, a)
}

// Run drives the armed timer until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.mu.Lock()
		var timerC <-chan time.Time
		var timer *time.Timer
		if s.isArmed {
			timer = time.NewTimer(s.armed.FiresAt.Sub(s.now()))
			timerC = timer.C
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			s.Fire(ctx)
		}
	}
}

// Pending returns the queued alarms in fire order.
func (s *Scheduler) Pending() []Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alarm, len(s.queue))
	copy(out, s.queue)
	sortAlarms(out)
	return out
}

// Armed returns the alarm the timer is currently set for.
func (s *Scheduler) Armed() (Alarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed, s.isArmed
}

// Len returns the number of queued alarms.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// purgeLocked drops alarms that are further in the past than purgeGrace.
// Callers must hold s.mu.
func (s *Scheduler) purgeLocked() {
	cutoff := s.now().Add(-purgeGrace)
	for len(s.queue) > 0 && s.queue[0].FiresAt.Before(cutoff) {
		stale := heap.Pop(&s.queue).(Alarm)
		s.logger.Warn("dropping stale alarm", "label", stale.Label, "fires_at", stale.FiresAt)
	}
}

// rearmLocked points the timer at the queue head, waking Run if the head
// changed. Callers must hold s.mu.
func (s *Scheduler) rearmLocked() {
	if len(s.queue) == 0 {
		if s.isArmed {
			s.isArmed = false
			s.signal()
		}
		return
	}
	head := s.queue[0]
	if s.isArmed && s.armed.Label == head.Label && s.armed.FiresAt.Equal(head.FiresAt) {
		return
	}
	s.armed = head
	s.isArmed = true
	s.signal()
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
