package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// recorder collects fired alarms.
type recorder struct {
	mu    sync.Mutex
	fired []Alarm
	err   error
}

func (r *recorder) handle(_ context.Context, a Alarm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, a)
	return r.err
}

func (r *recorder) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.fired))
	for i, a := range r.fired {
		out[i] = a.Label
	}
	return out
}

func newTestScheduler() (*Scheduler, *fakeClock, *recorder) {
	rec := &recorder{}
	clock := newFakeClock()
	s := New(rec.handle)
	s.SetClock(clock.Now)
	return s, clock, rec
}

func TestFireOrder(t *testing.T) {
	s, clock, rec := newTestScheduler()
	base := clock.Now()

	offsets := []int{30, 5, 20, 10, 25, 15}
	for i, off := range offsets {
		s.Schedule(string(rune('a'+i)), base.Add(time.Duration(off)*time.Second))
	}

	var last time.Time
	for s.Len() > 0 {
		head := s.Pending()[0]
		clock.Set(head.FiresAt)
		if !s.Fire(context.Background()) {
			t.Fatalf("Fire() = false with due alarm %+v", head)
		}
		if head.FiresAt.Before(last) {
			t.Fatalf("alarm %s fired at %v after %v", head.Label, head.FiresAt, last)
		}
		last = head.FiresAt
	}

	want := []string{"b", "d", "f", "c", "e", "a"}
	got := rec.labels()
	if len(got) != len(want) {
		t.Fatalf("fired %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fired[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFireEmptyQueue(t *testing.T) {
	s, _, rec := newTestScheduler()

	if s.Fire(context.Background()) {
		t.Error("Fire() on empty queue = true, want false")
	}
	if len(rec.labels()) != 0 {
		t.Error("handler called for empty queue")
	}
	if _, armed := s.Armed(); armed {
		t.Error("scheduler armed with empty queue")
	}
}

func TestFireNotDue(t *testing.T) {
	s, clock, rec := newTestScheduler()
	s.Schedule("Update", clock.Now().Add(time.Minute))

	if s.Fire(context.Background()) {
		t.Error("Fire() before due time = true, want false")
	}
	if s.Len() != 1 || len(rec.labels()) != 0 {
		t.Error("alarm consumed before it was due")
	}
}

func TestScheduleDedup(t *testing.T) {
	s, clock, _ := newTestScheduler()
	at := clock.Now().Add(time.Hour)

	s.Schedule("Sunrise", at)
	s.Schedule("Sunrise", at.Add(200*time.Millisecond))
	if s.Len() != 1 {
		t.Errorf("Len() = %d after duplicate schedule, want 1", s.Len())
	}

	// Same instant, different label: both kept.
	s.Schedule("Sunset", at)
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}

	// Same label, different second: both kept.
	s.Schedule("Sunrise", at.Add(2*time.Second))
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestArmedTracksHead(t *testing.T) {
	s, clock, _ := newTestScheduler()
	base := clock.Now()

	s.Schedule("late", base.Add(time.Hour))
	a, ok := s.Armed()
	if !ok || a.Label != "late" {
		t.Fatalf("Armed() = %+v, %v; want late", a, ok)
	}

	s.Schedule("early", base.Add(time.Minute))
	a, _ = s.Armed()
	if a.Label != "early" {
		t.Errorf("Armed() = %s after earlier schedule, want early", a.Label)
	}

	s.Schedule("later", base.Add(2*time.Hour))
	a, _ = s.Armed()
	if a.Label != "early" {
		t.Errorf("Armed() = %s after later schedule, want early", a.Label)
	}

	clock.Set(base.Add(time.Minute))
	s.Fire(context.Background())
	a, _ = s.Armed()
	if a.Label != "late" {
		t.Errorf("Armed() = %s after firing head, want late", a.Label)
	}
}

func TestSchedulePurgesStale(t *testing.T) {
	s, clock, _ := newTestScheduler()
	base := clock.Now()

	s.Schedule("missed", base.Add(time.Second))
	clock.Set(base.Add(time.Minute))
	s.ScheduleIn("Update", 10*time.Second)

	pending := s.Pending()
	if len(pending) != 1 || pending[0].Label != "Update" {
		t.Errorf("Pending() = %+v, want only Update", pending)
	}
}

func TestHandlerFailureKeepsScheduling(t *testing.T) {
	s, clock, rec := newTestScheduler()
	rec.err = errors.New("device gone")
	base := clock.Now()

	s.Schedule("Thermostat", base.Add(time.Second))
	s.Schedule("Update", base.Add(2*time.Second))

	clock.Set(base.Add(time.Second))
	s.Fire(context.Background())

	a, ok := s.Armed()
	if !ok || a.Label != "Update" {
		t.Errorf("Armed() = %+v, %v after failed action; want Update", a, ok)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	clock := newFakeClock()
	s := New(func(context.Context, Alarm) error { panic("boom") })
	s.SetClock(clock.Now)
	s.Schedule("x", clock.Now())

	if !s.Fire(context.Background()) {
		t.Error("Fire() = false, want true")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestRunFiresOnRealTimer(t *testing.T) {
	fired := make(chan Alarm, 1)
	s := New(func(_ context.Context, a Alarm) error {
		fired <- a
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.ScheduleIn("late", time.Hour)
	s.ScheduleIn("soon", 20*time.Millisecond)

	select {
	case a := <-fired:
		if a.Label != "soon" {
			t.Errorf("fired %s, want soon", a.Label)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestAlarmEqual(t *testing.T) {
	at := time.Date(2026, 1, 1, 7, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b Alarm
		want bool
	}{
		{"identical", Alarm{at, "Sunrise"}, Alarm{at, "Sunrise"}, true},
		{"same second", Alarm{at, "Sunrise"}, Alarm{at.Add(999 * time.Millisecond), "Sunrise"}, true},
		{"different label", Alarm{at, "Sunrise"}, Alarm{at, "Sunset"}, false},
		{"different second", Alarm{at, "Sunrise"}, Alarm{at.Add(time.Second), "Sunrise"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRescheduleKeepsOneTrailingAlarm(t *testing.T) {
	s, clock, rec := newTestScheduler()
	base := clock.Now()

	s.Schedule("Sunset", base.Add(time.Hour))
	for i := 0; i < 4; i++ {
		clock.Set(base.Add(time.Duration(i) * time.Second))
		s.Reschedule("Update", 10*time.Second)
	}

	pending := s.Pending()
	if len(pending) != 2 {
		t.Fatalf("Pending() = %+v, want Update and Sunset", pending)
	}
	want := base.Add(13 * time.Second)
	if pending[0].Label != "Update" || !pending[0].FiresAt.Equal(want) {
		t.Errorf("head = %+v, want Update at %v", pending[0], want)
	}
	if a, _ := s.Armed(); a.Label != "Update" || !a.FiresAt.Equal(want) {
		t.Errorf("Armed() = %+v, want the trailing Update", a)
	}

	clock.Set(want)
	s.Fire(context.Background())
	if got := rec.labels(); len(got) != 1 || got[0] != "Update" {
		t.Errorf("fired %v, want a single Update", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want only Sunset left", s.Len())
	}
}
