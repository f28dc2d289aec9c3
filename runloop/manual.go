package runloop

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Manual is a Scheduler driven by hand with a mock clock. Funcs only run
// inside Drain and Advance, on the caller's goroutine.
type Manual struct {
	clock *clock.Mock
	start time.Time

	mu     sync.Mutex
	seq    int
	posted []func()
	timers []*manualTimer
}

func NewManual() *Manual {
	c := clock.NewMock()
	return &Manual{clock: c, start: c.Now()}
}

// Clock returns the mock clock the timers run on.
func (m *Manual) Clock() *clock.Mock { return m.clock }

type manualTimer struct {
	m       *Manual
	timer   *clock.Timer
	due     time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.posted = append(m.posted, fn)
	m.mu.Unlock()
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	now := m.clock.Now()
	timer := m.clock.Timer(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, timer: timer, due: now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the mock time elapsed since creation.
func (m *Manual) Now() time.Duration {
	return m.clock.Now().Sub(m.start)
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// Drain runs posted funcs, including ones posted while draining.
func (m *Manual) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		fn()
		n++
	}
}

// next returns the earliest live timer due by target. Timers due at the
// same time run in the order they were created.
func (m *Manual) next(target time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired && !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].due.Equal(live[j].due) {
			return live[i].seq < live[j].seq
		}
		return live[i].due.Before(live[j].due)
	})
	if len(live) == 0 || live[0].due.After(target) {
		return nil
	}
	return live[0]
}

// Advance moves the clock forward by d, firing due timers in order.
func (m *Manual) Advance(d time.Duration) {
	m.Drain()
	target := m.clock.Now().Add(d)
	for {
		t := m.next(target)
		if t == nil {
			if rest := target.Sub(m.clock.Now()); rest > 0 {
				m.clock.Add(rest)
			}
			m.Drain()
			return
		}
		m.clock.Add(max(t.due.Sub(m.clock.Now()), 0))
		select {
		case <-t.timer.C:
		default:
		}

		m.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		m.mu.Unlock()
		if run {
			t.fn()
		}
		m.Drain()
	}
}
