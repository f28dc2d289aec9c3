// Package runloop provides the single interactive goroutine that owns all
// view state. Work from other goroutines reaches it through Post.
package runloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler runs funcs on the interactive goroutine.
type Scheduler interface {
	// Post queues fn to run on the interactive goroutine. It never blocks,
	// so it is safe to call from the interactive goroutine itself.
	Post(fn func())
	// AfterFunc runs fn on the interactive goroutine once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the func from running. It reports whether the call
	// was stopped before it ran.
	Stop() bool
}

// Loop is a Scheduler backed by a goroutine draining a queue.
type Loop struct {
	clock clock.Clock

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	done chan struct{}
	once sync.Once
}

// New returns a loop on the wall clock. size is a hint for the queue's
// initial capacity; the queue grows as needed.
func New(size int) *Loop {
	return NewWithClock(size, clock.New())
}

func NewWithClock(size int, c clock.Clock) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		clock: c,
		queue: make([]func(), 0, size),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				fn()
			}
		})
	})
	return t
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued funcs until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Len returns the number of funcs waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

type loopTimer struct {
	timer *clock.Timer
	state atomic.Int32 // 0 pending, 1 fired, 2 stopped
}

func (t *loopTimer) fire() bool {
	return t.state.CompareAndSwap(0, 1)
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.state.CompareAndSwap(0, 2)
}
