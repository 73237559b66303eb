// Package scheduler provides the run loop that owns all session state.
// Subsystems never take locks: every state transition happens on the loop
// goroutine, network readers hand packets in through Post, and one-shot
// timers fire back into the loop.
package scheduler

import (
	"context"
	"time"
)

// Timer is a cancellable one-shot. Cancel is only safe on the loop; a
// cancelled timer's callback never runs, even if the underlying timer
// already fired and posted.
type Timer interface {
	Cancel()
}

// Clock is the scheduling surface subsystems depend on. The production
// implementation is Loop; tests use Manual to drive time by hand.
type Clock interface {
	// Post queues fn on the loop. Safe from any goroutine.
	Post(fn func())
	// After arms a one-shot firing on the loop. Loop-only.
	After(d time.Duration, fn func()) Timer
	// Now returns the current time.
	Now() time.Time
}

// Loop is the production Clock, backed by a channel and real timers.
type Loop struct {
	jobs    chan func()
	stopped chan struct{}
}

// NewLoop creates a loop; call Run to start it.
func NewLoop() *Loop {
	return &Loop{
		jobs:    make(chan func(), 256),
		stopped: make(chan struct{}),
	}
}

// Run executes posted jobs until the context is cancelled. It must be
// called exactly once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case fn := <-l.jobs:
			fn()
		case <-ctx.Done():
			// run whatever is already queued, then stop
			for {
				select {
				case fn := <-l.jobs:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post queues fn for execution on the loop goroutine. Jobs posted after
// shutdown are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.jobs <- fn:
	case <-l.stopped:
	}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

type loopTimer struct {
	timer     *time.Timer
	cancelled bool
}

// After arms a one-shot timer. The callback runs on the loop; a fire
// racing Cancel posts its job but the cancelled flag discards it.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if !t.cancelled {
				fn()
			}
		})
	})
	return t
}

func (t *loopTimer) Cancel() {
	t.cancelled = true
	t.timer.Stop()
}
