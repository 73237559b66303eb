package scheduler

import (
	"sort"
	"time"
)

// Manual is a deterministic Clock for tests: Post runs inline and timers
// fire only when the test advances the clock.
type Manual struct {
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	when      time.Time
	fn        func()
	cancelled bool
	fired     bool
}

func NewManual() *Manual {
	return &Manual{now: time.Unix(1000, 0)}
}

func (m *Manual) Post(fn func()) {
	fn()
}

func (m *Manual) Now() time.Time {
	return m.now
}

func (m *Manual) After(d time.Duration, fn func()) Timer {
	t := &manualTimer{when: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (t *manualTimer) Cancel() {
	t.cancelled = true
}

// Advance moves the clock forward, firing due timers in order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.when
		t.fired = true
		t.fn()
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Time) *manualTimer {
	live := m.live()
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].when.Before(live[j].when)
	})
	for _, t := range live {
		if !t.when.After(target) {
			return t
		}
	}
	return nil
}

func (m *Manual) live() []*manualTimer {
	out := m.timers[:0:0]
	for _, t := range m.timers {
		if !t.cancelled && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Pending reports how many timers are armed and not yet fired.
func (m *Manual) Pending() int {
	return len(m.live())
}
