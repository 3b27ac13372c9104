package cheat

import (
	"sync"
	"time"
)

// Throttle remembers when each event was last delivered. A Throttle may be
// shared by successive monitors of one page, so a reconnect or a beacon
// does not reset the window.
type Throttle struct {
	mu   sync.Mutex
	last map[Event]time.Time
}

// NewThrottle creates an empty Throttle.
func NewThrottle() *Throttle {
	return &Throttle{last: make(map[Event]time.Time)}
}

// Allow reports whether ev may be delivered at now, and records the
// delivery when it may.
func (t *Throttle) Allow(ev Event, now time.Time, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[ev]; ok && now.Sub(last) < window {
		return false
	}
	t.last[ev] = now
	return true
}

// Idle reports whether no event was delivered within window before now.
// An idle Throttle behaves like a new one.
func (t *Throttle) Idle(now time.Time, window time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, last := range t.last {
		if now.Sub(last) < window {
			return false
		}
	}
	return true
}
