package auth

import (
	"sync"
	"time"
)

type attemptState struct {
	failures    int
	lockedUntil time.Time
}

// Guard tracks failed login attempts per username and enforces a temporary
// lockout once the threshold is reached. State is process-local and
// transient: a restart clears all counters and lockouts. Expired lockouts
// are dropped lazily on the next access instead of by timer.
type Guard struct {
	mu        sync.Mutex
	states    map[string]*attemptState
	threshold int
	window    time.Duration
	now       func() time.Time
}

func NewGuard(threshold int, window time.Duration) *Guard {
	return &Guard{
		states:    make(map[string]*attemptState),
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
}

// Status reports whether the username is currently locked out and until when.
// It also clears state whose lockout window has elapsed.
func (g *Guard) Status(username string) (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[username]
	if !ok || st.lockedUntil.IsZero() {
		return false, time.Time{}
	}
	if g.now().Before(st.lockedUntil) {
		return true, st.lockedUntil
	}
	// Lockout expired
	delete(g.states, username)
	return false, time.Time{}
}

// RecordFailure increments the failure counter for the username. The counter
// is incremented first, then compared to the threshold: on the attempt that
// reaches it, the lockout is set to now+window and zero remaining attempts
// are reported together with the lockout deadline.
func (g *Guard) RecordFailure(username string) (remaining int, lockedUntil time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Cap the map so a flood of unknown-but-real usernames cannot grow it
	// without bound.
	if len(g.states) > 10000 {
		g.states = make(map[string]*attemptState)
	}

	st, ok := g.states[username]
	if !ok || (!st.lockedUntil.IsZero() && !g.now().Before(st.lockedUntil)) {
		st = &attemptState{}
		g.states[username] = st
	}

	st.failures++
	if st.failures >= g.threshold {
		st.lockedUntil = g.now().Add(g.window)
		return 0, st.lockedUntil
	}
	return g.threshold - st.failures, time.Time{}
}

// Reset clears all state for the username (used on successful login).
func (g *Guard) Reset(username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.states, username)
}
