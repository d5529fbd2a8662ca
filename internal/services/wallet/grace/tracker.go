// Package grace tracks the bounded trust-elevation window that lets a
// session re-authorize sensitive actions without repeating a ceremony.
package grace

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the grace period granted by a successful ceremony.
const DefaultWindow = 5 * time.Minute

// Tracker records the last proven-identity timestamp per session.
//
// Elevation is a monotonic, re-armable window: every successful ceremony
// resets the clock, and it never stacks beyond one window's length from the
// most recent proof. Records are owned exclusively by their session and age
// out rather than being deleted explicitly.
type Tracker struct {
	mu           sync.Mutex
	lastProvenAt map[string]time.Time
	window       time.Duration
	sweep        time.Duration
	clock        func() time.Time
}

// Option customizes tracker construction.
type Option func(*Tracker)

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithSweepInterval overrides the aged-record sweep cadence.
func WithSweepInterval(interval time.Duration) Option {
	return func(t *Tracker) {
		if interval > 0 {
			t.sweep = interval
		}
	}
}

// NewTracker creates a tracker with the given grace window.
func NewTracker(window time.Duration, opts ...Option) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	tracker := &Tracker{
		lastProvenAt: make(map[string]time.Time),
		window:       window,
		sweep:        time.Minute,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(tracker)
	}
	return tracker
}

// MarkElevated stamps the session with the current time. Callers invoke it
// only after a ceremony verification succeeds; no other action may set the
// proven-identity timestamp.
func (t *Tracker) MarkElevated(sessionID string) {
	if sessionID == "" {
		return
	}
	now := t.clock()
	t.mu.Lock()
	t.lastProvenAt[sessionID] = now
	t.mu.Unlock()
}

// IsElevated reports whether the session is inside its grace window.
func (t *Tracker) IsElevated(sessionID string) bool {
	return t.Remaining(sessionID) > 0
}

// Remaining returns how much of the grace window is left, clamped at zero
// for sessions that never proved identity or whose window has aged out.
func (t *Tracker) Remaining(sessionID string) time.Duration {
	if sessionID == "" {
		return 0
	}
	now := t.clock()
	t.mu.Lock()
	provenAt, ok := t.lastProvenAt[sessionID]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	remaining := t.window - now.Sub(provenAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StartSweep launches a background pass that drops aged-out records once
// per sweep interval until ctx is cancelled, bounding memory for
// long-running processes.
func (t *Tracker) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.removeAged()
			}
		}
	}()
}

func (t *Tracker) removeAged() {
	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()
	for sessionID, provenAt := range t.lastProvenAt {
		if now.Sub(provenAt) >= t.window {
			delete(t.lastProvenAt, sessionID)
		}
	}
}
