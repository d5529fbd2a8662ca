// Package challenge provides a TTL-bounded, single-consumption store for
// ceremony challenge nonces.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const nonceBytes = 32

// entry is a stored challenge nonce with its expiry deadline.
type entry struct {
	nonce     string
	issuedAt  time.Time
	expiresAt time.Time
}

// Store holds ceremony challenges keyed by flow-scoped identifiers.
//
// Consumption is exactly-once: a nonce retrieved through Consume is removed
// atomically, so no two callers can ever observe the same value. Missing and
// expired entries collapse into a single absent outcome so clients cannot
// distinguish a consumed key from one that never existed.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	sweep   time.Duration
	clock   func() time.Time
}

// Option customizes store construction.
type Option func(*Store)

// WithClock replaces the time source. Tests use this to control expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSweepInterval overrides the background sweep cadence.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.sweep = interval
		}
	}
}

// NewStore creates a challenge store with the given nonce lifetime.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	store := &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		sweep:   time.Minute,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Issue generates a fresh unpredictable nonce for key and stores it with
// expiry now+ttl. Any prior unconsumed challenge for the same key is
// overwritten: only the most recent attempt is valid, which prevents
// stale-challenge reuse after a user retries a ceremony.
func (s *Store) Issue(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("challenge key is required")
	}
	raw := make([]byte, nonceBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate challenge nonce: %w", err)
	}
	// Base64url matches what WebAuthn client data echoes back.
	nonce := base64.RawURLEncoding.EncodeToString(raw)

	now := s.clock()
	s.mu.Lock()
	s.entries[key] = entry{
		nonce:     nonce,
		issuedAt:  now,
		expiresAt: now.Add(s.ttl),
	}
	s.mu.Unlock()
	return nonce, nil
}

// Consume atomically looks up and deletes the challenge for key.
//
// The second return value is false when the key is missing, expired, or was
// already consumed. Those outcomes are indistinguishable on purpose.
func (s *Store) Consume(key string) (string, bool) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[key]
	if !ok {
		return "", false
	}
	delete(s.entries, key)
	if !now.Before(stored.expiresAt) {
		return "", false
	}
	return stored.nonce, true
}

// Len reports the number of stored challenges, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartSweep launches a background pass that removes expired entries once
// per sweep interval until ctx is cancelled. The sweep bounds the store's
// memory footprint independent of consumption; a racing Consume that
// retrieves a value first always wins because both paths hold the same lock.
func (s *Store) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.removeExpired()
			}
		}
	}()
}

// removeExpired deletes entries whose deadline has passed at sweep time.
// The critical section covers a single map pass only.
func (s *Store) removeExpired() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, stored := range s.entries {
		if !now.Before(stored.expiresAt) {
			delete(s.entries, key)
		}
	}
}
