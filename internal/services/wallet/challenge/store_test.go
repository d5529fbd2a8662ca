package challenge

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stepClock is a controllable time source for expiry tests.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestIssueThenConsume(t *testing.T) {
	store := NewStore(5 * time.Minute)
	nonce, err := store.Issue("register:user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if nonce == "" {
		t.Fatal("expected non-empty nonce")
	}

	got, ok := store.Consume("register:user-1")
	if !ok {
		t.Fatal("expected consume to succeed")
	}
	if got != nonce {
		t.Fatalf("consumed nonce = %q, want %q", got, nonce)
	}
}

func TestConsumeIsExactlyOnce(t *testing.T) {
	store := NewStore(5 * time.Minute)
	if _, err := store.Issue("login:user-2"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, ok := store.Consume("login:user-2"); !ok {
		t.Fatal("first consume should succeed")
	}
	if _, ok := store.Consume("login:user-2"); ok {
		t.Fatal("second consume must return absent")
	}
}

func TestConsumeMissingKey(t *testing.T) {
	store := NewStore(5 * time.Minute)
	if _, ok := store.Consume("never-issued"); ok {
		t.Fatal("expected absent for a key that was never issued")
	}
}

func TestConsumeAfterExpiry(t *testing.T) {
	clock := newStepClock()
	store := NewStore(5*time.Minute, WithClock(clock.Now))
	if _, err := store.Issue("register:user-3"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(5*time.Minute + time.Millisecond)
	if _, ok := store.Consume("register:user-3"); ok {
		t.Fatal("expected absent at ttl + epsilon")
	}
	// The expired entry is gone after the failed consume.
	if store.Len() != 0 {
		t.Fatalf("len = %d, want 0", store.Len())
	}
}

func TestConsumeJustBeforeExpiry(t *testing.T) {
	clock := newStepClock()
	store := NewStore(5*time.Minute, WithClock(clock.Now))
	nonce, err := store.Issue("register:user-4")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(5*time.Minute - time.Millisecond)
	got, ok := store.Consume("register:user-4")
	if !ok {
		t.Fatal("expected consume to succeed just before expiry")
	}
	if got != nonce {
		t.Fatalf("consumed nonce = %q, want %q", got, nonce)
	}
}

func TestReissueOverwritesPriorChallenge(t *testing.T) {
	store := NewStore(5 * time.Minute)
	first, err := store.Issue("register:user-5")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := store.Issue("register:user-5")
	if err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct nonces across issues")
	}

	got, ok := store.Consume("register:user-5")
	if !ok {
		t.Fatal("expected consume to succeed")
	}
	if got != second {
		t.Fatal("expected only the most recent nonce to be valid")
	}
	if _, ok := store.Consume("register:user-5"); ok {
		t.Fatal("stale nonce must not survive the overwrite")
	}
}

func TestIssueRequiresKey(t *testing.T) {
	store := NewStore(5 * time.Minute)
	if _, err := store.Issue(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	clock := newStepClock()
	store := NewStore(time.Minute, WithClock(clock.Now))
	if _, err := store.Issue("a"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.Issue("b"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(30 * time.Second)
	if _, err := store.Issue("c"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(45 * time.Second)
	store.removeExpired()

	if store.Len() != 1 {
		t.Fatalf("len = %d, want 1", store.Len())
	}
	if _, ok := store.Consume("c"); !ok {
		t.Fatal("unexpired entry must survive the sweep")
	}
}

func TestSweepStopsOnContextCancel(t *testing.T) {
	store := NewStore(time.Minute, WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	store.StartSweep(ctx)
	cancel()
	// Issue after cancel; the store must stay usable.
	if _, err := store.Issue("after-cancel"); err != nil {
		t.Fatalf("issue: %v", err)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewStore(5 * time.Minute)
	if _, err := store.Issue("contested"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, ok := store.Consume("contested"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestReplayedConsumeScenario(t *testing.T) {
	// Issue for an enrollment key, consume it, then replay the identical
	// client response against a second consume on the same key.
	store := NewStore(5 * time.Minute)
	if _, err := store.Issue("enroll:user-alice"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, ok := store.Consume("enroll:user-alice"); !ok {
		t.Fatal("first consume should succeed")
	}
	if _, ok := store.Consume("enroll:user-alice"); ok {
		t.Fatal("replayed consume must be absent")
	}
}
