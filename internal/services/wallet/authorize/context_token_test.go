package authorize

import (
	"testing"
	"time"

	"github.com/walletgate/walletgate/internal/services/wallet/passkey"
)

func testSigner(clock func() time.Time) *contextTokenSigner {
	return newContextTokenSigner(ContextTokenConfig{
		Secret: []byte("test-token-secret"),
		TTL:    5 * time.Minute,
	}, clock)
}

func TestContextTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := testSigner(func() time.Time { return now })

	token, err := signer.sign(ceremonyContext{
		Flow:         passkey.SessionKindLogin,
		UserID:       "user-1",
		SessionID:    "sess-1",
		ChallengeKey: "login:user-1",
		Family:       "popup-postmessage",
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cc, err := signer.verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if cc.Flow != passkey.SessionKindLogin {
		t.Fatalf("Flow = %q, want login", cc.Flow)
	}
	if cc.UserID != "user-1" || cc.SessionID != "sess-1" {
		t.Fatalf("identity = %q/%q", cc.UserID, cc.SessionID)
	}
	if cc.ChallengeKey != "login:user-1" {
		t.Fatalf("ChallengeKey = %q", cc.ChallengeKey)
	}
	if cc.Family != "popup-postmessage" {
		t.Fatalf("Family = %q", cc.Family)
	}
}

func TestContextTokenExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := testSigner(func() time.Time { return now })

	token, err := signer.sign(ceremonyContext{Flow: passkey.SessionKindLogin, ChallengeKey: "k"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	now = now.Add(5*time.Minute + time.Second)
	if _, err := signer.verify(token); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestContextTokenRejectsWrongSecret(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	signer := testSigner(clock)
	other := newContextTokenSigner(ContextTokenConfig{Secret: []byte("different"), TTL: 5 * time.Minute}, clock)

	token, err := signer.sign(ceremonyContext{Flow: passkey.SessionKindLogin, ChallengeKey: "k"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := other.verify(token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestContextTokenRejectsMissingChallengeKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := testSigner(func() time.Time { return now })

	token, err := signer.sign(ceremonyContext{Flow: passkey.SessionKindLogin})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.verify(token); err == nil {
		t.Fatal("expected error for missing challenge key")
	}
}

func TestLoadContextTokenConfigFromEnv(t *testing.T) {
	t.Setenv("WALLETGATE_CONTEXT_TOKEN_SECRET", "env-secret")
	t.Setenv("WALLETGATE_CONTEXT_TOKEN_TTL", "2m")

	cfg, err := LoadContextTokenConfigFromEnv()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if string(cfg.Secret) != "env-secret" {
		t.Fatalf("Secret = %q", cfg.Secret)
	}
	if cfg.TTL != 2*time.Minute {
		t.Fatalf("TTL = %v, want 2m", cfg.TTL)
	}
}

func TestLoadContextTokenConfigRequiresSecret(t *testing.T) {
	t.Setenv("WALLETGATE_CONTEXT_TOKEN_SECRET", "")

	if _, err := LoadContextTokenConfigFromEnv(); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
