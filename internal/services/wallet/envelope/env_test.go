package envelope

import (
	"strings"
	"testing"
)

func TestKeyringFromEnvSingleKey(t *testing.T) {
	t.Setenv("WALLETGATE_ENVELOPE_KEYS", "")
	t.Setenv("WALLETGATE_ENVELOPE_KEY", "shared-secret")
	t.Setenv("WALLETGATE_ENVELOPE_KEY_ID", "")

	keyring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if keyring.ActiveKeyID() != "v1" {
		t.Fatalf("active key id = %q, want v1", keyring.ActiveKeyID())
	}
}

func TestKeyringFromEnvMissingSecret(t *testing.T) {
	t.Setenv("WALLETGATE_ENVELOPE_KEYS", "")
	t.Setenv("WALLETGATE_ENVELOPE_KEY", "")

	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error when no secret is configured")
	}
}

func TestKeyringFromEnvMultipleKeys(t *testing.T) {
	t.Setenv("WALLETGATE_ENVELOPE_KEYS", "v1=old-secret, v2=new-secret")
	t.Setenv("WALLETGATE_ENVELOPE_KEY_ID", "v2")

	keyring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if keyring.ActiveKeyID() != "v2" {
		t.Fatalf("active key id = %q, want v2", keyring.ActiveKeyID())
	}
	if _, err := keyring.Sign("v1", "https://partner.example", []byte("x")); err != nil {
		t.Fatalf("sign with rotated key: %v", err)
	}
}

func TestKeyringFromEnvMalformedEntry(t *testing.T) {
	t.Setenv("WALLETGATE_ENVELOPE_KEYS", "v1")

	_, err := KeyringFromEnv()
	if err == nil {
		t.Fatal("expected error for malformed key entry")
	}
	if !strings.Contains(err.Error(), "WALLETGATE_ENVELOPE_KEYS") {
		t.Fatalf("error %q should name the variable", err)
	}
}

func TestKeyringFromEnvActiveKeyMissing(t *testing.T) {
	t.Setenv("WALLETGATE_ENVELOPE_KEYS", "v1=secret")
	t.Setenv("WALLETGATE_ENVELOPE_KEY_ID", "v2")

	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error when active key id is not configured")
	}
}
