package envelope

import (
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestVerifier(t *testing.T, opts ...VerifierOption) *Verifier {
	t.Helper()
	keyring, err := NewKeyring(map[string][]byte{"v1": []byte("partner-secret")}, "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	base := []VerifierOption{WithClock(fixedClock(testEpoch))}
	verifier, err := NewVerifier(keyring, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return verifier
}

func signedTestEnvelope(t *testing.T, v *Verifier, issuedAt time.Time) SignedEnvelope {
	t.Helper()
	env, err := v.Sign(SignedEnvelope{
		Claims:         map[string]string{"sub": "u1", "email": "alice@example.com"},
		Payload:        []byte(`{"card_hint":"visa"}`),
		Origin:         "https://partner.example",
		IssuedAtMillis: issuedAt.UnixMilli(),
	})
	if err != nil {
		t.Fatalf("sign envelope: %v", err)
	}
	return env
}

func TestVerifyValidEnvelope(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)
	if got := verifier.Verify(env); got != ResultValid {
		t.Fatalf("Verify = %v, want VALID", got)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)

	// Flip one hex digit.
	sig := []byte(env.SignatureHex)
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}
	env.SignatureHex = string(sig)

	if got := verifier.Verify(env); got != ResultInvalidSignature {
		t.Fatalf("Verify = %v, want INVALID_SIGNATURE", got)
	}
}

func TestVerifyTamperedClaims(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)
	env.Claims["sub"] = "u2"
	if got := verifier.Verify(env); got != ResultInvalidSignature {
		t.Fatalf("Verify = %v, want INVALID_SIGNATURE", got)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)
	env.Payload = []byte(`{"card_hint":"amex"}`)
	if got := verifier.Verify(env); got != ResultInvalidSignature {
		t.Fatalf("Verify = %v, want INVALID_SIGNATURE", got)
	}
}

func TestVerifyTamperedTimestampInsideWindow(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)
	// Still inside the window, but no longer matching the signature.
	env.IssuedAtMillis += 1000
	if got := verifier.Verify(env); got != ResultInvalidSignature {
		t.Fatalf("Verify = %v, want INVALID_SIGNATURE", got)
	}
}

func TestVerifyReplayWindowBoundary(t *testing.T) {
	verifier := newTestVerifier(t)

	// One millisecond past the window: expired even with a correct signature.
	tooOld := signedTestEnvelope(t, verifier, testEpoch.Add(-DefaultReplayWindow-time.Millisecond))
	if got := verifier.Verify(tooOld); got != ResultExpired {
		t.Fatalf("Verify = %v, want EXPIRED", got)
	}

	// One millisecond inside the window: accepted.
	justInside := signedTestEnvelope(t, verifier, testEpoch.Add(-DefaultReplayWindow+time.Millisecond))
	if got := verifier.Verify(justInside); got != ResultValid {
		t.Fatalf("Verify = %v, want VALID", got)
	}
}

func TestVerifyExpiredReportedOverBadSignature(t *testing.T) {
	// Expired wins so partners can debug clock skew; the timestamp check is
	// not secret-dependent.
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch.Add(-10*time.Minute))
	env.SignatureHex = "00" + env.SignatureHex[2:]
	if got := verifier.Verify(env); got != ResultExpired {
		t.Fatalf("Verify = %v, want EXPIRED", got)
	}
}

func TestVerifyFutureTimestampOutsideWindow(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch.Add(10*time.Minute))
	if got := verifier.Verify(env); got != ResultExpired {
		t.Fatalf("Verify = %v, want EXPIRED", got)
	}
}

func TestVerifyReuseSixMinutesLater(t *testing.T) {
	// A valid envelope replayed six minutes later must report EXPIRED.
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)
	if got := verifier.Verify(env); got != ResultValid {
		t.Fatalf("first Verify = %v, want VALID", got)
	}

	later := newTestVerifier(t, WithClock(fixedClock(testEpoch.Add(6*time.Minute))))
	if got := later.Verify(env); got != ResultExpired {
		t.Fatalf("replayed Verify = %v, want EXPIRED", got)
	}
}

func TestVerifyUnknownKeyID(t *testing.T) {
	verifier := newTestVerifier(t)
	env := signedTestEnvelope(t, verifier, testEpoch)
	env.KeyID = "v9"
	if got := verifier.Verify(env); got != ResultInvalidSignature {
		t.Fatalf("Verify = %v, want INVALID_SIGNATURE", got)
	}
}

func TestVerifyRotatedKeyStillAccepted(t *testing.T) {
	keyring, err := NewKeyring(map[string][]byte{
		"v1": []byte("old-secret"),
		"v2": []byte("new-secret"),
	}, "v2")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	verifier, err := NewVerifier(keyring, WithClock(fixedClock(testEpoch)))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	env := SignedEnvelope{
		Claims:         map[string]string{"sub": "u1"},
		Origin:         "https://partner.example",
		IssuedAtMillis: testEpoch.UnixMilli(),
		KeyID:          "v1",
	}
	signature, err := keyring.Sign("v1", env.Origin, CanonicalSerialize(env))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	env.SignatureHex = signature

	if got := verifier.Verify(env); got != ResultValid {
		t.Fatalf("Verify = %v, want VALID for rotated key", got)
	}
}

func TestCanonicalSerializeStableOrdering(t *testing.T) {
	a := SignedEnvelope{
		Claims:         map[string]string{"b": "2", "a": "1", "c": "3"},
		Origin:         "https://partner.example",
		IssuedAtMillis: 42,
	}
	b := SignedEnvelope{
		Claims:         map[string]string{"c": "3", "a": "1", "b": "2"},
		Origin:         "https://partner.example",
		IssuedAtMillis: 42,
	}
	if string(CanonicalSerialize(a)) != string(CanonicalSerialize(b)) {
		t.Fatal("canonical serialization must not depend on map iteration order")
	}
}

func TestResultString(t *testing.T) {
	if ResultValid.String() != "VALID" {
		t.Fatalf("ResultValid = %q", ResultValid.String())
	}
	if ResultExpired.String() != "EXPIRED" {
		t.Fatalf("ResultExpired = %q", ResultExpired.String())
	}
	if ResultInvalidSignature.String() != "INVALID_SIGNATURE" {
		t.Fatalf("ResultInvalidSignature = %q", ResultInvalidSignature.String())
	}
}
