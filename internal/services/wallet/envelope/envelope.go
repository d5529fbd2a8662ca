// Package envelope verifies signed, timestamped cross-origin enrollment
// payloads against shared partner secrets.
package envelope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultReplayWindow is the maximum age an envelope timestamp may have and
// still be accepted.
const DefaultReplayWindow = 5 * time.Minute

// SignedEnvelope is a partner-issued assertion of user claims.
//
// Envelopes are verified once and never persisted; replay protection comes
// from the issued-at timestamp, not server state.
type SignedEnvelope struct {
	Claims         map[string]string
	Payload        []byte
	Origin         string
	IssuedAtMillis int64
	KeyID          string
	SignatureHex   string
}

// Result is the outcome of envelope verification.
type Result int

const (
	// ResultInvalidSignature means the HMAC did not match.
	ResultInvalidSignature Result = iota
	// ResultExpired means the timestamp fell outside the replay window.
	// It is reported regardless of signature validity so legitimate
	// partners can debug clock skew without learning about the secret.
	ResultExpired
	// ResultValid means both signature and timestamp checks passed.
	ResultValid
)

// String returns the wire name of the result.
func (r Result) String() string {
	switch r {
	case ResultValid:
		return "VALID"
	case ResultExpired:
		return "EXPIRED"
	default:
		return "INVALID_SIGNATURE"
	}
}

// Verifier checks envelope signatures and replay windows.
type Verifier struct {
	keyring      *Keyring
	replayWindow time.Duration
	clock        func() time.Time
}

// VerifierOption customizes verifier construction.
type VerifierOption func(*Verifier)

// WithClock replaces the time source used for replay-window checks.
func WithClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithReplayWindow overrides the accepted envelope age.
func WithReplayWindow(window time.Duration) VerifierOption {
	return func(v *Verifier) {
		if window > 0 {
			v.replayWindow = window
		}
	}
}

// NewVerifier creates a verifier backed by the given keyring.
func NewVerifier(keyring *Keyring, opts ...VerifierOption) (*Verifier, error) {
	if keyring == nil {
		return nil, fmt.Errorf("envelope keyring is required")
	}
	verifier := &Verifier{
		keyring:      keyring,
		replayWindow: DefaultReplayWindow,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(verifier)
	}
	return verifier, nil
}

// Verify recomputes the envelope HMAC over the canonical serialization and
// independently checks the issued-at timestamp against the replay window.
//
// Both checks always run. The timestamp outcome is reported even when the
// signature is invalid, but authorization requires ResultValid: an expired
// envelope is rejected regardless of signature validity and vice versa.
func (v *Verifier) Verify(env SignedEnvelope) Result {
	withinWindow := v.withinReplayWindow(env.IssuedAtMillis)
	signatureValid := v.signatureValid(env)

	if !withinWindow {
		return ResultExpired
	}
	if !signatureValid {
		return ResultInvalidSignature
	}
	return ResultValid
}

func (v *Verifier) withinReplayWindow(issuedAtMillis int64) bool {
	now := v.clock().UnixMilli()
	age := now - issuedAtMillis
	if age < 0 {
		age = -age
	}
	return age <= v.replayWindow.Milliseconds()
}

func (v *Verifier) signatureValid(env SignedEnvelope) bool {
	expected, err := v.keyring.Sign(env.KeyID, env.Origin, CanonicalSerialize(env))
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(env.SignatureHex))))
}

// Sign computes the envelope signature with the keyring's active key and
// returns a copy carrying the signature and key id. Used by tests and by
// partner tooling; the service itself only verifies.
func (v *Verifier) Sign(env SignedEnvelope) (SignedEnvelope, error) {
	keyID := v.keyring.ActiveKeyID()
	signature, err := v.keyring.Sign(keyID, env.Origin, CanonicalSerialize(env))
	if err != nil {
		return SignedEnvelope{}, err
	}
	env.KeyID = keyID
	env.SignatureHex = signature
	return env, nil
}

// CanonicalSerialize produces the deterministic byte sequence both the
// partner and the verifier sign. Claims are serialized in sorted key order;
// any ambiguity here is a correctness defect, not a style choice.
func CanonicalSerialize(env SignedEnvelope) []byte {
	keys := make([]string, 0, len(env.Claims))
	for key := range env.Claims {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(env.Claims[key])
		b.WriteByte('\n')
	}
	b.WriteString("payload:")
	b.WriteString(hex.EncodeToString(payloadDigest(env.Payload)))
	b.WriteByte('\n')
	b.WriteString("origin:")
	b.WriteString(env.Origin)
	b.WriteByte('\n')
	b.WriteString("issued_at:")
	b.WriteString(strconv.FormatInt(env.IssuedAtMillis, 10))
	return []byte(b.String())
}

// payloadDigest hashes the opaque payload so arbitrary bytes cannot inject
// separator sequences into the canonical form.
func payloadDigest(payload []byte) []byte {
	digest := sha256.Sum256(payload)
	return digest[:]
}
