// Package ceremony wraps the WebAuthn library behind the opaque verifier
// contract the orchestrator consumes: a challenge, a client response, and
// the expected relying-party identity go in; a verified credential comes
// out. Attestation and assertion parsing never leak past this boundary.
package ceremony

import (
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/walletgate/walletgate/internal/services/wallet/passkey"
)

// Verifier validates ceremony responses against an expected challenge.
type Verifier interface {
	// VerifyRegistration validates an attestation response and returns the
	// newly created credential.
	VerifyRegistration(user webauthn.User, expectedChallenge string, clientResponse []byte) (*webauthn.Credential, error)
	// VerifyAssertion validates an assertion response against the user's
	// registered credentials and returns the matched credential with its
	// updated signature counter.
	VerifyAssertion(user webauthn.User, expectedChallenge string, clientResponse []byte) (*webauthn.Credential, error)
}

// responseParser mirrors the protocol parsing entry points so tests can
// substitute malformed-input behavior.
type responseParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultParser struct{}

func (defaultParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// WebAuthnVerifier implements Verifier with go-webauthn.
type WebAuthnVerifier struct {
	webAuthn *webauthn.WebAuthn
	parser   responseParser
	clock    func() time.Time
}

// NewWebAuthnVerifier builds a verifier for the configured relying party.
// RPOrigins may include multiple related origins for cross-origin
// registration.
func NewWebAuthnVerifier(cfg passkey.Config) (*WebAuthnVerifier, error) {
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &WebAuthnVerifier{
		webAuthn: webAuthn,
		parser:   defaultParser{},
		clock:    time.Now,
	}, nil
}

// VerifyRegistration implements Verifier.
func (v *WebAuthnVerifier) VerifyRegistration(user webauthn.User, expectedChallenge string, clientResponse []byte) (*webauthn.Credential, error) {
	if v == nil || v.webAuthn == nil {
		return nil, fmt.Errorf("ceremony verifier is not configured")
	}
	parsed, err := v.parser.ParseCredentialCreationResponseBytes(clientResponse)
	if err != nil {
		return nil, fmt.Errorf("parse credential creation response: %w", err)
	}
	return v.webAuthn.CreateCredential(user, v.session(user, expectedChallenge), parsed)
}

// VerifyAssertion implements Verifier.
func (v *WebAuthnVerifier) VerifyAssertion(user webauthn.User, expectedChallenge string, clientResponse []byte) (*webauthn.Credential, error) {
	if v == nil || v.webAuthn == nil {
		return nil, fmt.Errorf("ceremony verifier is not configured")
	}
	parsed, err := v.parser.ParseCredentialRequestResponseBytes(clientResponse)
	if err != nil {
		return nil, fmt.Errorf("parse credential assertion response: %w", err)
	}
	return v.webAuthn.ValidateLogin(user, v.session(user, expectedChallenge), parsed)
}

func (v *WebAuthnVerifier) session(user webauthn.User, expectedChallenge string) webauthn.SessionData {
	// Expiry is enforced by the challenge store before the verifier runs;
	// the session deadline here only guards against clock disagreement.
	return webauthn.SessionData{
		Challenge: expectedChallenge,
		UserID:    user.WebAuthnID(),
		Expires:   v.clock().Add(time.Minute),
	}
}
