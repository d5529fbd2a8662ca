package envelope

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Keyring stores root envelope secrets and the active key id.
//
// Root secrets rotate out-of-band: partners include the key id they signed
// with, and verification accepts any configured key while new envelopes are
// signed with the active one. The signing key for a given partner is derived
// from the root secret with HKDF, keyed by the partner origin, so a leaked
// partner key never exposes the root or another partner's key.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for envelope signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("envelope keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active envelope key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active envelope key id is not configured")
	}
	return &Keyring{keys: keys, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the configured signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// Sign computes the hex HMAC-SHA256 of value with the key derived for the
// partner origin from the identified root secret. An empty key id falls back
// to the active key.
func (k *Keyring) Sign(keyID, partnerOrigin string, value []byte) (string, error) {
	if k == nil {
		return "", fmt.Errorf("envelope keyring is not configured")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = k.activeKeyID
	}
	root, ok := k.keys[keyID]
	if !ok {
		return "", fmt.Errorf("envelope key id is unknown")
	}
	key, err := derivePartnerKey(root, partnerOrigin)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(value)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func derivePartnerKey(root []byte, partnerOrigin string) ([]byte, error) {
	partnerOrigin = strings.TrimSpace(partnerOrigin)
	if partnerOrigin == "" {
		return nil, fmt.Errorf("partner origin is required")
	}
	key, err := hkdf.Key(sha256.New, root, nil, "partner:"+partnerOrigin, 32)
	if err != nil {
		return nil, fmt.Errorf("derive partner key: %w", err)
	}
	return key, nil
}
