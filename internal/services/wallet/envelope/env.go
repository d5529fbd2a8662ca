package envelope

import (
	"fmt"
	"os"
	"strings"
)

const (
	envKeys  = "WALLETGATE_ENVELOPE_KEYS"
	envKey   = "WALLETGATE_ENVELOPE_KEY"
	envKeyID = "WALLETGATE_ENVELOPE_KEY_ID"

	defaultKeyID = "v1"
)

// KeyringFromEnv loads the envelope keyring configuration from environment
// variables.
//
// WALLETGATE_ENVELOPE_KEYS holds comma-separated id=secret pairs for
// rotation; WALLETGATE_ENVELOPE_KEY holds a single secret under the default
// key id. One of the two is required: an unset shared secret is a startup
// failure, never a silently permissive verifier.
func KeyringFromEnv() (*Keyring, error) {
	keyID := strings.TrimSpace(os.Getenv(envKeyID))
	if keyID == "" {
		keyID = defaultKeyID
	}

	keySpec := strings.TrimSpace(os.Getenv(envKeys))
	if keySpec == "" {
		raw := strings.TrimSpace(os.Getenv(envKey))
		if raw == "" {
			return nil, fmt.Errorf("%s is required", envKey)
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte)
	entries := strings.Split(keySpec, ",")
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid %s entry", envKeys)
		}
		id := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if id == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry", envKeys)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
