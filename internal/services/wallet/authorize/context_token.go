package authorize

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/walletgate/walletgate/internal/services/wallet/passkey"
)

// contextTokenIssuer names the token issuer and audience.
const contextTokenIssuer = "walletgate"

// contextTokenEnv holds raw env values before post-parse validation.
type contextTokenEnv struct {
	Secret string        `env:"WALLETGATE_CONTEXT_TOKEN_SECRET"`
	TTL    time.Duration `env:"WALLETGATE_CONTEXT_TOKEN_TTL" envDefault:"5m"`
}

// ContextTokenConfig defines how ceremony context tokens are signed.
type ContextTokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

// LoadContextTokenConfigFromEnv reads context token configuration. A missing
// secret is a configuration error surfaced at startup.
func LoadContextTokenConfigFromEnv() (ContextTokenConfig, error) {
	var raw contextTokenEnv
	if err := env.Parse(&raw); err != nil {
		return ContextTokenConfig{}, fmt.Errorf("parse context token env: %w", err)
	}
	secret := strings.TrimSpace(raw.Secret)
	if secret == "" {
		return ContextTokenConfig{}, fmt.Errorf("WALLETGATE_CONTEXT_TOKEN_SECRET is required")
	}
	if raw.TTL <= 0 {
		return ContextTokenConfig{}, fmt.Errorf("context token ttl must be positive")
	}
	return ContextTokenConfig{Secret: []byte(secret), TTL: raw.TTL}, nil
}

// contextClaims binds an issued challenge to the ceremony it belongs to.
// The token is opaque to the client; the server round-trips flow, identity,
// and challenge key through it instead of holding extra state.
type contextClaims struct {
	jwt.RegisteredClaims
	Flow         string `json:"flow"`
	UserID       string `json:"user_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	ChallengeKey string `json:"challenge_key"`
	Family       string `json:"flow_family"`
}

// ceremonyContext is the decoded, validated content of a context token.
type ceremonyContext struct {
	Flow         passkey.SessionKind
	UserID       string
	SessionID    string
	ChallengeKey string
	Family       string
}

// contextTokenSigner signs and verifies ceremony context tokens.
type contextTokenSigner struct {
	config ContextTokenConfig
	clock  func() time.Time
}

func newContextTokenSigner(config ContextTokenConfig, clock func() time.Time) *contextTokenSigner {
	if clock == nil {
		clock = time.Now
	}
	return &contextTokenSigner{config: config, clock: clock}
}

func (s *contextTokenSigner) sign(cc ceremonyContext) (string, error) {
	if len(s.config.Secret) == 0 {
		return "", fmt.Errorf("context token secret is not configured")
	}
	now := s.clock().UTC()
	claims := contextClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    contextTokenIssuer,
			Audience:  jwt.ClaimStrings{contextTokenIssuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
		},
		Flow:         string(cc.Flow),
		UserID:       cc.UserID,
		SessionID:    cc.SessionID,
		ChallengeKey: cc.ChallengeKey,
		Family:       cc.Family,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.config.Secret)
}

func (s *contextTokenSigner) verify(raw string) (ceremonyContext, error) {
	if len(s.config.Secret) == 0 {
		return ceremonyContext{}, fmt.Errorf("context token secret is not configured")
	}
	var claims contextClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(token *jwt.Token) (any, error) {
			return s.config.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(contextTokenIssuer),
		jwt.WithAudience(contextTokenIssuer),
		jwt.WithTimeFunc(func() time.Time { return s.clock().UTC() }),
	)
	if err != nil {
		return ceremonyContext{}, fmt.Errorf("parse context token: %w", err)
	}
	if strings.TrimSpace(claims.ChallengeKey) == "" {
		return ceremonyContext{}, fmt.Errorf("context token missing challenge key")
	}
	return ceremonyContext{
		Flow:         passkey.SessionKind(claims.Flow),
		UserID:       claims.UserID,
		SessionID:    claims.SessionID,
		ChallengeKey: claims.ChallengeKey,
		Family:       claims.Family,
	}, nil
}
