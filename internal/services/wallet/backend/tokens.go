// Package backend issues payment tokens through the upstream card backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	apperrors "github.com/walletgate/walletgate/internal/platform/errors"
	"github.com/walletgate/walletgate/internal/platform/timeouts"
)

// Config controls the outbound token client.
type Config struct {
	BaseURL     string        `env:"WALLETGATE_BACKEND_URL"`
	BearerToken string        `env:"WALLETGATE_BACKEND_BEARER"`
	Timeout     time.Duration `env:"WALLETGATE_BACKEND_TIMEOUT" envDefault:"10s"`
}

// LoadConfigFromEnv returns backend client configuration.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse backend env: %w", err)
	}
	return cfg, nil
}

// CardToken is the issued payment token for a card.
type CardToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenClient calls the card backend with a static bearer credential.
type TokenClient struct {
	baseURL string
	bearer  string
	client  *http.Client
}

// NewTokenClient builds a token client from configuration.
func NewTokenClient(cfg Config) (*TokenClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if strings.TrimSpace(cfg.BearerToken) == "" {
		return nil, fmt.Errorf("backend bearer token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.BackendRequest
	}
	return &TokenClient{
		baseURL: baseURL,
		bearer:  cfg.BearerToken,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type issueTokenRequest struct {
	UserID string `json:"user_id"`
	CardID string `json:"card_id"`
}

// IssueCardToken requests a payment token for the given card.
func (c *TokenClient) IssueCardToken(ctx context.Context, userID, cardID string) (CardToken, error) {
	if c == nil || c.client == nil {
		return CardToken{}, apperrors.New(apperrors.CodeBackendUnavailable, "token client is not configured")
	}
	body, err := json.Marshal(issueTokenRequest{UserID: userID, CardID: cardID})
	if err != nil {
		return CardToken{}, fmt.Errorf("encode token request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/card-tokens", bytes.NewReader(body))
	if err != nil {
		return CardToken{}, fmt.Errorf("build token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.bearer)

	response, err := c.client.Do(request)
	if err != nil {
		return CardToken{}, apperrors.Wrap(apperrors.CodeBackendUnavailable, "issue card token", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return CardToken{}, apperrors.New(apperrors.CodeBackendUnavailable,
			fmt.Sprintf("card backend returned status %d", response.StatusCode))
	}

	var token CardToken
	if err := json.NewDecoder(response.Body).Decode(&token); err != nil {
		return CardToken{}, apperrors.Wrap(apperrors.CodeBackendUnavailable, "decode token response", err)
	}
	return token, nil
}
