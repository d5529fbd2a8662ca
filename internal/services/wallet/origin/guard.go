// Package origin validates browser-reported origins against per-flow
// allow-lists and shapes the embedding response headers.
package origin

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
)

// FlowFamily distinguishes the allow-list a request is checked against.
type FlowFamily string

const (
	// FlowEmbedIframe covers wallet pages embedded in a partner iframe.
	FlowEmbedIframe FlowFamily = "embed-iframe"
	// FlowPopupPostMessage covers popup windows talking via postMessage.
	FlowPopupPostMessage FlowFamily = "popup-postmessage"
	// FlowCrossOriginEnrollment covers partner-initiated enrollment.
	FlowCrossOriginEnrollment FlowFamily = "cross-origin-enrollment"
)

// Config holds the per-flow origin allow-lists. Origins are configured at
// process start and read-only thereafter.
type Config struct {
	EmbedOrigins      []string `env:"WALLETGATE_EMBED_ORIGINS"      envSeparator:","`
	PopupOrigins      []string `env:"WALLETGATE_POPUP_ORIGINS"      envSeparator:","`
	EnrollmentOrigins []string `env:"WALLETGATE_ENROLLMENT_ORIGINS" envSeparator:","`
}

// LoadConfigFromEnv returns origin configuration from the environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse origin env: %w", err)
	}
	return cfg, nil
}

// Guard answers whether a request-declared origin may use a flow family.
type Guard struct {
	allowed map[FlowFamily]map[string]bool
}

// NewGuard builds a guard from the configured allow-lists. Entries are
// trimmed; empty entries are dropped.
func NewGuard(cfg Config) *Guard {
	guard := &Guard{allowed: make(map[FlowFamily]map[string]bool)}
	guard.allowed[FlowEmbedIframe] = originSet(cfg.EmbedOrigins)
	guard.allowed[FlowPopupPostMessage] = originSet(cfg.PopupOrigins)
	guard.allowed[FlowCrossOriginEnrollment] = originSet(cfg.EnrollmentOrigins)
	return guard
}

func originSet(origins []string) map[string]bool {
	set := make(map[string]bool, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		set[origin] = true
	}
	return set
}

// IsAllowed reports whether origin matches the flow family's allow-list
// byte-for-byte. Browsers report canonical origins, so no wildcarding and
// no scheme or port normalization happens here. An empty origin always
// fails closed.
func (g *Guard) IsAllowed(origin string, family FlowFamily) bool {
	if g == nil || origin == "" {
		return false
	}
	set, ok := g.allowed[family]
	if !ok {
		return false
	}
	return set[origin]
}

// ResponseHeaders produces the embedding headers for a validated origin.
//
// For iframe flows the content security policy restricts frame-ancestors to
// the single validated origin, or 'none' when the origin is unauthorized.
// The permissions policy enables the passkey capability scoped to self.
func (g *Guard) ResponseHeaders(origin string, family FlowFamily) http.Header {
	headers := http.Header{}
	headers.Set("Permissions-Policy", "publickey-credentials-get=(self)")

	ancestor := "'none'"
	if g.IsAllowed(origin, family) && family == FlowEmbedIframe {
		ancestor = origin
	}
	headers.Set("Content-Security-Policy", "frame-ancestors "+ancestor)
	return headers
}
