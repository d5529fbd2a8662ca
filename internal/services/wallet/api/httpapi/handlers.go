package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/walletgate/walletgate/internal/platform/branding"
	apperrors "github.com/walletgate/walletgate/internal/platform/errors"
	"github.com/walletgate/walletgate/internal/services/wallet/envelope"
	"github.com/walletgate/walletgate/internal/services/wallet/origin"
	"github.com/walletgate/walletgate/internal/services/wallet/passkey"
)

type beginCeremonyRequest struct {
	Flow      string `json:"flow"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type beginCeremonyResponse struct {
	Challenge    string `json:"challenge"`
	ContextToken string `json:"context_token"`
}

func (s *Server) handleCeremonyBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request beginCeremonyRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	result, err := s.orchestrator.BeginCeremony(r.Context(), passkey.SessionKind(request.Flow), request.UserID, requestSessionID(r, request.SessionID), requestOrigin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, beginCeremonyResponse{
		Challenge:    result.ChallengeValue,
		ContextToken: result.ContextToken,
	})
}

type completeCeremonyRequest struct {
	ContextToken   string          `json:"context_token"`
	ClientResponse json.RawMessage `json:"client_response"`
}

type completeCeremonyResponse struct {
	Verified        bool   `json:"verified"`
	SessionElevated bool   `json:"session_elevated"`
	UserID          string `json:"user_id"`
	CredentialID    string `json:"credential_id"`
}

func (s *Server) handleCeremonyComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request completeCeremonyRequest
	if !decodeJSON(w, r, &request) {
		return
	}

	result, err := s.orchestrator.CompleteCeremony(r.Context(), request.ContextToken, request.ClientResponse, requestOrigin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeCeremonyResponse{
		Verified:        result.Verified,
		SessionElevated: result.SessionElevated,
		UserID:          result.UserID,
		CredentialID:    result.CredentialID,
	})
}

type graceResponse struct {
	Authenticated     bool `json:"authenticated"`
	WithinGracePeriod bool `json:"within_grace_period"`
	RemainingSeconds  int  `json:"remaining_seconds"`
}

func (s *Server) handleGraceCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := s.orchestrator.CheckGracePeriod(requestSessionID(r, r.URL.Query().Get("session_id")))
	writeJSON(w, http.StatusOK, graceResponse{
		Authenticated:     status.Authenticated,
		WithinGracePeriod: status.WithinGracePeriod,
		RemainingSeconds:  status.RemainingSeconds,
	})
}

type enrollEnvelopeRequest struct {
	Claims         map[string]string `json:"claims"`
	Payload        string            `json:"payload,omitempty"` // base64url
	Origin         string            `json:"origin"`
	IssuedAtMillis int64             `json:"issued_at_ms"`
	KeyID          string            `json:"key_id"`
	Signature      string            `json:"signature"`
}

type enrollEnvelopeResponse struct {
	Result       string `json:"result"`
	UserID       string `json:"user_id"`
	Challenge    string `json:"challenge"`
	ContextToken string `json:"context_token"`
}

func (s *Server) handleEnrollEnvelope(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request enrollEnvelopeRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	payload, err := base64.RawURLEncoding.DecodeString(request.Payload)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "payload must be base64url"))
		return
	}

	result, err := s.orchestrator.VerifyEnrollmentEnvelope(r.Context(), envelope.SignedEnvelope{
		Claims:         request.Claims,
		Payload:        payload,
		Origin:         request.Origin,
		IssuedAtMillis: request.IssuedAtMillis,
		KeyID:          request.KeyID,
		SignatureHex:   request.Signature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollEnvelopeResponse{
		Result:       result.Reason.String(),
		UserID:       result.UserID,
		Challenge:    result.ChallengeValue,
		ContextToken: result.ContextToken,
	})
}

type enrollInviteRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleEnrollInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request enrollInviteRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	result, err := s.orchestrator.RedeemInvite(r.Context(), request.Token, requestOrigin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollEnvelopeResponse{
		Result:       result.Reason.String(),
		UserID:       result.UserID,
		Challenge:    result.ChallengeValue,
		ContextToken: result.ContextToken,
	})
}

type cardTokenRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

type cardTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// handleCardRoutes dispatches /v1/cards/{id}/token.
func (s *Server) handleCardRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/cards/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "token" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cardID := parts[0]

	var request cardTokenRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	token, err := s.orchestrator.ConfirmSensitiveAction(r.Context(), requestSessionID(r, request.SessionID), request.UserID, cardID, requestOrigin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardTokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type attachInteractionRequest struct {
	UserID string `json:"user_id"`
}

type attachInteractionResponse struct {
	GrantID string `json:"grant_id"`
}

// handleInteractionRoutes dispatches /v1/interactions/{id}/attach.
func (s *Server) handleInteractionRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/interactions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "attach" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request attachInteractionRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	grantID, err := s.orchestrator.AttachInteraction(r.Context(), parts[0], request.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attachInteractionResponse{GrantID: grantID})
}

// handleEmbed serves the embeddable wallet surface shell. The response
// carries the frame-ancestors policy for the declared origin, restricting
// who may frame the page.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	embedOrigin := r.URL.Query().Get("origin")
	allowed, headers := s.orchestrator.GuardOrigin(embedOrigin, origin.FlowEmbedIframe)
	for key, values := range headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if !allowed {
		writeError(w, apperrors.New(apperrors.CodeOriginRejected, "origin is not authorized for embedding"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!doctype html><title>" + branding.AppName + "</title>"))
}
