// Package httpapi exposes the wallet authorization flows over HTTP for
// browser callers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/walletgate/walletgate/internal/platform/errors"
	"github.com/walletgate/walletgate/internal/platform/requestctx"
	"github.com/walletgate/walletgate/internal/services/wallet/authorize"
	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// sessionHeader names the header browsers use to declare their session
// identity on wallet requests.
const sessionHeader = "X-Wallet-Session"

// Server hosts the wallet authorization endpoints.
type Server struct {
	orchestrator *authorize.Orchestrator
	clients      storage.ClientStore
	invites      storage.InviteStore
	adminToken   string
	clock        func() time.Time
}

// NewServer builds an HTTP server over the orchestrator. The admin token
// guards client and invite registration; an empty token disables admin
// routes.
func NewServer(orchestrator *authorize.Orchestrator, clients storage.ClientStore, invites storage.InviteStore, adminToken string) *Server {
	return &Server{
		orchestrator: orchestrator,
		clients:      clients,
		invites:      invites,
		adminToken:   adminToken,
		clock:        time.Now,
	}
}

// Handler returns the full wallet HTTP handler with session identity
// propagation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return withSession(mux)
}

// withSession copies the declared session identity from the request header
// into context so handlers share one extraction point.
func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionID := r.Header.Get(sessionHeader); sessionID != "" {
			r = r.WithContext(requestctx.WithSessionID(r.Context(), sessionID))
		}
		next.ServeHTTP(w, r)
	})
}

// RegisterRoutes registers the wallet endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/v1/ceremony/begin", s.handleCeremonyBegin)
	mux.HandleFunc("/v1/ceremony/complete", s.handleCeremonyComplete)
	mux.HandleFunc("/v1/grace", s.handleGraceCheck)
	mux.HandleFunc("/v1/enroll/envelope", s.handleEnrollEnvelope)
	mux.HandleFunc("/v1/enroll/invite", s.handleEnrollInvite)
	mux.HandleFunc("/v1/cards/", s.handleCardRoutes)
	mux.HandleFunc("/v1/interactions/", s.handleInteractionRoutes)
	mux.HandleFunc("/v1/embed", s.handleEmbed)
	mux.HandleFunc("/v1/admin/clients", s.handleAdminClients)
	mux.HandleFunc("/v1/admin/clients/", s.handleAdminClientByID)
	mux.HandleFunc("/v1/admin/invites", s.handleAdminInvites)
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error to its HTTP status and a JSON body carrying
// the machine-readable code.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{
		Error:            string(code),
		ErrorDescription: err.Error(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "invalid request body"))
		return false
	}
	return true
}

// requestOrigin returns the browser-declared origin of the request. Origin
// checks always run against this header, never against Referer.
func requestOrigin(r *http.Request) string {
	return r.Header.Get("Origin")
}

// requestSessionID prefers an explicit body or query value and falls back to
// the session identity carried in context.
func requestSessionID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return requestctx.SessionIDFromContext(r.Context())
}
