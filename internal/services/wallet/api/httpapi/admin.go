package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/walletgate/walletgate/internal/platform/errors"
	"github.com/walletgate/walletgate/internal/platform/id"
	"github.com/walletgate/walletgate/internal/services/wallet/storage"
	"golang.org/x/crypto/bcrypt"
)

type registerClientRequest struct {
	Name           string   `json:"name"`
	RedirectURIs   []string `json:"redirect_uris"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type registerClientResponse struct {
	ClientID string `json:"client_id"`
	// Secret is returned exactly once at registration; only its bcrypt
	// hash is stored.
	Secret string `json:"secret"`
}

type clientSummary struct {
	ClientID       string   `json:"client_id"`
	Name           string   `json:"name"`
	RedirectURIs   []string `json:"redirect_uris"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// authorizeAdmin checks the static admin bearer token. Admin routes are
// disabled entirely when no token is configured.
func (s *Server) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.adminToken == "" {
		http.NotFound(w, r)
		return false
	}
	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(presented), []byte(s.adminToken)) != 1 {
		writeError(w, apperrors.New(apperrors.CodeOriginRejected, "admin authorization failed"))
		return false
	}
	return true
}

func (s *Server) handleAdminClients(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.registerClient(w, r)
	case http.MethodGet:
		s.listClients(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAdminClientByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(w, r) {
		return
	}
	clientID := strings.TrimPrefix(r.URL.Path, "/v1/admin/clients/")
	if clientID == "" || strings.Contains(clientID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		client, err := s.clients.GetOAuthClient(r.Context(), clientID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summarizeClient(client))
	case http.MethodDelete:
		if _, err := s.clients.GetOAuthClient(r.Context(), clientID); err != nil {
			writeError(w, err)
			return
		}
		if err := s.clients.DeleteOAuthClient(r.Context(), clientID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createInviteRequest struct {
	Email     string `json:"email"`
	CreatedBy string `json:"created_by,omitempty"`
}

type createInviteResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// inviteTTL bounds how long an enrollment invitation stays redeemable.
const inviteTTL = 7 * 24 * time.Hour

func (s *Server) handleAdminInvites(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeAdmin(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var request createInviteRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Email) == "" {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "invite email is required"))
		return
	}

	token, err := id.NewID()
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "generate invite token", err))
		return
	}
	now := s.clock().UTC()
	invite := storage.Invite{
		Token:     token,
		Email:     strings.TrimSpace(request.Email),
		CreatedBy: strings.TrimSpace(request.CreatedBy),
		CreatedAt: now,
		ExpiresAt: now.Add(inviteTTL),
	}
	if err := s.invites.PutInvite(r.Context(), invite); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createInviteResponse{
		Token:     token,
		ExpiresAt: invite.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) registerClient(w http.ResponseWriter, r *http.Request) {
	var request registerClientRequest
	if !decodeJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Name) == "" {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "client name is required"))
		return
	}

	clientID, err := id.NewID()
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "generate client id", err))
		return
	}
	secret, err := id.NewID()
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "generate client secret", err))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "hash client secret", err))
		return
	}

	now := s.clock().UTC()
	client := storage.OAuthClient{
		ClientID:       clientID,
		Name:           strings.TrimSpace(request.Name),
		SecretHash:     string(hash),
		RedirectURIs:   request.RedirectURIs,
		AllowedOrigins: request.AllowedOrigins,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.clients.PutOAuthClient(r.Context(), client); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerClientResponse{ClientID: clientID, Secret: secret})
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.ListOAuthClients(r.Context())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, err)
		return
	}
	summaries := make([]clientSummary, 0, len(clients))
	for _, client := range clients {
		summaries = append(summaries, summarizeClient(client))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func summarizeClient(client storage.OAuthClient) clientSummary {
	return clientSummary{
		ClientID:       client.ClientID,
		Name:           client.Name,
		RedirectURIs:   client.RedirectURIs,
		AllowedOrigins: client.AllowedOrigins,
	}
}

// VerifyClientSecret compares a presented secret against a registered
// client's stored hash.
func VerifyClientSecret(client storage.OAuthClient, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) == nil
}
