// Package oidc exposes the interaction contract of the OAuth/OIDC
// authorization service. The code-grant state machine itself lives behind
// this boundary; the wallet core only reads interaction details, attaches a
// proven identity, and finishes interactions.
package oidc

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/walletgate/walletgate/internal/platform/errors"
	"github.com/walletgate/walletgate/internal/platform/id"
	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// InteractionDetails describes a pending authorization attempt.
type InteractionDetails struct {
	InteractionID   string
	ClientID        string
	UserID          string // empty when no session identity is attached yet
	RequestedScopes []string
}

// Result carries the outcome a finished interaction reports back.
type Result struct {
	UserID  string
	Granted bool
}

// Service is the interaction contract consumed by the orchestrator.
type Service interface {
	GetInteractionDetails(ctx context.Context, interactionID string) (InteractionDetails, error)
	FinishInteraction(ctx context.Context, interactionID string, result Result) error
	CreateGrant(ctx context.Context, userID, clientID string, scopes []string) (string, error)
}

// StoreService implements Service over the pending-interaction store.
type StoreService struct {
	store       storage.InteractionStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewStoreService builds the default interaction service.
func NewStoreService(store storage.InteractionStore) *StoreService {
	return &StoreService{
		store:       store,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
}

// GetInteractionDetails resolves a pending interaction, rejecting expired
// records.
func (s *StoreService) GetInteractionDetails(ctx context.Context, interactionID string) (InteractionDetails, error) {
	if s == nil || s.store == nil {
		return InteractionDetails{}, apperrors.New(apperrors.CodeUnknown, "interaction store is not configured")
	}
	if strings.TrimSpace(interactionID) == "" {
		return InteractionDetails{}, apperrors.New(apperrors.CodeInvalidArgument, "interaction id is required")
	}
	pending, err := s.store.GetPendingInteraction(ctx, interactionID)
	if err != nil {
		return InteractionDetails{}, err
	}
	if pending.ExpiresAt.Before(s.clock().UTC()) {
		_ = s.store.DeletePendingInteraction(ctx, interactionID)
		return InteractionDetails{}, storage.ErrNotFound
	}
	return InteractionDetails{
		InteractionID:   pending.ID,
		ClientID:        pending.ClientID,
		UserID:          pending.UserID,
		RequestedScopes: splitScopes(pending.RequestedScopes),
	}, nil
}

// FinishInteraction attaches the result and retires the pending record.
func (s *StoreService) FinishInteraction(ctx context.Context, interactionID string, result Result) error {
	if s == nil || s.store == nil {
		return apperrors.New(apperrors.CodeUnknown, "interaction store is not configured")
	}
	if strings.TrimSpace(interactionID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "interaction id is required")
	}
	if result.Granted && strings.TrimSpace(result.UserID) != "" {
		if err := s.store.UpdatePendingInteractionUserID(ctx, interactionID, result.UserID); err != nil {
			return err
		}
	}
	return s.store.DeletePendingInteraction(ctx, interactionID)
}

// CreateGrant mints an opaque grant identifier for a granted interaction and
// records the consent. Token issuance against the grant lives with the OIDC
// collaborator.
func (s *StoreService) CreateGrant(ctx context.Context, userID, clientID string, scopes []string) (string, error) {
	if s == nil || s.store == nil {
		return "", apperrors.New(apperrors.CodeUnknown, "interaction store is not configured")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(clientID) == "" {
		return "", apperrors.New(apperrors.CodeInvalidArgument, "user id and client id are required")
	}
	grantID, err := s.idGenerator()
	if err != nil {
		return "", err
	}
	grant := storage.Grant{
		ID:        grantID,
		UserID:    userID,
		ClientID:  clientID,
		Scopes:    strings.Join(scopes, " "),
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.InsertGrant(ctx, grant); err != nil {
		return "", err
	}
	return grantID, nil
}

func splitScopes(value string) []string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
