// Package storage defines the persistence contracts for wallet records.
package storage

import (
	"context"
	"time"

	"github.com/walletgate/walletgate/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// User is a wallet account holder.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Card is a stored payment instrument owned by a user.
type Card struct {
	ID        string
	UserID    string
	Label     string
	Network   string
	LastFour  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PasskeyCredential stores a WebAuthn credential for a user.
type PasskeyCredential struct {
	CredentialID   string
	UserID         string
	CredentialJSON string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastUsedAt     *time.Time
}

// OAuthClient is a registered relying application.
type OAuthClient struct {
	ClientID       string
	Name           string
	SecretHash     string
	RedirectURIs   []string
	AllowedOrigins []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Invite is an admin-issued enrollment invitation.
type Invite struct {
	Token     string
	Email     string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// PendingInteraction is an OAuth authorization attempt awaiting a user
// decision. It carries the session identity once a ceremony has proven one.
type PendingInteraction struct {
	ID              string
	ClientID        string
	UserID          string
	RequestedScopes string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Grant records a user's consent for a client, minted when an interaction
// finishes granted. Token issuance against grants lives with the OIDC
// collaborator; this service only writes the consent record.
type Grant struct {
	ID        string
	UserID    string
	ClientID  string
	Scopes    string
	CreatedAt time.Time
}

// UserStore persists wallet user records.
type UserStore interface {
	PutUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// CardStore persists payment card records.
type CardStore interface {
	PutCard(ctx context.Context, card Card) error
	GetCard(ctx context.Context, cardID string) (Card, error)
	ListCardsByUser(ctx context.Context, userID string) ([]Card, error)
	DeleteCard(ctx context.Context, cardID string) error
}

// CredentialStore persists WebAuthn credential data.
type CredentialStore interface {
	PutPasskeyCredential(ctx context.Context, credential PasskeyCredential) error
	GetPasskeyCredential(ctx context.Context, credentialID string) (PasskeyCredential, error)
	ListPasskeyCredentials(ctx context.Context, userID string) ([]PasskeyCredential, error)
	DeletePasskeyCredential(ctx context.Context, credentialID string) error
}

// ClientStore persists registered OAuth clients.
type ClientStore interface {
	PutOAuthClient(ctx context.Context, client OAuthClient) error
	GetOAuthClient(ctx context.Context, clientID string) (OAuthClient, error)
	ListOAuthClients(ctx context.Context) ([]OAuthClient, error)
	DeleteOAuthClient(ctx context.Context, clientID string) error
}

// InviteStore persists enrollment invitations.
type InviteStore interface {
	PutInvite(ctx context.Context, invite Invite) error
	GetInvite(ctx context.Context, token string) (Invite, error)
	MarkInviteUsed(ctx context.Context, token string, usedAt time.Time) error
}

// InteractionStore persists pending OAuth interactions.
type InteractionStore interface {
	PutPendingInteraction(ctx context.Context, interaction PendingInteraction) error
	GetPendingInteraction(ctx context.Context, id string) (PendingInteraction, error)
	UpdatePendingInteractionUserID(ctx context.Context, id string, userID string) error
	DeletePendingInteraction(ctx context.Context, id string) error
	DeleteExpiredPendingInteractions(ctx context.Context, now time.Time) error
	InsertGrant(ctx context.Context, grant Grant) error
}
