// Package authorize composes the challenge store, envelope verifier, origin
// guard, and grace tracker into the user-facing authorization flows.
package authorize

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	apperrors "github.com/walletgate/walletgate/internal/platform/errors"
	"github.com/walletgate/walletgate/internal/platform/id"
	"github.com/walletgate/walletgate/internal/services/wallet/backend"
	"github.com/walletgate/walletgate/internal/services/wallet/ceremony"
	"github.com/walletgate/walletgate/internal/services/wallet/challenge"
	"github.com/walletgate/walletgate/internal/services/wallet/envelope"
	"github.com/walletgate/walletgate/internal/services/wallet/grace"
	"github.com/walletgate/walletgate/internal/services/wallet/oidc"
	"github.com/walletgate/walletgate/internal/services/wallet/origin"
	"github.com/walletgate/walletgate/internal/services/wallet/passkey"
	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// TokenIssuer is the outbound payment-token contract.
type TokenIssuer interface {
	IssueCardToken(ctx context.Context, userID, cardID string) (backend.CardToken, error)
}

// Orchestrator drives an authorization attempt through origin check,
// challenge issue, ceremony verification, and trust elevation. It is the
// only component that talks to storage, the interaction service, and the
// card backend.
type Orchestrator struct {
	users        storage.UserStore
	cards        storage.CardStore
	credentials  storage.CredentialStore
	invites      storage.InviteStore
	challenges   *challenge.Store
	gracePeriods *grace.Tracker
	origins      *origin.Guard
	envelopes    *envelope.Verifier
	ceremonies   ceremony.Verifier
	interactions oidc.Service
	tokens       TokenIssuer
	contextToken *contextTokenSigner
	clock        func() time.Time
	idGenerator  func() (string, error)
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Users        storage.UserStore
	Cards        storage.CardStore
	Credentials  storage.CredentialStore
	Invites      storage.InviteStore
	Challenges   *challenge.Store
	GracePeriods *grace.Tracker
	Origins      *origin.Guard
	Envelopes    *envelope.Verifier
	Ceremonies   ceremony.Verifier
	Interactions oidc.Service
	Tokens       TokenIssuer
	ContextToken ContextTokenConfig
	Clock        func() time.Time
}

// NewOrchestrator wires the authorization flows.
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("user store is required")
	case deps.Cards == nil:
		return nil, fmt.Errorf("card store is required")
	case deps.Credentials == nil:
		return nil, fmt.Errorf("credential store is required")
	case deps.Challenges == nil:
		return nil, fmt.Errorf("challenge store is required")
	case deps.GracePeriods == nil:
		return nil, fmt.Errorf("grace tracker is required")
	case deps.Origins == nil:
		return nil, fmt.Errorf("origin guard is required")
	case deps.Envelopes == nil:
		return nil, fmt.Errorf("envelope verifier is required")
	case deps.Ceremonies == nil:
		return nil, fmt.Errorf("ceremony verifier is required")
	case len(deps.ContextToken.Secret) == 0:
		return nil, fmt.Errorf("context token secret is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Orchestrator{
		users:        deps.Users,
		cards:        deps.Cards,
		credentials:  deps.Credentials,
		invites:      deps.Invites,
		challenges:   deps.Challenges,
		gracePeriods: deps.GracePeriods,
		origins:      deps.Origins,
		envelopes:    deps.Envelopes,
		ceremonies:   deps.Ceremonies,
		interactions: deps.Interactions,
		tokens:       deps.Tokens,
		contextToken: newContextTokenSigner(deps.ContextToken, clock),
		clock:        clock,
		idGenerator:  id.NewID,
	}, nil
}

// BeginResult is the response to a ceremony start.
type BeginResult struct {
	ChallengeValue string
	ContextToken   string
}

// CompleteResult is the response to a ceremony completion.
type CompleteResult struct {
	Verified        bool
	SessionElevated bool
	UserID          string
	CredentialID    string
}

// GraceStatus reports a session's trust-elevation state.
type GraceStatus struct {
	Authenticated     bool
	WithinGracePeriod bool
	RemainingSeconds  int
}

// challengeKey scopes challenges so concurrent ceremonies for different
// identities never collide. Keys use stable internal identifiers only,
// never raw user-supplied strings.
func challengeKey(flow passkey.SessionKind, subject string) string {
	return string(flow) + ":" + subject
}

// BeginCeremony validates the caller's origin, issues a single-use
// challenge, and returns it with a signed context token binding the
// challenge to the flow. No other server state changes until the client
// responds.
func (o *Orchestrator) BeginCeremony(ctx context.Context, flow passkey.SessionKind, userID, sessionID, originValue string) (BeginResult, error) {
	if flow != passkey.SessionKindRegistration && flow != passkey.SessionKindLogin {
		return BeginResult{}, apperrors.New(apperrors.CodeInvalidArgument, "unsupported ceremony flow")
	}
	if !o.origins.IsAllowed(originValue, origin.FlowPopupPostMessage) {
		return BeginResult{}, apperrors.New(apperrors.CodeOriginRejected, "origin is not authorized for ceremonies")
	}

	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	// Completion always resolves the user's stored credentials, so a
	// ceremony without a user identity could never succeed. Reject it here
	// instead of issuing a challenge that is doomed to fail after being
	// consumed.
	if userID == "" {
		return BeginResult{}, apperrors.New(apperrors.CodeInvalidArgument, "user id is required")
	}
	if _, err := o.users.GetUser(ctx, userID); err != nil {
		return BeginResult{}, err
	}

	key := challengeKey(flow, userID)
	nonce, err := o.challenges.Issue(key)
	if err != nil {
		return BeginResult{}, fmt.Errorf("issue challenge: %w", err)
	}
	token, err := o.contextToken.sign(ceremonyContext{
		Flow:         flow,
		UserID:       userID,
		SessionID:    sessionID,
		ChallengeKey: key,
		Family:       string(origin.FlowPopupPostMessage),
	})
	if err != nil {
		return BeginResult{}, fmt.Errorf("sign context token: %w", err)
	}
	return BeginResult{ChallengeValue: nonce, ContextToken: token}, nil
}

// CompleteCeremony consumes the challenge bound to the context token and
// forwards the client response to the ceremony verifier. The challenge is
// consumed before verification so a failed ceremony can never be retried
// against the same nonce. On success the session's trust window is armed.
func (o *Orchestrator) CompleteCeremony(ctx context.Context, contextToken string, clientResponse []byte, originValue string) (CompleteResult, error) {
	if len(clientResponse) == 0 {
		return CompleteResult{}, apperrors.New(apperrors.CodeInvalidArgument, "client response is required")
	}
	cc, err := o.contextToken.verify(contextToken)
	if err != nil {
		return CompleteResult{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid context token", err)
	}
	if !o.origins.IsAllowed(originValue, origin.FlowFamily(cc.Family)) {
		return CompleteResult{}, apperrors.New(apperrors.CodeOriginRejected, "origin is not authorized for ceremonies")
	}

	nonce, ok := o.challenges.Consume(cc.ChallengeKey)
	if !ok {
		return CompleteResult{}, apperrors.New(apperrors.CodeChallengeExpiredOrMissing, "challenge is expired or missing")
	}

	user, err := o.loadCeremonyUser(ctx, cc.UserID)
	if err != nil {
		return CompleteResult{}, err
	}

	var credential *webauthn.Credential
	switch cc.Flow {
	case passkey.SessionKindRegistration:
		credential, err = o.ceremonies.VerifyRegistration(user, nonce, clientResponse)
	case passkey.SessionKindLogin:
		credential, err = o.ceremonies.VerifyAssertion(user, nonce, clientResponse)
	default:
		return CompleteResult{}, apperrors.New(apperrors.CodeInvalidArgument, "unsupported ceremony flow")
	}
	if err != nil {
		return CompleteResult{}, apperrors.Wrap(apperrors.CodeCeremonyVerificationFailed, "ceremony verification failed", err)
	}

	used := cc.Flow == passkey.SessionKindLogin
	if err := o.storeCredential(ctx, user.record.ID, *credential, used); err != nil {
		return CompleteResult{}, fmt.Errorf("store credential: %w", err)
	}

	elevated := false
	if cc.SessionID != "" {
		o.gracePeriods.MarkElevated(cc.SessionID)
		elevated = true
	}
	return CompleteResult{
		Verified:        true,
		SessionElevated: elevated,
		UserID:          user.record.ID,
		CredentialID:    encodeCredentialID(credential.ID),
	}, nil
}

// CheckGracePeriod reports whether the session may skip the ceremony.
func (o *Orchestrator) CheckGracePeriod(sessionID string) GraceStatus {
	remaining := o.gracePeriods.Remaining(sessionID)
	return GraceStatus{
		Authenticated:     strings.TrimSpace(sessionID) != "",
		WithinGracePeriod: remaining > 0,
		RemainingSeconds:  int(remaining / time.Second),
	}
}

// ConfirmSensitiveAction authorizes a card token issuance on the grace-path.
// Origin and ownership checks run unconditionally; only the ceremony is
// skipped, and only while the session's trust window is open.
func (o *Orchestrator) ConfirmSensitiveAction(ctx context.Context, sessionID, userID, cardID, originValue string) (backend.CardToken, error) {
	if !o.origins.IsAllowed(originValue, origin.FlowPopupPostMessage) {
		return backend.CardToken{}, apperrors.New(apperrors.CodeOriginRejected, "origin is not authorized")
	}
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(cardID) == "" {
		return backend.CardToken{}, apperrors.New(apperrors.CodeInvalidArgument, "user id and card id are required")
	}

	card, err := o.cards.GetCard(ctx, cardID)
	if err != nil {
		return backend.CardToken{}, err
	}
	if card.UserID != userID {
		return backend.CardToken{}, apperrors.New(apperrors.CodeResourceNotOwned, "card belongs to another identity")
	}

	if !o.gracePeriods.IsElevated(sessionID) {
		return backend.CardToken{}, apperrors.New(apperrors.CodeGracePeriodExpired, "grace period expired, re-run the ceremony")
	}

	if o.tokens == nil {
		return backend.CardToken{}, apperrors.New(apperrors.CodeBackendUnavailable, "token backend is not configured")
	}
	return o.tokens.IssueCardToken(ctx, userID, cardID)
}

// EnrollmentResult is the response to a verified enrollment envelope.
type EnrollmentResult struct {
	Reason         envelope.Result
	UserID         string
	ChallengeValue string
	ContextToken   string
}

// VerifyEnrollmentEnvelope validates a partner-signed enrollment envelope.
// The envelope's proof of identity replaces the session-identity check: on
// success the asserted user is created (or found) and a registration
// ceremony context is returned so the browser can bind a passkey.
func (o *Orchestrator) VerifyEnrollmentEnvelope(ctx context.Context, env envelope.SignedEnvelope) (EnrollmentResult, error) {
	if !o.origins.IsAllowed(env.Origin, origin.FlowCrossOriginEnrollment) {
		return EnrollmentResult{}, apperrors.New(apperrors.CodeOriginRejected, "origin is not authorized for enrollment")
	}

	switch result := o.envelopes.Verify(env); result {
	case envelope.ResultExpired:
		return EnrollmentResult{Reason: result}, apperrors.New(apperrors.CodeEnvelopeExpired, "envelope timestamp outside replay window")
	case envelope.ResultInvalidSignature:
		return EnrollmentResult{Reason: result}, apperrors.New(apperrors.CodeEnvelopeInvalidSignature, "envelope signature mismatch")
	}

	email := strings.TrimSpace(env.Claims["email"])
	if email == "" {
		return EnrollmentResult{}, apperrors.New(apperrors.CodeInvalidArgument, "envelope is missing the email claim")
	}
	user, err := o.findOrCreateUser(ctx, email, env.Claims["name"])
	if err != nil {
		return EnrollmentResult{}, err
	}

	key := challengeKey(passkey.SessionKindRegistration, user.ID)
	nonce, err := o.challenges.Issue(key)
	if err != nil {
		return EnrollmentResult{}, fmt.Errorf("issue challenge: %w", err)
	}
	token, err := o.contextToken.sign(ceremonyContext{
		Flow:         passkey.SessionKindRegistration,
		UserID:       user.ID,
		ChallengeKey: key,
		Family:       string(origin.FlowCrossOriginEnrollment),
	})
	if err != nil {
		return EnrollmentResult{}, fmt.Errorf("sign context token: %w", err)
	}
	return EnrollmentResult{
		Reason:         envelope.ResultValid,
		UserID:         user.ID,
		ChallengeValue: nonce,
		ContextToken:   token,
	}, nil
}

// RedeemInvite exchanges an admin-issued invitation for a registration
// ceremony context. Invitations are single-use; missing, expired, and
// already-used tokens all collapse into one absent outcome.
func (o *Orchestrator) RedeemInvite(ctx context.Context, token, originValue string) (EnrollmentResult, error) {
	if o.invites == nil {
		return EnrollmentResult{}, apperrors.New(apperrors.CodeUnknown, "invite store is not configured")
	}
	if !o.origins.IsAllowed(originValue, origin.FlowCrossOriginEnrollment) {
		return EnrollmentResult{}, apperrors.New(apperrors.CodeOriginRejected, "origin is not authorized for enrollment")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return EnrollmentResult{}, apperrors.New(apperrors.CodeInvalidArgument, "invite token is required")
	}

	invite, err := o.invites.GetInvite(ctx, token)
	if err != nil {
		return EnrollmentResult{}, err
	}
	now := o.clock().UTC()
	if invite.UsedAt != nil || invite.ExpiresAt.Before(now) {
		return EnrollmentResult{}, storage.ErrNotFound
	}
	// Marking the token used before the ceremony starts makes redemption
	// exactly-once even when the ceremony is later abandoned.
	if err := o.invites.MarkInviteUsed(ctx, token, now); err != nil {
		return EnrollmentResult{}, err
	}

	user, err := o.findOrCreateUser(ctx, invite.Email, "")
	if err != nil {
		return EnrollmentResult{}, err
	}
	key := challengeKey(passkey.SessionKindRegistration, user.ID)
	nonce, err := o.challenges.Issue(key)
	if err != nil {
		return EnrollmentResult{}, fmt.Errorf("issue challenge: %w", err)
	}
	contextToken, err := o.contextToken.sign(ceremonyContext{
		Flow:         passkey.SessionKindRegistration,
		UserID:       user.ID,
		ChallengeKey: key,
		Family:       string(origin.FlowCrossOriginEnrollment),
	})
	if err != nil {
		return EnrollmentResult{}, fmt.Errorf("sign context token: %w", err)
	}
	return EnrollmentResult{
		Reason:         envelope.ResultValid,
		UserID:         user.ID,
		ChallengeValue: nonce,
		ContextToken:   contextToken,
	}, nil
}

// AttachInteraction records a proven identity on a pending OAuth
// interaction and finishes it with a grant.
func (o *Orchestrator) AttachInteraction(ctx context.Context, interactionID, userID string) (string, error) {
	if o.interactions == nil {
		return "", apperrors.New(apperrors.CodeUnknown, "interaction service is not configured")
	}
	details, err := o.interactions.GetInteractionDetails(ctx, interactionID)
	if err != nil {
		return "", err
	}
	grantID, err := o.interactions.CreateGrant(ctx, userID, details.ClientID, details.RequestedScopes)
	if err != nil {
		return "", err
	}
	if err := o.interactions.FinishInteraction(ctx, interactionID, oidc.Result{UserID: userID, Granted: true}); err != nil {
		return "", err
	}
	return grantID, nil
}

// GuardOrigin exposes the origin decision and embedding headers for the
// route layer.
func (o *Orchestrator) GuardOrigin(originValue string, family origin.FlowFamily) (bool, http.Header) {
	allowed := o.origins.IsAllowed(originValue, family)
	return allowed, o.origins.ResponseHeaders(originValue, family)
}

// ceremonyUser adapts a stored user and credentials to the WebAuthn user
// contract.
type ceremonyUser struct {
	record      storage.User
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.record.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.record.ID
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.record.DisplayName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func (o *Orchestrator) loadCeremonyUser(ctx context.Context, userID string) (*ceremonyUser, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "user id is required")
	}
	record, err := o.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored, err := o.credentials.ListPasskeyCredentials(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	parsed, err := decodeStoredCredentials(stored)
	if err != nil {
		return nil, err
	}
	return &ceremonyUser{record: record, credentials: parsed}, nil
}

func decodeStoredCredentials(records []storage.PasskeyCredential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func (o *Orchestrator) storeCredential(ctx context.Context, userID string, credential webauthn.Credential, used bool) error {
	credentialID := encodeCredentialID(credential.ID)
	now := o.clock().UTC()
	stored, err := o.credentials.GetPasskeyCredential(ctx, credentialID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) && used {
		return apperrors.New(apperrors.CodeCeremonyVerificationFailed, "asserted credential is not registered")
	}

	createdAt := now
	if err == nil {
		createdAt = stored.CreatedAt
	}
	credentialJSON, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	var lastUsed *time.Time
	if used {
		value := now
		lastUsed = &value
	}
	return o.credentials.PutPasskeyCredential(ctx, storage.PasskeyCredential{
		CredentialID:   credentialID,
		UserID:         userID,
		CredentialJSON: string(credentialJSON),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
		LastUsedAt:     lastUsed,
	})
}

func (o *Orchestrator) findOrCreateUser(ctx context.Context, email, displayName string) (storage.User, error) {
	existing, err := o.users.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, err
	}

	userID, err := o.idGenerator()
	if err != nil {
		return storage.User{}, fmt.Errorf("generate user id: %w", err)
	}
	now := o.clock().UTC()
	created := storage.User{
		ID:          userID,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.users.PutUser(ctx, created); err != nil {
		return storage.User{}, err
	}
	return created, nil
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
