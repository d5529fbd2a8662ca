package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// PutPendingInteraction stores a pending OAuth interaction.
func (s *Store) PutPendingInteraction(ctx context.Context, interaction storage.PendingInteraction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(interaction.ID) == "" {
		return fmt.Errorf("interaction id is required")
	}
	if strings.TrimSpace(interaction.ClientID) == "" {
		return fmt.Errorf("interaction client id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pending_interactions (id, client_id, user_id, requested_scopes, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			requested_scopes = excluded.requested_scopes,
			expires_at = excluded.expires_at`,
		interaction.ID, interaction.ClientID, interaction.UserID, interaction.RequestedScopes,
		toMillis(interaction.CreatedAt), toMillis(interaction.ExpiresAt),
	)
	return err
}

// GetPendingInteraction fetches a pending interaction by id.
func (s *Store) GetPendingInteraction(ctx context.Context, id string) (storage.PendingInteraction, error) {
	if err := ctx.Err(); err != nil {
		return storage.PendingInteraction{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.PendingInteraction{}, err
	}
	var interaction storage.PendingInteraction
	var createdAt, expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, client_id, user_id, requested_scopes, created_at, expires_at
		FROM pending_interactions WHERE id = ?`,
		id,
	).Scan(&interaction.ID, &interaction.ClientID, &interaction.UserID, &interaction.RequestedScopes, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PendingInteraction{}, storage.ErrNotFound
		}
		return storage.PendingInteraction{}, err
	}
	interaction.CreatedAt = fromMillis(createdAt)
	interaction.ExpiresAt = fromMillis(expiresAt)
	return interaction, nil
}

// UpdatePendingInteractionUserID attaches a proven identity to a pending
// interaction.
func (s *Store) UpdatePendingInteractionUserID(ctx context.Context, id string, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE pending_interactions SET user_id = ? WHERE id = ?`,
		userID, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeletePendingInteraction removes a pending interaction.
func (s *Store) DeletePendingInteraction(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_interactions WHERE id = ?`, id)
	return err
}

// InsertGrant records a consent grant. Grants are append-only.
func (s *Store) InsertGrant(ctx context.Context, grant storage.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(grant.ID) == "" {
		return fmt.Errorf("grant id is required")
	}
	if strings.TrimSpace(grant.UserID) == "" || strings.TrimSpace(grant.ClientID) == "" {
		return fmt.Errorf("grant user id and client id are required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO grants (id, user_id, client_id, scopes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		grant.ID, grant.UserID, grant.ClientID, grant.Scopes, toMillis(grant.CreatedAt),
	)
	return err
}

// DeleteExpiredPendingInteractions removes interactions past their deadline.
func (s *Store) DeleteExpiredPendingInteractions(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pending_interactions WHERE expires_at <= ?`, toMillis(now))
	return err
}
