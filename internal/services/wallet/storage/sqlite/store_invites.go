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

// PutInvite stores an enrollment invitation.
func (s *Store) PutInvite(ctx context.Context, invite storage.Invite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(invite.Token) == "" {
		return fmt.Errorf("invite token is required")
	}
	if strings.TrimSpace(invite.Email) == "" {
		return fmt.Errorf("invite email is required")
	}
	usedAt := sql.NullInt64{}
	if invite.UsedAt != nil {
		usedAt = sql.NullInt64{Int64: toMillis(*invite.UsedAt), Valid: true}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO invites (token, email, created_by, created_at, expires_at, used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET used_at = excluded.used_at`,
		invite.Token, invite.Email, invite.CreatedBy,
		toMillis(invite.CreatedAt), toMillis(invite.ExpiresAt), usedAt,
	)
	return err
}

// GetInvite fetches an invitation by token.
func (s *Store) GetInvite(ctx context.Context, token string) (storage.Invite, error) {
	if err := ctx.Err(); err != nil {
		return storage.Invite{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Invite{}, err
	}
	var invite storage.Invite
	var createdAt, expiresAt int64
	var usedAt sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT token, email, created_by, created_at, expires_at, used_at FROM invites WHERE token = ?`,
		token,
	).Scan(&invite.Token, &invite.Email, &invite.CreatedBy, &createdAt, &expiresAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Invite{}, storage.ErrNotFound
		}
		return storage.Invite{}, err
	}
	invite.CreatedAt = fromMillis(createdAt)
	invite.ExpiresAt = fromMillis(expiresAt)
	if usedAt.Valid {
		value := fromMillis(usedAt.Int64)
		invite.UsedAt = &value
	}
	return invite, nil
}

// MarkInviteUsed records a single use of an invitation.
func (s *Store) MarkInviteUsed(ctx context.Context, token string, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE invites SET used_at = ? WHERE token = ? AND used_at IS NULL`,
		toMillis(usedAt), token,
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
