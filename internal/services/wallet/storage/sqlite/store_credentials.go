package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// PutPasskeyCredential stores or updates a WebAuthn credential.
func (s *Store) PutPasskeyCredential(ctx context.Context, credential storage.PasskeyCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	lastUsed := sql.NullInt64{}
	if credential.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*credential.LastUsedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO passkey_credentials (credential_id, user_id, credential_json, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(credential_id) DO UPDATE SET
			credential_json = excluded.credential_json,
			updated_at = excluded.updated_at,
			last_used_at = excluded.last_used_at`,
		credential.CredentialID, credential.UserID, credential.CredentialJSON,
		toMillis(credential.CreatedAt), toMillis(credential.UpdatedAt), lastUsed,
	)
	return err
}

// GetPasskeyCredential fetches a stored WebAuthn credential.
func (s *Store) GetPasskeyCredential(ctx context.Context, credentialID string) (storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return storage.PasskeyCredential{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.PasskeyCredential{}, err
	}
	var credential storage.PasskeyCredential
	var createdAt, updatedAt int64
	var lastUsed sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT credential_id, user_id, credential_json, created_at, updated_at, last_used_at
		FROM passkey_credentials WHERE credential_id = ?`,
		credentialID,
	).Scan(&credential.CredentialID, &credential.UserID, &credential.CredentialJSON, &createdAt, &updatedAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyCredential{}, storage.ErrNotFound
		}
		return storage.PasskeyCredential{}, err
	}
	credential.CreatedAt = fromMillis(createdAt)
	credential.UpdatedAt = fromMillis(updatedAt)
	if lastUsed.Valid {
		value := fromMillis(lastUsed.Int64)
		credential.LastUsedAt = &value
	}
	return credential, nil
}

// ListPasskeyCredentials returns the credentials registered for a user.
func (s *Store) ListPasskeyCredentials(ctx context.Context, userID string) ([]storage.PasskeyCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT credential_id, user_id, credential_json, created_at, updated_at, last_used_at
		FROM passkey_credentials WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credentials []storage.PasskeyCredential
	for rows.Next() {
		var credential storage.PasskeyCredential
		var createdAt, updatedAt int64
		var lastUsed sql.NullInt64
		if err := rows.Scan(&credential.CredentialID, &credential.UserID, &credential.CredentialJSON, &createdAt, &updatedAt, &lastUsed); err != nil {
			return nil, err
		}
		credential.CreatedAt = fromMillis(createdAt)
		credential.UpdatedAt = fromMillis(updatedAt)
		if lastUsed.Valid {
			value := fromMillis(lastUsed.Int64)
			credential.LastUsedAt = &value
		}
		credentials = append(credentials, credential)
	}
	return credentials, rows.Err()
}

// DeletePasskeyCredential removes a stored credential.
func (s *Store) DeletePasskeyCredential(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	return err
}
