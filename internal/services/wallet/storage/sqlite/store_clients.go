package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// listSeparator joins multi-valued client columns. Redirect URIs and origins
// cannot contain newlines, so the encoding is unambiguous.
const listSeparator = "\n"

// PutOAuthClient stores or updates a registered client.
func (s *Store) PutOAuthClient(ctx context.Context, client storage.OAuthClient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(client.ClientID) == "" {
		return fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(client.SecretHash) == "" {
		return fmt.Errorf("client secret hash is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO oauth_clients (client_id, name, secret_hash, redirect_uris, allowed_origins, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			name = excluded.name,
			secret_hash = excluded.secret_hash,
			redirect_uris = excluded.redirect_uris,
			allowed_origins = excluded.allowed_origins,
			updated_at = excluded.updated_at`,
		client.ClientID, client.Name, client.SecretHash,
		strings.Join(client.RedirectURIs, listSeparator),
		strings.Join(client.AllowedOrigins, listSeparator),
		toMillis(client.CreatedAt), toMillis(client.UpdatedAt),
	)
	return err
}

// GetOAuthClient fetches a registered client by id.
func (s *Store) GetOAuthClient(ctx context.Context, clientID string) (storage.OAuthClient, error) {
	if err := ctx.Err(); err != nil {
		return storage.OAuthClient{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.OAuthClient{}, err
	}
	var client storage.OAuthClient
	var redirectURIs, allowedOrigins string
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT client_id, name, secret_hash, redirect_uris, allowed_origins, created_at, updated_at
		FROM oauth_clients WHERE client_id = ?`,
		clientID,
	).Scan(&client.ClientID, &client.Name, &client.SecretHash, &redirectURIs, &allowedOrigins, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OAuthClient{}, storage.ErrNotFound
		}
		return storage.OAuthClient{}, err
	}
	client.RedirectURIs = splitList(redirectURIs)
	client.AllowedOrigins = splitList(allowedOrigins)
	client.CreatedAt = fromMillis(createdAt)
	client.UpdatedAt = fromMillis(updatedAt)
	return client, nil
}

// ListOAuthClients returns all registered clients.
func (s *Store) ListOAuthClients(ctx context.Context) ([]storage.OAuthClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT client_id, name, secret_hash, redirect_uris, allowed_origins, created_at, updated_at
		FROM oauth_clients ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []storage.OAuthClient
	for rows.Next() {
		var client storage.OAuthClient
		var redirectURIs, allowedOrigins string
		var createdAt, updatedAt int64
		if err := rows.Scan(&client.ClientID, &client.Name, &client.SecretHash, &redirectURIs, &allowedOrigins, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		client.RedirectURIs = splitList(redirectURIs)
		client.AllowedOrigins = splitList(allowedOrigins)
		client.CreatedAt = fromMillis(createdAt)
		client.UpdatedAt = fromMillis(updatedAt)
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// DeleteOAuthClient removes a registered client.
func (s *Store) DeleteOAuthClient(ctx context.Context, clientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_clients WHERE client_id = ?`, clientID)
	return err
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, listSeparator)
}
