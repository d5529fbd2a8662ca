package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/walletgate/walletgate/internal/services/wallet/storage"
)

// PutCard persists a card record.
func (s *Store) PutCard(ctx context.Context, card storage.Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	if strings.TrimSpace(card.ID) == "" {
		return fmt.Errorf("card id is required")
	}
	if strings.TrimSpace(card.UserID) == "" {
		return fmt.Errorf("card user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cards (id, user_id, label, network, last_four, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			network = excluded.network,
			last_four = excluded.last_four,
			updated_at = excluded.updated_at`,
		card.ID, card.UserID, card.Label, card.Network, card.LastFour,
		toMillis(card.CreatedAt), toMillis(card.UpdatedAt),
	)
	return err
}

// GetCard fetches a card by id.
func (s *Store) GetCard(ctx context.Context, cardID string) (storage.Card, error) {
	if err := ctx.Err(); err != nil {
		return storage.Card{}, err
	}
	if err := s.ensureDB(); err != nil {
		return storage.Card{}, err
	}
	var card storage.Card
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, label, network, last_four, created_at, updated_at
		FROM cards WHERE id = ?`,
		cardID,
	).Scan(&card.ID, &card.UserID, &card.Label, &card.Network, &card.LastFour, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Card{}, storage.ErrNotFound
		}
		return storage.Card{}, err
	}
	card.CreatedAt = fromMillis(createdAt)
	card.UpdatedAt = fromMillis(updatedAt)
	return card, nil
}

// ListCardsByUser returns the cards owned by a user.
func (s *Store) ListCardsByUser(ctx context.Context, userID string) ([]storage.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, label, network, last_four, created_at, updated_at
		FROM cards WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []storage.Card
	for rows.Next() {
		var card storage.Card
		var createdAt, updatedAt int64
		if err := rows.Scan(&card.ID, &card.UserID, &card.Label, &card.Network, &card.LastFour, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		card.CreatedAt = fromMillis(createdAt)
		card.UpdatedAt = fromMillis(updatedAt)
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// DeleteCard removes a card record.
func (s *Store) DeleteCard(ctx context.Context, cardID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, cardID)
	return err
}
