package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"matchbook/internal/models"
)

// ErrUnknownCurrency is returned when a pair references a currency
// that is not registered or not active.
var ErrUnknownCurrency = errors.New("unknown currency")

type PairStore struct {
	db *sql.DB
}

func NewPairStore(db *sql.DB) *PairStore {
	return &PairStore{db: db}
}

// Create registers a trading pair. Both legs must reference an active
// currency; the check and the insert run in one transaction so a
// concurrent currency deactivation cannot slip between them.
func (s *PairStore) Create(ctx context.Context, pair *models.Pair) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, code := range []string{pair.Base, pair.Quote} {
		var active bool
		err := tx.QueryRowContext(ctx, `SELECT is_active FROM currencies WHERE code = $1`, code).Scan(&active)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
		}
		if err != nil {
			return err
		}
		if !active {
			return fmt.Errorf("%w: %s is deactivated", ErrUnknownCurrency, code)
		}
	}

	query := `
		INSERT INTO currency_pairs (base, quote, min_quantity, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`
	if _, err := tx.ExecContext(ctx, query, pair.Base, pair.Quote, pair.MinQuantity, pair.IsActive); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PairStore) GetByBaseQuote(ctx context.Context, base, quote string) (*models.Pair, error) {
	query := `
		SELECT base, quote, min_quantity, is_active, created_at, updated_at
		FROM currency_pairs
		WHERE base = $1 AND quote = $2
	`
	var pair models.Pair
	err := s.db.QueryRowContext(ctx, query, base, quote).Scan(
		&pair.Base, &pair.Quote, &pair.MinQuantity, &pair.IsActive, &pair.CreatedAt, &pair.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// List returns the configured pairs, active ones unless includeInactive
// is set.
func (s *PairStore) List(ctx context.Context, includeInactive bool) ([]*models.Pair, error) {
	query := `
		SELECT base, quote, min_quantity, is_active, created_at, updated_at
		FROM currency_pairs
		WHERE is_active = true OR $1
		ORDER BY base, quote
	`
	rows, err := s.db.QueryContext(ctx, query, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []*models.Pair
	for rows.Next() {
		var pair models.Pair
		err := rows.Scan(&pair.Base, &pair.Quote, &pair.MinQuantity, &pair.IsActive, &pair.CreatedAt, &pair.UpdatedAt)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, &pair)
	}
	return pairs, rows.Err()
}

func (s *PairStore) Exists(ctx context.Context, base, quote string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM currency_pairs WHERE base = $1 AND quote = $2)`
	var exists bool
	err := s.db.QueryRowContext(ctx, query, base, quote).Scan(&exists)
	return exists, err
}

// SetActive toggles a pair's listing without deleting its row, so
// historical orders keep a valid reference. Returns false when the
// pair does not exist.
func (s *PairStore) SetActive(ctx context.Context, base, quote string, active bool) (bool, error) {
	query := `
		UPDATE currency_pairs
		SET is_active = $3, updated_at = NOW()
		WHERE base = $1 AND quote = $2
	`
	result, err := s.db.ExecContext(ctx, query, base, quote, active)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PairStore) SeedDefaultPairs(ctx context.Context, defaults []*models.Pair) (int, error) {
	seeded := 0
	for _, p := range defaults {
		exists, err := s.Exists(ctx, p.Base, p.Quote)
		if err != nil {
			return seeded, fmt.Errorf("checking pair %s: %w", p.String(), err)
		}
		if !exists {
			if err := s.Create(ctx, p); err != nil {
				return seeded, fmt.Errorf("creating pair %s: %w", p.String(), err)
			}
			seeded++
		}
	}
	return seeded, nil
}
