package store

import (
	"context"
	"database/sql"
	"fmt"

	"matchbook/internal/models"
)

type TxFunc func(ctx context.Context, tx *sql.Tx) error

func (s *PostgresStore) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %v, rollback failed: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) SaveOrderTx(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, pair, side, price, quantity, remaining, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := tx.ExecContext(
		ctx,
		query,
		o.ID,
		o.UserID,
		o.Pair,
		o.Side,
		o.Price,
		o.Quantity,
		o.Remaining,
		o.Status,
		o.CreatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateOrderTx(ctx context.Context, tx *sql.Tx, orderID, remaining int64, status models.Status) error {
	query := `
		UPDATE orders
		SET remaining = $1, status = $2
		WHERE id = $3
	`
	_, err := tx.ExecContext(ctx, query, remaining, status, orderID)
	return err
}

func (s *PostgresStore) SaveTradeTx(ctx context.Context, tx *sql.Tx, t *models.Trade) error {
	query := `
		INSERT INTO trades (id, pair, maker_order_id, taker_order_id, price, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := tx.ExecContext(
		ctx,
		query,
		t.ID,
		t.Pair,
		t.MakerOrderID,
		t.TakerOrderID,
		t.Price,
		t.Quantity,
		t.CreatedAt,
	)
	return err
}

// SaveTradeWithOrdersTx persists a trade together with the post-fill
// state of both orders in one serializable transaction, so the journal
// never shows a trade whose orders still carry pre-trade quantities.
func (s *PostgresStore) SaveTradeWithOrdersTx(ctx context.Context, trade *models.Trade, maker, taker *models.Order) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.SaveTradeTx(ctx, tx, trade); err != nil {
			return fmt.Errorf("failed to save trade: %w", err)
		}
		if maker != nil {
			if err := s.UpdateOrderTx(ctx, tx, maker.ID, maker.Remaining, maker.Status); err != nil {
				return fmt.Errorf("failed to update maker order: %w", err)
			}
		}
		if taker != nil {
			if err := s.UpdateOrderTx(ctx, tx, taker.ID, taker.Remaining, taker.Status); err != nil {
				return fmt.Errorf("failed to update taker order: %w", err)
			}
		}
		return nil
	})
}

// CancelOrder marks an order cancelled in its own transaction.
func (s *PostgresStore) CancelOrder(ctx context.Context, orderID int64) error {
	return s.WithTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.CancelOrderTx(ctx, tx, orderID)
	})
}

func (s *PostgresStore) CancelOrderTx(ctx context.Context, tx *sql.Tx, orderID int64) error {
	query := `
		UPDATE orders
		SET status = $1
		WHERE id = $2
	`
	_, err := tx.ExecContext(ctx, query, models.Cancelled, orderID)
	return err
}
