package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"matchbook/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

// SaveOrder persists an order under its engine-assigned id.
func (s *PostgresStore) SaveOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, pair, side, price, quantity, remaining, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(
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

func (s *PostgresStore) UpdateOrder(ctx context.Context, o *models.Order) error {
	query := `
		UPDATE orders
		SET remaining = $1, status = $2
		WHERE id = $3
	`
	_, err := s.db.ExecContext(ctx, query, o.Remaining, o.Status, o.ID)
	return err
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	query := `
		SELECT id, user_id, pair, side, price, quantity, remaining, status, created_at
		FROM orders
		WHERE id = $1
	`
	o := &models.Order{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.Pair, &o.Side, &o.Price,
		&o.Quantity, &o.Remaining, &o.Status, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// GetOpenOrders returns all orders still resting on the book, oldest
// first so warm-start replay preserves time priority.
func (s *PostgresStore) GetOpenOrders(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT id, user_id, pair, side, price, quantity, remaining, status, created_at
		FROM orders
		WHERE status IN ('open', 'partial')
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o := &models.Order{}
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Pair, &o.Side, &o.Price,
			&o.Quantity, &o.Remaining, &o.Status, &o.CreatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (id, pair, maker_order_id, taker_order_id, price, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(
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

// GetRecentTrades returns the latest trades for a pair, newest first.
func (s *PostgresStore) GetRecentTrades(ctx context.Context, pair string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, pair, maker_order_id, taker_order_id, price, quantity, created_at
		FROM trades
		WHERE pair = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, pair, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t := &models.Trade{}
		if err := rows.Scan(
			&t.ID, &t.Pair, &t.MakerOrderID, &t.TakerOrderID,
			&t.Price, &t.Quantity, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// MaxIDs returns the highest persisted order and trade ids so id
// sequences can resume past them after a restart.
func (s *PostgresStore) MaxIDs(ctx context.Context) (maxOrderID, maxTradeID int64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM orders`).Scan(&maxOrderID)
	if err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM trades`).Scan(&maxTradeID)
	if err != nil {
		return 0, 0, err
	}
	return maxOrderID, maxTradeID, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetDB() *sql.DB {
	return s.db
}
