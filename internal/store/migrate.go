package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/lib/pq"
)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

// DefaultMigrations is the schema shipped with the binary.
func DefaultMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_orders",
			SQL: `
				CREATE TABLE IF NOT EXISTS orders (
					id BIGINT PRIMARY KEY,
					user_id BIGINT NOT NULL,
					pair TEXT NOT NULL,
					side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
					price BIGINT NOT NULL CHECK (price > 0),
					quantity BIGINT NOT NULL CHECK (quantity > 0),
					remaining BIGINT NOT NULL CHECK (remaining >= 0),
					status TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id);
				CREATE INDEX IF NOT EXISTS idx_orders_pair_status ON orders (pair, status);
			`,
		},
		{
			Version: 2,
			Name:    "create_trades",
			SQL: `
				CREATE TABLE IF NOT EXISTS trades (
					id BIGINT PRIMARY KEY,
					pair TEXT NOT NULL,
					maker_order_id BIGINT NOT NULL,
					taker_order_id BIGINT NOT NULL,
					price BIGINT NOT NULL CHECK (price > 0),
					quantity BIGINT NOT NULL CHECK (quantity > 0),
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades (pair, id DESC);
			`,
		},
		{
			Version: 3,
			Name:    "create_processed_messages",
			SQL: `
				CREATE TABLE IF NOT EXISTS processed_messages (
					message_id TEXT PRIMARY KEY,
					event_type TEXT NOT NULL,
					expires_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_processed_expires ON processed_messages (expires_at);
			`,
		},
		{
			Version: 4,
			Name:    "create_pairs_currencies",
			SQL: `
				CREATE TABLE IF NOT EXISTS currencies (
					code TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					precision INT NOT NULL,
					min_amount BIGINT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS currency_pairs (
					base TEXT NOT NULL REFERENCES currencies(code),
					quote TEXT NOT NULL REFERENCES currencies(code),
					min_quantity BIGINT NOT NULL DEFAULT 0 CHECK (min_quantity >= 0),
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					PRIMARY KEY (base, quote)
				);
			`,
		},
	}
}

type Migrator struct {
	db *sql.DB
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

func (m *Migrator) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *Migrator) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *Migrator) markMigrationApplied(ctx context.Context, version int, name string) error {
	query := `
		INSERT INTO schema_migrations (version, name)
		VALUES ($1, $2)
		ON CONFLICT (version) DO NOTHING
	`
	_, err := m.db.ExecContext(ctx, query, version, name)
	return err
}

func (m *Migrator) Run(ctx context.Context, migrations []Migration) error {
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d_%s: %w", migration.Version, migration.Name, err)
		}

		if err := m.markMigrationApplied(ctx, migration.Version, migration.Name); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to mark migration as applied: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration: %w", err)
		}
	}

	return nil
}

// Migrate applies the built-in schema.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.Run(ctx, DefaultMigrations())
}
