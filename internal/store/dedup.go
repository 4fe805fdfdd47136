package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// DedupStore tracks processed message ids so redelivered queue
// messages are applied at most once.
type DedupStore struct {
	db          *sql.DB
	cleanupDone chan struct{}
}

type DedupConfig struct {
	MessageTTL      time.Duration
	CleanupInterval time.Duration
}

func DefaultDedupConfig() *DedupConfig {
	return &DedupConfig{
		MessageTTL:      7 * 24 * time.Hour,
		CleanupInterval: 1 * time.Hour,
	}
}

func NewDedupStore(db *sql.DB, config *DedupConfig) *DedupStore {
	if config == nil {
		config = DefaultDedupConfig()
	}

	store := &DedupStore{
		db:          db,
		cleanupDone: make(chan struct{}),
	}
	go store.startCleanup(config.CleanupInterval)
	return store
}

func (s *DedupStore) Stop() {
	close(s.cleanupDone)
}

func (s *DedupStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.cleanupDone:
			return
		case <-ticker.C:
			count, err := s.CleanupExpired(context.Background())
			if err != nil {
				log.Printf("[dedup] cleanup failed: %v", err)
			} else if count > 0 {
				log.Printf("[dedup] removed %d expired message records", count)
			}
		}
	}
}

func (s *DedupStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM processed_messages
			WHERE message_id = $1 AND expires_at > NOW()
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check message processed status: %w", err)
	}
	return exists, nil
}

func (s *DedupStore) MarkProcessed(ctx context.Context, messageID, eventType string) error {
	query := `
		INSERT INTO processed_messages (message_id, event_type, expires_at)
		VALUES ($1, $2, NOW() + INTERVAL '7 days')
		ON CONFLICT (message_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, messageID, eventType); err != nil {
		return fmt.Errorf("failed to mark message as processed: %w", err)
	}
	return nil
}

func (s *DedupStore) CleanupExpired(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM processed_messages WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired messages: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
