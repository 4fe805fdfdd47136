package cache

import (
	"context"
	"log"
	"time"

	"matchbook/internal/engine"
	"matchbook/internal/models"
)

// OrderSource supplies the authoritative set of resting orders, the
// order journal in practice.
type OrderSource interface {
	GetOpenOrders(ctx context.Context) ([]*models.Order, error)
}

// RecoveryConfig holds configuration for warm-start recovery.
type RecoveryConfig struct {
	SnapshotInterval time.Duration
	RecoveryTimeout  time.Duration
	EnableSnapshots  bool
}

// DefaultRecoveryConfig returns default recovery configuration.
func DefaultRecoveryConfig() *RecoveryConfig {
	return &RecoveryConfig{
		SnapshotInterval: 30 * time.Second,
		RecoveryTimeout:  60 * time.Second,
		EnableSnapshots:  true,
	}
}

// RecoveryResult describes what a recovery attempt restored.
type RecoveryResult struct {
	Source         string
	PairsRecovered int
	OrdersLoaded   int
	RecoveryTime   time.Duration
}

// RecoveryManager rebuilds order books on startup and keeps resting
// order snapshots fresh while the server runs. The database journal is
// the preferred source; Redis snapshots cover the case where the
// database is down but the cache survived.
type RecoveryManager struct {
	cache  *RedisCache
	source OrderSource
	config *RecoveryConfig
	done   chan struct{}
}

// NewRecoveryManager creates a recovery manager. Both cache and source
// may be nil when the corresponding backend is not configured.
func NewRecoveryManager(cache *RedisCache, source OrderSource, config *RecoveryConfig) *RecoveryManager {
	if config == nil {
		config = DefaultRecoveryConfig()
	}
	return &RecoveryManager{
		cache:  cache,
		source: source,
		config: config,
		done:   make(chan struct{}),
	}
}

// Recover rebuilds the order books from the best available source.
// Replayed orders are resting remainders, so re-adding them in their
// original admission order reproduces the books exactly and generates
// no trades.
func (r *RecoveryManager) Recover(manager *engine.Manager) (*RecoveryResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.config.RecoveryTimeout)
	defer cancel()

	result := &RecoveryResult{Source: "none"}

	orders, source := r.loadOrders(ctx)
	if len(orders) == 0 {
		log.Println("[recovery] no resting orders found, starting with empty books")
		return result, nil
	}
	result.Source = source

	pairs := make(map[string]bool)
	for _, o := range orders {
		o.Status = models.Open
		if o.Remaining > 0 && o.Remaining < o.Quantity {
			o.Status = models.Partial
		}
		if _, err := manager.Book(o.Pair).AddOrder(o); err != nil {
			log.Printf("[recovery] skipping order %d: %v", o.ID, err)
			continue
		}
		pairs[o.Pair] = true
		result.OrdersLoaded++
	}
	result.PairsRecovered = len(pairs)
	result.RecoveryTime = time.Since(start)

	log.Printf("[recovery] restored %d orders across %d pairs from %s in %v",
		result.OrdersLoaded, result.PairsRecovered, result.Source, result.RecoveryTime)
	return result, nil
}

func (r *RecoveryManager) loadOrders(ctx context.Context) ([]*models.Order, string) {
	if r.source != nil {
		orders, err := r.source.GetOpenOrders(ctx)
		if err == nil {
			return orders, "database"
		}
		log.Printf("[recovery] database journal unavailable: %v", err)
	}

	if r.cache == nil {
		return nil, "none"
	}

	pairs, err := r.cache.SnapshotPairs(ctx)
	if err != nil {
		log.Printf("[recovery] snapshot listing failed: %v", err)
		return nil, "none"
	}

	var orders []*models.Order
	for _, pair := range pairs {
		pairOrders, err := r.cache.LoadRestingOrders(ctx, pair)
		if err != nil {
			log.Printf("[recovery] failed to load snapshot for %s: %v", pair, err)
			continue
		}
		orders = append(orders, pairOrders...)
	}
	return orders, "redis snapshot"
}

// StartAutoSnapshot periodically saves each book's resting orders to
// Redis. Call in a goroutine; Stop terminates it.
func (r *RecoveryManager) StartAutoSnapshot(manager *engine.Manager) {
	if r.cache == nil || !r.config.EnableSnapshots {
		return
	}

	ticker := time.NewTicker(r.config.SnapshotInterval)
	defer ticker.Stop()

	log.Printf("[recovery] auto snapshot started (interval %v)", r.config.SnapshotInterval)

	for {
		select {
		case <-r.done:
			log.Println("[recovery] auto snapshot stopped")
			return
		case <-ticker.C:
			r.snapshot(manager)
		}
	}
}

// Stop terminates the auto snapshot loop.
func (r *RecoveryManager) Stop() {
	close(r.done)
}

func (r *RecoveryManager) snapshot(manager *engine.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, pair := range manager.ListPairs() {
		orders := manager.Book(pair).RestingOrders()
		if err := r.cache.SaveRestingOrders(ctx, pair, orders); err != nil {
			log.Printf("[recovery] snapshot failed for %s: %v", pair, err)
		}
	}
}
