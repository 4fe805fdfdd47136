package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"matchbook/internal/config"
	"matchbook/internal/models"
)

// RedisCache provides fast read paths for order book state.
//
// Caching strategy:
//   - Best bid/ask: 100ms TTL
//   - Order book depth: 500ms TTL
//   - Recent trades: last 100 per pair, 24h TTL
//   - Order status: 1s TTL
//
// Prices and quantities are stored as integer atomic units, matching
// the engine's representation exactly.
type RedisCache struct {
	client *redis.Client
}

// BookLevel is one cached price level.
type BookLevel struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
}

// DepthState is a cached view of the top of the book.
type DepthState struct {
	Pair      string      `json:"pair"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewRedisCache initializes a Redis connection.
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// SetBestPrice caches the best bid and ask for a pair. A nil level
// means that side of the book is empty.
func (c *RedisCache) SetBestPrice(ctx context.Context, pair string, bid, ask *BookLevel) error {
	key := "ob:best:" + pair

	state := map[string]interface{}{
		"bid_price": levelPrice(bid), "bid_volume": levelVolume(bid),
		"ask_price": levelPrice(ask), "ask_volume": levelVolume(ask),
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, state)
	pipe.Expire(ctx, key, 100*time.Millisecond)
	_, err := pipe.Exec(ctx)
	return err
}

// GetBestPrice retrieves the cached best bid and ask. Either side may
// be nil when the book was one-sided at caching time.
func (c *RedisCache) GetBestPrice(ctx context.Context, pair string) (*BookLevel, *BookLevel, error) {
	key := "ob:best:" + pair
	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(result) == 0 {
		return nil, nil, nil
	}

	var bid, ask *BookLevel
	if p := parseInt(result["bid_price"]); p > 0 {
		bid = &BookLevel{Price: p, Volume: parseInt(result["bid_volume"])}
	}
	if p := parseInt(result["ask_price"]); p > 0 {
		ask = &BookLevel{Price: p, Volume: parseInt(result["ask_volume"])}
	}
	return bid, ask, nil
}

// SetDepth caches the top levels of the book.
func (c *RedisCache) SetDepth(ctx context.Context, pair string, bids, asks []BookLevel) error {
	state := DepthState{
		Pair:      pair,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "ob:depth:"+pair, data, 500*time.Millisecond).Err()
}

// GetDepth retrieves the cached depth view, or nil on a miss.
func (c *RedisCache) GetDepth(ctx context.Context, pair string) (*DepthState, error) {
	data, err := c.client.Get(ctx, "ob:depth:"+pair).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state DepthState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// AddRecentTrade pushes a trade onto the pair's recent trade feed.
func (c *RedisCache) AddRecentTrade(ctx context.Context, pair string, trade *models.Trade) error {
	key := "trades:recent:" + pair

	data, err := json.Marshal(trade)
	if err != nil {
		return err
	}

	pipe := c.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, 99)
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentTrades retrieves recent trades for a pair, newest first.
func (c *RedisCache) GetRecentTrades(ctx context.Context, pair string, limit int64) ([]models.Trade, error) {
	values, err := c.client.LRange(ctx, "trades:recent:"+pair, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	trades := make([]models.Trade, 0, len(values))
	for _, v := range values {
		var trade models.Trade
		if err := json.Unmarshal([]byte(v), &trade); err != nil {
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// SetOrderStatus caches an order's status.
func (c *RedisCache) SetOrderStatus(ctx context.Context, orderID int64, status models.Status) error {
	key := "order:status:" + strconv.FormatInt(orderID, 10)
	return c.client.Set(ctx, key, string(status), time.Second).Err()
}

// GetOrderStatus retrieves a cached order status, or "" on a miss.
func (c *RedisCache) GetOrderStatus(ctx context.Context, orderID int64) (models.Status, error) {
	key := "order:status:" + strconv.FormatInt(orderID, 10)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return models.Status(val), err
}

// SaveRestingOrders replaces the snapshot of resting orders for a
// pair. Used as a warm-start source when the database is unavailable.
func (c *RedisCache) SaveRestingOrders(ctx context.Context, pair string, orders []*models.Order) error {
	key := "ob:resting:" + pair

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	for _, o := range orders {
		data, err := json.Marshal(o)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.SAdd(ctx, "ob:resting:pairs", pair)
	_, err := pipe.Exec(ctx)
	return err
}

// LoadRestingOrders retrieves the snapshot of resting orders for a pair.
func (c *RedisCache) LoadRestingOrders(ctx context.Context, pair string) ([]*models.Order, error) {
	values, err := c.client.LRange(ctx, "ob:resting:"+pair, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(values))
	for _, v := range values {
		var o models.Order
		if err := json.Unmarshal([]byte(v), &o); err != nil {
			continue
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

// SnapshotPairs lists the pairs that have resting order snapshots.
func (c *RedisCache) SnapshotPairs(ctx context.Context) ([]string, error) {
	return c.client.SMembers(ctx, "ob:resting:pairs").Result()
}

func levelPrice(l *BookLevel) int64 {
	if l == nil {
		return 0
	}
	return l.Price
}

func levelVolume(l *BookLevel) int64 {
	if l == nil {
		return 0
	}
	return l.Volume
}

func parseInt(s string) int64 {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	return 0
}
