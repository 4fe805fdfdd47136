package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"matchbook/internal/models"
)

// OrderBook is the matching core for a single trading pair. Bids and
// asks live in separate price trees; byID indexes every resting order
// for O(1) cancellation.
//
// All mutating operations take the write lock for their full duration:
// the matching loop reads and mutates both sides and the id index as
// one atomic unit, so finer-grained locking would expose torn state.
// Read-only queries share the read lock and never observe a book
// mid-mutation.
type OrderBook struct {
	pair string

	mu   sync.RWMutex
	bids *priceTree
	asks *priceTree
	byID map[int64]*entry

	orderSeq uint64 // admission order, tie-break within a price level
	tradeSeq *atomic.Int64
}

func NewOrderBook(pair string) *OrderBook {
	return NewOrderBookWithTradeSeq(pair, new(atomic.Int64))
}

// NewOrderBookWithTradeSeq creates a book drawing trade ids from a
// shared counter, so trades stay uniquely identified across pairs.
func NewOrderBookWithTradeSeq(pair string, tradeSeq *atomic.Int64) *OrderBook {
	return &OrderBook{
		pair:     pair,
		bids:     newPriceTree(true),
		asks:     newPriceTree(false),
		byID:     make(map[int64]*entry),
		tradeSeq: tradeSeq,
	}
}

func (b *OrderBook) Pair() string { return b.pair }

// AddOrder matches the incoming order against the opposite side under
// price-time priority and rests any unfilled remainder. It returns the
// trades generated, in the order they occurred.
//
// The order is rejected with ErrInvalidOrder before any matching if its
// price or quantity is non-positive, and with ErrDuplicateOrderID if
// its id collides with a resting order. Rejection has no side effects.
func (b *OrderBook) AddOrder(order *models.Order) ([]models.Trade, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: nil order", ErrInvalidOrder)
	}
	if order.Price <= 0 {
		return nil, fmt.Errorf("%w: price %d", ErrInvalidOrder, order.Price)
	}
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, order.Quantity)
	}
	if !order.Side.IsValid() {
		return nil, fmt.Errorf("%w: side %q", ErrInvalidOrder, order.Side)
	}
	if order.Remaining == 0 {
		order.Remaining = order.Quantity
	}
	if order.Remaining < 0 || order.Remaining > order.Quantity {
		return nil, fmt.Errorf("%w: remaining %d of %d", ErrInvalidOrder, order.Remaining, order.Quantity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byID[order.ID]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateOrderID, order.ID)
	}

	trades := b.match(order)

	// The matching loop has run to completion, so resting the remainder
	// cannot cross the book.
	if order.Remaining > 0 {
		b.rest(order)
	}

	return trades, nil
}

// rest inserts the unfilled remainder at the back of its price level.
func (b *OrderBook) rest(order *models.Order) {
	side := b.bids
	if order.Side == models.Sell {
		side = b.asks
	}

	level := side.get(order.Price)
	if level == nil {
		level = newPriceLevel(order.Price)
		side.insert(level)
	}

	b.orderSeq++
	e := &entry{order: order, seq: b.orderSeq}
	level.enqueue(e)
	b.byID[order.ID] = e
}

// CancelOrder removes a resting order and returns it with its remaining
// quantity intact. Past trades are unaffected. A second cancel of the
// same id fails with ErrOrderNotFound.
func (b *OrderBook) CancelOrder(orderID int64) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byID[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}

	b.evict(e)
	e.order.Status = models.Cancelled
	return e.order, nil
}

// evict unlinks a resting order and drops its empty level. Caller must
// hold the write lock.
func (b *OrderBook) evict(e *entry) {
	level := e.level
	side := b.bids
	if e.order.Side == models.Sell {
		side = b.asks
	}

	level.unlink(e)
	if level.empty() {
		side.remove(level.price)
	}
	delete(b.byID, e.order.ID)
}

// BestBid returns the highest resting buy price, if any.
func (b *OrderBook) BestBid() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	level := b.bids.best()
	if level == nil {
		return 0, false
	}
	return level.price, true
}

// BestAsk returns the lowest resting sell price, if any.
func (b *OrderBook) BestAsk() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	level := b.asks.best()
	if level == nil {
		return 0, false
	}
	return level.price, true
}

// Spread returns best ask minus best bid, false when either side is
// empty. A well-formed book always has a positive spread.
func (b *OrderBook) Spread() (int64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bid := b.bids.best()
	ask := b.asks.best()
	if bid == nil || ask == nil {
		return 0, false
	}
	return ask.price - bid.price, true
}

// Level is one aggregated price level of book depth.
type Level struct {
	Price  int64 `json:"price"`
	Volume int64 `json:"volume"`
	Orders int   `json:"orders"`
}

// Depth returns up to n aggregated levels per side, bids descending and
// asks ascending.
func (b *OrderBook) Depth(n int) (bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = collectLevels(b.bids, n)
	asks = collectLevels(b.asks, n)
	return bids, asks
}

func collectLevels(t *priceTree, n int) []Level {
	out := make([]Level, 0, n)
	t.walk(func(l *priceLevel) bool {
		if len(out) >= n {
			return false
		}
		out = append(out, Level{Price: l.price, Volume: l.totalQty, Orders: l.count})
		return true
	})
	return out
}

// GetOrder returns a copy of a resting order, or nil. Copying keeps
// callers from observing later mutations mid-match.
func (b *OrderBook) GetOrder(orderID int64) *models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.byID[orderID]
	if !ok {
		return nil
	}
	o := *e.order
	return &o
}

// GetUserOrders returns copies of all resting orders for a user.
func (b *OrderBook) GetUserOrders(userID int64) []*models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var orders []*models.Order
	for _, e := range b.byID {
		if e.order.UserID == userID {
			o := *e.order
			orders = append(orders, &o)
		}
	}
	return orders
}

// RestingOrders returns copies of every resting order in admission
// order, oldest first, so a replay reconstructs the same time priority.
func (b *OrderBook) RestingOrders() []*models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]*entry, 0, len(b.byID))
	for _, e := range b.byID {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	orders := make([]*models.Order, len(entries))
	for i, e := range entries {
		o := *e.order
		orders[i] = &o
	}
	return orders
}

// OrderCount returns the number of resting orders.
func (b *OrderBook) OrderCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// LevelCount returns the number of non-empty price levels per side.
func (b *OrderBook) LevelCount() (bidLevels, askLevels int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.len(), b.asks.len()
}
