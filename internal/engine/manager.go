package engine

import (
	"sync"
	"sync/atomic"

	"matchbook/internal/models"
)

// Manager owns one order book per trading pair. Books share no state,
// so matching on different pairs proceeds fully in parallel; only the
// pair map itself is guarded here.
type Manager struct {
	mu    sync.RWMutex
	books map[string]*OrderBook

	tradeSeq atomic.Int64

	onTrade func(pair string, trade *models.Trade)
	onOrder func(pair string, order *models.Order)
}

func NewManager() *Manager {
	return &Manager{
		books: make(map[string]*OrderBook),
	}
}

// SeedTradeIDs moves the shared trade id counter past max, so ids
// assigned after a restart never collide with journaled trades.
func (m *Manager) SeedTradeIDs(max int64) {
	for {
		cur := m.tradeSeq.Load()
		if cur >= max || m.tradeSeq.CompareAndSwap(cur, max) {
			return
		}
	}
}

// Book returns the order book for a pair, creating it on first use.
func (m *Manager) Book(pair string) *OrderBook {
	m.mu.RLock()
	b, ok := m.books[pair]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[pair]; ok {
		return b
	}
	b = NewOrderBookWithTradeSeq(pair, &m.tradeSeq)
	m.books[pair] = b
	return b
}

func (m *Manager) lookup(pair string) (*OrderBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[pair]
	return b, ok
}

// AddOrder routes an order to its pair's book and fans the resulting
// trades out to the registered callbacks after matching completes.
func (m *Manager) AddOrder(order *models.Order) ([]models.Trade, error) {
	book := m.Book(order.Pair)
	trades, err := book.AddOrder(order)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	onOrder, onTrade := m.onOrder, m.onTrade
	m.mu.RUnlock()

	if onOrder != nil {
		onOrder(order.Pair, order)
	}
	if onTrade != nil {
		for i := range trades {
			onTrade(order.Pair, &trades[i])
		}
	}
	return trades, nil
}

// CancelOrder cancels a resting order on the given pair.
func (m *Manager) CancelOrder(pair string, orderID int64) (*models.Order, error) {
	book, ok := m.lookup(pair)
	if !ok {
		return nil, ErrOrderNotFound
	}
	return book.CancelOrder(orderID)
}

// GetOrder returns a copy of a resting order, or nil.
func (m *Manager) GetOrder(pair string, orderID int64) *models.Order {
	book, ok := m.lookup(pair)
	if !ok {
		return nil
	}
	return book.GetOrder(orderID)
}

// BestBid returns the best bid for a pair.
func (m *Manager) BestBid(pair string) (int64, bool) {
	book, ok := m.lookup(pair)
	if !ok {
		return 0, false
	}
	return book.BestBid()
}

// BestAsk returns the best ask for a pair.
func (m *Manager) BestAsk(pair string) (int64, bool) {
	book, ok := m.lookup(pair)
	if !ok {
		return 0, false
	}
	return book.BestAsk()
}

// Depth returns aggregated book depth for a pair.
func (m *Manager) Depth(pair string, levels int) (bids, asks []Level) {
	book, ok := m.lookup(pair)
	if !ok {
		return nil, nil
	}
	return book.Depth(levels)
}

// ListPairs returns all pairs with an instantiated book.
func (m *Manager) ListPairs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := make([]string, 0, len(m.books))
	for pair := range m.books {
		pairs = append(pairs, pair)
	}
	return pairs
}

// BookCount returns the number of instantiated books.
func (m *Manager) BookCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.books)
}

// SetTradeCallback registers a callback invoked once per trade, in
// matching order, after the generating AddOrder has completed.
func (m *Manager) SetTradeCallback(cb func(pair string, trade *models.Trade)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrade = cb
}

// SetOrderCallback registers a callback invoked for each accepted order.
func (m *Manager) SetOrderCallback(cb func(pair string, order *models.Order)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOrder = cb
}
