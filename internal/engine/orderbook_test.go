package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"matchbook/internal/models"
)

// Helper to create a test order.
func newTestOrder(id int64, side models.Side, price, qty int64) *models.Order {
	return &models.Order{
		ID:        id,
		UserID:    id,
		Pair:      "BTC-USD",
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Status:    models.Open,
		CreatedAt: time.Now(),
	}
}

func mustAdd(t *testing.T, ob *OrderBook, o *models.Order) []models.Trade {
	t.Helper()
	trades, err := ob.AddOrder(o)
	if err != nil {
		t.Fatalf("AddOrder(%d) failed: %v", o.ID, err)
	}
	return trades
}

func TestOrderBook_RestingBuy(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	trades := mustAdd(t, ob, newTestOrder(1, models.Buy, 50, 5))

	if len(trades) != 0 {
		t.Fatalf("expected no trades on empty book, got %d", len(trades))
	}
	bid, ok := ob.BestBid()
	if !ok || bid != 50 {
		t.Errorf("expected best bid 50, got %d (ok=%v)", bid, ok)
	}
	if ob.OrderCount() != 1 {
		t.Errorf("expected 1 resting order, got %d", ob.OrderCount())
	}
}

func TestOrderBook_FullFill(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	sell := newTestOrder(1, models.Sell, 50000, 10)
	buy := newTestOrder(2, models.Buy, 50000, 10)
	mustAdd(t, ob, sell)
	trades := mustAdd(t, ob, buy)

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.MakerOrderID != 1 || tr.TakerOrderID != 2 {
		t.Errorf("expected maker=1 taker=2, got maker=%d taker=%d", tr.MakerOrderID, tr.TakerOrderID)
	}
	if tr.Price != 50000 || tr.Quantity != 10 {
		t.Errorf("expected 10@50000, got %d@%d", tr.Quantity, tr.Price)
	}
	if sell.Status != models.Filled || buy.Status != models.Filled {
		t.Errorf("expected both filled, got maker=%s taker=%s", sell.Status, buy.Status)
	}
	if ob.OrderCount() != 0 {
		t.Errorf("expected empty book, got %d orders", ob.OrderCount())
	}
}

// The taker sweeps two price levels: the cheaper ask fills first at its
// own (maker) price, then the worse level, and the remainder of the
// second maker stays on the book.
func TestOrderBook_MultiLevelSweep(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 100, 10))
	mustAdd(t, ob, newTestOrder(2, models.Sell, 99, 5))
	trades := mustAdd(t, ob, newTestOrder(3, models.Buy, 100, 12))

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].MakerOrderID != 2 || trades[0].Price != 99 || trades[0].Quantity != 5 {
		t.Errorf("first trade should be 5@99 against order 2, got %d@%d against %d",
			trades[0].Quantity, trades[0].Price, trades[0].MakerOrderID)
	}
	if trades[1].MakerOrderID != 1 || trades[1].Price != 100 || trades[1].Quantity != 7 {
		t.Errorf("second trade should be 7@100 against order 1, got %d@%d against %d",
			trades[1].Quantity, trades[1].Price, trades[1].MakerOrderID)
	}

	// Taker is fully filled; 3@100 remains on the ask side.
	ask, ok := ob.BestAsk()
	if !ok || ask != 100 {
		t.Errorf("expected best ask 100, got %d (ok=%v)", ask, ok)
	}
	if _, ok := ob.BestBid(); ok {
		t.Error("expected no resting bid after full taker fill")
	}
	rest := ob.GetOrder(1)
	if rest == nil || rest.Remaining != 3 {
		t.Errorf("expected order 1 to have 3 remaining, got %+v", rest)
	}
}

func TestOrderBook_PartialFillRests(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 50000, 4))
	buy := newTestOrder(2, models.Buy, 50000, 10)
	trades := mustAdd(t, ob, buy)

	if len(trades) != 1 || trades[0].Quantity != 4 {
		t.Fatalf("expected one trade of 4, got %+v", trades)
	}
	if buy.Status != models.Partial || buy.Remaining != 6 {
		t.Errorf("expected taker partial with 6 remaining, got %s/%d", buy.Status, buy.Remaining)
	}
	bid, ok := ob.BestBid()
	if !ok || bid != 50000 {
		t.Errorf("expected remainder resting at 50000, got %d (ok=%v)", bid, ok)
	}
}

func TestOrderBook_NoMatchWhenNotCrossed(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Buy, 40, 3))
	trades := mustAdd(t, ob, newTestOrder(2, models.Sell, 45, 3))

	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	bid, _ := ob.BestBid()
	ask, _ := ob.BestAsk()
	if bid != 40 || ask != 45 {
		t.Errorf("expected 40/45 book, got %d/%d", bid, ask)
	}
}

// The trade price is always the maker's, never the taker's limit.
func TestOrderBook_MakerPriceRule(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 95, 5))
	trades := mustAdd(t, ob, newTestOrder(2, models.Buy, 105, 5))

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price != 95 {
		t.Errorf("trade must execute at maker price 95, got %d", trades[0].Price)
	}
}

// Two resting orders at the same price fill strictly oldest-first; the
// earlier order is consumed fully before the later one is touched.
func TestOrderBook_FIFOWithinLevel(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 100, 5))
	mustAdd(t, ob, newTestOrder(2, models.Sell, 100, 5))
	trades := mustAdd(t, ob, newTestOrder(3, models.Buy, 100, 7))

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].MakerOrderID != 1 || trades[0].Quantity != 5 {
		t.Errorf("first fill must fully consume order 1, got %d for %d", trades[0].Quantity, trades[0].MakerOrderID)
	}
	if trades[1].MakerOrderID != 2 || trades[1].Quantity != 2 {
		t.Errorf("second fill must touch order 2 for 2, got %d for %d", trades[1].Quantity, trades[1].MakerOrderID)
	}
}

func TestOrderBook_Conservation(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 100, 3))
	mustAdd(t, ob, newTestOrder(2, models.Sell, 101, 4))
	mustAdd(t, ob, newTestOrder(3, models.Sell, 102, 5))

	taker := newTestOrder(4, models.Buy, 101, 10)
	trades := mustAdd(t, ob, taker)

	var total int64
	for _, tr := range trades {
		if tr.Quantity <= 0 {
			t.Errorf("trade quantity must be positive, got %d", tr.Quantity)
		}
		// Price improvement: never worse than the taker's limit.
		if tr.Price > taker.Price {
			t.Errorf("buy trade at %d exceeds taker limit %d", tr.Price, taker.Price)
		}
		total += tr.Quantity
	}
	if total > taker.Quantity {
		t.Errorf("filled %d exceeds taker quantity %d", total, taker.Quantity)
	}
	if total+taker.Remaining != taker.Quantity {
		t.Errorf("fills (%d) + remaining (%d) != original (%d)", total, taker.Remaining, taker.Quantity)
	}
}

func TestOrderBook_NeverCrossed(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	// Interleave both sides around a moving price.
	orders := []*models.Order{
		newTestOrder(1, models.Sell, 105, 5),
		newTestOrder(2, models.Buy, 100, 5),
		newTestOrder(3, models.Sell, 99, 3), // crosses, partially consumed
		newTestOrder(4, models.Buy, 106, 4), // crosses
		newTestOrder(5, models.Sell, 101, 2),
		newTestOrder(6, models.Buy, 101, 1), // crosses
	}
	for _, o := range orders {
		mustAdd(t, ob, o)
		bid, bidOK := ob.BestBid()
		ask, askOK := ob.BestAsk()
		if bidOK && askOK && bid >= ask {
			t.Fatalf("crossed book after order %d: bid=%d ask=%d", o.ID, bid, ask)
		}
	}
}

func TestOrderBook_InvalidOrderRejected(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	cases := []*models.Order{
		newTestOrder(1, models.Buy, 100, 0),
		newTestOrder(2, models.Buy, 100, -5),
		newTestOrder(3, models.Buy, 0, 5),
		newTestOrder(4, models.Sell, -1, 5),
	}
	for _, o := range cases {
		o.Remaining = o.Quantity
		if _, err := ob.AddOrder(o); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("order %d: expected ErrInvalidOrder, got %v", o.ID, err)
		}
	}

	// Rejection must leave no state behind.
	if ob.OrderCount() != 0 {
		t.Errorf("rejected orders must not rest, book has %d", ob.OrderCount())
	}
}

func TestOrderBook_DuplicateID(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(7, models.Buy, 100, 5))
	_, err := ob.AddOrder(newTestOrder(7, models.Buy, 101, 5))
	if !errors.Is(err, ErrDuplicateOrderID) {
		t.Fatalf("expected ErrDuplicateOrderID, got %v", err)
	}
	// The colliding order must not have matched or rested.
	if ob.OrderCount() != 1 {
		t.Errorf("expected 1 resting order, got %d", ob.OrderCount())
	}
	bid, _ := ob.BestBid()
	if bid != 100 {
		t.Errorf("original order must be untouched, best bid %d", bid)
	}
}

func TestOrderBook_CancelOrder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Buy, 100, 5))
	cancelled, err := ob.CancelOrder(1)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != models.Cancelled || cancelled.Remaining != 5 {
		t.Errorf("expected cancelled with 5 remaining, got %s/%d", cancelled.Status, cancelled.Remaining)
	}
	if ob.OrderCount() != 0 {
		t.Errorf("expected empty book after cancel, got %d", ob.OrderCount())
	}
	if _, ok := ob.BestBid(); ok {
		t.Error("cancelled level must be removed")
	}

	// Cancelling twice succeeds once and then fails.
	if _, err := ob.CancelOrder(1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("second cancel: expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderBook_CancelUnknownOrder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	if _, err := ob.CancelOrder(42); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderBook_CancelPartiallyFilled(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 100, 10))
	trades := mustAdd(t, ob, newTestOrder(2, models.Buy, 100, 4))
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	cancelled, err := ob.CancelOrder(1)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Remaining != 6 {
		t.Errorf("expected 6 remaining on cancel, got %d", cancelled.Remaining)
	}
}

func TestOrderBook_BestPrices(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Buy, 50000, 1))
	mustAdd(t, ob, newTestOrder(2, models.Buy, 50100, 1))
	mustAdd(t, ob, newTestOrder(3, models.Buy, 49900, 1))
	mustAdd(t, ob, newTestOrder(4, models.Sell, 51000, 1))
	mustAdd(t, ob, newTestOrder(5, models.Sell, 50500, 1))
	mustAdd(t, ob, newTestOrder(6, models.Sell, 50800, 1))

	if bid, _ := ob.BestBid(); bid != 50100 {
		t.Errorf("expected best bid 50100, got %d", bid)
	}
	if ask, _ := ob.BestAsk(); ask != 50500 {
		t.Errorf("expected best ask 50500, got %d", ask)
	}
	if spread, ok := ob.Spread(); !ok || spread != 400 {
		t.Errorf("expected spread 400, got %d (ok=%v)", spread, ok)
	}
}

func TestOrderBook_Depth(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	for i := int64(0); i < 5; i++ {
		mustAdd(t, ob, newTestOrder(i+1, models.Buy, 50000-i, 2))
		mustAdd(t, ob, newTestOrder(i+6, models.Sell, 51000+i, 3))
	}

	bids, asks := ob.Depth(3)
	if len(bids) != 3 || len(asks) != 3 {
		t.Fatalf("expected 3 levels per side, got %d/%d", len(bids), len(asks))
	}
	if bids[0].Price != 50000 || bids[1].Price != 49999 {
		t.Errorf("bids must descend, got %d then %d", bids[0].Price, bids[1].Price)
	}
	if asks[0].Price != 51000 || asks[1].Price != 51001 {
		t.Errorf("asks must ascend, got %d then %d", asks[0].Price, asks[1].Price)
	}
	if bids[0].Volume != 2 || bids[0].Orders != 1 {
		t.Errorf("unexpected level aggregate: %+v", bids[0])
	}
}

func TestOrderBook_TradeSequenceAcrossLevels(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	mustAdd(t, ob, newTestOrder(1, models.Sell, 102, 1))
	mustAdd(t, ob, newTestOrder(2, models.Sell, 101, 1))
	mustAdd(t, ob, newTestOrder(3, models.Sell, 100, 1))
	trades := mustAdd(t, ob, newTestOrder(4, models.Buy, 102, 3))

	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	// Better prices fill first regardless of arrival order.
	want := []int64{100, 101, 102}
	for i, tr := range trades {
		if tr.Price != want[i] {
			t.Errorf("trade %d: expected price %d, got %d", i, want[i], tr.Price)
		}
	}
}

func TestOrderBook_ConcurrentAccess(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			// Non-crossing bids only, so every order rests.
			mustAddConcurrent(ob, newTestOrder(id, models.Buy, 40000+id, 1))
		}(int64(i + 1))
	}
	wg.Wait()

	if ob.OrderCount() != 100 {
		t.Errorf("expected 100 resting orders, got %d", ob.OrderCount())
	}
}

func mustAddConcurrent(ob *OrderBook, o *models.Order) {
	if _, err := ob.AddOrder(o); err != nil {
		panic(err)
	}
}

func TestManager_IndependentPairs(t *testing.T) {
	m := NewManager()

	o1 := newTestOrder(1, models.Buy, 100, 5)
	o2 := newTestOrder(2, models.Sell, 100, 5)
	o2.Pair = "ETH-USD"

	if _, err := m.AddOrder(o1); err != nil {
		t.Fatalf("add to BTC-USD failed: %v", err)
	}
	if _, err := m.AddOrder(o2); err != nil {
		t.Fatalf("add to ETH-USD failed: %v", err)
	}

	// Same price on different pairs must not match.
	if bid, ok := m.BestBid("BTC-USD"); !ok || bid != 100 {
		t.Errorf("expected BTC-USD bid 100, got %d (ok=%v)", bid, ok)
	}
	if ask, ok := m.BestAsk("ETH-USD"); !ok || ask != 100 {
		t.Errorf("expected ETH-USD ask 100, got %d (ok=%v)", ask, ok)
	}
	if m.BookCount() != 2 {
		t.Errorf("expected 2 books, got %d", m.BookCount())
	}
}

func TestManager_TradeCallbackOrdering(t *testing.T) {
	m := NewManager()

	var seen []int64
	m.SetTradeCallback(func(pair string, trade *models.Trade) {
		seen = append(seen, trade.Price)
	})

	if _, err := m.AddOrder(newTestOrder(1, models.Sell, 100, 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddOrder(newTestOrder(2, models.Sell, 99, 5)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddOrder(newTestOrder(3, models.Buy, 100, 12)); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 || seen[0] != 99 || seen[1] != 100 {
		t.Errorf("callback must observe trades in matching order, got %v", seen)
	}
}

func TestManager_CancelUnknownPair(t *testing.T) {
	m := NewManager()
	if _, err := m.CancelOrder("NO-PAIR", 1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestManager_CallbackSwapDuringMatching(t *testing.T) {
	m := NewManager()

	var count atomic.Int64
	cb := func(pair string, trade *models.Trade) { count.Add(1) }
	m.SetTradeCallback(cb)

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			m.SetTradeCallback(cb)
			m.SetOrderCallback(nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := int64(0); i < rounds; i++ {
			if _, err := m.AddOrder(newTestOrder(i*2+1, models.Sell, 100, 1)); err != nil {
				t.Errorf("sell %d: %v", i, err)
				return
			}
			if _, err := m.AddOrder(newTestOrder(i*2+2, models.Buy, 100, 1)); err != nil {
				t.Errorf("buy %d: %v", i, err)
				return
			}
		}
	}()
	wg.Wait()

	if count.Load() != rounds {
		t.Errorf("expected %d trades through the callback, got %d", rounds, count.Load())
	}
}
