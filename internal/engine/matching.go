package engine

import (
	"time"

	"matchbook/internal/models"
)

// match runs the price-time priority loop: while the incoming (taker)
// order has quantity left and the opposite side's best level crosses
// its limit, fill against the oldest maker at that level. Each fill is
// a distinct trade at the maker's price; fills are never merged, even
// at the same price. Caller must hold the write lock.
func (b *OrderBook) match(taker *models.Order) []models.Trade {
	var trades []models.Trade

	opposite := b.asks
	if taker.Side == models.Sell {
		opposite = b.bids
	}

	for taker.Remaining > 0 {
		level := opposite.best()
		if level == nil || !crosses(taker, level.price) {
			break
		}

		maker := level.head
		fill := min64(taker.Remaining, maker.order.Remaining)

		trades = append(trades, models.Trade{
			ID:           b.tradeSeq.Add(1),
			Pair:         b.pair,
			MakerOrderID: maker.order.ID,
			TakerOrderID: taker.ID,
			Price:        maker.order.Price,
			Quantity:     fill,
			CreatedAt:    time.Now(),
		})

		taker.Remaining -= fill
		maker.order.Remaining -= fill
		level.reduce(fill)
		maker.order.Status = fillStatus(maker.order)
		taker.Status = fillStatus(taker)

		if maker.order.Remaining == 0 {
			b.evict(maker)
		}
	}

	return trades
}

// crosses reports whether the taker's limit is compatible with a book
// price: a buyer pays up to its limit, a seller accepts down to it.
func crosses(taker *models.Order, bookPrice int64) bool {
	if taker.Side == models.Buy {
		return bookPrice <= taker.Price
	}
	return bookPrice >= taker.Price
}

func fillStatus(o *models.Order) models.Status {
	if o.Remaining == 0 {
		return models.Filled
	}
	return models.Partial
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
