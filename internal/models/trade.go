package models

import (
	"errors"
	"time"
)

// Trade is an immutable record of one match. The price is always the
// maker's (resting order's) price; the taker crossed the spread.
type Trade struct {
	ID           int64     `json:"id"`
	Pair         string    `json:"pair"`
	MakerOrderID int64     `json:"maker_order_id"`
	TakerOrderID int64     `json:"taker_order_id"`
	Price        int64     `json:"price"`
	Quantity     int64     `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
}

func (t *Trade) Validate() error {
	if t.MakerOrderID <= 0 {
		return errors.New("maker_order_id must be greater than 0")
	}
	if t.TakerOrderID <= 0 {
		return errors.New("taker_order_id must be greater than 0")
	}
	if t.MakerOrderID == t.TakerOrderID {
		return errors.New("maker_order_id and taker_order_id must be different")
	}
	if t.Price <= 0 {
		return errors.New("price must be greater than 0")
	}
	if t.Quantity <= 0 {
		return errors.New("quantity must be greater than 0")
	}
	return nil
}
