package models

import (
	"errors"
	"time"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type Status string

const (
	Open      Status = "open"
	Partial   Status = "partial"
	Filled    Status = "filled"
	Cancelled Status = "cancelled"
)

// Order is a trader's instruction to buy or sell at a limit price.
// Price and quantities are integer atomic units (cents, satoshis, ...).
// Money is never represented as floating point: float comparisons are
// not deterministic and the matching loop depends on exact equality.
type Order struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Pair      string    `json:"pair"`
	Side      Side      `json:"side"`
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Remaining int64     `json:"remaining"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *Order) Validate() error {
	if o.UserID <= 0 {
		return errors.New("user_id must be greater than 0")
	}
	if o.Pair == "" {
		return errors.New("pair is required")
	}
	if o.Side != Buy && o.Side != Sell {
		return errors.New("side must be 'buy' or 'sell'")
	}
	if o.Price <= 0 {
		return errors.New("price must be greater than 0")
	}
	if o.Quantity <= 0 {
		return errors.New("quantity must be greater than 0")
	}
	if o.Remaining < 0 {
		return errors.New("remaining quantity cannot be negative")
	}
	if o.Remaining > o.Quantity {
		return errors.New("remaining quantity cannot exceed total quantity")
	}
	if o.Status != Open && o.Status != Partial && o.Status != Filled && o.Status != Cancelled {
		return errors.New("invalid status")
	}
	return nil
}

// FilledQuantity returns how much of the order has executed so far.
func (o *Order) FilledQuantity() int64 {
	return o.Quantity - o.Remaining
}

func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (st Status) IsValid() bool {
	return st == Open || st == Partial || st == Filled || st == Cancelled
}
