package models

import (
	"testing"
	"time"
)

func TestTrade_Validate(t *testing.T) {
	trade := &Trade{
		ID:           1,
		Pair:         "BTC-USD",
		MakerOrderID: 10,
		TakerOrderID: 11,
		Price:        5000000,
		Quantity:     3,
		CreatedAt:    time.Now(),
	}
	if err := trade.Validate(); err != nil {
		t.Fatalf("valid trade rejected: %v", err)
	}

	bad := *trade
	bad.TakerOrderID = bad.MakerOrderID
	if err := bad.Validate(); err == nil {
		t.Error("self-trade must be rejected")
	}

	bad = *trade
	bad.Quantity = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero quantity must be rejected")
	}

	bad = *trade
	bad.Price = -5
	if err := bad.Validate(); err == nil {
		t.Error("negative price must be rejected")
	}
}
