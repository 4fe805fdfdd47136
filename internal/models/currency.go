package models

import (
	"errors"
	"strings"
	"time"
)

// Currency describes an asset tradeable on the venue. Precision is the
// number of decimal places one atomic unit represents: amounts for a
// currency with precision 2 are expressed in hundredths.
type Currency struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Precision int       `json:"precision"`
	MinAmount int64     `json:"min_amount"` // atomic units
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewCurrency(code, name string, precision int, minAmount int64) *Currency {
	now := time.Now()
	return &Currency{
		Code:      code,
		Name:      name,
		Precision: precision,
		MinAmount: minAmount,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Currency) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return errors.New("currency code is required")
	}
	if len(c.Code) > 10 {
		return errors.New("currency code must be 10 characters or less")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("currency name is required")
	}
	if c.Precision < 0 || c.Precision > 18 {
		return errors.New("precision must be between 0 and 18")
	}
	if c.MinAmount < 0 {
		return errors.New("min_amount cannot be negative")
	}
	return nil
}

var DefaultCurrencies = []*Currency{
	NewCurrency("USD", "US Dollar", 2, 1),
	NewCurrency("EUR", "Euro", 2, 1),
	NewCurrency("BTC", "Bitcoin", 8, 1),
	NewCurrency("ETH", "Ethereum", 9, 1),
	NewCurrency("USDT", "Tether", 2, 1),
}
