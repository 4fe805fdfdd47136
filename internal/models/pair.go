package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Pair is a tradeable instrument: amounts of the base currency priced
// in the quote currency. MinQuantity is the smallest accepted order
// size, in base atomic units; zero means no venue minimum.
type Pair struct {
	Base        string    `json:"base"`
	Quote       string    `json:"quote"`
	MinQuantity int64     `json:"min_quantity"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewPair(base, quote string, minQuantity int64) *Pair {
	now := time.Now()
	return &Pair{
		Base:        strings.ToUpper(base),
		Quote:       strings.ToUpper(quote),
		MinQuantity: minQuantity,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ParsePair splits a "BASE-QUOTE" symbol into a validated pair.
func ParsePair(symbol string) (*Pair, error) {
	base, quote, ok := strings.Cut(symbol, "-")
	if !ok {
		return nil, fmt.Errorf("invalid pair symbol %q: expected BASE-QUOTE", symbol)
	}
	p := &Pair{Base: base, Quote: quote}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pair) Validate() error {
	if err := validateCurrencyCode(p.Base); err != nil {
		return fmt.Errorf("base: %w", err)
	}
	if err := validateCurrencyCode(p.Quote); err != nil {
		return fmt.Errorf("quote: %w", err)
	}
	if p.Base == p.Quote {
		return errors.New("base and quote currencies must be different")
	}
	if p.MinQuantity < 0 {
		return errors.New("min_quantity cannot be negative")
	}
	return nil
}

// validateCurrencyCode accepts the code format used across the venue:
// 2 to 10 uppercase letters or digits.
func validateCurrencyCode(code string) error {
	if len(code) < 2 || len(code) > 10 {
		return errors.New("currency code must be 2 to 10 characters")
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return fmt.Errorf("currency code %q must be uppercase letters and digits", code)
		}
	}
	return nil
}

// String returns the pair's symbol, the key used for order books,
// routing and caching.
func (p *Pair) String() string {
	return p.Base + "-" + p.Quote
}
