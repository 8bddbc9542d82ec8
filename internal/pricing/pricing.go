// Package pricing quotes membership purchases and values token balances in USD
// from static per-unit tables. It holds no state beyond its configuration.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Tier string

const (
	Basic   Tier = "basic"
	Premium Tier = "premium"
)

var (
	ErrInvalidMembershipTier = errors.New("pricing: invalid membership tier")
	ErrInvalidDuration       = errors.New("pricing: duration must be a positive number of months")
	ErrInvalidPriceTable     = errors.New("pricing: invalid price table")
)

type PriceQuote struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// UnitPrice is the price of one month of a tier.
type UnitPrice struct {
	Currency string
	Amount   decimal.Decimal
}

func DefaultUnitPrices() map[Tier]UnitPrice {
	return map[Tier]UnitPrice{
		Basic:   {Currency: "USDT", Amount: decimal.NewFromInt(20)},
		Premium: {Currency: "ETH", Amount: decimal.RequireFromString("0.01")},
	}
}

type Table struct {
	units map[Tier]UnitPrice
	usd   map[string]decimal.Decimal
}

func NewTable(units map[Tier]UnitPrice, usd map[string]decimal.Decimal) *Table {
	if units == nil {
		units = DefaultUnitPrices()
	}
	if usd == nil {
		usd = map[string]decimal.Decimal{}
	}
	return &Table{units: units, usd: usd}
}

func ParseTier(raw string) (Tier, error) {
	tier := Tier(strings.ToLower(strings.TrimSpace(raw)))
	switch tier {
	case Basic, Premium:
		return tier, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMembershipTier, raw)
}

// Quote prices durationMonths of tier: unit price times months, in the tier's currency.
func (t *Table) Quote(tier Tier, durationMonths int) (PriceQuote, error) {
	unit, ok := t.units[tier]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: %q", ErrInvalidMembershipTier, tier)
	}
	if durationMonths <= 0 {
		return PriceQuote{}, fmt.Errorf("%w: got %d", ErrInvalidDuration, durationMonths)
	}
	return PriceQuote{
		Currency: unit.Currency,
		Amount:   unit.Amount.Mul(decimal.NewFromInt(int64(durationMonths))),
	}, nil
}

// USDValue is display-only; tokens without a configured price are worth zero.
func (t *Table) USDValue(token string, amount decimal.Decimal) decimal.Decimal {
	price, ok := t.usd[strings.ToUpper(token)]
	if !ok {
		return decimal.Zero
	}
	return amount.Mul(price).Round(2)
}

// ParsePrices reads "ETH:3000,USDT:1" into a token to price table.
func ParsePrices(raw string) (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, value, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPriceTable, pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPriceTable, pair)
		}
		prices[strings.ToUpper(strings.TrimSpace(token))] = price
	}
	return prices, nil
}
