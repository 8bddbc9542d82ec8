package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuote(t *testing.T) {
	table := NewTable(nil, nil)

	tests := []struct {
		name     string
		tier     Tier
		months   int
		currency string
		amount   string
		err      error
	}{
		{"basic three months", Basic, 3, "USDT", "60", nil},
		{"premium two months", Premium, 2, "ETH", "0.02", nil},
		{"basic one month", Basic, 1, "USDT", "20", nil},
		{"unknown tier", Tier("gold"), 1, "", "", ErrInvalidMembershipTier},
		{"zero months", Basic, 0, "", "", ErrInvalidDuration},
		{"negative months", Premium, -4, "", "", ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := table.Quote(tt.tier, tt.months)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if quote.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", quote.Currency, tt.currency)
			}
			if !quote.Amount.Equal(decimal.RequireFromString(tt.amount)) {
				t.Errorf("Amount: got %s, want %s", quote.Amount, tt.amount)
			}
		})
	}
}

func TestQuoteUsesConfiguredUnits(t *testing.T) {
	table := NewTable(map[Tier]UnitPrice{
		Basic: {Currency: "USDT", Amount: decimal.RequireFromString("9.99")},
	}, nil)

	quote, err := table.Quote(Basic, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Amount.String() != "119.88" {
		t.Errorf("got %s, want 119.88", quote.Amount)
	}
	if _, err := table.Quote(Premium, 1); !errors.Is(err, ErrInvalidMembershipTier) {
		t.Errorf("expected unconfigured tier to be rejected, got %v", err)
	}
}

func TestParseTier(t *testing.T) {
	for _, raw := range []string{"basic", " Premium ", "BASIC"} {
		if _, err := ParseTier(raw); err != nil {
			t.Errorf("ParseTier(%q): %v", raw, err)
		}
	}
	if _, err := ParseTier("vip"); !errors.Is(err, ErrInvalidMembershipTier) {
		t.Errorf("expected ErrInvalidMembershipTier, got %v", err)
	}
}

func TestUSDValue(t *testing.T) {
	prices, err := ParsePrices("ETH:3000, usdt:1")
	if err != nil {
		t.Fatalf("ParsePrices: %v", err)
	}
	table := NewTable(nil, prices)

	if got := table.USDValue("ETH", decimal.RequireFromString("0.5")); got.String() != "1500" {
		t.Errorf("ETH: got %s, want 1500", got)
	}
	if got := table.USDValue("usdt", decimal.RequireFromString("12.345")); got.String() != "12.35" {
		t.Errorf("USDT: got %s, want 12.35", got)
	}
	if got := table.USDValue("DOGE", decimal.NewFromInt(10)); !got.IsZero() {
		t.Errorf("unknown token: got %s, want 0", got)
	}
}

func TestParsePricesRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"ETH", "ETH:abc", "ETH:-1"} {
		if _, err := ParsePrices(raw); !errors.Is(err, ErrInvalidPriceTable) {
			t.Errorf("ParsePrices(%q): expected ErrInvalidPriceTable, got %v", raw, err)
		}
	}
}
