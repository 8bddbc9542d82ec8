package wallet

import (
	"context"
	"strings"
)

// SettlementReferencer produces the external settlement reference (tx hash)
// recorded with a transaction. A chain-submitting implementation can replace
// the placeholder without touching the engine.
type SettlementReferencer interface {
	Reference(ctx context.Context, tx Transaction) (string, error)
}

const DefaultReferencePrefix = "mock_tx_"

// PlaceholderReferencer derives a stable fake hash from the transaction id.
type PlaceholderReferencer struct {
	Prefix string
}

func (p PlaceholderReferencer) Reference(_ context.Context, tx Transaction) (string, error) {
	prefix := p.Prefix
	if prefix == "" {
		prefix = DefaultReferencePrefix
	}
	return prefix + strings.ReplaceAll(tx.Id, "-", ""), nil
}
