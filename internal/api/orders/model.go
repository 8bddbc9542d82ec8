package orders

import (
	"context"

	"github.com/JhonesBR/go-wallet/internal/order"
	"github.com/JhonesBR/go-wallet/internal/wallet"
)

type Payments interface {
	CreateOrder(ctx context.Context, tier string, durationMonths int) (order.Quote, error)
	PayOrder(ctx context.Context, payerId, currency, amount string) (wallet.Receipt, error)
	PayQuote(ctx context.Context, payerId, quoteId string) (wallet.Receipt, error)
}
