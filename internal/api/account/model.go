package account

import (
	"context"

	"github.com/JhonesBR/go-wallet/internal/wallet"
)

// Wallet is what the account routes need from the engine.
type Wallet interface {
	GetWalletInfo(ctx context.Context, accountId string) (wallet.WalletInfo, error)
	Transfer(ctx context.Context, req wallet.TransferRequest) (wallet.Receipt, error)
	ListTransactions(ctx context.Context, accountId string, page, pageSize int, token string) (wallet.TransactionPage, error)
}
