package account

import (
	"github.com/JhonesBR/go-wallet/internal/wallet"
)

type BalanceSchema struct {
	Token    string `json:"token"`
	Balance  string `json:"balance"`
	USDValue string `json:"usd_value"`
}

type WalletInfoSchema struct {
	WalletAddress string          `json:"wallet_address"`
	Balances      []BalanceSchema `json:"balances"`
}

type TransferSchema struct {
	ToAddress string  `json:"to_address" validate:"required"`
	Token     string  `json:"token" validate:"required"`
	Amount    string  `json:"amount" validate:"required"`
	Memo      *string `json:"memo" validate:"omitempty,max=256"`
}

type TransactionListSchema struct {
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
	Total        int                  `json:"total"`
	Transactions []wallet.Transaction `json:"transactions"`
}

func toWalletInfoSchema(info wallet.WalletInfo) WalletInfoSchema {
	balances := make([]BalanceSchema, 0, len(info.Balances))
	for _, b := range info.Balances {
		balances = append(balances, BalanceSchema{
			Token:    b.Token,
			Balance:  b.Amount.String(),
			USDValue: b.USDValue.StringFixed(2),
		})
	}
	return WalletInfoSchema{WalletAddress: info.Address, Balances: balances}
}
