package wallet

import (
	"context"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListTransactions returns the account's sent and received transactions,
// newest first. Total counts every match regardless of paging.
func (e *Engine) ListTransactions(ctx context.Context, accountId string, page, pageSize int, token string) (TransactionPage, error) {
	account, err := e.store.GetAccount(ctx, accountId)
	if err != nil {
		return TransactionPage{}, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	} else if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	result, err := e.store.ListTransactions(ctx, TransactionQuery{
		AccountId: account.Id,
		Address:   account.Address,
		Token:     strings.TrimSpace(token),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		return TransactionPage{}, err
	}
	if result.Transactions == nil {
		result.Transactions = []Transaction{}
	}
	return result, nil
}
