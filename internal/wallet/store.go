package wallet

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence boundary of the engine. Reads may run concurrently
// with anything; every mutation goes through Atomically.
type Store interface {
	CreateAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, accountId string) (Account, error)
	GetAccountByAddress(ctx context.Context, address string) (Account, error)
	GetAccountByAPIKeyHash(ctx context.Context, keyHash string) (Account, error)

	GetBalance(ctx context.Context, accountId, token string) (Balance, error)
	ListBalances(ctx context.Context, accountId string) ([]Balance, error)

	GetTransaction(ctx context.Context, id string) (Transaction, error)
	ListTransactions(ctx context.Context, query TransactionQuery) (TransactionPage, error)
	// ListPending returns pending transactions created before the cutoff, oldest first.
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]Transaction, error)

	// Atomically runs fn as one unit of work over keys. Either every write made
	// through the Tx becomes visible at once, or none does. Implementations return
	// ErrTransientConflict when the unit lost a race and may be retried.
	Atomically(ctx context.Context, keys []BalanceKey, fn func(tx Tx) error) error
}

// Tx is the balance store contract available inside a unit of work.
type Tx interface {
	GetBalance(ctx context.Context, accountId, token string) (decimal.Decimal, error)
	// Debit subtracts delta only if the current amount covers it.
	Debit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error)
	// Credit adds delta to an existing row; a missing row is ErrBalanceNotFound.
	Credit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error)
	OpenBalance(ctx context.Context, accountId, token string) error

	AppendTransaction(ctx context.Context, tx Transaction) error
	// SetTransactionStatus moves a transaction from one status to another and
	// fails with ErrStatusConflict if it is no longer in from.
	SetTransactionStatus(ctx context.Context, id string, from, to TransactionStatus, at time.Time) error
}

// SortKeys returns keys deduplicated and in lock order.
func SortKeys(keys []BalanceKey) []BalanceKey {
	out := slices.Clone(keys)
	slices.SortFunc(out, BalanceKey.Compare)
	return slices.Compact(out)
}
