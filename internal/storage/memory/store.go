package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/shopspring/decimal"
)

// Store keeps accounts, balances and transactions in process memory. Units of
// work serialize per balance key and publish their writes under one short
// commit lock, so readers see either none or all of a unit.
type Store struct {
	mu sync.RWMutex

	accounts  map[string]wallet.Account
	byAddress map[string]string
	byKeyHash map[string]string

	balances map[wallet.BalanceKey]decimal.Decimal
	tokens   map[string][]string

	transactions []wallet.Transaction
	txIndex      map[string]int

	locks *lockTable
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]wallet.Account),
		byAddress:    make(map[string]string),
		byKeyHash:    make(map[string]string),
		balances:     make(map[wallet.BalanceKey]decimal.Decimal),
		tokens:       make(map[string][]string),
		transactions: make([]wallet.Transaction, 0),
		txIndex:      make(map[string]int),
		locks:        newLockTable(),
	}
}

func (s *Store) CreateAccount(_ context.Context, account wallet.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Id]; exists {
		return wallet.ErrAccountExists
	}
	if _, exists := s.byAddress[account.Address]; exists {
		return wallet.ErrAccountExists
	}
	s.accounts[account.Id] = account
	s.byAddress[account.Address] = account.Id
	if account.APIKeyHash != "" {
		s.byKeyHash[account.APIKeyHash] = account.Id
	}
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountId string) (wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountId]; ok {
		return a, nil
	}
	return wallet.Account{}, wallet.ErrWalletNotFound
}

func (s *Store) GetAccountByAddress(_ context.Context, address string) (wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byAddress[address]; ok {
		return s.accounts[id], nil
	}
	return wallet.Account{}, wallet.ErrWalletNotFound
}

func (s *Store) GetAccountByAPIKeyHash(_ context.Context, keyHash string) (wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byKeyHash[keyHash]; ok {
		return s.accounts[id], nil
	}
	return wallet.Account{}, wallet.ErrWalletNotFound
}

func (s *Store) GetBalance(_ context.Context, accountId, token string) (wallet.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountId]; !ok {
		return wallet.Balance{}, wallet.ErrWalletNotFound
	}
	amount, ok := s.balances[wallet.BalanceKey{AccountId: accountId, Token: token}]
	if !ok {
		return wallet.Balance{}, wallet.ErrBalanceNotFound
	}
	return wallet.Balance{AccountId: accountId, Token: token, Amount: amount}, nil
}

func (s *Store) ListBalances(_ context.Context, accountId string) ([]wallet.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountId]; !ok {
		return nil, wallet.ErrWalletNotFound
	}
	result := make([]wallet.Balance, 0, len(s.tokens[accountId]))
	for _, token := range s.tokens[accountId] {
		result = append(result, wallet.Balance{
			AccountId: accountId,
			Token:     token,
			Amount:    s.balances[wallet.BalanceKey{AccountId: accountId, Token: token}],
		})
	}
	return result, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.txIndex[id]; ok {
		return s.transactions[i], nil
	}
	return wallet.Transaction{}, wallet.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, query wallet.TransactionQuery) (wallet.TransactionPage, error) {
	s.mu.RLock()
	matches := make([]wallet.Transaction, 0)
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if query.Matches(s.transactions[i]) {
			matches = append(matches, s.transactions[i])
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matches, func(a, b wallet.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	// Apply limit/offset
	start := min(query.Offset(), len(matches))
	end := len(matches)
	if query.PageSize > 0 {
		end = min(start+query.PageSize, len(matches))
	}

	return wallet.TransactionPage{
		Total:        len(matches),
		Transactions: matches[start:end],
	}, nil
}

func (s *Store) ListPending(_ context.Context, createdBefore time.Time, limit int) ([]wallet.Transaction, error) {
	s.mu.RLock()
	result := make([]wallet.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.Status == wallet.Pending && tx.CreatedAt.Before(createdBefore) {
			result = append(result, tx)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(result, func(a, b wallet.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) Atomically(ctx context.Context, keys []wallet.BalanceKey, fn func(tx wallet.Tx) error) error {
	keys = wallet.SortKeys(keys)
	release := s.locks.acquire(keys)
	defer release()

	if err := ctx.Err(); err != nil {
		return err
	}

	u := newUnit(s, keys)
	if err := fn(u); err != nil {
		// Staged writes are dropped; nothing reached the shared maps.
		return err
	}
	s.commit(u)
	return nil
}

func (s *Store) commit(u *unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range u.keys {
		amount, ok := u.balances[k]
		if !ok {
			continue
		}
		if _, exists := s.balances[k]; !exists {
			s.tokens[k.AccountId] = append(s.tokens[k.AccountId], k.Token)
		}
		s.balances[k] = amount
	}
	for _, tx := range u.appended {
		s.txIndex[tx.Id] = len(s.transactions)
		s.transactions = append(s.transactions, tx)
	}
	for id, change := range u.statuses {
		i := s.txIndex[id]
		s.transactions[i].Status = change.status
		s.transactions[i].UpdatedAt = change.at
	}
}

// unit stages the writes of one Atomically call.
type unit struct {
	store    *Store
	keys     []wallet.BalanceKey
	locked   map[wallet.BalanceKey]struct{}
	balances map[wallet.BalanceKey]decimal.Decimal
	appended []wallet.Transaction
	statuses map[string]statusChange
}

type statusChange struct {
	status wallet.TransactionStatus
	at     time.Time
}

func newUnit(s *Store, keys []wallet.BalanceKey) *unit {
	locked := make(map[wallet.BalanceKey]struct{}, len(keys))
	for _, k := range keys {
		locked[k] = struct{}{}
	}
	return &unit{
		store:    s,
		keys:     keys,
		locked:   locked,
		balances: make(map[wallet.BalanceKey]decimal.Decimal),
		statuses: make(map[string]statusChange),
	}
}

func (u *unit) key(accountId, token string) (wallet.BalanceKey, error) {
	k := wallet.BalanceKey{AccountId: accountId, Token: token}
	if _, ok := u.locked[k]; !ok {
		return k, fmt.Errorf("%w: balance %s not declared for this unit", wallet.ErrInternal, k)
	}
	return k, nil
}

func (u *unit) current(k wallet.BalanceKey) (decimal.Decimal, bool) {
	if amount, ok := u.balances[k]; ok {
		return amount, true
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	amount, ok := u.store.balances[k]
	return amount, ok
}

func (u *unit) GetBalance(_ context.Context, accountId, token string) (decimal.Decimal, error) {
	k, err := u.key(accountId, token)
	if err != nil {
		return decimal.Zero, err
	}
	amount, ok := u.current(k)
	if !ok {
		return decimal.Zero, wallet.ErrBalanceNotFound
	}
	return amount, nil
}

func (u *unit) Debit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error) {
	amount, err := u.GetBalance(ctx, accountId, token)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.LessThan(delta) {
		return amount, wallet.ErrInsufficientBalance
	}
	amount = amount.Sub(delta)
	u.balances[wallet.BalanceKey{AccountId: accountId, Token: token}] = amount
	return amount, nil
}

func (u *unit) Credit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error) {
	amount, err := u.GetBalance(ctx, accountId, token)
	if err != nil {
		return decimal.Zero, err
	}
	amount = amount.Add(delta)
	u.balances[wallet.BalanceKey{AccountId: accountId, Token: token}] = amount
	return amount, nil
}

func (u *unit) OpenBalance(_ context.Context, accountId, token string) error {
	k, err := u.key(accountId, token)
	if err != nil {
		return err
	}
	if _, ok := u.current(k); ok {
		return nil
	}
	u.store.mu.RLock()
	_, exists := u.store.accounts[accountId]
	u.store.mu.RUnlock()
	if !exists {
		return wallet.ErrWalletNotFound
	}
	u.balances[k] = decimal.Zero
	return nil
}

func (u *unit) AppendTransaction(_ context.Context, tx wallet.Transaction) error {
	u.store.mu.RLock()
	_, exists := u.store.txIndex[tx.Id]
	u.store.mu.RUnlock()
	if exists || slices.ContainsFunc(u.appended, func(t wallet.Transaction) bool { return t.Id == tx.Id }) {
		return fmt.Errorf("%w: duplicate transaction id %s", wallet.ErrInternal, tx.Id)
	}
	u.appended = append(u.appended, tx)
	return nil
}

func (u *unit) SetTransactionStatus(_ context.Context, id string, from, to wallet.TransactionStatus, at time.Time) error {
	current, ok := u.statusOf(id)
	if !ok {
		return wallet.ErrTransactionNotFound
	}
	if current != from {
		return wallet.ErrStatusConflict
	}
	u.statuses[id] = statusChange{status: to, at: at}
	return nil
}

func (u *unit) statusOf(id string) (wallet.TransactionStatus, bool) {
	if change, ok := u.statuses[id]; ok {
		return change.status, true
	}
	for _, tx := range u.appended {
		if tx.Id == id {
			return tx.Status, true
		}
	}
	u.store.mu.RLock()
	defer u.store.mu.RUnlock()
	i, ok := u.store.txIndex[id]
	if !ok {
		return "", false
	}
	return u.store.transactions[i].Status, true
}

var _ wallet.Store = (*Store)(nil)
var _ wallet.Tx = (*unit)(nil)
