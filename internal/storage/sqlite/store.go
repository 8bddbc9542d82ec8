// Package sqlite is a single-file wallet store. Units of work run in immediate
// transactions and every balance write is a compare-and-swap on its version.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; a single connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
    id           TEXT PRIMARY KEY,
    address      TEXT NOT NULL UNIQUE,
    api_key_hash TEXT UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS balances (
    account_id TEXT NOT NULL REFERENCES accounts (id),
    token      TEXT NOT NULL,
    amount     TEXT NOT NULL DEFAULT '0',
    version    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (account_id, token)
)`,
	`CREATE TABLE IF NOT EXISTS transactions (
    id                TEXT PRIMARY KEY,
    sender_id         TEXT NOT NULL,
    recipient_address TEXT NOT NULL,
    token             TEXT NOT NULL,
    amount            TEXT NOT NULL,
    memo              TEXT,
    status            TEXT NOT NULL,
    tx_hash           TEXT NOT NULL,
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions (recipient_address, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status, created_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

func resultCode(err error) int {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() & 0xff
	}
	return 0
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	switch resultCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", wallet.ErrTransientConflict, err)
	case 0:
		return err
	}
	return fmt.Errorf("%w: %w", wallet.ErrInternal, err)
}

func (s *Store) CreateAccount(ctx context.Context, account wallet.Account) error {
	var keyHash *string
	if account.APIKeyHash != "" {
		keyHash = &account.APIKeyHash
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, address, api_key_hash) VALUES (?, ?, ?)`,
		account.Id, account.Address, keyHash,
	)
	if resultCode(err) == sqlite3.SQLITE_CONSTRAINT {
		return wallet.ErrAccountExists
	}
	return classify(err)
}

func (s *Store) getAccount(ctx context.Context, column, value string) (wallet.Account, error) {
	var account wallet.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, address, COALESCE(api_key_hash, '') FROM accounts WHERE `+column+` = ?`, value,
	).Scan(&account.Id, &account.Address, &account.APIKeyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Account{}, wallet.ErrWalletNotFound
	}
	if err != nil {
		return wallet.Account{}, classify(err)
	}
	return account, nil
}

func (s *Store) GetAccount(ctx context.Context, accountId string) (wallet.Account, error) {
	return s.getAccount(ctx, "id", accountId)
}

func (s *Store) GetAccountByAddress(ctx context.Context, address string) (wallet.Account, error) {
	return s.getAccount(ctx, "address", address)
}

func (s *Store) GetAccountByAPIKeyHash(ctx context.Context, keyHash string) (wallet.Account, error) {
	return s.getAccount(ctx, "api_key_hash", keyHash)
}

func (s *Store) GetBalance(ctx context.Context, accountId, token string) (wallet.Balance, error) {
	if _, err := s.GetAccount(ctx, accountId); err != nil {
		return wallet.Balance{}, err
	}
	balance := wallet.Balance{AccountId: accountId, Token: token}
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account_id = ? AND token = ?`, accountId, token,
	).Scan(&balance.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Balance{}, wallet.ErrBalanceNotFound
	}
	if err != nil {
		return wallet.Balance{}, classify(err)
	}
	return balance, nil
}

func (s *Store) ListBalances(ctx context.Context, accountId string) ([]wallet.Balance, error) {
	if _, err := s.GetAccount(ctx, accountId); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, amount FROM balances WHERE account_id = ? ORDER BY token`, accountId,
	)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	balances := make([]wallet.Balance, 0)
	for rows.Next() {
		b := wallet.Balance{AccountId: accountId}
		if err := rows.Scan(&b.Token, &b.Amount); err != nil {
			return nil, classify(err)
		}
		balances = append(balances, b)
	}
	return balances, classify(rows.Err())
}

const transactionColumns = `id, sender_id, recipient_address, token, amount, memo, status, tx_hash, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (wallet.Transaction, error) {
	var (
		tx                   wallet.Transaction
		status               string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&tx.Id,
		&tx.SenderAccountId,
		&tx.RecipientAddress,
		&tx.Token,
		&tx.Amount,
		&tx.Memo,
		&status,
		&tx.SettlementRef,
		&createdAt,
		&updatedAt,
	); err != nil {
		return wallet.Transaction{}, err
	}
	tx.Status = wallet.TransactionStatus(status)
	tx.CreatedAt = time.Unix(0, createdAt).UTC()
	tx.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return tx, nil
}

func (s *Store) collect(ctx context.Context, query string, args ...any) ([]wallet.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := make([]wallet.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, tx)
	}
	return result, classify(rows.Err())
}

func (s *Store) GetTransaction(ctx context.Context, id string) (wallet.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Transaction{}, wallet.ErrTransactionNotFound
	}
	if err != nil {
		return wallet.Transaction{}, classify(err)
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, query wallet.TransactionQuery) (wallet.TransactionPage, error) {
	const filter = `(sender_id = ?1 OR recipient_address = ?2) AND (?3 = '' OR token = ?3)`

	var page wallet.TransactionPage
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+filter,
		query.AccountId, query.Address, query.Token,
	).Scan(&page.Total); err != nil {
		return page, classify(err)
	}

	var err error
	page.Transactions, err = s.collect(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+filter+`
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?4 OFFSET ?5`,
		query.AccountId, query.Address, query.Token, query.PageSize, query.Offset(),
	)
	return page, err
}

func (s *Store) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]wallet.Transaction, error) {
	return s.collect(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at, rowid
		 LIMIT ?`,
		string(wallet.Pending), createdBefore.UnixNano(), limit,
	)
}

func (s *Store) Atomically(ctx context.Context, keys []wallet.BalanceKey, fn func(tx wallet.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if err := fn(newUnit(tx, wallet.SortKeys(keys))); err != nil {
		return err
	}
	return classify(tx.Commit())
}

type unit struct {
	tx     *sql.Tx
	locked map[wallet.BalanceKey]struct{}
}

func newUnit(tx *sql.Tx, keys []wallet.BalanceKey) *unit {
	locked := make(map[wallet.BalanceKey]struct{}, len(keys))
	for _, k := range keys {
		locked[k] = struct{}{}
	}
	return &unit{tx: tx, locked: locked}
}

func (u *unit) check(accountId, token string) error {
	k := wallet.BalanceKey{AccountId: accountId, Token: token}
	if _, ok := u.locked[k]; !ok {
		return fmt.Errorf("%w: balance %s not declared for this unit", wallet.ErrInternal, k)
	}
	return nil
}

func (u *unit) read(ctx context.Context, accountId, token string) (decimal.Decimal, int64, error) {
	if err := u.check(accountId, token); err != nil {
		return decimal.Zero, 0, err
	}
	var (
		amount  decimal.Decimal
		version int64
	)
	err := u.tx.QueryRowContext(ctx,
		`SELECT amount, version FROM balances WHERE account_id = ? AND token = ?`, accountId, token,
	).Scan(&amount, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, 0, wallet.ErrBalanceNotFound
	}
	if err != nil {
		return decimal.Zero, 0, classify(err)
	}
	return amount, version, nil
}

// write stores amount if the row is still at version.
func (u *unit) write(ctx context.Context, accountId, token string, amount decimal.Decimal, version int64) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE balances SET amount = ?, version = version + 1
		 WHERE account_id = ? AND token = ? AND version = ?`,
		amount.String(), accountId, token, version,
	)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n != 1 {
		return fmt.Errorf("%w: balance %s/%s moved past version %d", wallet.ErrTransientConflict, accountId, token, version)
	}
	return nil
}

func (u *unit) GetBalance(ctx context.Context, accountId, token string) (decimal.Decimal, error) {
	amount, _, err := u.read(ctx, accountId, token)
	return amount, err
}

func (u *unit) Debit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error) {
	amount, version, err := u.read(ctx, accountId, token)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.LessThan(delta) {
		return amount, wallet.ErrInsufficientBalance
	}
	amount = amount.Sub(delta)
	if err := u.write(ctx, accountId, token, amount, version); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (u *unit) Credit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error) {
	amount, version, err := u.read(ctx, accountId, token)
	if err != nil {
		return decimal.Zero, err
	}
	amount = amount.Add(delta)
	if err := u.write(ctx, accountId, token, amount, version); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (u *unit) OpenBalance(ctx context.Context, accountId, token string) error {
	if err := u.check(accountId, token); err != nil {
		return err
	}
	var exists bool
	if err := u.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = ?)`, accountId,
	).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return wallet.ErrWalletNotFound
	}
	_, err := u.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO balances (account_id, token) VALUES (?, ?)`, accountId, token,
	)
	return classify(err)
}

func (u *unit) AppendTransaction(ctx context.Context, tx wallet.Transaction) error {
	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.Id,
		tx.SenderAccountId,
		tx.RecipientAddress,
		tx.Token,
		tx.Amount.String(),
		tx.Memo,
		string(tx.Status),
		tx.SettlementRef,
		tx.CreatedAt.UnixNano(),
		tx.UpdatedAt.UnixNano(),
	)
	if resultCode(err) == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: duplicate transaction id %s", wallet.ErrInternal, tx.Id)
	}
	return classify(err)
}

func (u *unit) SetTransactionStatus(ctx context.Context, id string, from, to wallet.TransactionStatus, at time.Time) error {
	res, err := u.tx.ExecContext(ctx,
		`UPDATE transactions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), at.UnixNano(), id, string(from),
	)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify(err)
	} else if n == 1 {
		return nil
	}

	var current string
	err = u.tx.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.ErrTransactionNotFound
	}
	if err != nil {
		return classify(err)
	}
	return fmt.Errorf("%w: %s is %s", wallet.ErrStatusConflict, id, current)
}

var (
	_ wallet.Store = (*Store)(nil)
	_ wallet.Tx    = (*unit)(nil)
)
