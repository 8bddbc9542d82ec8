package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
)

// Store keeps the wallet in PostgreSQL. A unit of work is one transaction that
// row-locks its balance keys in order before running.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// classify maps PostgreSQL contention codes onto the wallet taxonomy.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", wallet.ErrTransientConflict, pgErr.Message)
	}
	return fmt.Errorf("%w: %w", wallet.ErrInternal, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (s *Store) CreateAccount(ctx context.Context, account wallet.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, address, api_key_hash) VALUES ($1, $2, NULLIF($3, ''))`,
		account.Id, account.Address, account.APIKeyHash,
	)
	if pgCode(err) == codeUniqueViolation {
		return wallet.ErrAccountExists
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) getAccount(ctx context.Context, where string, arg string) (wallet.Account, error) {
	var account wallet.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, address, COALESCE(api_key_hash, '') FROM accounts WHERE `+where+` = $1`, arg,
	).Scan(&account.Id, &account.Address, &account.APIKeyHash)
	if errors.Is(err, pgx.ErrNoRows) {
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
	err := s.pool.QueryRow(ctx,
		`SELECT amount FROM balances WHERE account_id = $1 AND token = $2`, accountId, token,
	).Scan(&balance.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
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
	rows, err := s.pool.Query(ctx,
		`SELECT token, amount FROM balances WHERE account_id = $1 ORDER BY token`, accountId,
	)
	if err != nil {
		return nil, classify(err)
	}
	balances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wallet.Balance, error) {
		b := wallet.Balance{AccountId: accountId}
		err := row.Scan(&b.Token, &b.Amount)
		return b, err
	})
	if err != nil {
		return nil, classify(err)
	}
	return balances, nil
}

const transactionColumns = `id, sender_id, recipient_address, token, amount, memo, status, tx_hash, created_at, updated_at`

func scanTransaction(row pgx.Row) (wallet.Transaction, error) {
	var (
		tx     wallet.Transaction
		status string
	)
	err := row.Scan(
		&tx.Id,
		&tx.SenderAccountId,
		&tx.RecipientAddress,
		&tx.Token,
		&tx.Amount,
		&tx.Memo,
		&status,
		&tx.SettlementRef,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	tx.Status = wallet.TransactionStatus(status)
	return tx, err
}

func (s *Store) GetTransaction(ctx context.Context, id string) (wallet.Transaction, error) {
	tx, err := scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return wallet.Transaction{}, wallet.ErrTransactionNotFound
	}
	if err != nil {
		return wallet.Transaction{}, classify(err)
	}
	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, query wallet.TransactionQuery) (wallet.TransactionPage, error) {
	const filter = `(sender_id = $1 OR recipient_address = $2) AND ($3 = '' OR token = $3)`

	var page wallet.TransactionPage
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE `+filter,
		query.AccountId, query.Address, query.Token,
	).Scan(&page.Total); err != nil {
		return page, classify(err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+filter+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $4 OFFSET $5`,
		query.AccountId, query.Address, query.Token, query.PageSize, query.Offset(),
	)
	if err != nil {
		return page, classify(err)
	}
	page.Transactions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (wallet.Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return page, classify(err)
	}
	return page, nil
}

func (s *Store) ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]wallet.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(wallet.Pending), createdBefore, limit,
	)
	if err != nil {
		return nil, classify(err)
	}
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (wallet.Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, classify(err)
	}
	return pending, nil
}

func (s *Store) Atomically(ctx context.Context, keys []wallet.BalanceKey, fn func(tx wallet.Tx) error) error {
	keys = wallet.SortKeys(keys)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	// Rows that do not exist yet lock nothing; OpenBalance inserts them with
	// ON CONFLICT so concurrent opens cannot collide.
	for _, k := range keys {
		if _, err := tx.Exec(ctx,
			`SELECT 1 FROM balances WHERE account_id = $1 AND token = $2 FOR UPDATE`,
			k.AccountId, k.Token,
		); err != nil {
			return classify(err)
		}
	}

	if err := fn(newUnit(tx, keys)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

type unit struct {
	tx     pgx.Tx
	locked map[wallet.BalanceKey]struct{}
}

func newUnit(tx pgx.Tx, keys []wallet.BalanceKey) *unit {
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

func (u *unit) GetBalance(ctx context.Context, accountId, token string) (decimal.Decimal, error) {
	if err := u.check(accountId, token); err != nil {
		return decimal.Zero, err
	}
	var amount decimal.Decimal
	err := u.tx.QueryRow(ctx,
		`SELECT amount FROM balances WHERE account_id = $1 AND token = $2`, accountId, token,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, wallet.ErrBalanceNotFound
	}
	if err != nil {
		return decimal.Zero, classify(err)
	}
	return amount, nil
}

func (u *unit) Debit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := u.check(accountId, token); err != nil {
		return decimal.Zero, err
	}
	var amount decimal.Decimal
	err := u.tx.QueryRow(ctx,
		`UPDATE balances SET amount = amount - $3, version = version + 1, updated_at = NOW()
		 WHERE account_id = $1 AND token = $2 AND amount >= $3
		 RETURNING amount`,
		accountId, token, delta,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := u.GetBalance(ctx, accountId, token)
		if err != nil {
			return decimal.Zero, err
		}
		return current, wallet.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, classify(err)
	}
	return amount, nil
}

func (u *unit) Credit(ctx context.Context, accountId, token string, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := u.check(accountId, token); err != nil {
		return decimal.Zero, err
	}
	var amount decimal.Decimal
	err := u.tx.QueryRow(ctx,
		`UPDATE balances SET amount = amount + $3, version = version + 1, updated_at = NOW()
		 WHERE account_id = $1 AND token = $2
		 RETURNING amount`,
		accountId, token, delta,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, wallet.ErrBalanceNotFound
	}
	if err != nil {
		return decimal.Zero, classify(err)
	}
	return amount, nil
}

func (u *unit) OpenBalance(ctx context.Context, accountId, token string) error {
	if err := u.check(accountId, token); err != nil {
		return err
	}
	_, err := u.tx.Exec(ctx,
		`INSERT INTO balances (account_id, token) VALUES ($1, $2) ON CONFLICT (account_id, token) DO NOTHING`,
		accountId, token,
	)
	if pgCode(err) == codeForeignKeyViolation {
		return wallet.ErrWalletNotFound
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

func (u *unit) AppendTransaction(ctx context.Context, tx wallet.Transaction) error {
	_, err := u.tx.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tx.Id,
		tx.SenderAccountId,
		tx.RecipientAddress,
		tx.Token,
		tx.Amount,
		tx.Memo,
		string(tx.Status),
		tx.SettlementRef,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%w: duplicate transaction id %s", wallet.ErrInternal, tx.Id)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

func (u *unit) SetTransactionStatus(ctx context.Context, id string, from, to wallet.TransactionStatus, at time.Time) error {
	tag, err := u.tx.Exec(ctx,
		`UPDATE transactions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := u.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return classify(err)
	}
	if !exists {
		return wallet.ErrTransactionNotFound
	}
	return wallet.ErrStatusConflict
}

var (
	_ wallet.Store = (*Store)(nil)
	_ wallet.Tx    = (*unit)(nil)
)
