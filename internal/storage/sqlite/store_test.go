package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JhonesBR/go-wallet/internal/storage/sqlite"
	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func newEngine(t *testing.T, opts ...wallet.Option) (*wallet.Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	e := wallet.NewEngine(store, opts...)
	t.Cleanup(e.Close)
	return e, store
}

func mustRegister(t *testing.T, e *wallet.Engine, id, address, token, amount string) {
	t.Helper()
	ctx := context.Background()
	if err := e.Register(ctx, wallet.Account{Id: id, Address: address, APIKeyHash: "hash-" + id}, token); err != nil {
		t.Fatalf("Register %s: %v", id, err)
	}
	if amount != "0" {
		if _, err := e.Deposit(ctx, id, token, amount); err != nil {
			t.Fatalf("Deposit %s: %v", id, err)
		}
	}
}

func amountOf(t *testing.T, s *sqlite.Store, id, token string) string {
	t.Helper()
	b, err := s.GetBalance(context.Background(), id, token)
	if err != nil {
		t.Fatalf("GetBalance %s: %v", id, err)
	}
	return b.Amount.String()
}

func TestTransfer(t *testing.T) {
	e, s := newEngine(t)
	mustRegister(t, e, "alice", "0xalice", "ETH", "1.5")
	mustRegister(t, e, "bob", "0xbob", "ETH", "0")

	memo := "rent"
	receipt, err := e.Transfer(context.Background(), wallet.TransferRequest{
		SenderId: "alice", ToAddress: "0xbob", Token: "ETH", Amount: "0.1", Memo: &memo,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if receipt.Status != wallet.Completed {
		t.Errorf("status: got %s", receipt.Status)
	}
	if got := amountOf(t, s, "alice", "ETH"); got != "1.4" {
		t.Errorf("alice: got %s, want 1.4", got)
	}
	if got := amountOf(t, s, "bob", "ETH"); got != "0.1" {
		t.Errorf("bob: got %s, want 0.1", got)
	}

	tx, err := s.GetTransaction(context.Background(), receipt.TxId)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Memo == nil || *tx.Memo != "rent" || tx.Status != wallet.Completed || !tx.Amount.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("unexpected transaction %+v", tx)
	}

	_, err = e.Transfer(context.Background(), wallet.TransferRequest{
		SenderId: "alice", ToAddress: "0xbob", Token: "ETH", Amount: "5",
	})
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Errorf("overdraw: got %v", err)
	}
	if got := amountOf(t, s, "alice", "ETH"); got != "1.4" {
		t.Errorf("alice after rejection: got %s, want 1.4", got)
	}

	acc, err := s.GetAccountByAPIKeyHash(context.Background(), "hash-bob")
	if err != nil || acc.Id != "bob" {
		t.Errorf("by key hash: got %+v, %v", acc, err)
	}
}

func TestPendingAndRefund(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e, s := newEngine(t, wallet.WithClock(clock))
	mustRegister(t, e, "alice", "0xalice", "USDT", "50")

	receipt, err := e.Transfer(context.Background(), wallet.TransferRequest{
		SenderId: "alice", ToAddress: "0xexternal", Token: "USDT", Amount: "20",
	})
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Status != wallet.Pending {
		t.Fatalf("status: got %s, want pending", receipt.Status)
	}

	now = now.Add(48 * time.Hour)
	report, err := e.Reconcile(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if report.Refunded != 1 {
		t.Fatalf("got %+v", report)
	}
	if got := amountOf(t, s, "alice", "USDT"); got != "50" {
		t.Errorf("alice after refund: got %s, want 50", got)
	}
	tx, err := s.GetTransaction(context.Background(), receipt.TxId)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != wallet.Failed || !tx.UpdatedAt.Equal(now) {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestPagination(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	e, _ := newEngine(t, wallet.WithClock(clock))
	mustRegister(t, e, "alice", "0xalice", "ETH", "10")
	mustRegister(t, e, "carol", "0xcarol", "ETH", "0")

	var ids []string
	for _, amount := range []string{"1", "2", "3"} {
		r, err := e.Transfer(context.Background(), wallet.TransferRequest{
			SenderId: "alice", ToAddress: "0xcarol", Token: "ETH", Amount: amount,
		})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, r.TxId)
	}

	first, err := e.ListTransactions(context.Background(), "carol", 1, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.ListTransactions(context.Background(), "carol", 2, 2, "ETH")
	if err != nil {
		t.Fatal(err)
	}
	if first.Total != 3 || len(first.Transactions) != 2 || len(second.Transactions) != 1 {
		t.Fatalf("got %d/%d items, total %d", len(first.Transactions), len(second.Transactions), first.Total)
	}
	if first.Transactions[0].Id != ids[2] || second.Transactions[0].Id != ids[0] {
		t.Errorf("not newest first: %s ... %s", first.Transactions[0].Id, second.Transactions[0].Id)
	}

	none, err := e.ListTransactions(context.Background(), "carol", 1, 2, "USDT")
	if err != nil {
		t.Fatal(err)
	}
	if none.Total != 0 || len(none.Transactions) != 0 {
		t.Errorf("token filter: got %+v", none)
	}
}

func TestConcurrentDebits(t *testing.T) {
	const n = 10
	e, s := newEngine(t)
	mustRegister(t, e, "alice", "0xalice", "USDT", "29")
	mustRegister(t, e, "bob", "0xbob", "USDT", "0")

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := e.Transfer(context.Background(), wallet.TransferRequest{
				SenderId: "alice", ToAddress: "0xbob", Token: "USDT", Amount: "3",
			})
			if err != nil && !errors.Is(err, wallet.ErrInsufficientBalance) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	alice := decimal.RequireFromString(amountOf(t, s, "alice", "USDT"))
	bob := decimal.RequireFromString(amountOf(t, s, "bob", "USDT"))
	if alice.IsNegative() || !alice.Add(bob).Equal(decimal.NewFromInt(29)) {
		t.Errorf("alice %s, bob %s", alice, bob)
	}
	if !alice.Equal(decimal.NewFromInt(2)) {
		t.Errorf("alice: got %s, want 2", alice)
	}
}

func TestStatusCompareAndSwap(t *testing.T) {
	_, s := newEngine(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	err := s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.AppendTransaction(ctx, wallet.Transaction{
			Id: "t1", SenderAccountId: "a", RecipientAddress: "0xb", Token: "ETH",
			Amount: decimal.NewFromInt(1), Status: wallet.Pending, CreatedAt: at, UpdatedAt: at,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.SetTransactionStatus(ctx, "t1", wallet.Pending, wallet.Completed, at)
	}); err != nil {
		t.Fatal(err)
	}
	err = s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.SetTransactionStatus(ctx, "t1", wallet.Pending, wallet.Failed, at)
	})
	if !errors.Is(err, wallet.ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}
	err = s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.SetTransactionStatus(ctx, "nope", wallet.Pending, wallet.Failed, at)
	})
	if !errors.Is(err, wallet.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}
