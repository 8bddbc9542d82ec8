package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/shopspring/decimal"
)

func seed(t *testing.T, s *Store, id, address string, balances map[string]string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateAccount(ctx, wallet.Account{Id: id, Address: address}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	keys := make([]wallet.BalanceKey, 0, len(balances))
	for token := range balances {
		keys = append(keys, wallet.BalanceKey{AccountId: id, Token: token})
	}
	err := s.Atomically(ctx, keys, func(tx wallet.Tx) error {
		for token, amount := range balances {
			if err := tx.OpenBalance(ctx, id, token); err != nil {
				return err
			}
			if _, err := tx.Credit(ctx, id, token, decimal.RequireFromString(amount)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed balances: %v", err)
	}
}

func TestAtomicallyDiscardsWritesOnError(t *testing.T) {
	s := New()
	seed(t, s, "a", "0xa", map[string]string{"ETH": "1"})
	seed(t, s, "b", "0xb", map[string]string{"ETH": "1"})

	ctx := context.Background()
	keys := []wallet.BalanceKey{{AccountId: "a", Token: "ETH"}, {AccountId: "b", Token: "ETH"}}
	boom := errors.New("boom")
	err := s.Atomically(ctx, keys, func(tx wallet.Tx) error {
		if _, err := tx.Debit(ctx, "a", "ETH", decimal.NewFromInt(1)); err != nil {
			return err
		}
		if _, err := tx.Credit(ctx, "b", "ETH", decimal.NewFromInt(1)); err != nil {
			return err
		}
		if err := tx.AppendTransaction(ctx, wallet.Transaction{Id: "t1", Status: wallet.Completed}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	for _, id := range []string{"a", "b"} {
		b, err := s.GetBalance(ctx, id, "ETH")
		if err != nil {
			t.Fatal(err)
		}
		if !b.Amount.Equal(decimal.NewFromInt(1)) {
			t.Errorf("%s: got %s, want 1", id, b.Amount)
		}
	}
	if _, err := s.GetTransaction(ctx, "t1"); !errors.Is(err, wallet.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestUnitReadsItsOwnWrites(t *testing.T) {
	s := New()
	seed(t, s, "a", "0xa", map[string]string{"USDT": "10"})

	ctx := context.Background()
	keys := []wallet.BalanceKey{{AccountId: "a", Token: "USDT"}}
	err := s.Atomically(ctx, keys, func(tx wallet.Tx) error {
		if _, err := tx.Debit(ctx, "a", "USDT", decimal.NewFromInt(7)); err != nil {
			return err
		}
		// 3 left, so a second debit of 7 must fail
		if _, err := tx.Debit(ctx, "a", "USDT", decimal.NewFromInt(7)); !errors.Is(err, wallet.ErrInsufficientBalance) {
			t.Errorf("expected ErrInsufficientBalance, got %v", err)
		}
		got, err := tx.GetBalance(ctx, "a", "USDT")
		if err != nil {
			return err
		}
		if !got.Equal(decimal.NewFromInt(3)) {
			t.Errorf("staged balance: got %s, want 3", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUnitRejectsUndeclaredKeys(t *testing.T) {
	s := New()
	seed(t, s, "a", "0xa", map[string]string{"ETH": "1", "USDT": "1"})

	ctx := context.Background()
	err := s.Atomically(ctx, []wallet.BalanceKey{{AccountId: "a", Token: "ETH"}}, func(tx wallet.Tx) error {
		_, err := tx.Credit(ctx, "a", "USDT", decimal.NewFromInt(1))
		return err
	})
	if !errors.Is(err, wallet.ErrInternal) {
		t.Errorf("expected ErrInternal, got %v", err)
	}
}

func TestCreditMissingRow(t *testing.T) {
	s := New()
	seed(t, s, "a", "0xa", nil)

	ctx := context.Background()
	err := s.Atomically(ctx, []wallet.BalanceKey{{AccountId: "a", Token: "ETH"}}, func(tx wallet.Tx) error {
		_, err := tx.Credit(ctx, "a", "ETH", decimal.NewFromInt(1))
		return err
	})
	if !errors.Is(err, wallet.ErrBalanceNotFound) {
		t.Errorf("expected ErrBalanceNotFound, got %v", err)
	}
}

func TestOpenBalanceUnknownAccount(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.Atomically(ctx, []wallet.BalanceKey{{AccountId: "ghost", Token: "ETH"}}, func(tx wallet.Tx) error {
		return tx.OpenBalance(ctx, "ghost", "ETH")
	})
	if !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestSetTransactionStatusIsCompareAndSwap(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.AppendTransaction(ctx, wallet.Transaction{Id: "t1", Status: wallet.Pending, CreatedAt: at})
	}); err != nil {
		t.Fatal(err)
	}

	later := at.Add(time.Minute)
	if err := s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.SetTransactionStatus(ctx, "t1", wallet.Pending, wallet.Completed, later)
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	err := s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.SetTransactionStatus(ctx, "t1", wallet.Pending, wallet.Failed, later)
	})
	if !errors.Is(err, wallet.ErrStatusConflict) {
		t.Errorf("expected ErrStatusConflict, got %v", err)
	}

	got, err := s.GetTransaction(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != wallet.Completed || !got.UpdatedAt.Equal(later) {
		t.Errorf("unexpected transaction %+v", got)
	}

	err = s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		return tx.SetTransactionStatus(ctx, "missing", wallet.Pending, wallet.Failed, later)
	})
	if !errors.Is(err, wallet.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestListPendingOldestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	records := []wallet.Transaction{
		{Id: "new", Status: wallet.Pending, CreatedAt: base.Add(2 * time.Hour)},
		{Id: "old", Status: wallet.Pending, CreatedAt: base},
		{Id: "done", Status: wallet.Completed, CreatedAt: base.Add(time.Minute)},
		{Id: "future", Status: wallet.Pending, CreatedAt: base.Add(10 * time.Hour)},
	}
	if err := s.Atomically(ctx, nil, func(tx wallet.Tx) error {
		for _, r := range records {
			if err := tx.AppendTransaction(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListPending(ctx, base.Add(5*time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Id != "old" || got[1].Id != "new" {
		t.Errorf("unexpected pending list %+v", got)
	}

	limited, err := s.ListPending(ctx, base.Add(5*time.Hour), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].Id != "old" {
		t.Errorf("unexpected limited list %+v", limited)
	}
}

func TestAtomicallyHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Atomically(ctx, nil, func(wallet.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("got err=%v called=%v", err, called)
	}
}

func TestCreateAccountRejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.CreateAccount(ctx, wallet.Account{Id: "a", Address: "0xa", APIKeyHash: "h"}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAccount(ctx, wallet.Account{Id: "a", Address: "0xz"}); !errors.Is(err, wallet.ErrAccountExists) {
		t.Errorf("duplicate id: got %v", err)
	}
	if err := s.CreateAccount(ctx, wallet.Account{Id: "b", Address: "0xa"}); !errors.Is(err, wallet.ErrAccountExists) {
		t.Errorf("duplicate address: got %v", err)
	}

	acc, err := s.GetAccountByAPIKeyHash(ctx, "h")
	if err != nil || acc.Id != "a" {
		t.Errorf("by key hash: got %+v, %v", acc, err)
	}
	if _, err := s.GetAccountByAddress(ctx, "0xnone"); !errors.Is(err, wallet.ErrWalletNotFound) {
		t.Errorf("expected ErrWalletNotFound, got %v", err)
	}
}
