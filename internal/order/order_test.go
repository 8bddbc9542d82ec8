package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JhonesBR/go-wallet/internal/order"
	"github.com/JhonesBR/go-wallet/internal/pricing"
	"github.com/JhonesBR/go-wallet/internal/wallet"
)

const settlement = "0x1234567890abcdef1234567890abcdef12345678"

type recordingTransferer struct {
	requests []wallet.TransferRequest
	err      error
}

func (r *recordingTransferer) Transfer(_ context.Context, req wallet.TransferRequest) (wallet.Receipt, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return wallet.Receipt{}, r.err
	}
	return wallet.Receipt{TxId: "tx-1", Status: wallet.Completed}, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newService(tr order.Transferer, c *clock) *order.Service {
	return order.NewService(
		pricing.NewTable(nil, nil),
		tr,
		settlement,
		order.WithClock(c.Now),
		order.WithQuoteTTL(time.Minute),
	)
}

func TestCreateOrder(t *testing.T) {
	svc := newService(&recordingTransferer{}, &clock{now: time.Now()})

	quote, err := svc.CreateOrder(context.Background(), "basic", 3)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if quote.Currency != "USDT" || quote.Amount.String() != "60" {
		t.Errorf("got %s %s, want 60 USDT", quote.Amount, quote.Currency)
	}
	if quote.Id == "" {
		t.Error("expected quote id")
	}

	if _, err := svc.CreateOrder(context.Background(), "platinum", 1); !errors.Is(err, pricing.ErrInvalidMembershipTier) {
		t.Errorf("expected ErrInvalidMembershipTier, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), "premium", 0); !errors.Is(err, pricing.ErrInvalidDuration) {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := svc.CreateOrder(context.Background(), "premium", 0); wallet.KindOf(err) != wallet.KindInvalidInput {
		t.Errorf("expected invalid input kind, got %v", wallet.KindOf(err))
	}
}

func TestPayOrderTransfersToSettlementAddress(t *testing.T) {
	tr := &recordingTransferer{}
	svc := newService(tr, &clock{now: time.Now()})

	receipt, err := svc.PayOrder(context.Background(), "acc-1", "USDT", "20.00")
	if err != nil {
		t.Fatalf("PayOrder: %v", err)
	}
	if receipt.TxId != "tx-1" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
	if len(tr.requests) != 1 {
		t.Fatalf("expected one transfer, got %d", len(tr.requests))
	}
	req := tr.requests[0]
	if req.SenderId != "acc-1" || req.ToAddress != settlement || req.Token != "USDT" || req.Amount != "20.00" {
		t.Errorf("unexpected transfer request %+v", req)
	}
	if req.Memo == nil || *req.Memo != "Payment for Discord membership" {
		t.Errorf("expected payment memo, got %v", req.Memo)
	}
}

func TestPayQuote(t *testing.T) {
	tr := &recordingTransferer{}
	c := &clock{now: time.Now()}
	svc := newService(tr, c)

	quote, err := svc.CreateOrder(context.Background(), "premium", 2)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if _, err := svc.PayQuote(context.Background(), "acc-1", quote.Id); err != nil {
		t.Fatalf("PayQuote: %v", err)
	}
	if got := tr.requests[0]; got.Token != "ETH" || got.Amount != "0.02" {
		t.Errorf("quote paid with %s %s, want 0.02 ETH", got.Amount, got.Token)
	}

	if _, err := svc.PayQuote(context.Background(), "acc-1", quote.Id); !errors.Is(err, order.ErrQuoteNotFound) {
		t.Errorf("second payment: expected ErrQuoteNotFound, got %v", err)
	}
}

func TestPayQuoteExpired(t *testing.T) {
	tr := &recordingTransferer{}
	c := &clock{now: time.Now()}
	svc := newService(tr, c)

	quote, err := svc.CreateOrder(context.Background(), "basic", 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	c.now = c.now.Add(2 * time.Minute)

	if _, err := svc.PayQuote(context.Background(), "acc-1", quote.Id); !errors.Is(err, order.ErrQuoteExpired) {
		t.Errorf("expected ErrQuoteExpired, got %v", err)
	}
	if len(tr.requests) != 0 {
		t.Errorf("expired quote must not transfer, got %d requests", len(tr.requests))
	}
}

func TestPayQuoteReleasedOnRejectedTransfer(t *testing.T) {
	tr := &recordingTransferer{err: wallet.ErrInsufficientBalance}
	svc := newService(tr, &clock{now: time.Now()})

	quote, err := svc.CreateOrder(context.Background(), "basic", 1)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := svc.PayQuote(context.Background(), "acc-1", quote.Id); !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	tr.err = nil
	if _, err := svc.PayQuote(context.Background(), "acc-1", quote.Id); err != nil {
		t.Errorf("quote should be payable after a rejected transfer: %v", err)
	}
}
