package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/JhonesBR/go-wallet/internal/pricing"
	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/google/uuid"
)

const (
	DefaultQuoteTTL = 15 * time.Minute
	PaymentMemo     = "Payment for Discord membership"
)

var (
	ErrQuoteNotFound = fmt.Errorf("%w: quote", wallet.ErrNotFound)
	ErrQuoteExpired  = fmt.Errorf("%w: quote expired", wallet.ErrInvalidInput)
)

type Quoter interface {
	Quote(tier pricing.Tier, durationMonths int) (pricing.PriceQuote, error)
}

type Transferer interface {
	Transfer(ctx context.Context, req wallet.TransferRequest) (wallet.Receipt, error)
}

// Quote is an issued price offer. Only PayQuote looks it up again.
type Quote struct {
	Id             string       `json:"quote_id"`
	Tier           pricing.Tier `json:"membership_type"`
	DurationMonths int          `json:"duration_months"`
	pricing.PriceQuote
	ExpiresAt time.Time `json:"expires_at"`
}

// Service turns membership purchases into transfers to the settlement address.
type Service struct {
	quoter            Quoter
	transfers         Transferer
	settlementAddress string
	quoteTTL          time.Duration
	now               func() time.Time
	logger            *slog.Logger

	mu     sync.Mutex
	quotes map[string]Quote
}

type Option func(*Service)

func WithQuoteTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.quoteTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(quoter Quoter, transfers Transferer, settlementAddress string, opts ...Option) *Service {
	s := &Service{
		quoter:            quoter,
		transfers:         transfers,
		settlementAddress: strings.TrimSpace(settlementAddress),
		quoteTTL:          DefaultQuoteTTL,
		now:               time.Now,
		logger:            slog.Default(),
		quotes:            make(map[string]Quote),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) SettlementAddress() string {
	return s.settlementAddress
}

// CreateOrder prices a membership purchase. The quote is remembered until it
// expires so it can later be paid with PayQuote.
func (s *Service) CreateOrder(_ context.Context, tier string, durationMonths int) (Quote, error) {
	parsed, err := pricing.ParseTier(tier)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", wallet.ErrInvalidInput, err)
	}
	price, err := s.quoter.Quote(parsed, durationMonths)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %w", wallet.ErrInvalidInput, err)
	}

	now := s.now()
	quote := Quote{
		Id:             uuid.NewString(),
		Tier:           parsed,
		DurationMonths: durationMonths,
		PriceQuote:     price,
		ExpiresAt:      now.Add(s.quoteTTL).UTC(),
	}

	s.mu.Lock()
	for id, q := range s.quotes {
		if !now.Before(q.ExpiresAt) {
			delete(s.quotes, id)
		}
	}
	s.quotes[quote.Id] = quote
	s.mu.Unlock()

	return quote, nil
}

// PayOrder transfers amount of currency from the payer to the settlement
// address. It does not check the payment against any quote.
func (s *Service) PayOrder(ctx context.Context, payerId, currency, amount string) (wallet.Receipt, error) {
	memo := PaymentMemo
	return s.transfers.Transfer(ctx, wallet.TransferRequest{
		SenderId:  payerId,
		ToAddress: s.settlementAddress,
		Token:     currency,
		Amount:    amount,
		Memo:      &memo,
	})
}

// PayQuote pays exactly what quoteId was issued for. The quote is consumed once
// the transfer is recorded and handed back if the transfer is rejected.
func (s *Service) PayQuote(ctx context.Context, payerId, quoteId string) (wallet.Receipt, error) {
	quote, err := s.claim(quoteId)
	if err != nil {
		return wallet.Receipt{}, err
	}

	receipt, err := s.PayOrder(ctx, payerId, quote.Currency, quote.Amount.String())
	if err != nil {
		s.release(quote)
		return wallet.Receipt{}, err
	}

	s.logger.Info("quote paid", "quote_id", quote.Id, "tx_id", receipt.TxId, "status", string(receipt.Status))
	return receipt, nil
}

func (s *Service) claim(quoteId string) (Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quote, ok := s.quotes[quoteId]
	if !ok {
		return Quote{}, ErrQuoteNotFound
	}
	delete(s.quotes, quoteId)
	if !s.now().Before(quote.ExpiresAt) {
		return Quote{}, ErrQuoteExpired
	}
	return quote, nil
}

func (s *Service) release(quote Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Before(quote.ExpiresAt) {
		s.quotes[quote.Id] = quote
	}
}
