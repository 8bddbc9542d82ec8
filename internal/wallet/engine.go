package wallet

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxAttempts  = 5
	DefaultEstimatedFee = "0.001 ETH"

	DefaultPublishTimeout = 5 * time.Second
	eventBufferSize       = 1024

	// SystemSender is the sender id recorded for deposits.
	SystemSender = "system"
)

// Valuer converts a token amount into its display USD value.
type Valuer interface {
	USDValue(token string, amount decimal.Decimal) decimal.Decimal
}

type zeroValuer struct{}

func (zeroValuer) USDValue(string, decimal.Decimal) decimal.Decimal { return decimal.Zero }

// Engine executes transfers against a Store and answers wallet and ledger queries.
type Engine struct {
	store        Store
	referencer   SettlementReferencer
	publisher    EventPublisher
	valuer       Valuer
	logger       *slog.Logger
	now          func() time.Time
	maxAttempts  uint
	newBackOff   func() backoff.BackOff
	estimatedFee string

	publishTimeout time.Duration
	eventsMu       sync.RWMutex
	events         chan queuedEvent
	eventsClosed   bool
	eventsDone     chan struct{}
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithReferencer(r SettlementReferencer) Option {
	return func(e *Engine) { e.referencer = r }
}

func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithPublishTimeout bounds a single Publish call.
func WithPublishTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.publishTimeout = d
		}
	}
}

func WithValuer(v Valuer) Option {
	return func(e *Engine) { e.valuer = v }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxAttempts bounds how many times a conflicting unit of work is tried.
func WithMaxAttempts(n uint) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(e *Engine) { e.newBackOff = newBackOff }
}

func WithEstimatedFee(fee string) Option {
	return func(e *Engine) { e.estimatedFee = fee }
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		referencer:   PlaceholderReferencer{},
		publisher:    NopPublisher{},
		valuer:       zeroValuer{},
		logger:       slog.Default(),
		now:          time.Now,
		maxAttempts:  DefaultMaxAttempts,
		newBackOff:   defaultBackOff,
		estimatedFee: DefaultEstimatedFee,

		publishTimeout: DefaultPublishTimeout,
		events:         make(chan queuedEvent, eventBufferSize),
		eventsDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.dispatchEvents()
	return e
}

// Close stops accepting events and waits for queued ones to be published.
func (e *Engine) Close() {
	e.eventsMu.Lock()
	if !e.eventsClosed {
		e.eventsClosed = true
		close(e.events)
	}
	e.eventsMu.Unlock()
	<-e.eventsDone
}

func (e *Engine) Store() Store {
	return e.store
}

// Register creates an account with an empty balance row per token.
func (e *Engine) Register(ctx context.Context, account Account, tokens ...string) error {
	if strings.TrimSpace(account.Id) == "" {
		return ValidationError{Field: "account_id", Message: "required"}
	}
	if strings.TrimSpace(account.Address) == "" {
		return ValidationError{Field: "address", Message: "required"}
	}
	if err := e.store.CreateAccount(ctx, account); err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	keys := make([]BalanceKey, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, BalanceKey{AccountId: account.Id, Token: token})
	}
	return e.retry(ctx, func() error {
		return e.store.Atomically(ctx, keys, func(tx Tx) error {
			for _, token := range tokens {
				if err := tx.OpenBalance(ctx, account.Id, token); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (e *Engine) GetWalletInfo(ctx context.Context, accountId string) (WalletInfo, error) {
	var (
		account  Account
		balances []Balance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = e.store.GetAccount(gctx, accountId)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = e.store.ListBalances(gctx, accountId)
		return err
	})
	if err := g.Wait(); err != nil {
		return WalletInfo{}, err
	}

	for i := range balances {
		balances[i].USDValue = e.valuer.USDValue(balances[i].Token, balances[i].Amount)
	}
	return WalletInfo{Address: account.Address, Balances: balances}, nil
}
