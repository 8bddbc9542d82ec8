package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/JhonesBR/go-wallet/internal/api"
	"github.com/JhonesBR/go-wallet/internal/api/middleware"
	"github.com/JhonesBR/go-wallet/internal/config"
	"github.com/JhonesBR/go-wallet/internal/db"
	"github.com/JhonesBR/go-wallet/internal/events/kafka"
	"github.com/JhonesBR/go-wallet/internal/order"
	"github.com/JhonesBR/go-wallet/internal/pricing"
	"github.com/JhonesBR/go-wallet/internal/storage/memory"
	"github.com/JhonesBR/go-wallet/internal/storage/postgres"
	"github.com/JhonesBR/go-wallet/internal/storage/sqlite"
	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/gofiber/fiber/v3"
	"golang.org/x/sync/errgroup"
)

const settlementAccountId = "settlement"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher wallet.EventPublisher = wallet.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer p.Close()
		publisher = p
		logger.Info("publishing transaction events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	table := pricing.NewTable(cfg.UnitPrices, cfg.TokenUSDPrices)
	engine := wallet.NewEngine(store,
		wallet.WithLogger(logger),
		wallet.WithPublisher(publisher),
		wallet.WithValuer(table),
		wallet.WithMaxAttempts(cfg.TransferMaxAttempts),
		wallet.WithEstimatedFee(cfg.EstimatedFee),
	)
	defer engine.Close()
	if err := seed(ctx, engine, cfg, logger); err != nil {
		return err
	}
	payments := order.NewService(table, engine, cfg.SettlementAddress,
		order.WithQuoteTTL(cfg.QuoteTTL),
		order.WithLogger(logger),
	)

	app := fiber.New(fiber.Config{AppName: "go-wallet"})
	api.InitializeRoutes(app, api.Dependencies{
		Wallet:   engine,
		Payments: payments,
		Accounts: store,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "env", cfg.Env, "port", cfg.Port)
		return app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		return engine.RunReconciler(gctx, cfg.ReconcileInterval, cfg.PendingExpiry)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	return g.Wait()
}

// openStore picks PostgreSQL, then SQLite, then process memory.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (wallet.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := db.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres store")
		return postgres.New(pool), pool.Close, nil
	case cfg.SQLitePath != "":
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, func() { s.Close() }, nil
	}
	logger.Warn("no DATABASE_URL or SQLITE_PATH set, balances live in memory only")
	return memory.New(), func() {}, nil
}

// seed creates the settlement account and the configured accounts. Accounts
// that already exist are left untouched.
func seed(ctx context.Context, engine *wallet.Engine, cfg *config.Config, logger *slog.Logger) error {
	var currencies []string
	for _, unit := range cfg.UnitPrices {
		currencies = append(currencies, unit.Currency)
	}
	slices.Sort(currencies)
	currencies = slices.Compact(currencies)

	settlement := wallet.Account{Id: settlementAccountId, Address: cfg.SettlementAddress}
	if err := engine.Register(ctx, settlement, currencies...); err != nil && !errors.Is(err, wallet.ErrAccountExists) {
		return err
	}

	for _, s := range cfg.SeedAccounts {
		tokens := make([]string, 0, len(s.Balances))
		for token := range s.Balances {
			tokens = append(tokens, token)
		}
		account := wallet.Account{Id: s.Id, Address: s.Address}
		if s.APIKey != "" {
			account.APIKeyHash = middleware.HashAPIKey(s.APIKey)
		}

		err := engine.Register(ctx, account, tokens...)
		if errors.Is(err, wallet.ErrAccountExists) {
			logger.Info("seed account already exists", "account_id", s.Id)
			continue
		}
		if err != nil {
			return err
		}
		for token, amount := range s.Balances {
			if amount.IsZero() {
				continue
			}
			if _, err := engine.Deposit(ctx, s.Id, token, amount.String()); err != nil {
				return err
			}
		}
		logger.Info("seed account created", "account_id", s.Id, "address", s.Address)
	}
	return nil
}
