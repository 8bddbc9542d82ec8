package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JhonesBR/go-wallet/internal/pricing"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const DefaultSettlementAddress = "0x1234567890abcdef1234567890abcdef12345678"

var ErrInvalidConfig = errors.New("config: invalid value")

type Config struct {
	Port string
	Env  string

	// Store selection: DatabaseURL wins over SQLitePath; neither means memory.
	DatabaseURL string
	SQLitePath  string

	KafkaBrokers []string
	KafkaTopic   string

	SettlementAddress string
	UnitPrices        map[pricing.Tier]pricing.UnitPrice
	TokenUSDPrices    map[string]decimal.Decimal
	EstimatedFee      string

	QuoteTTL            time.Duration
	PendingExpiry       time.Duration
	ReconcileInterval   time.Duration
	TransferMaxAttempts uint

	SeedAccounts []SeedAccount
}

// SeedAccount is an account created at boot, with its raw API key and opening balances.
type SeedAccount struct {
	Id       string
	Address  string
	APIKey   string
	Balances map[string]decimal.Decimal
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on system environment variables")
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any variable source.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	env := func(key, fallback string) string {
		if value, ok := lookup(key); ok {
			return value
		}
		return fallback
	}

	cfg := &Config{
		Port:              env("PORT", "8000"),
		Env:               env("ENV", "development"),
		DatabaseURL:       env("DATABASE_URL", ""),
		SQLitePath:        env("SQLITE_PATH", ""),
		KafkaBrokers:      splitList(env("KAFKA_BROKERS", "")),
		KafkaTopic:        env("KAFKA_TOPIC", "wallet.transactions"),
		SettlementAddress: env("SETTLEMENT_ADDRESS", DefaultSettlementAddress),
		EstimatedFee:      env("ESTIMATED_FEE", "0.001 ETH"),
	}

	var errs []error
	basic, err := parseDecimal("PRICE_BASIC_USDT", env("PRICE_BASIC_USDT", "20"))
	errs = append(errs, err)
	premium, err := parseDecimal("PRICE_PREMIUM_ETH", env("PRICE_PREMIUM_ETH", "0.01"))
	errs = append(errs, err)
	cfg.UnitPrices = map[pricing.Tier]pricing.UnitPrice{
		pricing.Basic:   {Currency: "USDT", Amount: basic},
		pricing.Premium: {Currency: "ETH", Amount: premium},
	}

	cfg.TokenUSDPrices, err = pricing.ParsePrices(env("TOKEN_USD_PRICES", "ETH:3000,USDT:1"))
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: TOKEN_USD_PRICES: %w", ErrInvalidConfig, err))
	}

	cfg.QuoteTTL, err = parseDuration("QUOTE_TTL", env("QUOTE_TTL", "15m"))
	errs = append(errs, err)
	cfg.PendingExpiry, err = parseDuration("PENDING_EXPIRY", env("PENDING_EXPIRY", "24h"))
	errs = append(errs, err)
	cfg.ReconcileInterval, err = parseDuration("RECONCILE_INTERVAL", env("RECONCILE_INTERVAL", "30s"))
	errs = append(errs, err)
	if err == nil && cfg.ReconcileInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: RECONCILE_INTERVAL must be positive", ErrInvalidConfig))
	}

	attempts, err := strconv.ParseUint(env("TRANSFER_MAX_ATTEMPTS", "5"), 10, 32)
	if err != nil || attempts == 0 {
		errs = append(errs, fmt.Errorf("%w: TRANSFER_MAX_ATTEMPTS must be a positive integer", ErrInvalidConfig))
	}
	cfg.TransferMaxAttempts = uint(attempts)

	cfg.SeedAccounts, err = ParseSeedAccounts(env("SEED_ACCOUNTS", ""))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseSeedAccounts reads "id:address:apikey:ETH=1.5|USDT=100;id2:..." entries.
// The balance part is optional.
func ParseSeedAccounts(raw string) ([]SeedAccount, error) {
	var seeds []SeedAccount
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("%w: SEED_ACCOUNTS entry %q", ErrInvalidConfig, entry)
		}
		seed := SeedAccount{
			Id:       strings.TrimSpace(parts[0]),
			Address:  strings.TrimSpace(parts[1]),
			APIKey:   strings.TrimSpace(parts[2]),
			Balances: make(map[string]decimal.Decimal),
		}
		if seed.Id == "" || seed.Address == "" {
			return nil, fmt.Errorf("%w: SEED_ACCOUNTS entry %q needs an id and an address", ErrInvalidConfig, entry)
		}
		if len(parts) == 4 {
			for _, pair := range strings.Split(parts[3], "|") {
				token, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
				if !ok {
					return nil, fmt.Errorf("%w: SEED_ACCOUNTS balance %q", ErrInvalidConfig, pair)
				}
				amount, err := decimal.NewFromString(strings.TrimSpace(value))
				if err != nil || amount.IsNegative() {
					return nil, fmt.Errorf("%w: SEED_ACCOUNTS balance %q", ErrInvalidConfig, pair)
				}
				seed.Balances[strings.TrimSpace(token)] = amount
			}
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func parseDecimal(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
	return d, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
