package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/JhonesBR/go-wallet/internal/helper"
	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/gofiber/fiber/v3"
)

const accountIdKey = "account_id"

type AccountFinder interface {
	GetAccountByAPIKeyHash(ctx context.Context, keyHash string) (wallet.Account, error)
}

// HashAPIKey is the form API keys are stored and looked up in.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Protected resolves the caller's API key to an account before any handler runs.
// The key comes from "Authorization: Bearer <key>" or, failing that, the
// accessToken query parameter.
func Protected(accounts AccountFinder) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Query("accessToken")
		if header := c.Get(fiber.HeaderAuthorization); header != "" {
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				return helper.Fail(c, fiber.StatusUnauthorized, helper.CodeUnauthorized, "invalid authorization header")
			}
			key = strings.TrimSpace(token)
		}
		if key == "" {
			return helper.Fail(c, fiber.StatusUnauthorized, helper.CodeUnauthorized, "access token is required")
		}

		account, err := accounts.GetAccountByAPIKeyHash(c, HashAPIKey(key))
		if err != nil {
			if wallet.IsNotFound(err) {
				return helper.Fail(c, fiber.StatusUnauthorized, helper.CodeUnauthorized, "invalid access token")
			}
			return helper.Error(c, err)
		}

		c.Locals(accountIdKey, account.Id)
		return c.Next()
	}
}

// AccountId returns the account resolved by Protected.
func AccountId(c fiber.Ctx) string {
	id, _ := c.Locals(accountIdKey).(string)
	return id
}
