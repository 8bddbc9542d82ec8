package api

import (
	"github.com/JhonesBR/go-wallet/internal/api/account"
	"github.com/JhonesBR/go-wallet/internal/api/middleware"
	"github.com/JhonesBR/go-wallet/internal/api/orders"
	"github.com/JhonesBR/go-wallet/internal/helper"
	"github.com/gofiber/fiber/v3"
)

type Dependencies struct {
	Wallet   account.Wallet
	Payments orders.Payments
	Accounts middleware.AccountFinder
}

func InitializeRoutes(app *fiber.App, deps Dependencies) {
	app.Get("/health", func(c fiber.Ctx) error {
		return helper.OK(c, "success", fiber.Map{"status": "ok"})
	})

	wallet := app.Group("/v1/wallet", middleware.Protected(deps.Accounts))
	account.InitializeRoutes(wallet, deps.Wallet)
	orders.InitializeRoutes(wallet, deps.Payments)
}
