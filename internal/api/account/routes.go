package account

import (
	"github.com/gofiber/fiber/v3"
)

func InitializeRoutes(router fiber.Router, w Wallet) {
	router.Get("/info", GetWalletInfoHandler(w))
	router.Post("/transfer", TransferHandler(w))
	router.Get("/transactions", GetTransactionsHandler(w))
}
