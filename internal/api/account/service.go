package account

import (
	"strings"

	"github.com/JhonesBR/go-wallet/internal/api/middleware"
	"github.com/JhonesBR/go-wallet/internal/helper"
	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/gofiber/fiber/v3"
)

func GetWalletInfoHandler(w Wallet) fiber.Handler {
	return func(c fiber.Ctx) error {
		info, err := w.GetWalletInfo(c, middleware.AccountId(c))
		if err != nil {
			return helper.Error(c, err)
		}
		return helper.OK(c, "success", toWalletInfoSchema(info))
	}
}

func TransferHandler(w Wallet) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Parse transfer schema
		var body TransferSchema
		if err := c.Bind().Body(&body); err != nil {
			return helper.Fail(c, fiber.StatusBadRequest, helper.CodeInvalidInput, "malformed request body")
		}
		if err := helper.ValidateInput(&body); err != nil {
			return helper.Error(c, err)
		}

		receipt, err := w.Transfer(c, wallet.TransferRequest{
			SenderId:  middleware.AccountId(c),
			ToAddress: body.ToAddress,
			Token:     body.Token,
			Amount:    body.Amount,
			Memo:      body.Memo,
		})
		if err != nil {
			return helper.Error(c, err)
		}
		return helper.OK(c, "success", receipt)
	}
}

func GetTransactionsHandler(w Wallet) fiber.Handler {
	return func(c fiber.Ctx) error {
		pagination := helper.GetPagination(c)
		token := strings.TrimSpace(c.Query("token"))

		page, err := w.ListTransactions(c, middleware.AccountId(c), pagination.Page, pagination.Limit, token)
		if err != nil {
			return helper.Error(c, err)
		}
		return helper.OK(c, "success", TransactionListSchema{
			Page:         pagination.Page,
			Limit:        pagination.Limit,
			Total:        page.Total,
			Transactions: page.Transactions,
		})
	}
}
