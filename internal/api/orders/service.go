package orders

import (
	"github.com/JhonesBR/go-wallet/internal/api/middleware"
	"github.com/JhonesBR/go-wallet/internal/helper"
	"github.com/gofiber/fiber/v3"
)

func CreateOrderHandler(p Payments) fiber.Handler {
	return func(c fiber.Ctx) error {
		var query CreateOrderSchema
		if err := c.Bind().Query(&query); err != nil {
			return helper.Fail(c, fiber.StatusBadRequest, helper.CodeInvalidInput, "duration_months must be an integer")
		}
		if err := helper.ValidateInput(&query); err != nil {
			return helper.Error(c, err)
		}

		quote, err := p.CreateOrder(c, query.MembershipType, query.DurationMonths)
		if err != nil {
			return helper.Error(c, err)
		}
		return helper.OK(c, "Order created successfully", OrderShowSchema{
			QuoteId:        quote.Id,
			MembershipType: string(quote.Tier),
			DurationMonths: quote.DurationMonths,
			Currency:       quote.Currency,
			Amount:         quote.Amount.String(),
			ExpiresAt:      quote.ExpiresAt,
		})
	}
}

func PayOrderHandler(p Payments) fiber.Handler {
	return func(c fiber.Ctx) error {
		var body PayOrderSchema
		if err := c.Bind().Body(&body); err != nil {
			return helper.Fail(c, fiber.StatusBadRequest, helper.CodeInvalidInput, "malformed request body")
		}
		if err := helper.ValidateInput(&body); err != nil {
			return helper.Error(c, err)
		}

		receipt, err := p.PayOrder(c, middleware.AccountId(c), body.Currency, body.Amount)
		if err != nil {
			return helper.Error(c, err)
		}
		return helper.OK(c, "Payment for membership successful", receipt)
	}
}

func PayQuoteHandler(p Payments) fiber.Handler {
	return func(c fiber.Ctx) error {
		var body PayQuoteSchema
		if err := c.Bind().Body(&body); err != nil {
			return helper.Fail(c, fiber.StatusBadRequest, helper.CodeInvalidInput, "malformed request body")
		}
		if err := helper.ValidateInput(&body); err != nil {
			return helper.Error(c, err)
		}

		receipt, err := p.PayQuote(c, middleware.AccountId(c), body.QuoteId)
		if err != nil {
			return helper.Error(c, err)
		}
		return helper.OK(c, "Payment for membership successful", receipt)
	}
}
