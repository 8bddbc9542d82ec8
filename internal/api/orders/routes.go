package orders

import (
	"github.com/gofiber/fiber/v3"
)

func InitializeRoutes(router fiber.Router, p Payments) {
	router.Post("/create-order", CreateOrderHandler(p))
	router.Post("/pay", PayOrderHandler(p))
	router.Post("/pay-quote", PayQuoteHandler(p))
}
