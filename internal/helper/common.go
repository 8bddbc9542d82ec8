package helper

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/JhonesBR/go-wallet/internal/wallet"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Envelope codes.
const (
	CodeOK            = 0
	CodeBusinessError = 3001
	CodeUnauthorized  = 3002
	CodeInvalidInput  = 3003
	CodeInternal      = 3004
)

type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

func OK[T any](c fiber.Ctx, message string, data T) error {
	return c.JSON(Response[T]{Code: CodeOK, Message: message, Data: &data})
}

func Fail(c fiber.Ctx, status, code int, message string) error {
	return c.Status(status).JSON(Response[any]{Code: code, Message: message})
}

// Error writes err as an envelope, choosing code and status from its kind.
// Internal details are logged, not returned.
func Error(c fiber.Ctx, err error) error {
	var validation validator.ValidationErrors
	if errors.As(err, &validation) {
		return Fail(c, fiber.StatusUnprocessableEntity, CodeInvalidInput, validation.Error())
	}

	switch wallet.KindOf(err) {
	case wallet.KindInvalidInput:
		return Fail(c, fiber.StatusBadRequest, CodeInvalidInput, err.Error())
	case wallet.KindUnauthorized:
		return Fail(c, fiber.StatusUnauthorized, CodeUnauthorized, err.Error())
	case wallet.KindNotFound:
		return Fail(c, fiber.StatusNotFound, CodeBusinessError, err.Error())
	case wallet.KindInsufficientBalance:
		return Fail(c, fiber.StatusPaymentRequired, CodeBusinessError, err.Error())
	case wallet.KindTransientConflict:
		return Fail(c, fiber.StatusServiceUnavailable, CodeInternal, "try again later")
	}
	slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return Fail(c, fiber.StatusInternalServerError, CodeInternal, "internal error")
}

type Page struct {
	Page  int
	Limit int
}

// GetPagination reads page and limit, falling back to page 1 of 20 and capping limit at 100.
func GetPagination(c fiber.Ctx) Page {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(wallet.DefaultPageSize)))
	if limit < 1 {
		limit = wallet.DefaultPageSize
	} else if limit > wallet.MaxPageSize {
		limit = wallet.MaxPageSize
	}

	return Page{Page: page, Limit: limit}
}

var validate = validator.New()

func ValidateInput(input any) error {
	return validate.Struct(input)
}
