package orders

import (
	"time"
)

type CreateOrderSchema struct {
	MembershipType string `query:"membership_type" validate:"required"`
	DurationMonths int    `query:"duration_months"`
}

type OrderShowSchema struct {
	QuoteId        string    `json:"quote_id"`
	MembershipType string    `json:"membership_type"`
	DurationMonths int       `json:"duration_months"`
	Currency       string    `json:"currency"`
	Amount         string    `json:"amount"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type PayOrderSchema struct {
	Currency string `json:"currency" validate:"required"`
	Amount   string `json:"amount" validate:"required"`
}

type PayQuoteSchema struct {
	QuoteId string `json:"quote_id" validate:"required,uuid"`
}
