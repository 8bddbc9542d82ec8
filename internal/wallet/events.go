package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventRecorded  EventType = "transaction.recorded"
	EventCompleted EventType = "transaction.completed"
	EventFailed    EventType = "transaction.failed"
)

type TransactionEvent struct {
	Type             EventType         `json:"type"`
	TransactionId    string            `json:"transaction_id"`
	SenderAccountId  string            `json:"sender_id"`
	RecipientAddress string            `json:"recipient_address"`
	Token            string            `json:"token"`
	Amount           decimal.Decimal   `json:"amount"`
	Status           TransactionStatus `json:"status"`
	OccurredAt       time.Time         `json:"occurred_at"`
}

func newEvent(typ EventType, tx Transaction, at time.Time) TransactionEvent {
	return TransactionEvent{
		Type:             typ,
		TransactionId:    tx.Id,
		SenderAccountId:  tx.SenderAccountId,
		RecipientAddress: tx.RecipientAddress,
		Token:            tx.Token,
		Amount:           tx.Amount,
		Status:           tx.Status,
		OccurredAt:       at,
	}
}

// EventPublisher receives transaction events after their unit of work has
// committed. Publishing is best effort, happens off the request path and never
// affects the transfer result.
type EventPublisher interface {
	Publish(ctx context.Context, event TransactionEvent) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TransactionEvent) error { return nil }

type queuedEvent struct {
	ctx   context.Context
	event TransactionEvent
}

// publish queues an event without waiting on the publisher. The unit behind
// the event is already committed, so a full buffer drops the event.
func (e *Engine) publish(ctx context.Context, event TransactionEvent) {
	e.eventsMu.RLock()
	defer e.eventsMu.RUnlock()

	if !e.eventsClosed {
		select {
		case e.events <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
			return
		default:
		}
	}
	e.logger.Warn("transaction event dropped",
		"tx_id", event.TransactionId,
		"type", string(event.Type),
	)
}

// dispatchEvents publishes queued events one at a time, in commit order.
func (e *Engine) dispatchEvents() {
	defer close(e.eventsDone)

	for q := range e.events {
		ctx, cancel := context.WithTimeout(q.ctx, e.publishTimeout)
		err := e.publisher.Publish(ctx, q.event)
		cancel()
		if err != nil {
			e.logger.Error("publish transaction event failed",
				"error", err,
				"tx_id", q.event.TransactionId,
				"type", string(q.event.Type),
			)
		}
	}
}
