package wallet

import (
	"context"
	"errors"
	"time"
)

const DefaultReconcileBatch = 100

var errStillPending = errors.New("wallet: transaction still pending")

type ReconcileReport struct {
	Completed int
	Refunded  int
	Pending   int
}

// Reconcile is the completion step for pending transfers. A transfer whose
// recipient can now be credited is completed; one older than expiry is refunded
// to the sender and marked failed; anything else stays pending.
func (e *Engine) Reconcile(ctx context.Context, expiry time.Duration) (ReconcileReport, error) {
	var report ReconcileReport

	now := e.now().UTC()
	pending, err := e.store.ListPending(ctx, now, DefaultReconcileBatch)
	if err != nil {
		return report, err
	}

	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		expired := expiry > 0 && now.Sub(record.CreatedAt) >= expiry
		status, err := e.settle(ctx, record, expired)
		if err != nil {
			e.logger.Error("reconcile pending transaction failed", "tx_id", record.Id, "error", err)
			report.Pending++
			continue
		}
		switch status {
		case Completed:
			report.Completed++
		case Failed:
			report.Refunded++
		default:
			report.Pending++
		}
	}
	return report, nil
}

func (e *Engine) settle(ctx context.Context, record Transaction, expired bool) (TransactionStatus, error) {
	recipient, resolved, err := e.resolve(ctx, record.RecipientAddress)
	if err != nil {
		return Pending, err
	}

	keys := []BalanceKey{{AccountId: record.SenderAccountId, Token: record.Token}}
	if resolved {
		keys = append(keys, BalanceKey{AccountId: recipient.Id, Token: record.Token})
	}

	var status TransactionStatus
	err = e.retry(ctx, func() error {
		status = Pending
		at := e.now().UTC()
		return e.store.Atomically(ctx, keys, func(tx Tx) error {
			if resolved {
				_, err := tx.GetBalance(ctx, recipient.Id, record.Token)
				switch {
				case err == nil:
					if err := tx.SetTransactionStatus(ctx, record.Id, Pending, Completed, at); err != nil {
						return err
					}
					if _, err := tx.Credit(ctx, recipient.Id, record.Token, record.Amount); err != nil {
						return err
					}
					status = Completed
					return nil
				case !errors.Is(err, ErrBalanceNotFound):
					return err
				}
			}
			if !expired {
				return errStillPending
			}
			if err := tx.SetTransactionStatus(ctx, record.Id, Pending, Failed, at); err != nil {
				return err
			}
			if _, err := tx.Credit(ctx, record.SenderAccountId, record.Token, record.Amount); err != nil {
				return err
			}
			status = Failed
			return nil
		})
	})
	switch {
	case errors.Is(err, errStillPending):
		return Pending, nil
	case errors.Is(err, ErrStatusConflict):
		// Settled concurrently by another reconciler.
		return Pending, nil
	case err != nil:
		return Pending, err
	}

	record.Status = status
	e.logger.Info("pending transaction settled", "tx_id", record.Id, "status", string(status))
	if status == Completed {
		e.publish(ctx, newEvent(EventCompleted, record, e.now().UTC()))
	} else {
		e.publish(ctx, newEvent(EventFailed, record, e.now().UTC()))
	}
	return status, nil
}

// RunReconciler reconciles on every tick until ctx is cancelled.
func (e *Engine) RunReconciler(ctx context.Context, interval, expiry time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("reconciler started", "interval", interval.String(), "expiry", expiry.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			report, err := e.Reconcile(ctx, expiry)
			if err != nil && ctx.Err() == nil {
				e.logger.Error("reconcile run failed", "error", err)
				continue
			}
			if report.Completed > 0 || report.Refunded > 0 {
				e.logger.Info("reconcile run finished",
					"completed", report.Completed,
					"refunded", report.Refunded,
					"pending", report.Pending,
				)
			}
		}
	}
}
