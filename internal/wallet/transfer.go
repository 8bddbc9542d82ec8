package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmountScale is the finest unit an amount may carry (wei for ETH).
const MaxAmountScale = 18

// maxIntegerDigits keeps exponent notation from producing huge balances.
const maxIntegerDigits = 40

// ParseAmount parses a decimal string that must be strictly positive and carry
// at most MaxAmountScale decimal places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	// Checked before anything renders the amount.
	if amount.Exponent() < -MaxAmountScale {
		return decimal.Zero, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, MaxAmountScale)
	}
	if int64(amount.NumDigits())+int64(amount.Exponent()) > maxIntegerDigits {
		return decimal.Zero, fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, maxIntegerDigits)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return amount, nil
}

// Transfer debits the sender and, when the address belongs to a known account
// holding the token, credits the recipient in the same unit of work. Otherwise
// the transaction is recorded as pending with the funds held back from the sender.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return Receipt{}, err
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return Receipt{}, ValidationError{Field: "token", Message: "required"}
	}
	toAddress := strings.TrimSpace(req.ToAddress)
	if toAddress == "" {
		return Receipt{}, ValidationError{Field: "to_address", Message: "required"}
	}

	sender, err := e.store.GetAccount(ctx, req.SenderId)
	if err != nil {
		return Receipt{}, err
	}
	if _, err := e.store.GetBalance(ctx, sender.Id, token); err != nil {
		return Receipt{}, err
	}

	// Resolved before any lock is taken.
	recipient, resolved, err := e.resolve(ctx, toAddress)
	if err != nil {
		return Receipt{}, err
	}

	keys := []BalanceKey{{AccountId: sender.Id, Token: token}}
	if resolved {
		keys = append(keys, BalanceKey{AccountId: recipient.Id, Token: token})
	}

	now := e.now().UTC()
	record := Transaction{
		Id:               uuid.NewString(),
		SenderAccountId:  sender.Id,
		RecipientAddress: toAddress,
		Token:            token,
		Amount:           amount,
		Memo:             req.Memo,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = e.retry(ctx, func() error {
		record.Status = Pending
		return e.store.Atomically(ctx, keys, func(tx Tx) error {
			if _, err := tx.Debit(ctx, sender.Id, token, amount); err != nil {
				return err
			}
			if resolved {
				_, err := tx.Credit(ctx, recipient.Id, token, amount)
				switch {
				case err == nil:
					record.Status = Completed
				case errors.Is(err, ErrBalanceNotFound):
					e.logger.Warn("recipient has no balance for token, leaving transfer pending",
						"tx_id", record.Id,
						"recipient_id", recipient.Id,
						"token", token,
					)
				default:
					return err
				}
			}

			ref, err := e.referencer.Reference(ctx, record)
			if err != nil {
				return fmt.Errorf("%w: settlement reference: %w", ErrInternal, err)
			}
			record.SettlementRef = ref
			return tx.AppendTransaction(ctx, record)
		})
	})
	if err != nil {
		e.logger.Info("transfer rejected",
			"sender_id", sender.Id,
			"token", token,
			"amount", amount.String(),
			"kind", KindOf(err).String(),
			"error", err,
		)
		return Receipt{}, err
	}

	e.logger.Info("transfer recorded",
		"tx_id", record.Id,
		"sender_id", sender.Id,
		"token", token,
		"amount", amount.String(),
		"status", string(record.Status),
	)
	e.publish(ctx, newEvent(EventRecorded, record, now))

	return Receipt{
		TxId:         record.Id,
		TxHash:       record.SettlementRef,
		Status:       record.Status,
		EstimatedFee: e.estimatedFee,
	}, nil
}

// Deposit credits an account from outside the ledger, opening the balance row
// if needed, and records it as a completed transaction from SystemSender.
func (e *Engine) Deposit(ctx context.Context, accountId, token, rawAmount string) (Receipt, error) {
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return Receipt{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Receipt{}, ValidationError{Field: "token", Message: "required"}
	}
	account, err := e.store.GetAccount(ctx, accountId)
	if err != nil {
		return Receipt{}, err
	}

	now := e.now().UTC()
	record := Transaction{
		Id:               uuid.NewString(),
		SenderAccountId:  SystemSender,
		RecipientAddress: account.Address,
		Token:            token,
		Amount:           amount,
		Status:           Completed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	keys := []BalanceKey{{AccountId: account.Id, Token: token}}
	err = e.retry(ctx, func() error {
		return e.store.Atomically(ctx, keys, func(tx Tx) error {
			if err := tx.OpenBalance(ctx, account.Id, token); err != nil {
				return err
			}
			if _, err := tx.Credit(ctx, account.Id, token, amount); err != nil {
				return err
			}
			ref, err := e.referencer.Reference(ctx, record)
			if err != nil {
				return fmt.Errorf("%w: settlement reference: %w", ErrInternal, err)
			}
			record.SettlementRef = ref
			return tx.AppendTransaction(ctx, record)
		})
	})
	if err != nil {
		return Receipt{}, err
	}

	e.logger.Info("deposit recorded", "tx_id", record.Id, "account_id", account.Id, "token", token, "amount", amount.String())
	e.publish(ctx, newEvent(EventRecorded, record, now))

	return Receipt{TxId: record.Id, TxHash: record.SettlementRef, Status: record.Status, EstimatedFee: e.estimatedFee}, nil
}

func (e *Engine) resolve(ctx context.Context, address string) (Account, bool, error) {
	account, err := e.store.GetAccountByAddress(ctx, address)
	if err != nil {
		if IsNotFound(err) {
			return Account{}, false, nil
		}
		return Account{}, false, err
	}
	return account, true, nil
}
