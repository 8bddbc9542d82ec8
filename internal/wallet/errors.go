package wallet

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("wallet: not found")
	ErrWalletNotFound      = fmt.Errorf("%w: wallet", ErrNotFound)
	ErrBalanceNotFound     = fmt.Errorf("%w: balance", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("%w: transaction", ErrNotFound)

	ErrInsufficientBalance = errors.New("wallet: insufficient balance")

	ErrInvalidInput  = errors.New("wallet: invalid input")
	ErrInvalidAmount = fmt.Errorf("%w: amount must be a positive decimal", ErrInvalidInput)
	ErrAccountExists = fmt.Errorf("%w: account already exists", ErrInvalidInput)

	ErrUnauthorized = errors.New("wallet: unauthorized")

	// ErrTransientConflict marks contention that is safe to retry: the unit of work
	// that returned it has been rolled back.
	ErrTransientConflict = errors.New("wallet: transient conflict")

	// ErrStatusConflict means a transaction was no longer in the expected status.
	ErrStatusConflict = errors.New("wallet: transaction status changed")

	ErrInternal = errors.New("wallet: internal error")
)

// ValidationError reports a single rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("wallet: invalid %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInsufficientBalance
	KindInvalidInput
	KindUnauthorized
	KindTransientConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransientConflict:
		return "transient_conflict"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// KindOf classifies err. Internal is checked first so that an exhausted retry
// wrapping a conflict is reported as internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInternal):
		return KindInternal
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrTransientConflict):
		return KindTransientConflict
	}
	return KindInternal
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientConflict) && !errors.Is(err, ErrInternal)
}
