package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func defaultBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         250 * time.Millisecond,
	}
}

// retry runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. An exhausted budget is reported as ErrInternal.
func (e *Engine) retry(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(e.newBackOff()), backoff.WithMaxTries(e.maxAttempts))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if IsRetryable(err) {
		return fmt.Errorf("%w: gave up after %d attempts: %w", ErrInternal, e.maxAttempts, err)
	}
	return err
}
