package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
	}
}

// runTx runs fn in a store transaction, retrying transient failures.
// Any other error ends the attempt loop immediately.
func (s *Service) runTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	cfg := s.Retry
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	b.MaxInterval = cfg.MaxDelay

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := s.Store.RunTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if IsTransient(err) {
			s.metrics.retry(ctx, op)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxAttempts)),
	)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if IsTransient(err) && ctx.Err() == nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, err)
	}
	return err
}
