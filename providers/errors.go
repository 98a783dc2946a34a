package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PermissionError marks an enumeration failure no retry can fix: the
// credentials lack access to the API. The orchestrator skips the kind
// and records the reason instead of failing the scan.
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s: %v", e.Op, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying: throttling, timeouts,
// provider-side 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

const maxRetries = 4

func defaultBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(policy, maxRetries)
}

// Retry runs fn, retrying TransientErrors with capped exponential
// backoff. Any other error aborts immediately and is returned as-is, so
// callers can still errors.As for PermissionError.
func Retry(ctx context.Context, fn func() error) error {
	return retryWith(ctx, defaultBackOff(), fn)
}

func retryWith(ctx context.Context, policy backoff.BackOff, fn func() error) error {
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var transient *TransientError
		if errors.As(err, &transient) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}
