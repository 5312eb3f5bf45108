// Package retry runs collaborator calls with a per-attempt timeout and
// exponential backoff. By default only transient failures are retried.
package retry

import (
	"context"
	"time"

	"support_router_backend/platform/apperr"

	goretry "github.com/sethvargo/go-retry"
)

// Policy configures a retried call.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	Timeout   time.Duration // per attempt, zero means no extra deadline
	// Retryable decides which errors are retried. Nil means apperr.IsTransient.
	Retryable func(error) bool
}

// Do calls fn until it succeeds, returns an error the policy does not retry,
// or the attempts are exhausted. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	retryable := p.Retryable
	if retryable == nil {
		retryable = apperr.IsTransient
	}

	backoff := goretry.WithMaxRetries(uint64(attempts-1), goretry.NewExponential(base))

	var last error
	err := goretry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx := ctx
		cancel := func() {}
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()

		last = fn(callCtx)
		if last == nil {
			return nil
		}
		if retryable(last) {
			return goretry.RetryableError(last)
		}
		return last
	})
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return apperr.Transient("retry aborted", err)
}
