package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"support_router_backend/platform/apperr"
)

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Transient("flaky", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return apperr.Validation("bad recipient")
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoReturnsLastTransientError(t *testing.T) {
	err := Do(context.Background(), Policy{Attempts: 2, BaseDelay: time.Millisecond}, func(context.Context) error {
		return apperr.Transient("down", nil)
	})
	if !apperr.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	err := Do(context.Background(), Policy{Attempts: 1, Timeout: 5 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !apperr.IsTransient(err) {
		t.Fatalf("expected deadline to be reported as transient, got %v", err)
	}
}

func TestDoHonoursRetryablePredicate(t *testing.T) {
	notSent := errors.New("not sent")
	calls := 0
	policy := Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		Retryable: func(err error) bool { return errors.Is(err, notSent) },
	}

	err := Do(context.Background(), policy, func(context.Context) error {
		calls++
		return apperr.Transient("timed out", context.DeadlineExceeded)
	})
	if !apperr.IsTransient(err) || calls != 1 {
		t.Fatalf("ambiguous failure must not be retried: calls=%d err=%v", calls, err)
	}

	calls = 0
	err = Do(context.Background(), policy, func(context.Context) error {
		calls++
		if calls < 2 {
			return apperr.Transient("rate limited", notSent)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected a retry of the unsent call: calls=%d err=%v", calls, err)
	}
}
