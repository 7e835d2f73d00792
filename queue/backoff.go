package queue

import (
	"context"
	"time"
)

// decision is the outcome of feeding a remote call result to a backoff.
type decision int

const (
	decisionReset decision = iota
	decisionRetry
	decisionEscalate
)

func (d decision) String() string {
	switch d {
	case decisionReset:
		return "reset"
	case decisionRetry:
		return "retry"
	case decisionEscalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// backoff counts consecutive failures of one call site. Once the count reaches
// maxErrors the failure is escalated and no further retry is suggested.
// A backoff is owned by a single goroutine.
type backoff struct {
	maxErrors int
	delay     time.Duration
	errors    int
}

func newBackoff(maxErrors int, delay time.Duration) *backoff {
	return &backoff{
		maxErrors: maxErrors,
		delay:     delay,
	}
}

// record feeds the outcome of a remote call to the policy.
func (b *backoff) record(err error) decision {
	if err == nil {
		b.errors = 0
		return decisionReset
	}

	b.errors++

	if b.errors >= b.maxErrors {
		return decisionEscalate
	}

	return decisionRetry
}

// attempts returns the number of consecutive failures recorded so far.
func (b *backoff) attempts() int {
	return b.errors
}

// sleep waits for d. It returns false if ctx is cancelled or interrupt is
// closed before d elapses. A nil interrupt channel never fires.
func sleep(ctx context.Context, d time.Duration, interrupt <-chan struct{}) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-interrupt:
		return false
	case <-timer.C:
		return true
	}
}

// retry calls fn until it succeeds or the backoff escalates, waiting the
// backoff delay between attempts. It returns the last error on escalation and
// ctx.Err() if the context is cancelled while waiting.
func retry[T any](ctx context.Context, b *backoff, onRetry func(attempt int, err error), fn func(context.Context) (T, error)) (T, error) {
	for {
		result, err := fn(ctx)

		switch b.record(err) {
		case decisionReset:
			return result, nil
		case decisionEscalate:
			return result, err
		case decisionRetry:
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if onRetry != nil {
			onRetry(b.attempts(), err)
		}

		if !sleep(ctx, b.delay, nil) {
			return result, ctx.Err()
		}
	}
}
