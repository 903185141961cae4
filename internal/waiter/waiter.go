// Package waiter provides a polling wait primitive.
//
// A condition is evaluated against a subject until it holds or a timeout
// elapses. The subject may be mutated concurrently by other goroutines; it is
// read once per evaluation and no further atomicity is assumed.
package waiter

import (
	"context"
	"fmt"
	"time"

	"github.com/Rorqualx/proxydl/internal/types"
)

// MinInterval is the smallest polling interval callers should configure.
const MinInterval = 50 * time.Millisecond

// Condition is a predicate over the waited subject.
// It may close over mutable state, such as a counter from the previous poll.
type Condition[T any] func(subject T) bool

// Outcome is the result of a wait.
type Outcome[T any] struct {
	Satisfied bool          // Condition held before the timeout
	Elapsed   time.Duration // Time spent from the call to the last evaluation
	Polls     int           // Number of evaluations performed
	Last      T             // Subject as seen by the last evaluation
}

// TimedOut reports whether the wait ended without the condition holding.
func (o Outcome[T]) TimedOut() bool {
	return !o.Satisfied
}

// Floor returns interval raised to MinInterval.
func Floor(interval time.Duration) time.Duration {
	if interval < MinInterval {
		return MinInterval
	}
	return interval
}

// Poll evaluates cond immediately and returns without sleeping if it holds.
// Otherwise it sleeps interval between evaluations, shortening the final sleep
// to the remaining budget, until cond holds or timeout has elapsed since the
// call. A zero or negative timeout performs exactly one evaluation.
//
// The only error returned is the context error when ctx ends the wait early.
func Poll[T any](ctx context.Context, subject T, cond Condition[T], timeout, interval time.Duration) (Outcome[T], error) {
	if interval <= 0 {
		interval = MinInterval
	}

	start := time.Now()
	out := Outcome[T]{Last: subject}

	for {
		out.Polls++
		ok := cond(subject)
		out.Elapsed = time.Since(start)
		if ok {
			out.Satisfied = true
			return out, nil
		}

		remaining := timeout - out.Elapsed
		if remaining <= 0 {
			return out, nil
		}

		wait := interval
		if remaining < wait {
			wait = remaining
		}
		if !sleepWithContext(ctx, wait) {
			out.Elapsed = time.Since(start)
			return out, ctx.Err()
		}
	}
}

// Until is Poll with a timeout turned into an error.
// It returns *types.ConditionTimeoutError when cond never held.
func Until[T any](ctx context.Context, subject T, cond Condition[T], timeout, interval time.Duration) error {
	out, err := Poll(ctx, subject, cond, timeout, interval)
	if err != nil {
		return err
	}
	if out.Satisfied {
		return nil
	}
	return &types.ConditionTimeoutError{
		Elapsed: out.Elapsed,
		Timeout: timeout,
		Polls:   out.Polls,
		Last:    describe(out.Last),
	}
}

func describe(subject any) string {
	if s, ok := subject.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}

// sleepWithContext sleeps for the specified duration or until context is canceled.
// Returns true if the sleep completed normally, false if interrupted by context cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
