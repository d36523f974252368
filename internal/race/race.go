// Package race resolves the wait between an external signal and a timer.
package race

import (
	"context"
	"time"
)

// Outcome is the winner of a race
type Outcome string

const (
	OutcomeSignal    Outcome = "SIGNAL"
	OutcomeTimer     Outcome = "TIMER"
	OutcomeCancelled Outcome = "CANCELLED"
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	return string(o)
}

// Await blocks until the signal channel is closed (or receives), the timer
// fires, ctx is done or any cancel channel is closed.
//
// Ties resolve signal first, then cancellation, then timer. After any
// non-signal wake-up the signal is re-checked without blocking, so a signal
// that arrived alongside the timer is never lost.
func Await(ctx context.Context, signal <-chan struct{}, timer <-chan time.Time, cancels ...<-chan struct{}) Outcome {
	if ready(signal) {
		return OutcomeSignal
	}
	if ctx.Err() != nil || anyReady(cancels) {
		return OutcomeCancelled
	}

	cancelled, stop := merge(ctx, cancels)
	defer stop()

	select {
	case <-signal:
		return OutcomeSignal
	case <-cancelled:
		if ready(signal) {
			return OutcomeSignal
		}
		return OutcomeCancelled
	case <-timer:
		if ready(signal) {
			return OutcomeSignal
		}
		if ctx.Err() != nil || anyReady(cancels) {
			return OutcomeCancelled
		}
		return OutcomeTimer
	}
}

func ready(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func anyReady(chs []<-chan struct{}) bool {
	for _, ch := range chs {
		if ready(ch) {
			return true
		}
	}
	return false
}

// merge folds ctx and the cancel channels into one channel. The watcher
// goroutines exit once stop is called.
func merge(ctx context.Context, cancels []<-chan struct{}) (<-chan struct{}, context.CancelFunc) {
	inner, stop := context.WithCancel(ctx)
	for _, ch := range cancels {
		if ch == nil {
			continue
		}
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				stop()
			case <-inner.Done():
			}
		}(ch)
	}
	return inner.Done(), stop
}
