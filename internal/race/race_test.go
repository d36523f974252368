package race

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func closed() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func firedTimer() <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestAwait_SignalWins(t *testing.T) {
	signal := make(chan struct{})
	timer := make(chan time.Time)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(signal)
	}()

	assert.Equal(t, OutcomeSignal, Await(context.Background(), signal, timer))
}

func TestAwait_TimerWins(t *testing.T) {
	signal := make(chan struct{})
	assert.Equal(t, OutcomeTimer, Await(context.Background(), signal, firedTimer()))
}

func TestAwait_TieGoesToSignal(t *testing.T) {
	// Both ready before the race starts; repeat to defeat select's random choice
	for i := 0; i < 100; i++ {
		assert.Equal(t, OutcomeSignal, Await(context.Background(), closed(), firedTimer()))
	}
}

func TestAwait_SignalAlreadyLatched(t *testing.T) {
	assert.Equal(t, OutcomeSignal, Await(context.Background(), closed(), make(chan time.Time)))
}

func TestAwait_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, OutcomeCancelled, Await(ctx, make(chan struct{}), make(chan time.Time)))
}

func TestAwait_CancelChannel(t *testing.T) {
	shutdown := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(shutdown)
	}()

	assert.Equal(t, OutcomeCancelled, Await(context.Background(), make(chan struct{}), make(chan time.Time), shutdown))
}

func TestAwait_CancelBeatsTimer(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, OutcomeCancelled, Await(context.Background(), make(chan struct{}), firedTimer(), closed()))
	}
}

func TestAwait_SignalBeatsCancel(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Equal(t, OutcomeSignal, Await(context.Background(), closed(), firedTimer(), closed()))
	}
}

func TestAwait_NilSignalWaitsForTimer(t *testing.T) {
	assert.Equal(t, OutcomeTimer, Await(context.Background(), nil, firedTimer()))
}
