package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) has(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range append(append([]string{}, m.infos...), m.errors...) {
		if s == msg {
			return true
		}
	}
	return false
}

func escalated(instanceID string) *event.Event {
	return event.NewEvent(event.TypeOnboardingEscalated, instanceID, map[string]interface{}{
		"reminders_sent": 4,
	})
}

func TestSubscribe_GeneratesDistinctNames(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Subscribe(event.TypeOnboardingEscalated, noop)
	d.Subscribe(event.TypeOnboardingEscalated, noop)

	handlers := d.ListHandlers(event.TypeOnboardingEscalated)
	if len(handlers) != 2 {
		t.Fatalf("ListHandlers() returned %d handlers, want 2", len(handlers))
	}
	if handlers[0].Name == handlers[1].Name {
		t.Errorf("handlers share name %q", handlers[0].Name)
	}
}

func TestSubscribeNamed_ReplacesSameName(t *testing.T) {
	d := NewDispatcher()
	var first, second int32

	d.SubscribeNamed(event.TypeOnboardingEscalated, "hr-email", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&first, 1)
		return nil
	})
	d.SubscribeNamed(event.TypeOnboardingEscalated, "hr-email", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&second, 1)
		return nil
	})

	if n := len(d.ListHandlers(event.TypeOnboardingEscalated)); n != 1 {
		t.Fatalf("ListHandlers() returned %d handlers, want 1", n)
	}
	if err := d.Dispatch(context.Background(), escalated("onboarding-emp1")); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if first != 0 || second != 1 {
		t.Errorf("calls first=%d second=%d, want 0 and 1", first, second)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	d.SubscribeNamed(event.TypeOnboardingCompleted, "a", func(ctx context.Context, evt *event.Event) error { return nil })
	d.SubscribeNamed(event.TypeOnboardingCompleted, "b", func(ctx context.Context, evt *event.Event) error { return nil })

	d.Unsubscribe(event.TypeOnboardingCompleted, "a")
	d.Unsubscribe(event.TypeOnboardingCompleted, "missing")

	handlers := d.ListHandlers(event.TypeOnboardingCompleted)
	if len(handlers) != 1 || handlers[0].Name != "b" {
		t.Errorf("ListHandlers() = %+v, want only b", handlers)
	}
}

func TestDispatch_RunsInOrderAndStopsOnError(t *testing.T) {
	d := NewDispatcher()
	var order []string
	boom := errors.New("smtp down")

	d.SubscribeNamed(event.TypeOnboardingEscalated, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeOnboardingEscalated, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return boom
	})
	d.SubscribeNamed(event.TypeOnboardingEscalated, "third", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "third")
		return nil
	})

	err := d.Dispatch(context.Background(), escalated("onboarding-emp1"))
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want %v", err, boom)
	}
	if fmt.Sprint(order) != "[first second]" {
		t.Errorf("handler order = %v", order)
	}
}

func TestDispatch_NoHandlers(t *testing.T) {
	d := NewDispatcher()
	if err := d.Dispatch(context.Background(), escalated("x")); err != nil {
		t.Errorf("Dispatch() error = %v, want nil", err)
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	d.SubscribeNamed(event.TypeOnboardingFailed, "panicky", func(ctx context.Context, evt *event.Event) error {
		panic("nil task")
	})

	if err := d.Dispatch(context.Background(), event.NewEvent(event.TypeOnboardingFailed, "i1", nil)); err == nil {
		t.Fatal("Dispatch() should return an error for a panicking handler")
	}
	if !logger.has("Handler panic recovered") {
		t.Error("panic was not logged")
	}
}

func TestDispatch_WithRetry(t *testing.T) {
	d := NewDispatcher(WithRetry(3, time.Millisecond))
	var calls int32

	d.SubscribeNamed(event.TypeOnboardingEscalated, "flaky", func(ctx context.Context, evt *event.Event) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	if err := d.Dispatch(context.Background(), escalated("i1")); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDispatch_WithRetryGivesUp(t *testing.T) {
	d := NewDispatcher(WithRetry(2, time.Millisecond))
	var calls int32

	d.SubscribeNamed(event.TypeOnboardingEscalated, "broken", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	})

	if err := d.Dispatch(context.Background(), escalated("i1")); err == nil {
		t.Fatal("Dispatch() should fail after retries are exhausted")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestDispatch_PanicIsNotRetried(t *testing.T) {
	d := NewDispatcher(WithRetry(5, time.Millisecond))
	var calls int32

	d.SubscribeNamed(event.TypeOnboardingEscalated, "panicky", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&calls, 1)
		panic("bad payload")
	})

	_ = d.Dispatch(context.Background(), escalated("i1"))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDispatch_WithHandlerTimeout(t *testing.T) {
	d := NewDispatcher(WithHandlerTimeout(10 * time.Millisecond))
	d.SubscribeNamed(event.TypeOnboardingEscalated, "slow", func(ctx context.Context, evt *event.Event) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := d.Dispatch(context.Background(), escalated("i1"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dispatch() error = %v, want deadline exceeded", err)
	}
}

func TestDispatchAsync_DetachesFromCallerContext(t *testing.T) {
	d := NewDispatcher()
	done := make(chan error, 1)

	d.SubscribeNamed(event.TypeOnboardingEscalated, "notify", func(ctx context.Context, evt *event.Event) error {
		time.Sleep(5 * time.Millisecond)
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, escalated("i1"))
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("handler saw ctx.Err() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("async handler did not run")
	}
}

func TestClose_WaitsForAsyncHandlers(t *testing.T) {
	d := NewDispatcher()
	var finished int32

	for i := 0; i < 5; i++ {
		d.Subscribe(event.TypeOnboardingCompleted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&finished, 1)
			return nil
		})
	}

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeOnboardingCompleted, "i1", nil))
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if finished != 5 {
		t.Errorf("finished = %d, want 5", finished)
	}

	if err := d.Close(); err == nil {
		t.Error("second Close() should fail")
	}
	if err := d.Dispatch(context.Background(), escalated("i1")); err == nil {
		t.Error("Dispatch() after Close() should fail")
	}
}

func TestDispatchAsync_AfterCloseIsDropped(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))
	var calls int32
	d.Subscribe(event.TypeOnboardingEscalated, func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	_ = d.Close()
	d.DispatchAsync(context.Background(), escalated("i1"))

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
	if !logger.has("Cannot dispatch async event, dispatcher is closed") {
		t.Error("dropped event was not logged")
	}
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeFormFilled, fmt.Sprintf("h-%d", i), func(ctx context.Context, evt *event.Event) error {
				return nil
			})
		}(i)
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), event.NewEvent(event.TypeFormFilled, "i1", nil))
		}()
	}
	wg.Wait()

	if n := len(d.ListHandlers(event.TypeFormFilled)); n != 20 {
		t.Errorf("ListHandlers() returned %d handlers, want 20", n)
	}
}
