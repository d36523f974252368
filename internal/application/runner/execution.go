package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/garyjia/onboarding-workflow/internal/application/onboarding"
	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/domain/event"
	"github.com/garyjia/onboarding-workflow/internal/domain/workflow"
	"github.com/garyjia/onboarding-workflow/internal/race"
	"go.uber.org/zap"
)

type timerPayload struct {
	Deadline time.Time       `json:"deadline"`
	Timeout  entity.Duration `json:"timeout"`
}

type racePayload struct {
	Outcome race.Outcome `json:"outcome"`
}

// execution is the live run of one instance. It implements
// onboarding.Environment: every call consumes the next history sequence
// number, and a call whose sequence number is already recorded returns the
// recorded result instead of acting again.
type execution struct {
	runner *Runner
	id     string
	input  entity.OnboardingState
	logger *zap.Logger

	history []*entity.HistoryEvent
	seq     int

	signal     chan struct{}
	signalOnce sync.Once

	mu       sync.RWMutex
	snapshot *entity.OnboardingState
	phase    workflow.State
	signaled bool
	// sealed is set once a terminal transition is decided; later signals
	// no longer reach the state.
	sealed bool

	done   chan struct{}
	result onboarding.Result
	err    error
}

func newExecution(r *Runner, inst *entity.OnboardingInstance, history []*entity.HistoryEvent) *execution {
	e := &execution{
		runner:  r,
		id:      inst.ID,
		input:   inst.Input.Clone(),
		logger:  r.logger.With(zap.String("instance_id", inst.ID)),
		history: history,
		signal:  make(chan struct{}),
		phase:   workflow.State(inst.Phase),
		done:    make(chan struct{}),
	}

	if inst.State != nil {
		snapshot := inst.State.Clone()
		e.snapshot = &snapshot
	}
	if inst.FormFilledSignaled {
		e.signalFormFilled()
	}
	return e
}

// ExecuteActivity implements onboarding.Environment
func (e *execution) ExecuteActivity(ctx context.Context, name string, fn onboarding.ActivityFunc, state entity.OnboardingState) (entity.OnboardingState, error) {
	seq := e.next()

	if recorded, ok := e.recorded(seq); ok {
		if err := expect(recorded, entity.HistoryActivity, name); err != nil {
			return state, err
		}
		var replayed entity.OnboardingState
		if err := json.Unmarshal(recorded.Payload, &replayed); err != nil {
			return state, fmt.Errorf("failed to decode recorded %s result: %w", name, err)
		}
		e.logger.Debug("Activity replayed from history", zap.String("activity", name), zap.Int("seq", seq))
		e.publishSnapshot(replayed)
		return replayed, nil
	}

	attempt := 0
	var result entity.OnboardingState
	operation := func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, e.runner.cfg.ActivityTimeout)
		defer cancel()
		actx = port.WithActivityInfo(actx, port.ActivityInfo{InstanceID: e.id, Name: name, Attempt: attempt})

		out, err := fn(actx, state.Clone())
		if err != nil {
			return err
		}
		result = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.logger.Warn("Activity attempt failed, retrying",
			zap.String("activity", name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, e.runner.cfg.Retry.backOff(ctx), notify); err != nil {
		return state, fmt.Errorf("%s failed after %d attempt(s): %w", name, attempt, err)
	}

	// Keep the persisted copy in line with a signal that arrived mid-activity
	if e.isSignaled() {
		result.FormFilled = true
	}

	if err := e.persist(ctx, seq, entity.HistoryActivity, name, result, e.currentPhase(), &result); err != nil {
		return state, err
	}
	e.publishSnapshot(result)
	return result, nil
}

// Race implements onboarding.Environment
func (e *execution) Race(ctx context.Context, name string, timeout time.Duration) (race.Outcome, error) {
	timerSeq := e.next()

	var timer timerPayload
	if recorded, ok := e.recorded(timerSeq); ok {
		if err := expect(recorded, entity.HistoryTimerStarted, name); err != nil {
			return race.OutcomeCancelled, err
		}
		if err := json.Unmarshal(recorded.Payload, &timer); err != nil {
			return race.OutcomeCancelled, fmt.Errorf("failed to decode recorded timer %s: %w", name, err)
		}
	} else {
		timer = timerPayload{Deadline: e.runner.clock.Now().Add(timeout), Timeout: entity.Duration(timeout)}
		if err := e.persist(ctx, timerSeq, entity.HistoryTimerStarted, name, timer, e.currentPhase(), nil); err != nil {
			return race.OutcomeCancelled, err
		}
	}

	raceSeq := e.next()
	if recorded, ok := e.recorded(raceSeq); ok {
		if err := expect(recorded, entity.HistoryRaceResolved, name); err != nil {
			return race.OutcomeCancelled, err
		}
		var resolved racePayload
		if err := json.Unmarshal(recorded.Payload, &resolved); err != nil {
			return race.OutcomeCancelled, fmt.Errorf("failed to decode recorded race %s: %w", name, err)
		}
		return resolved.Outcome, nil
	}

	remaining := timer.Deadline.Sub(e.runner.clock.Now())
	if remaining < 0 {
		remaining = 0
	}

	e.logger.Debug("Waiting for form or timer",
		zap.String("race", name),
		zap.Duration("remaining", remaining))

	t := e.runner.clock.NewTimer(remaining)
	outcome := race.Await(ctx, e.signal, t.C(), e.runner.shutdown)
	t.Stop()

	if outcome == race.OutcomeCancelled {
		if ctx.Err() != nil {
			return outcome, ctx.Err()
		}
		return outcome, ErrStopped
	}

	if err := e.persist(ctx, raceSeq, entity.HistoryRaceResolved, name, racePayload{Outcome: outcome}, e.currentPhase(), nil); err != nil {
		return race.OutcomeCancelled, err
	}

	e.logger.Info("Race resolved", zap.String("race", name), zap.String("outcome", outcome.String()))
	return outcome, nil
}

// RecordTransition implements onboarding.Environment
func (e *execution) RecordTransition(ctx context.Context, transition entity.Transition, state entity.OnboardingState) error {
	seq := e.next()

	to := workflow.State(transition.To)

	if recorded, ok := e.recorded(seq); ok {
		if err := expect(recorded, entity.HistoryTransition, transition.Trigger); err != nil {
			return err
		}
		if to.IsTerminal() {
			e.seal()
		}
		e.setPhase(to)
		return nil
	}

	transition.At = e.runner.clock.Now().UTC()
	if to.IsTerminal() {
		// The outcome is decided; the state is persisted as the machine left it
		e.seal()
	} else if e.isSignaled() {
		state.FormFilled = true
	}

	if err := e.persist(ctx, seq, entity.HistoryTransition, transition.Trigger, transition, transition.To, &state); err != nil {
		return err
	}
	e.setPhase(to)
	e.publishSnapshot(state)

	e.logger.Info("Phase transition",
		zap.String("from", transition.From),
		zap.String("to", transition.To),
		zap.String("trigger", transition.Trigger))

	e.runner.publish(event.NewEvent(event.TypeOnboardingTransitioned, e.id, map[string]interface{}{
		"from":           transition.From,
		"to":             transition.To,
		"trigger":        transition.Trigger,
		"reminders_sent": transition.RemindersSent,
	}))
	return nil
}

// persist appends one history entry and, when state is given, the new
// snapshot, in a single transaction.
func (e *execution) persist(ctx context.Context, seq int, kind entity.HistoryKind, name string, payload interface{}, phase string, state *entity.OnboardingState) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s history: %w", kind, err)
	}

	evt := &entity.HistoryEvent{
		InstanceID: e.id,
		Seq:        seq,
		Kind:       kind,
		Name:       name,
		Payload:    data,
		RecordedAt: e.runner.clock.Now().UTC(),
	}

	err = e.runner.withTransaction(ctx, func(ctx context.Context) error {
		if err := e.runner.history.Append(ctx, evt); err != nil {
			return err
		}
		if state == nil {
			return nil
		}
		return e.runner.instances.UpdateState(ctx, e.id, phase, *state)
	})
	if err != nil {
		e.logger.Error("Failed to persist history", zap.Int("seq", seq), zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("failed to persist %s %s: %w", kind, name, err)
	}

	e.history = append(e.history, evt)
	return nil
}

func (e *execution) next() int {
	e.seq++
	return e.seq
}

func (e *execution) recorded(seq int) (*entity.HistoryEvent, bool) {
	if seq > len(e.history) {
		return nil, false
	}
	return e.history[seq-1], true
}

func expect(recorded *entity.HistoryEvent, kind entity.HistoryKind, name string) error {
	if recorded.Kind != kind || recorded.Name != name {
		return fmt.Errorf("%w: seq %d recorded %s %q, replay asked for %s %q",
			ErrNonDeterministic, recorded.Seq, recorded.Kind, recorded.Name, kind, name)
	}
	return nil
}

// signalFormFilled closes the latch and marks the live snapshot. It never
// touches any other field.
// Once the execution is sealed it does nothing and reports false.
func (e *execution) signalFormFilled() bool {
	e.mu.Lock()
	if e.sealed {
		e.mu.Unlock()
		return false
	}
	e.signaled = true
	if e.snapshot != nil {
		e.snapshot.FormFilled = true
	}
	e.mu.Unlock()

	first := false
	e.signalOnce.Do(func() {
		first = true
		close(e.signal)
	})
	return first
}

func (e *execution) seal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sealed = true
}

func (e *execution) isSealed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sealed
}

func (e *execution) isSignaled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.signaled
}

func (e *execution) publishSnapshot(state entity.OnboardingState) {
	snapshot := state.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled && !e.sealed {
		snapshot.FormFilled = true
	}
	e.snapshot = &snapshot
}

// Snapshot returns a deep copy of the live state, or nil before the first
// state is known.
func (e *execution) Snapshot() *entity.OnboardingState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.snapshot == nil {
		return nil
	}
	snapshot := e.snapshot.Clone()
	return &snapshot
}

func (e *execution) currentPhase() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase.String()
}

func (e *execution) setPhase(phase workflow.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = phase
}

func (e *execution) finish(result onboarding.Result, err error) {
	e.result = result
	e.err = err
	close(e.done)
}

var _ onboarding.Environment = (*execution)(nil)
