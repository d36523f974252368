// Package runner is the durable execution environment for onboarding
// workflows. It owns one goroutine per instance, durable timers, signal and
// query delivery, and crash recovery through history replay.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/onboarding"
	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/domain/event"
	"github.com/garyjia/onboarding-workflow/internal/domain/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// WorkflowName is stamped on every instance row
	WorkflowName = "SampleWorkflow"

	// DefaultTaskQueue is the queue shared by clients and workers
	DefaultTaskQueue = "sample-workflow"

	// SignalFormFilled marks the employee form as filled
	SignalFormFilled = "formFilledSignal"

	// QueryWorkflowState returns the current onboarding state
	QueryWorkflowState = "getWorkflowState"

	// DefaultActivityTimeout bounds a single activity attempt
	DefaultActivityTimeout = time.Minute
)

// Config configures a Runner
type Config struct {
	TaskQueue       string
	ActivityTimeout time.Duration
	Retry           RetryPolicy
}

// EventPublisher receives domain events. dispatcher.Dispatcher satisfies it.
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// StartOptions describe a new onboarding
type StartOptions struct {
	// InstanceID is optional; it defaults to onboarding-<employee id>
	InstanceID string
	State      entity.OnboardingState
}

// Handle refers to a started onboarding
type Handle struct {
	ID   string
	exec *execution
}

// Result waits for the onboarding to finish
func (h *Handle) Result(ctx context.Context) (onboarding.Result, error) {
	select {
	case <-h.exec.done:
		return h.exec.result, h.exec.err
	case <-ctx.Done():
		return onboarding.Result{}, ctx.Err()
	}
}

// Option configures a Runner
type Option func(*Runner)

// WithClock overrides the time source
func WithClock(clock Clock) Option {
	return func(r *Runner) {
		r.clock = clock
	}
}

// WithPublisher publishes lifecycle events
func WithPublisher(publisher EventPublisher) Option {
	return func(r *Runner) {
		r.publisher = publisher
	}
}

// WithTransactionManager makes history and state writes atomic
func WithTransactionManager(tx port.TransactionManager) Option {
	return func(r *Runner) {
		r.tx = tx
	}
}

// Runner executes onboarding state machines durably
type Runner struct {
	machine   *onboarding.StateMachine
	instances port.InstanceRepository
	history   port.HistoryRepository
	tx        port.TransactionManager
	publisher EventPublisher
	clock     Clock
	cfg       Config
	logger    *zap.Logger

	mu        sync.Mutex
	running   map[string]*execution
	wg        sync.WaitGroup
	baseCtx   context.Context
	cancel    context.CancelFunc
	shutdown  chan struct{}
	closeOnce sync.Once
}

// New creates a Runner
func New(machine *onboarding.StateMachine, instances port.InstanceRepository, history port.HistoryRepository, cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = DefaultTaskQueue
	}
	if cfg.ActivityTimeout <= 0 {
		cfg.ActivityTimeout = DefaultActivityTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		machine:   machine,
		instances: instances,
		history:   history,
		clock:     RealClock(),
		cfg:       cfg,
		logger:    logger,
		running:   make(map[string]*execution),
		baseCtx:   baseCtx,
		cancel:    cancel,
		shutdown:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// TaskQueue returns the queue this runner serves
func (r *Runner) TaskQueue() string {
	return r.cfg.TaskQueue
}

// Start validates the initial state, persists a new instance and launches it.
// The run outlives ctx; it is bounded only by Stop.
func (r *Runner) Start(ctx context.Context, opts StartOptions) (*Handle, error) {
	if r.stopped() {
		return nil, ErrStopped
	}
	if err := opts.State.ValidateInitial(); err != nil {
		return nil, err
	}

	id := opts.InstanceID
	if id == "" {
		id = DefaultInstanceID(opts.State.Employee)
	}

	r.mu.Lock()
	_, live := r.running[id]
	r.mu.Unlock()
	if live {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, id)
	}

	existing, err := r.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, id)
	}

	now := r.clock.Now().UTC()
	input := opts.State.Clone()
	state := opts.State.Clone()
	inst := &entity.OnboardingInstance{
		ID:            id,
		WorkflowName:  WorkflowName,
		TaskQueue:     r.cfg.TaskQueue,
		EmployeeID:    input.Employee.ID,
		EmployeeEmail: input.Employee.Email,
		Phase:         workflow.StateAwaitingForm.String(),
		Status:        entity.InstanceStatusRunning,
		Input:         &input,
		State:         &state,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	if err := r.instances.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create onboarding %s: %w", id, err)
	}

	exec, err := r.launch(inst, nil)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Onboarding started",
		zap.String("instance_id", id),
		zap.String("task_queue", r.cfg.TaskQueue),
		zap.String("employee_email", input.Employee.Email))

	r.publish(event.NewEvent(event.TypeOnboardingStarted, id, map[string]interface{}{
		"employee_id":    input.Employee.ID,
		"employee_email": input.Employee.Email,
	}))

	return &Handle{ID: id, exec: exec}, nil
}

// DefaultInstanceID derives the instance id from the employee's business key
func DefaultInstanceID(employee entity.Employee) string {
	if employee.ID != "" {
		return "onboarding-" + employee.ID
	}
	return "onboarding-" + uuid.NewString()
}

// Signal delivers a named signal. Signals to finished instances are ignored.
func (r *Runner) Signal(ctx context.Context, id, name string) error {
	if name != SignalFormFilled {
		return fmt.Errorf("%w: %s", ErrUnknownSignal, name)
	}

	inst, err := r.instances.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if inst.Status != entity.InstanceStatusRunning {
		r.logger.Info("Signal ignored, onboarding already finished",
			zap.String("instance_id", id),
			zap.String("signal", name),
			zap.String("phase", inst.Phase))
		return nil
	}

	r.mu.Lock()
	exec := r.running[id]
	r.mu.Unlock()

	if exec != nil && exec.isSealed() {
		r.logger.Info("Signal ignored, onboarding outcome already decided",
			zap.String("instance_id", id),
			zap.String("signal", name),
			zap.String("phase", exec.currentPhase()))
		return nil
	}

	if err := r.instances.MarkSignaled(ctx, id); err != nil {
		return fmt.Errorf("failed to record signal %s: %w", name, err)
	}

	first := !inst.FormFilledSignaled
	if exec != nil {
		first = exec.signalFormFilled() && first
	}

	r.logger.Info("Signal received", zap.String("instance_id", id), zap.String("signal", name))
	if first {
		r.publish(event.NewEvent(event.TypeFormFilled, id, nil))
	}
	return nil
}

// Query answers a named query without blocking on the running workflow. The
// returned state is a copy; it is nil when the instance has no state yet.
// An open task's priority always matches the reminders sent.
func (r *Runner) Query(ctx context.Context, id, name string) (*entity.OnboardingState, error) {
	if name != QueryWorkflowState {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}

	r.mu.Lock()
	exec := r.running[id]
	r.mu.Unlock()
	if exec != nil {
		return exec.Snapshot(), nil
	}

	inst, err := r.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if inst.State == nil {
		return nil, nil
	}
	state := inst.State.Clone()
	return &state, nil
}

// Get returns the persisted instance
func (r *Runner) Get(ctx context.Context, id string) (*entity.OnboardingInstance, error) {
	inst, err := r.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst, nil
}

// List returns persisted instances, newest first
func (r *Runner) List(ctx context.Context, limit, offset int) ([]*entity.OnboardingInstance, error) {
	return r.instances.List(ctx, limit, offset)
}

// Transitions returns the recorded phase changes of an instance in order
func (r *Runner) Transitions(ctx context.Context, id string) ([]entity.Transition, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}

	events, err := r.history.ListByInstance(ctx, id)
	if err != nil {
		return nil, err
	}

	transitions := make([]entity.Transition, 0)
	for _, evt := range events {
		if evt.Kind != entity.HistoryTransition {
			continue
		}
		var tr entity.Transition
		if err := json.Unmarshal(evt.Payload, &tr); err != nil {
			return nil, fmt.Errorf("failed to decode transition %d: %w", evt.Seq, err)
		}
		transitions = append(transitions, tr)
	}
	return transitions, nil
}

// ResumeAll relaunches every RUNNING instance of this runner's task queue
// from its history. It returns the number of instances resumed.
func (r *Runner) ResumeAll(ctx context.Context) (int, error) {
	instances, err := r.instances.ListByStatus(ctx, r.cfg.TaskQueue, entity.InstanceStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running onboardings: %w", err)
	}

	resumed := 0
	for _, inst := range instances {
		r.mu.Lock()
		_, live := r.running[inst.ID]
		r.mu.Unlock()
		if live {
			continue
		}

		if inst.Input == nil {
			r.logger.Error("Cannot resume onboarding without input", zap.String("instance_id", inst.ID))
			r.fail(ctx, inst.ID, errors.New("instance has no recorded input"))
			continue
		}

		history, err := r.history.ListByInstance(ctx, inst.ID)
		if err != nil {
			r.logger.Error("Failed to load history", zap.String("instance_id", inst.ID), zap.Error(err))
			continue
		}

		if _, err := r.launch(inst, history); err != nil {
			return resumed, err
		}

		r.logger.Info("Onboarding resumed",
			zap.String("instance_id", inst.ID),
			zap.String("phase", inst.Phase),
			zap.Int("history_events", len(history)))
		resumed++
	}

	return resumed, nil
}

// Running returns the number of live executions
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Stop interrupts every live execution and waits for them to return. The
// instances stay RUNNING and are picked up again by ResumeAll.
func (r *Runner) Stop() {
	r.closeOnce.Do(func() {
		close(r.shutdown)
		r.cancel()
	})
	r.wg.Wait()
}

func (r *Runner) stopped() bool {
	select {
	case <-r.shutdown:
		return true
	default:
		return false
	}
}

func (r *Runner) launch(inst *entity.OnboardingInstance, history []*entity.HistoryEvent) (*execution, error) {
	exec := newExecution(r, inst, history)

	r.mu.Lock()
	if r.stopped() {
		r.mu.Unlock()
		return nil, ErrStopped
	}
	if _, exists := r.running[inst.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, inst.ID)
	}
	r.running[inst.ID] = exec
	r.wg.Add(1)
	r.mu.Unlock()

	go r.execute(exec)
	return exec, nil
}

func (r *Runner) execute(exec *execution) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, exec.id)
		r.mu.Unlock()
	}()

	ctx := r.baseCtx
	result, err := r.machine.Run(ctx, exec, exec.input)

	if err != nil && r.stopped() && !errors.Is(err, ErrNonDeterministic) {
		exec.logger.Info("Onboarding suspended by shutdown", zap.String("phase", result.Phase.String()))
		exec.finish(result, ErrStopped)
		return
	}

	// Persist with a context that survives shutdown
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		exec.logger.Error("Onboarding failed", zap.String("phase", result.Phase.String()), zap.Error(err))
		r.fail(persistCtx, exec.id, err)
		exec.finish(result, err)
		return
	}

	now := r.clock.Now().UTC()
	persistErr := r.withTransaction(persistCtx, func(ctx context.Context) error {
		if err := r.instances.UpdateState(ctx, exec.id, result.Phase.String(), result.State); err != nil {
			return err
		}
		return r.instances.Finish(ctx, exec.id, entity.InstanceStatusCompleted, "", now)
	})
	if persistErr != nil {
		exec.logger.Error("Failed to persist onboarding result", zap.Error(persistErr))
		exec.finish(result, persistErr)
		return
	}

	payload := map[string]interface{}{
		"phase":          result.Phase.String(),
		"employee_email": result.State.Employee.Email,
		"employee_name":  result.State.Employee.FullName(),
		"reminders_sent": result.State.RemindersSent,
	}
	if result.Phase == workflow.StateEscalatedUnresolved {
		exec.logger.Warn("Onboarding escalated without form completion", zap.Int("reminders_sent", result.State.RemindersSent))
		if result.State.FollowUpTask != nil {
			payload["task_id"] = result.State.FollowUpTask.ID
			payload["task_priority"] = string(result.State.FollowUpTask.Priority)
		}
		r.publish(event.NewEvent(event.TypeOnboardingEscalated, exec.id, payload))
	} else {
		exec.logger.Info("Onboarding completed")
		r.publish(event.NewEvent(event.TypeOnboardingCompleted, exec.id, payload))
	}

	exec.finish(result, nil)
}

func (r *Runner) fail(ctx context.Context, id string, cause error) {
	if err := r.instances.Finish(ctx, id, entity.InstanceStatusFailed, cause.Error(), r.clock.Now().UTC()); err != nil {
		r.logger.Error("Failed to mark onboarding failed", zap.String("instance_id", id), zap.Error(err))
	}
	r.publish(event.NewEvent(event.TypeOnboardingFailed, id, map[string]interface{}{
		"error": cause.Error(),
	}))
}

func (r *Runner) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.WithTransaction(ctx, fn)
}

func (r *Runner) publish(evt *event.Event) {
	if r.publisher == nil {
		return
	}
	r.publisher.DispatchAsync(context.Background(), evt)
}
