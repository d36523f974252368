package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Resumer is the runner lifecycle the worker drives
type Resumer interface {
	ResumeAll(ctx context.Context) (int, error)
	Stop()
	TaskQueue() string
}

// RunnerWorker resumes unfinished onboardings on start and suspends running
// ones on stop, leaving them RUNNING for the next process.
type RunnerWorker struct {
	runner Resumer
	logger *zap.Logger
}

// NewRunnerWorker creates a new RunnerWorker
func NewRunnerWorker(runner Resumer, logger *zap.Logger) *RunnerWorker {
	return &RunnerWorker{runner: runner, logger: logger.Named("worker")}
}

// Name implements Worker
func (w *RunnerWorker) Name() string {
	return "onboarding-runner:" + w.runner.TaskQueue()
}

// Start implements Worker
func (w *RunnerWorker) Start(ctx context.Context) error {
	n, err := w.runner.ResumeAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to resume onboardings: %w", err)
	}

	w.logger.Info("Worker listening",
		zap.String("task_queue", w.runner.TaskQueue()),
		zap.Int("resumed", n))
	return nil
}

// Stop implements Worker
func (w *RunnerWorker) Stop() {
	w.runner.Stop()
}
