package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/onboarding-workflow/internal/application/dispatcher"
	"github.com/garyjia/onboarding-workflow/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *recordingWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.log = append(*w.log, "start:"+w.name)
	return nil
}

func (w *recordingWorker) Stop() { *w.log = append(*w.log, "stop:"+w.name) }

func (w *recordingWorker) Name() string { return w.name }

func TestManager_StartStopOrder(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	m.Register(&recordingWorker{name: "a", log: &log})
	m.Register(&recordingWorker{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	m.StopAll()
	m.StopAll()

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
	assert.Equal(t, 2, m.Count())
}

func TestManager_StartFailureStopsStarted(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	m.Register(&recordingWorker{name: "a", log: &log})
	m.Register(&recordingWorker{name: "b", log: &log, startErr: errors.New("boom")})
	m.Register(&recordingWorker{name: "c", log: &log})

	require.Error(t, m.StartAll(context.Background()))
	assert.Equal(t, []string{"start:a", "stop:a"}, log)
}

type fakeRunner struct {
	resumed int
	err     error
	stopped bool
}

func (f *fakeRunner) ResumeAll(ctx context.Context) (int, error) { return f.resumed, f.err }
func (f *fakeRunner) Stop()                                      { f.stopped = true }
func (f *fakeRunner) TaskQueue() string                          { return "sample-workflow" }

func TestRunnerWorker(t *testing.T) {
	r := &fakeRunner{resumed: 3}
	w := NewRunnerWorker(r, zap.NewNop())

	assert.Equal(t, "onboarding-runner:sample-workflow", w.Name())
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	assert.True(t, r.stopped)

	failing := NewRunnerWorker(&fakeRunner{err: errors.New("db down")}, zap.NewNop())
	assert.Error(t, failing.Start(context.Background()))
}

func TestEscalationNotifier_SubscribesWhileStarted(t *testing.T) {
	d := dispatcher.NewDispatcher()
	var notified []string
	n := NewEscalationNotifier(d, func(ctx context.Context, evt *event.Event) error {
		notified = append(notified, evt.InstanceID)
		return nil
	}, zap.NewNop())

	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeOnboardingEscalated, "onboarding-1", nil)))
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeOnboardingCompleted, "onboarding-2", nil)))

	n.Stop()
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeOnboardingEscalated, "onboarding-3", nil)))

	assert.Equal(t, []string{"onboarding-1"}, notified)
	assert.Empty(t, d.ListHandlers(event.TypeOnboardingEscalated))
}

func TestEscalationNotifier_PropagatesErrors(t *testing.T) {
	d := dispatcher.NewDispatcher()
	n := NewEscalationNotifier(d, func(ctx context.Context, evt *event.Event) error {
		return errors.New("mail down")
	}, zap.NewNop())
	require.NoError(t, n.Start(context.Background()))

	assert.Error(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeOnboardingEscalated, "onboarding-1", nil)))
}
