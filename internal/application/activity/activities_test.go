package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/application/port"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMailer struct {
	sent    []port.Message
	sendErr error
}

func (m *mockMailer) Send(ctx context.Context, msg port.Message) (string, error) {
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, msg)
	return "msg-" + string(rune('0'+len(m.sent))), nil
}

type mockComposer struct{}

func (m *mockComposer) Compose(ctx context.Context, kind entity.MessageKind, state entity.OnboardingState) (port.Message, error) {
	return port.Message{To: state.Employee.Email, Subject: string(kind), Body: state.Employee.FullName()}, nil
}

type mockTracker struct {
	created   []entity.FollowUpTask
	updated   []entity.FollowUpTask
	completed []string
	createErr error
}

func (m *mockTracker) CreateTask(ctx context.Context, instanceID string, task entity.FollowUpTask) (entity.FollowUpTask, error) {
	if m.createErr != nil {
		return entity.FollowUpTask{}, m.createErr
	}
	task.ID = "task-1"
	m.created = append(m.created, task)
	return task, nil
}

func (m *mockTracker) UpdateTask(ctx context.Context, task entity.FollowUpTask) (entity.FollowUpTask, error) {
	m.updated = append(m.updated, task)
	return task, nil
}

func (m *mockTracker) CompleteTask(ctx context.Context, taskID string) (entity.FollowUpTask, error) {
	m.completed = append(m.completed, taskID)
	return entity.FollowUpTask{ID: taskID, Priority: entity.PriorityCritical, Status: entity.TaskStatusCompleted}, nil
}

type mockMessageRepo struct {
	records []*entity.SentMessage
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *entity.SentMessage) error {
	m.records = append(m.records, msg)
	return nil
}

func (m *mockMessageRepo) ListByInstance(ctx context.Context, instanceID string) ([]*entity.SentMessage, error) {
	return m.records, nil
}

func newTestActivities() (*Activities, *mockMailer, *mockTracker, *mockMessageRepo) {
	mailer := &mockMailer{}
	tracker := &mockTracker{}
	messages := &mockMessageRepo{}
	return New(mailer, &mockComposer{}, tracker, zap.NewNop(), WithMessageRepository(messages)), mailer, tracker, messages
}

func initialState() entity.OnboardingState {
	return entity.NewOnboardingState(
		entity.Employee{ID: "emp0000057", Email: "suren@example.com", FirstName: "Suren", LastName: "Rodrigo"},
		entity.Duration(50*time.Second), entity.Duration(10*time.Second), 4,
	)
}

func TestSendWelcomeEmail(t *testing.T) {
	acts, mailer, _, messages := newTestActivities()
	ctx := port.WithActivityInfo(context.Background(), port.ActivityInfo{InstanceID: "onboarding-emp0000057"})

	in := initialState()
	out, err := acts.SendWelcomeEmail(ctx, in)
	require.NoError(t, err)

	assert.True(t, out.WelcomeEmailSent)
	assert.False(t, in.WelcomeEmailSent, "input must not be mutated")
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "suren@example.com", mailer.sent[0].To)
	require.Len(t, messages.records, 1)
	assert.Equal(t, "onboarding-emp0000057", messages.records[0].InstanceID)
	assert.Equal(t, entity.MessageWelcome, messages.records[0].Kind)

	again, err := acts.SendWelcomeEmail(ctx, out)
	require.NoError(t, err)
	assert.True(t, again.WelcomeEmailSent)
	assert.Len(t, mailer.sent, 1, "second call must be a no-op")
}

func TestSendWelcomeEmail_MailerFailureLeavesStateUnchanged(t *testing.T) {
	acts, mailer, _, _ := newTestActivities()
	mailer.sendErr = errors.New("smtp down")

	in := initialState()
	out, err := acts.SendWelcomeEmail(context.Background(), in)
	require.Error(t, err)
	assert.False(t, out.WelcomeEmailSent)
}

func TestSendThankyouEmail(t *testing.T) {
	acts, mailer, _, _ := newTestActivities()

	_, err := acts.SendThankyouEmail(context.Background(), initialState())
	assert.ErrorIs(t, err, ErrFormNotFilled)
	assert.Empty(t, mailer.sent)

	in := initialState()
	in.FormFilled = true
	out, err := acts.SendThankyouEmail(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, out.ThankyouEmailSent)

	_, err = acts.SendThankyouEmail(context.Background(), out)
	require.NoError(t, err)
	assert.Len(t, mailer.sent, 1)
}

func TestSendReminderEmail_AlwaysSends(t *testing.T) {
	acts, mailer, _, _ := newTestActivities()

	state := initialState()
	for i := 1; i <= 3; i++ {
		var err error
		state, err = acts.SendReminderEmail(context.Background(), state)
		require.NoError(t, err)
		assert.Equal(t, i, state.RemindersSent)
	}
	assert.Len(t, mailer.sent, 3)
}

func TestSendReminderEmail_RefreshesOpenTaskPriority(t *testing.T) {
	acts, _, _, _ := newTestActivities()
	ctx := context.Background()

	state := initialState()
	state.RemindersSent = 1
	state.FollowUpTaskCreated = true
	state.FollowUpTask = &entity.FollowUpTask{ID: "task-1", Priority: entity.PriorityNormal, Status: entity.TaskStatusNew}

	out, err := acts.SendReminderEmail(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, 2, out.RemindersSent)
	assert.Equal(t, entity.PriorityHigh, out.FollowUpTask.Priority)
	assert.NoError(t, out.CheckInvariants())
	assert.Equal(t, entity.PriorityNormal, state.FollowUpTask.Priority, "input must not be mutated")

	state.FollowUpTask.Status = entity.TaskStatusCompleted
	out, err = acts.SendReminderEmail(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, entity.PriorityNormal, out.FollowUpTask.Priority)
}

func TestCreateOrUpdateFollowUpTask(t *testing.T) {
	acts, _, tracker, _ := newTestActivities()
	ctx := context.Background()

	state := initialState()
	state.RemindersSent = 1

	state, err := acts.CreateOrUpdateFollowUpTask(ctx, state)
	require.NoError(t, err)
	require.Len(t, tracker.created, 1)
	assert.True(t, state.FollowUpTaskCreated)
	require.NotNil(t, state.FollowUpTask)
	assert.Equal(t, "Follow up: Suren Rodrigo has not completed the new employee form", state.FollowUpTask.Name)
	assert.Equal(t, entity.PriorityNormal, state.FollowUpTask.Priority)
	assert.Equal(t, entity.TaskStatusNew, state.FollowUpTask.Status)

	state.RemindersSent = 2
	state, err = acts.CreateOrUpdateFollowUpTask(ctx, state)
	require.NoError(t, err)
	assert.Len(t, tracker.created, 1, "existing task must be updated, not recreated")
	require.Len(t, tracker.updated, 1)
	assert.Equal(t, entity.PriorityHigh, state.FollowUpTask.Priority)
	assert.Equal(t, entity.TaskStatusInProgress, state.FollowUpTask.Status)

	state.RemindersSent = 3
	state, err = acts.CreateOrUpdateFollowUpTask(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, entity.PriorityCritical, state.FollowUpTask.Priority)
	assert.NoError(t, state.CheckInvariants())
}

func TestCreateOrUpdateFollowUpTask_TrackerFailure(t *testing.T) {
	acts, _, tracker, _ := newTestActivities()
	tracker.createErr = errors.New("ticketing unavailable")

	in := initialState()
	out, err := acts.CreateOrUpdateFollowUpTask(context.Background(), in)
	require.Error(t, err)
	assert.False(t, out.FollowUpTaskCreated)
	assert.Nil(t, out.FollowUpTask)
}

func TestCompleteFollowUpTask(t *testing.T) {
	acts, _, tracker, _ := newTestActivities()

	out, err := acts.CompleteFollowUpTask(context.Background(), initialState())
	require.NoError(t, err)
	assert.Nil(t, out.FollowUpTask)
	assert.Empty(t, tracker.completed, "no task means nothing to complete")

	in := initialState()
	in.RemindersSent = 3
	in.FollowUpTaskCreated = true
	in.FollowUpTask = &entity.FollowUpTask{ID: "task-1", Priority: entity.PriorityCritical, Status: entity.TaskStatusInProgress}

	out, err = acts.CompleteFollowUpTask(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusCompleted, out.FollowUpTask.Status)
	assert.Equal(t, entity.TaskStatusInProgress, in.FollowUpTask.Status, "input task must not be mutated")
	assert.Equal(t, []string{"task-1"}, tracker.completed)

	_, err = acts.CompleteFollowUpTask(context.Background(), out)
	require.NoError(t, err)
	assert.Len(t, tracker.completed, 1)
}
