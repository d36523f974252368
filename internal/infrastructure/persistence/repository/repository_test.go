package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/onboarding-workflow/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "onboarding.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, zap.NewNop()).RunMigrations(sqlite.Migrations, sqlite.MigrationsDir))
	return db
}

func newInstance(id string) *entity.OnboardingInstance {
	input := entity.NewOnboardingState(
		entity.Employee{ID: "emp0000057", Email: "suren@example.com", FirstName: "Suren", LastName: "Rodrigo"},
		entity.Duration(50*time.Second), entity.Duration(10*time.Second), 4,
	)
	state := input.Clone()
	now := time.Now().UTC().Truncate(time.Second)
	return &entity.OnboardingInstance{
		ID:            id,
		WorkflowName:  "SampleWorkflow",
		TaskQueue:     "sample-workflow",
		EmployeeID:    input.Employee.ID,
		EmployeeEmail: input.Employee.Email,
		Phase:         "AWAITING_FORM",
		Status:        entity.InstanceStatusRunning,
		Input:         &input,
		State:         &state,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

func TestInstanceRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepository(openTestDB(t).DB, zap.NewNop())

	require.NoError(t, repo.Create(ctx, newInstance("onboarding-emp0000057")))

	got, err := repo.GetByID(ctx, "onboarding-emp0000057")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "suren@example.com", got.EmployeeEmail)
	assert.Equal(t, entity.InstanceStatusRunning, got.Status)
	require.NotNil(t, got.Input)
	assert.Equal(t, 50*time.Second, got.Input.FormFillDeadline.Std())
	assert.False(t, got.FormFilledSignaled)
	assert.Nil(t, got.CompletedAt)

	state := got.State.Clone()
	state.WelcomeEmailSent = true
	state.RemindersSent = 2
	state.FollowUpTaskCreated = true
	state.FollowUpTask = &entity.FollowUpTask{ID: "t1", Name: "Follow up", Priority: entity.PriorityHigh, Status: entity.TaskStatusInProgress}
	require.NoError(t, repo.UpdateState(ctx, got.ID, "REMINDING", state))
	require.NoError(t, repo.MarkSignaled(ctx, got.ID))

	got, err = repo.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "REMINDING", got.Phase)
	assert.True(t, got.FormFilledSignaled)
	assert.Equal(t, 2, got.State.RemindersSent)
	require.NotNil(t, got.State.FollowUpTask)
	assert.Equal(t, entity.PriorityHigh, got.State.FollowUpTask.Priority)
	assert.False(t, got.Input.WelcomeEmailSent, "input must keep the submitted state")

	finished := time.Now().UTC()
	require.NoError(t, repo.Finish(ctx, got.ID, entity.InstanceStatusCompleted, "", finished))

	got, err = repo.GetByID(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestInstanceRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepository(openTestDB(t).DB, zap.NewNop())

	got, err := repo.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, repo.UpdateState(ctx, "missing", "REMINDING", entity.OnboardingState{}))
	assert.NoError(t, repo.MarkSignaled(ctx, "missing"))
}

func TestInstanceRepository_MarkSignaledIgnoresFinished(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepository(openTestDB(t).DB, zap.NewNop())

	require.NoError(t, repo.Create(ctx, newInstance("done")))
	require.NoError(t, repo.Finish(ctx, "done", entity.InstanceStatusCompleted, "", time.Now().UTC()))
	require.NoError(t, repo.MarkSignaled(ctx, "done"))

	got, err := repo.GetByID(ctx, "done")
	require.NoError(t, err)
	assert.False(t, got.FormFilledSignaled)
}

func TestInstanceRepository_ListByStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceRepository(openTestDB(t).DB, zap.NewNop())

	running := newInstance("a")
	other := newInstance("b")
	other.TaskQueue = "other-queue"
	done := newInstance("c")
	for _, inst := range []*entity.OnboardingInstance{running, other, done} {
		require.NoError(t, repo.Create(ctx, inst))
	}
	require.NoError(t, repo.Finish(ctx, "c", entity.InstanceStatusFailed, "boom", time.Now().UTC()))

	list, err := repo.ListByStatus(ctx, "sample-workflow", entity.InstanceStatusRunning)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].ID)

	all, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestHistoryRepository_AppendAndList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	instances := NewInstanceRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())

	require.NoError(t, instances.Create(ctx, newInstance("h1")))

	now := time.Now().UTC()
	for seq, name := range []string{"SendWelcomeEmail", "FormFillDeadline", "FormFillDeadline"} {
		kind := entity.HistoryActivity
		if seq > 0 {
			kind = entity.HistoryTimerStarted
		}
		require.NoError(t, history.Append(ctx, &entity.HistoryEvent{
			InstanceID: "h1",
			Seq:        seq + 1,
			Kind:       kind,
			Name:       name,
			Payload:    []byte(`{"n":1}`),
			RecordedAt: now,
		}))
	}

	err := history.Append(ctx, &entity.HistoryEvent{InstanceID: "h1", Seq: 2, Kind: entity.HistoryRaceResolved, Name: "x", RecordedAt: now})
	assert.Error(t, err, "duplicate seq must be rejected")

	events, err := history.ListByInstance(ctx, "h1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, evt := range events {
		assert.Equal(t, i+1, evt.Seq)
	}
	assert.Equal(t, entity.HistoryActivity, events[0].Kind)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Payload))

	empty, err := history.ListByInstance(ctx, "none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTaskRepository_CreateUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(openTestDB(t).DB, zap.NewNop())

	now := time.Now().UTC()
	task := &entity.TrackedTask{
		FollowUpTask: entity.FollowUpTask{ID: "task-1", Name: "Follow up", Priority: entity.PriorityNormal, Status: entity.TaskStatusNew},
		InstanceID:   "onboarding-1",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.Create(ctx, task))

	byInstance, err := repo.GetByInstanceID(ctx, "onboarding-1")
	require.NoError(t, err)
	require.NotNil(t, byInstance)
	assert.Equal(t, "task-1", byInstance.ID)

	task.Priority = entity.PriorityCritical
	task.Status = entity.TaskStatusInProgress
	task.UpdatedAt = now.Add(time.Second)
	require.NoError(t, repo.Update(ctx, task))

	got, err := repo.GetByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, entity.PriorityCritical, got.Priority)
	assert.Equal(t, entity.TaskStatusInProgress, got.Status)

	missing, err := repo.GetByID(ctx, "task-2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, repo.Update(ctx, &entity.TrackedTask{FollowUpTask: entity.FollowUpTask{ID: "task-2", Priority: entity.PriorityNormal, Status: entity.TaskStatusNew}}))
}

func TestMessageRepository_CreateAssignsID(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(openTestDB(t).DB, zap.NewNop())

	first := &entity.SentMessage{InstanceID: "m1", Kind: entity.MessageWelcome, Recipient: "suren@example.com", Subject: "Welcome", SentAt: time.Now().UTC()}
	second := &entity.SentMessage{InstanceID: "m1", Kind: entity.MessageReminder, Recipient: "suren@example.com", SentAt: time.Now().UTC()}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))
	assert.Greater(t, second.ID, first.ID)

	list, err := repo.ListByInstance(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, entity.MessageWelcome, list[0].Kind)
	assert.Equal(t, "", list[1].Subject)
}

func TestWithTransaction_RollsBackRepositoryWrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	tx := sqlite.NewDB(db.DB, zap.NewNop())
	instances := NewInstanceRepository(db.DB, zap.NewNop())
	history := NewHistoryRepository(db.DB, zap.NewNop())

	require.NoError(t, instances.Create(ctx, newInstance("tx")))

	boom := errors.New("boom")
	err := tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := history.Append(txCtx, &entity.HistoryEvent{InstanceID: "tx", Seq: 1, Kind: entity.HistoryActivity, Name: "SendWelcomeEmail", RecordedAt: time.Now()}); err != nil {
			return err
		}
		if err := instances.UpdateState(txCtx, "tx", "REMINDING", entity.OnboardingState{RemindersSent: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	events, err := history.ListByInstance(ctx, "tx")
	require.NoError(t, err)
	assert.Empty(t, events)

	got, err := instances.GetByID(ctx, "tx")
	require.NoError(t, err)
	assert.Equal(t, "AWAITING_FORM", got.Phase)

	require.NoError(t, tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return history.Append(txCtx, &entity.HistoryEvent{InstanceID: "tx", Seq: 1, Kind: entity.HistoryActivity, Name: "SendWelcomeEmail", RecordedAt: time.Now()})
	}))
	events, err = history.ListByInstance(ctx, "tx")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
