package scheduler

import (
	"context"
	"testing"
	"time"

	"conductor/app/config"
	"conductor/app/db"
	"conductor/app/db/models"
	"conductor/app/objects"
	"conductor/app/workflow"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickResumesExpiredDelays(t *testing.T) {
	conn, err := db.Open(&db.Config{
		Connection: "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared",
		PoolSize:   1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := workflow.NewEngine(workflow.WithClock(func() time.Time { return clock }))
	ctx := contextx.NewUserContext(context.Background(), "acc-1", "starter", false)
	ctx.SetDB(conn)

	wf, err := engine.RunWorkflow(ctx, &objects.TemplateSpec{
		Name: "Wait first",
		Tasks: []*objects.TaskSpec{{
			APIName:    "t1",
			Delay:      "1h",
			Performers: []*objects.PerformerSpec{{Type: models.PerformerUser, ID: "u1"}},
		}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, states.DELAYED, wf.Status)

	s := NewScheduler(engine, config.SchedulerConfig{Interval: time.Minute})
	jobCtx := contextx.NewContext()
	jobCtx.SetDB(conn)

	n, err := s.Tick(jobCtx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = clock.Add(61 * time.Minute)
	n, err = s.Tick(jobCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resumed, tasks, err := engine.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, states.RUNNING, resumed.Status)
	assert.Equal(t, states.ACTIVE, tasks[0].Status)

	n, err = s.Tick(jobCtx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTickRefusesWhileLocked(t *testing.T) {
	conn, err := db.Open(&db.Config{
		Connection: "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared",
		PoolSize:   1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	ctx := contextx.NewContext()
	ctx.SetDB(conn)

	s := NewScheduler(workflow.NewEngine(), config.SchedulerConfig{Interval: time.Minute})
	err = objects.WithNamedLock(ctx, lockName, func() error {
		_, err := s.Tick(ctx)
		return err
	})
	assert.Error(t, err)
}

func TestTickReleasesStaleLock(t *testing.T) {
	conn, err := db.Open(&db.Config{
		Connection: "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared",
		PoolSize:   1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	ctx := contextx.NewContext()
	ctx.SetDB(conn)

	// left behind by a scheduler that died an hour ago
	abandoned := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, conn.Create(&models.NamedLock{
		ID:        uuid.NewString(),
		Name:      lockName,
		CreatedAt: abandoned,
		UpdatedAt: abandoned,
	}).Error)

	s := NewScheduler(workflow.NewEngine(), config.SchedulerConfig{Interval: time.Minute})
	n, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var left int64
	require.NoError(t, conn.Model(&models.NamedLock{}).Count(&left).Error)
	assert.Zero(t, left)
}
