package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"conductor/app/db"
	"conductor/app/db/models"
	"conductor/app/objects"
	"conductor/app/workflow/data_flow"
	"conductor/app/workflow/interfaces"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAccount = "acc-1"

type fixture struct {
	t      *testing.T
	conn   *gorm.DB
	engine *Engine
	clock  time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	conn, err := db.Open(&db.Config{
		Connection: "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared",
		PoolSize:   1,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})

	f := &fixture{t: t, conn: conn, clock: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(func() time.Time { return f.clock })}, opts...)
	f.engine = NewEngine(opts...)
	return f
}

func (f *fixture) as(userID string) *contextx.Context {
	ctx := contextx.NewUserContext(context.Background(), testAccount, userID, false)
	ctx.SetDB(f.conn)
	return ctx
}

func (f *fixture) asOwner(userID string) *contextx.Context {
	ctx := contextx.NewUserContext(context.Background(), testAccount, userID, true)
	ctx.SetDB(f.conn)
	return ctx
}

func (f *fixture) run(spec *objects.TemplateSpec, kickoff map[string]string) *objects.Workflow {
	wf, err := f.engine.RunWorkflow(f.as("starter"), spec, kickoff)
	require.NoError(f.t, err)
	return wf
}

func (f *fixture) load(wfID string) (*objects.Workflow, map[string]*objects.Task) {
	wf, tasks, err := f.engine.GetWorkflow(f.as("starter"), wfID)
	require.NoError(f.t, err)
	byName := map[string]*objects.Task{}
	for _, t := range tasks {
		byName[t.APIName] = t
	}
	assertStatusInvariant(f.t, wf, tasks)
	return wf, byName
}

func (f *fixture) statuses(wfID string) map[string]string {
	_, tasks := f.load(wfID)
	out := map[string]string{}
	for name, t := range tasks {
		out[name] = t.Status
	}
	return out
}

func (f *fixture) complete(userID, wfID, apiName string) error {
	_, tasks := f.load(wfID)
	return f.engine.CompleteTask(f.as(userID), wfID, tasks[apiName].ID, nil)
}

func (f *fixture) intents(wfID, kind string) []*objects.OutboxIntent {
	all, err := objects.QueryIntentsByWorkflow(f.as("starter"), wfID)
	require.NoError(f.t, err)
	var out []*objects.OutboxIntent
	for _, i := range all {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

func (f *fixture) events(wfID, kind string) []*objects.Event {
	all, err := objects.QueryEvents(f.as("starter"), wfID)
	require.NoError(f.t, err)
	var out []*objects.Event
	for _, e := range all {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// assertStatusInvariant checks the workflow status against its tasks.
func assertStatusInvariant(t *testing.T, wf *objects.Workflow, tasks []*objects.Task) {
	open, active, delayed := 0, 0, 0
	for _, task := range tasks {
		if states.IsOpen(task.Status) {
			open++
		}
		switch task.Status {
		case states.ACTIVE:
			active++
		case states.DELAYED:
			delayed++
		}
	}
	switch wf.Status {
	case states.DONE:
		assert.Zero(t, open, "done workflow has open tasks")
	case states.DELAYED:
		assert.Zero(t, active)
		assert.NotZero(t, delayed)
	default:
		assert.NotZero(t, open, "running workflow has no open task")
		assert.False(t, active == 0 && delayed > 0, "running workflow should be delayed")
	}
}

func userTask(apiName, user string, parents ...string) *objects.TaskSpec {
	t := &objects.TaskSpec{APIName: apiName, Name: "Task " + apiName, Parents: parents}
	if user != "" {
		t.Performers = []*objects.PerformerSpec{{Type: models.PerformerUser, ID: user}}
	}
	return t
}

func linearTemplate() *objects.TemplateSpec {
	return &objects.TemplateSpec{
		ID:   "tpl-linear",
		Name: "Linear",
		Tasks: []*objects.TaskSpec{
			userTask("t1", "u1"),
			userTask("t2", "u2", "t1"),
			userTask("t3", "u3", "t2"),
		},
	}
}

func TestLinearWorkflow(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)

	assert.Equal(t, map[string]string{"t1": states.ACTIVE, "t2": states.PENDING, "t3": states.PENDING}, f.statuses(wf.ID))

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "t2": states.ACTIVE, "t3": states.PENDING}, f.statuses(wf.ID))

	require.NoError(t, f.complete("u2", wf.ID, "t2"))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t3"])

	f.clock = f.clock.Add(time.Hour)
	require.NoError(t, f.complete("u3", wf.ID, "t3"))

	done, tasks := f.load(wf.ID)
	assert.Equal(t, states.DONE, done.Status)
	require.NotNil(t, done.DateCompleted)
	assert.WithinDuration(t, f.clock, *done.DateCompleted, time.Second)
	for _, task := range tasks {
		assert.Equal(t, states.COMPLETED, task.Status)
		assert.NotNil(t, task.DateCompleted)
	}
	assert.Len(t, f.events(wf.ID, objects.EventWorkflowComplete), 1)
	assert.Len(t, f.events(wf.ID, objects.EventTaskCompleted), 3)

	err := f.complete("u3", wf.ID, "t3")
	assert.ErrorIs(t, err, ErrWorkflowCompleted)
}

func TestRenderDescriptionAndOutputs(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[1].Description = "Approve {{ .amount }} for {{ .client }}"
	wf := f.run(spec, map[string]string{"client": "ACME"})

	_, tasks := f.load(wf.ID)
	require.NoError(t, f.engine.CompleteTask(f.as("u1"), wf.ID, tasks["t1"].ID, map[string]string{"amount": "1500"}))

	_, tasks = f.load(wf.ID)
	assert.Equal(t, "1500", tasks["t1"].Output["amount"])
	assert.Equal(t, "Approve 1500 for ACME", tasks["t2"].DescriptionRendered)
}

func TestCompleteTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[0].Performers = append(spec.Tasks[0].Performers, &objects.PerformerSpec{Type: models.PerformerUser, ID: "u9"})
	wf := f.run(spec, nil)

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	assert.ErrorIs(t, f.complete("u1", wf.ID, "t1"), ErrTaskAlreadyCompleted)
	assert.ErrorIs(t, f.complete("u9", wf.ID, "t1"), ErrTaskAlreadyCompleted)
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t2"])
}

func TestAllPolicyWaitsForEveryPerformer(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[0].RequireCompletionByAll = true
	spec.Tasks[0].Performers = append(spec.Tasks[0].Performers, &objects.PerformerSpec{Type: models.PerformerUser, ID: "u9"})
	wf := f.run(spec, nil)

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	before, _ := f.load(wf.ID)
	assert.Equal(t, map[string]string{"t1": states.ACTIVE, "t2": states.PENDING, "t3": states.PENDING}, f.statuses(wf.ID))

	assert.ErrorIs(t, f.complete("u1", wf.ID, "t1"), ErrPerformerAlreadyCompleted)
	after, _ := f.load(wf.ID)
	assert.Equal(t, before.Version, after.Version)

	require.NoError(t, f.complete("u9", wf.ID, "t1"))
	assert.Equal(t, states.COMPLETED, f.statuses(wf.ID)["t1"])
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t2"])
}

func TestAllPolicyWithGroupPerformer(t *testing.T) {
	f := newFixture(t)
	spec := &objects.TemplateSpec{
		Name:   "Review",
		Groups: map[string][]string{"reviewers": {"u2", "u3"}},
		Tasks: []*objects.TaskSpec{{
			APIName:                "review",
			RequireCompletionByAll: true,
			Performers: []*objects.PerformerSpec{
				{Type: models.PerformerUser, ID: "u1"},
				{Type: models.PerformerGroup, ID: "reviewers"},
			},
		}},
	}
	wf := f.run(spec, nil)

	require.NoError(t, f.complete("u2", wf.ID, "review"))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["review"])
	assert.ErrorIs(t, f.complete("u3", wf.ID, "review"), ErrPerformerAlreadyCompleted)

	require.NoError(t, f.complete("u1", wf.ID, "review"))
	done, _ := f.load(wf.ID)
	assert.Equal(t, states.DONE, done.Status)
}

func TestCompleteTaskValidation(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	_, tasks := f.load(wf.ID)

	assert.ErrorIs(t, f.complete("u9", wf.ID, "t1"), ErrUserNotPerformer)
	assert.ErrorIs(t, f.complete("u2", wf.ID, "t2"), ErrTaskNotActive)
	assert.ErrorIs(t, f.engine.CompleteTask(f.as("u1"), wf.ID, "missing", nil), ErrTaskNotFound)
	assert.ErrorIs(t, f.engine.CompleteTask(f.as("u1"), "missing", tasks["t1"].ID, nil), ErrWorkflowNotFound)

	other := contextx.NewUserContext(context.Background(), "acc-2", "u1", false)
	other.SetDB(f.conn)
	assert.ErrorIs(t, f.engine.CompleteTask(other, wf.ID, tasks["t1"].ID, nil), ErrWorkflowNotFound)

	// the account owner may complete a task on behalf of its performers
	require.NoError(t, f.engine.CompleteTask(f.asOwner("boss"), wf.ID, tasks["t1"].ID, nil))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t2"])
}

func TestChecklistMustBeMarked(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[0].Checklists = 2
	wf := f.run(spec, nil)
	_, tasks := f.load(wf.ID)

	assert.ErrorIs(t, f.complete("u1", wf.ID, "t1"), ErrChecklistIncomplete)
	require.NoError(t, f.engine.MarkChecklistItems(f.as("u1"), wf.ID, tasks["t1"].ID, 2))
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
}

func TestRevertRoundTrip(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	require.NoError(t, f.complete("u2", wf.ID, "t2"))

	_, tasks := f.load(wf.ID)
	require.NoError(t, f.engine.RevertTask(f.as("u3"), wf.ID, tasks["t3"].ID, "numbers are wrong"))

	reverted, tasks := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, reverted.Status)
	assert.Nil(t, reverted.DateCompleted)
	assert.Equal(t, states.COMPLETED, tasks["t1"].Status)
	assert.Equal(t, states.ACTIVE, tasks["t2"].Status)
	assert.Nil(t, tasks["t2"].DateCompleted)
	assert.Equal(t, states.PENDING, tasks["t3"].Status)
	assert.Nil(t, tasks["t3"].DateStarted)

	events := f.events(wf.ID, objects.EventTaskReverted)
	require.Len(t, events, 1)
	assert.Equal(t, "numbers are wrong", events[0].Text)
	assert.NotEmpty(t, f.intentsOfEvent(wf.ID, NotifyReturnedTask))

	// the returned task can be completed again by its performer
	require.NoError(t, f.complete("u2", wf.ID, "t2"))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t3"])
}

func (f *fixture) intentsOfEvent(wfID, event string) []*objects.OutboxIntent {
	var out []*objects.OutboxIntent
	for _, kind := range []string{models.IntentNotification, models.IntentWebhook, models.IntentAnalytics, models.IntentGuestCache} {
		for _, i := range f.intents(wfID, kind) {
			if i.Event == event {
				out = append(out, i)
			}
		}
	}
	return out
}

func TestRevertErrors(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	_, tasks := f.load(wf.ID)

	assert.ErrorIs(t, f.engine.RevertTask(f.as("u1"), wf.ID, tasks["t1"].ID, ""), ErrRevertFirstTask)
	assert.ErrorIs(t, f.engine.RevertTask(f.as("u2"), wf.ID, tasks["t2"].ID, ""), ErrRevertInactiveTask)

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	assert.ErrorIs(t, f.engine.RevertTask(f.as("u9"), wf.ID, tasks["t2"].ID, ""), ErrUserNotPerformer)
}

func TestRevertToPermanentlySkippedTask(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[0].Conditions = []*objects.ConditionSpec{{Action: models.ConditionSkipTask, Rules: []string{"skip_intro"}}}
	wf := f.run(spec, map[string]string{"skip_intro": "yes"})

	_, tasks := f.load(wf.ID)
	assert.Equal(t, states.SKIPPED, tasks["t1"].Status)
	assert.Equal(t, states.ACTIVE, tasks["t2"].Status)

	err := f.engine.RevertTask(f.as("u2"), wf.ID, tasks["t2"].ID, "")
	assert.ErrorIs(t, err, ErrRevertSkippedTask)
}

func TestRevertWalksPastSkippedTask(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[1].Conditions = []*objects.ConditionSpec{{Action: models.ConditionSkipTask, Rules: []string{"fast_track"}}}
	wf := f.run(spec, map[string]string{"fast_track": "yes"})
	require.NoError(t, f.complete("u1", wf.ID, "t1"))

	_, tasks := f.load(wf.ID)
	assert.Equal(t, states.SKIPPED, tasks["t2"].Status)
	require.NoError(t, f.engine.RevertTask(f.as("u3"), wf.ID, tasks["t3"].ID, ""))

	assert.Equal(t, map[string]string{"t1": states.ACTIVE, "t2": states.SKIPPED, "t3": states.PENDING}, f.statuses(wf.ID))

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "t2": states.SKIPPED, "t3": states.ACTIVE}, f.statuses(wf.ID))
}

func TestRevertToExplicitTarget(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[2].RevertTask = "t1"
	wf := f.run(spec, nil)
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	require.NoError(t, f.complete("u2", wf.ID, "t2"))

	_, tasks := f.load(wf.ID)
	require.NoError(t, f.engine.RevertTask(f.as("u3"), wf.ID, tasks["t3"].ID, "start over"))
	assert.Equal(t, map[string]string{"t1": states.ACTIVE, "t2": states.PENDING, "t3": states.PENDING}, f.statuses(wf.ID))

	events := f.events(wf.ID, objects.EventTaskReverted)
	require.Len(t, events, 1)
	assert.Equal(t, []interface{}{tasks["t1"].ID}, events[0].Payload["targets"])
}

func TestRevertTargetCycleThroughSkippedTask(t *testing.T) {
	f := newFixture(t)
	spec := &objects.TemplateSpec{
		Name: "Loop",
		Tasks: []*objects.TaskSpec{
			userTask("y", "u2"),
			userTask("z", "u3", "y"),
		},
	}
	spec.Tasks[0].RevertTask = "z"
	spec.Tasks[0].Conditions = []*objects.ConditionSpec{{Action: models.ConditionSkipTask, Rules: []string{"fast_track"}}}
	spec.Tasks[1].RevertTask = "y"
	wf := f.run(spec, map[string]string{"fast_track": "yes"})
	assert.Equal(t, map[string]string{"y": states.SKIPPED, "z": states.ACTIVE}, f.statuses(wf.ID))

	_, tasks := f.load(wf.ID)
	err := f.engine.RevertTask(f.as("u3"), wf.ID, tasks["z"].ID, "")
	assert.ErrorIs(t, err, ErrRevertSkippedTask)
	assert.Equal(t, map[string]string{"y": states.SKIPPED, "z": states.ACTIVE}, f.statuses(wf.ID))
}

func TestRevertKeepsOneActiveTaskPerPath(t *testing.T) {
	f := newFixture(t)
	spec := &objects.TemplateSpec{
		Name: "Diamond",
		Tasks: []*objects.TaskSpec{
			userTask("t1", "u1"),
			userTask("a", "u2", "t1"),
			userTask("b", "u3", "t1"),
			userTask("j", "u4", "a", "b"),
		},
	}
	spec.Tasks[1].Conditions = []*objects.ConditionSpec{{Action: models.ConditionSkipTask, Rules: []string{"fast_track"}}}
	wf := f.run(spec, map[string]string{"fast_track": "yes"})
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	require.NoError(t, f.complete("u3", wf.ID, "b"))
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "a": states.SKIPPED, "b": states.COMPLETED, "j": states.ACTIVE}, f.statuses(wf.ID))

	// a is skipped, so j goes back past it to t1; b sits below t1 and is
	// rolled back instead of being re-run next to it
	_, tasks := f.load(wf.ID)
	require.NoError(t, f.engine.RevertTask(f.as("u4"), wf.ID, tasks["j"].ID, ""))
	assert.Equal(t, map[string]string{"t1": states.ACTIVE, "a": states.SKIPPED, "b": states.PENDING, "j": states.PENDING}, f.statuses(wf.ID))

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "a": states.SKIPPED, "b": states.ACTIVE, "j": states.PENDING}, f.statuses(wf.ID))
	require.NoError(t, f.complete("u3", wf.ID, "b"))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["j"])
}

func TestEndWorkflowBeatsSkip(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[1].Conditions = []*objects.ConditionSpec{
		{Action: models.ConditionSkipTask, Rules: []string{"rejected"}},
		{Action: models.ConditionEndWorkflow, Rules: []string{"rejected"}},
	}
	wf := f.run(spec, nil)

	_, tasks := f.load(wf.ID)
	require.NoError(t, f.engine.CompleteTask(f.as("u1"), wf.ID, tasks["t1"].ID, map[string]string{"rejected": "yes"}))

	done, _ := f.load(wf.ID)
	assert.Equal(t, states.DONE, done.Status)
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "t2": states.SKIPPED, "t3": states.SKIPPED}, f.statuses(wf.ID))
	assert.Len(t, f.events(wf.ID, objects.EventWorkflowEnded), 1)
}

func TestTaskWithoutPerformersIsSkipped(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[0].Performers = nil
	wf := f.run(spec, nil)

	assert.Equal(t, map[string]string{"t1": states.SKIPPED, "t2": states.ACTIVE, "t3": states.PENDING}, f.statuses(wf.ID))
}

func TestStarterGetsSignalForFirstTask(t *testing.T) {
	f := newFixture(t)
	spec := &objects.TemplateSpec{
		Name: "Self service",
		Tasks: []*objects.TaskSpec{
			{APIName: "fill", StarterIsPerformer: true, Performers: []*objects.PerformerSpec{{Type: models.PerformerUser, ID: "u1"}}},
		},
	}
	wf := f.run(spec, nil)

	signals := f.intentsOfEvent(wf.ID, NotifyNewTaskSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, []string{"starter"}, []string(signals[0].Recipients))

	newTask := f.intentsOfEvent(wf.ID, NotifyNewTask)
	require.Len(t, newTask, 1)
	assert.Equal(t, []string{"u1"}, []string(newTask[0].Recipients))
}

func TestTemplateDelayAndForceResume(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[1].Delay = "1h"
	wf := f.run(spec, nil)
	start := f.clock

	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	delayed, tasks := f.load(wf.ID)
	assert.Equal(t, states.DELAYED, delayed.Status)
	assert.Equal(t, states.DELAYED, tasks["t2"].Status)
	assert.ErrorIs(t, f.complete("u2", wf.ID, "t2"), ErrWorkflowDelayed)

	f.clock = start.Add(10 * time.Minute)
	require.NoError(t, f.engine.ForceResumeWorkflow(f.as("boss"), wf.ID))

	resumed, tasks := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, resumed.Status)
	assert.Equal(t, states.ACTIVE, tasks["t2"].Status)
	require.NotNil(t, tasks["t2"].DateStarted)
	assert.WithinDuration(t, f.clock, *tasks["t2"].DateStarted, time.Second)

	delays, err := objects.QueryDelaysByTask(f.as("boss"), tasks["t2"].ID)
	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, int64(3600), delays[0].Duration)
	require.NotNil(t, delays[0].StartDate)
	assert.WithinDuration(t, start, *delays[0].StartDate, time.Second)
	require.NotNil(t, delays[0].EndDate)
	assert.WithinDuration(t, f.clock, *delays[0].EndDate, time.Second)

	assert.Len(t, f.events(wf.ID, objects.EventWorkflowResumed), 1)
	assert.NotEmpty(t, f.intentsOfEvent(wf.ID, NotifyResumedWorkflow))

	// resuming a running workflow changes nothing
	require.NoError(t, f.engine.ForceResumeWorkflow(f.as("boss"), wf.ID))
	assert.Len(t, f.events(wf.ID, objects.EventWorkflowResumed), 1)
}

func TestUpdateTasksStatusResumesExpiredDelay(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[1].Delay = "1h"
	wf := f.run(spec, nil)
	start := f.clock
	require.NoError(t, f.complete("u1", wf.ID, "t1"))

	f.clock = start.Add(30 * time.Minute)
	expired, err := objects.QueryWorkflowsWithExpiredDelays(f.as("system"), f.clock)
	require.NoError(t, err)
	assert.Empty(t, expired)
	require.NoError(t, f.engine.UpdateTasksStatus(f.as("system"), wf.ID))
	assert.Equal(t, states.DELAYED, f.statuses(wf.ID)["t2"])

	f.clock = start.Add(2 * time.Hour)
	expired, err = objects.QueryWorkflowsWithExpiredDelays(f.as("system"), f.clock)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, wf.ID, expired[0].ID)

	require.NoError(t, f.engine.UpdateTasksStatus(f.as("system"), wf.ID))
	running, tasks := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, running.Status)
	assert.Equal(t, states.ACTIVE, tasks["t2"].Status)
}

func TestExpiredForcedDelayResumesWithoutRestart(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	require.NoError(t, f.engine.ForceDelayWorkflow(f.as("boss"), wf.ID, f.clock.Add(time.Hour)))
	assert.Equal(t, states.DELAYED, f.statuses(wf.ID)["t1"])

	f.clock = f.clock.Add(2 * time.Hour)
	require.NoError(t, f.engine.UpdateTasksStatus(f.as("system"), wf.ID))

	running, tasks := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, running.Status)
	assert.Equal(t, states.ACTIVE, tasks["t1"].Status)
	assert.Len(t, f.events(wf.ID, objects.EventTaskStarted), 1)
	assert.Len(t, f.intentsOfEvent(wf.ID, NotifyNewTask), 1)

	ended := f.intentsOfEvent(wf.ID, NotifyDelayEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, []string{"u1"}, []string(ended[0].Recipients))
}

func TestUpdateTasksStatusCompletesSatisfiedTask(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	_, tasks := f.load(wf.ID)

	performers, err := objects.QueryPerformersByTask(f.as("system"), tasks["t1"].ID)
	require.NoError(t, err)
	performers[0].IsCompleted = true
	require.NoError(t, performers[0].Update(f.as("system"), "IsCompleted"))

	require.NoError(t, f.engine.UpdateTasksStatus(f.as("system"), wf.ID))
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "t2": states.ACTIVE, "t3": states.PENDING}, f.statuses(wf.ID))
}

func TestForceDelayWorkflow(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)

	assert.ErrorIs(t, f.engine.ForceDelayWorkflow(f.as("boss"), wf.ID, f.clock.Add(-time.Minute)), ErrDelayDateInPast)

	require.NoError(t, f.engine.ForceDelayWorkflow(f.as("boss"), wf.ID, f.clock.Add(24*time.Hour)))
	delayed, tasks := f.load(wf.ID)
	assert.Equal(t, states.DELAYED, delayed.Status)
	assert.Equal(t, states.DELAYED, tasks["t1"].Status)

	delay, err := objects.QueryOpenDelay(f.as("boss"), tasks["t1"].ID)
	require.NoError(t, err)
	require.NotNil(t, delay)
	assert.Equal(t, models.DelayOriginForce, delay.Origin)
	assert.Equal(t, int64(24*3600), delay.Duration)

	events := f.events(wf.ID, objects.EventWorkflowDelayed)
	require.Len(t, events, 1)
	assert.Equal(t, delay.ID, events[0].DelayID)
	assert.Len(t, f.intentsOfEvent(wf.ID, NotifyDelayedWorkflow), 1)

	require.NoError(t, f.engine.ForceResumeWorkflow(f.as("boss"), wf.ID))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t1"])
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
}

func TestResumeSingleTask(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[0].Delay = "2h"
	wf := f.run(spec, nil)
	_, tasks := f.load(wf.ID)
	assert.Equal(t, states.DELAYED, tasks["t1"].Status)

	require.NoError(t, f.engine.ResumeTask(f.as("u1"), wf.ID, tasks["t1"].ID))
	assert.Equal(t, states.ACTIVE, f.statuses(wf.ID)["t1"])
	assert.ErrorIs(t, f.engine.ResumeTask(f.as("u1"), wf.ID, tasks["t1"].ID), ErrTaskNotActive)
}

func TestReturnTo(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
	require.NoError(t, f.complete("u2", wf.ID, "t2"))

	assert.ErrorIs(t, f.engine.ReturnTo(f.asOwner("boss"), wf.ID, "nope"), ErrTaskNotFound)
	require.NoError(t, f.complete("u3", wf.ID, "t3"))
	done, _ := f.load(wf.ID)
	require.Equal(t, states.DONE, done.Status)

	require.NoError(t, f.engine.ReturnTo(f.asOwner("boss"), wf.ID, "t2"))
	reopened, tasks := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, reopened.Status)
	assert.Nil(t, reopened.DateCompleted)
	assert.Equal(t, states.COMPLETED, tasks["t1"].Status)
	assert.Equal(t, states.ACTIVE, tasks["t2"].Status)
	assert.Equal(t, states.PENDING, tasks["t3"].Status)
	assert.Len(t, f.events(wf.ID, objects.EventTaskReturned), 1)

	assert.ErrorIs(t, f.engine.ReturnTo(f.asOwner("boss"), wf.ID, "t3"), ErrReturnToPendingTask)
}

func TestReturnToSkippedTaskIsRejected(t *testing.T) {
	f := newFixture(t)
	spec := linearTemplate()
	spec.Tasks[1].Conditions = []*objects.ConditionSpec{{Action: models.ConditionSkipTask, Rules: []string{"fast_track"}}}
	wf := f.run(spec, map[string]string{"fast_track": "yes"})
	require.NoError(t, f.complete("u1", wf.ID, "t1"))

	assert.ErrorIs(t, f.engine.ReturnTo(f.asOwner("boss"), wf.ID, "t2"), ErrReturnToSkippedTask)
}

func TestSubWorkflowBlocksCompletion(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)
	_, tasks := f.load(wf.ID)

	sub, err := f.engine.RunSubWorkflow(f.as("u1"), tasks["t1"].ID, &objects.TemplateSpec{
		Name:  "Sub",
		Tasks: []*objects.TaskSpec{userTask("s1", "u5")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tasks["t1"].ID, sub.AncestorTaskID)
	assert.Len(t, f.events(wf.ID, objects.EventSubWorkflowRun), 1)

	assert.ErrorIs(t, f.complete("u1", wf.ID, "t1"), ErrBlockedBySubWorkflows)
	assert.ErrorIs(t, f.engine.RevertTask(f.as("u1"), wf.ID, tasks["t1"].ID, ""), ErrBlockedBySubWorkflows)

	require.NoError(t, f.complete("u5", sub.ID, "s1"))
	require.NoError(t, f.complete("u1", wf.ID, "t1"))
}

func TestTerminateWorkflow(t *testing.T) {
	f := newFixture(t)
	wf := f.run(linearTemplate(), nil)

	require.NoError(t, f.engine.TerminateWorkflow(f.asOwner("boss"), wf.ID))

	_, _, err := f.engine.GetWorkflow(f.as("starter"), wf.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
	tasks, err := objects.QueryTasksByWorkflow(f.as("starter"), wf.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.Len(t, f.intents(wf.ID, models.IntentGuestCache), 3)
	removed := f.intentsOfEvent(wf.ID, NotifyRemovedTask)
	require.Len(t, removed, 1)
	assert.Equal(t, []string{"u1"}, []string(removed[0].Recipients))
}

func TestCyclicGraphWaits(t *testing.T) {
	f := newFixture(t)
	spec := &objects.TemplateSpec{
		Name: "Cycle",
		Tasks: []*objects.TaskSpec{
			userTask("root", "u1"),
			userTask("a", "u2", "root", "b"),
			userTask("b", "u3", "a"),
		},
	}
	wf := f.run(spec, nil)
	require.NoError(t, f.complete("u1", wf.ID, "root"))

	running, _ := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, running.Status)
	assert.Nil(t, running.DateCompleted)
	assert.Equal(t, map[string]string{"root": states.COMPLETED, "a": states.PENDING, "b": states.PENDING}, f.statuses(wf.ID))
}

func TestWaitingTaskKeepsWorkflowRunning(t *testing.T) {
	f := newFixture(t)
	spec := &objects.TemplateSpec{
		Name: "Approval",
		Tasks: []*objects.TaskSpec{
			userTask("t1", "u1"),
			userTask("t2", "u2", "t1"),
		},
	}
	spec.Tasks[1].Conditions = []*objects.ConditionSpec{{Action: models.ConditionStartTask, Rules: []string{"approved"}}}
	wf := f.run(spec, nil)
	require.NoError(t, f.complete("u1", wf.ID, "t1"))

	running, _ := f.load(wf.ID)
	assert.Equal(t, states.RUNNING, running.Status)
	assert.Equal(t, map[string]string{"t1": states.COMPLETED, "t2": states.PENDING}, f.statuses(wf.ID))
	assert.Empty(t, f.events(wf.ID, objects.EventWorkflowComplete))

	// reconciling re-evaluates the waiting task and leaves it pending
	require.NoError(t, f.engine.UpdateTasksStatus(f.as("system"), wf.ID))
	assert.Equal(t, states.PENDING, f.statuses(wf.ID)["t2"])
}

type failingRenderer struct {
	failOn string
	inner  interfaces.FieldRenderer
}

func (r failingRenderer) Render(ctx *contextx.Context, wf *objects.Workflow, task *objects.Task) (map[string]string, error) {
	if task != nil && task.APIName == r.failOn {
		return nil, errors.New("renderer unavailable")
	}
	return r.inner.Render(ctx, wf, task)
}

func TestFailedCallRollsBack(t *testing.T) {
	f := newFixture(t, WithRenderer(failingRenderer{failOn: "t2", inner: data_flow.NewRenderer()}))
	wf := f.run(linearTemplate(), nil)
	before, _ := f.load(wf.ID)
	intentsBefore, err := objects.CountIntents(f.as("starter"))
	require.NoError(t, err)

	err = f.complete("u1", wf.ID, "t1")
	require.Error(t, err)
	_, isDomain := AsDomainError(err)
	assert.False(t, isDomain)

	after, tasks := f.load(wf.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, states.ACTIVE, tasks["t1"].Status)
	assert.Nil(t, tasks["t1"].DateCompleted)
	intentsAfter, err := objects.CountIntents(f.as("starter"))
	require.NoError(t, err)
	assert.Equal(t, intentsBefore, intentsAfter)
}

func TestWebhooksOnlyForSubscribedEvents(t *testing.T) {
	f := newFixture(t)
	_, err := objects.CreateWebhookSubscription(f.as("boss"), testAccount, WebhookWorkflowCompleted, "http://hooks.example/done")
	require.NoError(t, err)

	wf := f.run(&objects.TemplateSpec{Name: "One", Tasks: []*objects.TaskSpec{userTask("t1", "u1")}}, nil)
	require.NoError(t, f.complete("u1", wf.ID, "t1"))

	hooks := f.intents(wf.ID, models.IntentWebhook)
	require.Len(t, hooks, 1)
	assert.Equal(t, WebhookWorkflowCompleted, hooks[0].Event)
}

func TestRunWorkflowRejectsInvalidTemplate(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RunWorkflow(f.as("starter"), &objects.TemplateSpec{
		Name:  "Broken",
		Tasks: []*objects.TaskSpec{userTask("t1", "u1"), userTask("t1", "u2")},
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	count, err := objects.CountIntents(f.as("starter"))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGuestCredentialsInvalidatedOnCompletion(t *testing.T) {
	f := newFixture(t)
	wf := f.run(&objects.TemplateSpec{
		Name: "External review",
		Tasks: []*objects.TaskSpec{{
			APIName:    "sign",
			Performers: []*objects.PerformerSpec{{Type: models.PerformerGuest, ID: "guest@example.com"}},
		}},
	}, nil)
	assert.Empty(t, f.intents(wf.ID, models.IntentGuestCache))

	require.NoError(t, f.complete("guest@example.com", wf.ID, "sign"))
	cached := f.intents(wf.ID, models.IntentGuestCache)
	require.Len(t, cached, 1)
	assert.Equal(t, GuestCacheInvalidate, cached[0].Event)
}
