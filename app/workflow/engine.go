package workflow

import (
	"errors"
	"fmt"
	"time"

	"conductor/app/objects"
	"conductor/app/workflow/data_flow"
	"conductor/app/workflow/interfaces"
	"conductor/pkg/contextx"
)

// Engine is the entry point of every workflow operation. Each call runs in
// one transaction that starts by taking the workflow's version lock.
type Engine struct {
	renderer interfaces.FieldRenderer
	now      func() time.Time
}

type Option func(*Engine)

func WithRenderer(renderer interfaces.FieldRenderer) Option {
	return func(e *Engine) {
		e.renderer = renderer
	}
}

// WithClock replaces the wall clock, used by tests and replays.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		renderer: data_flow.NewRenderer(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now is the engine clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// load reads and locks a workflow inside the current transaction.
func (e *Engine) load(ctx *contextx.Context, workflowID string) (*runner, error) {
	wf, err := objects.QueryWorkflowByID(ctx, workflowID)
	if err != nil {
		if objects.IsNotFoundError(err) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	if account := ctx.GetAccountID(); account != "" && wf.AccountID != account {
		return nil, ErrWorkflowNotFound
	}
	if err := wf.Lock(ctx); err != nil {
		if errors.Is(err, objects.ErrVersionConflict) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("lock workflow %s: %w", workflowID, err)
	}
	tasks, err := objects.QueryTasksByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("load tasks of workflow %s: %w", workflowID, err)
	}
	ctx.SetWorkflow(wf.ID)
	return newRunner(e, ctx, wf, tasks), nil
}

// run executes fn on the locked workflow inside one transaction.
func (e *Engine) run(ctx *contextx.Context, workflowID string, fn func(r *runner) error) error {
	return objects.Transaction(ctx, func(subCtx *contextx.Context) error {
		r, err := e.load(subCtx, workflowID)
		if err != nil {
			return err
		}
		return fn(r)
	})
}

func (r *runner) findTask(taskID string) (*objects.Task, error) {
	t := r.taskByID(taskID)
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

func (e *Engine) instantiate(ctx *contextx.Context, spec *objects.TemplateSpec, kickoff map[string]string, ancestorTaskID string) (*objects.Workflow, error) {
	wf, _, err := objects.CreateWorkflowFromSpec(ctx, spec, kickoff, ctx.GetUserID(), ancestorTaskID)
	if err != nil {
		if errors.Is(err, objects.ErrInvalidTemplate) {
			return nil, ErrInvalidTemplate.WithMessage(err.Error())
		}
		return nil, err
	}
	return wf, nil
}
