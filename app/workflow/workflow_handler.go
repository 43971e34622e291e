package workflow

import (
	"time"

	"conductor/app/objects"
	"conductor/pkg/contextx"
)

// StartWorkflow runs an instantiated workflow from its root tasks.
func (e *Engine) StartWorkflow(ctx *contextx.Context, workflowID string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		return r.start()
	})
}

// RunWorkflow instantiates the template for the acting user and starts it.
func (e *Engine) RunWorkflow(ctx *contextx.Context, spec *objects.TemplateSpec, kickoff map[string]string) (*objects.Workflow, error) {
	return e.runWorkflow(ctx, spec, kickoff, "")
}

// RunSubWorkflow starts a workflow on behalf of a task of another
// workflow; the task cannot complete while it runs.
func (e *Engine) RunSubWorkflow(ctx *contextx.Context, ancestorTaskID string, spec *objects.TemplateSpec, kickoff map[string]string) (*objects.Workflow, error) {
	return e.runWorkflow(ctx, spec, kickoff, ancestorTaskID)
}

func (e *Engine) runWorkflow(ctx *contextx.Context, spec *objects.TemplateSpec, kickoff map[string]string, ancestorTaskID string) (*objects.Workflow, error) {
	var wf *objects.Workflow
	err := objects.Transaction(ctx, func(subCtx *contextx.Context) error {
		if ancestorTaskID != "" {
			if _, err := objects.QueryTaskByID(subCtx, ancestorTaskID); err != nil {
				if objects.IsNotFoundError(err) {
					return ErrTaskNotFound
				}
				return err
			}
		}
		created, err := e.instantiate(subCtx, spec, kickoff, ancestorTaskID)
		if err != nil {
			return err
		}
		r, err := e.load(subCtx, created.ID)
		if err != nil {
			return err
		}
		if err := r.start(); err != nil {
			return err
		}
		wf = r.wf
		return nil
	})
	return wf, err
}

// ForceDelayWorkflow holds every active task until date.
func (e *Engine) ForceDelayWorkflow(ctx *contextx.Context, workflowID string, date time.Time) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		return r.forceDelay(date.UTC())
	})
}

// ForceResumeWorkflow ends every delay of a delayed workflow early.
func (e *Engine) ForceResumeWorkflow(ctx *contextx.Context, workflowID string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		return r.forceResume()
	})
}

// UpdateTasksStatus reconciles a workflow after external changes such as
// expired delays, edited conditions or performer changes.
func (e *Engine) UpdateTasksStatus(ctx *contextx.Context, workflowID string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		return r.updateTasksStatus()
	})
}

// TerminateWorkflow deletes the workflow and everything attached to it.
func (e *Engine) TerminateWorkflow(ctx *contextx.Context, workflowID string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		return r.terminate()
	})
}

// ReturnTo re-opens the workflow at the task with the given api-name.
func (e *Engine) ReturnTo(ctx *contextx.Context, workflowID, apiName string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		target := r.task(apiName)
		if target == nil {
			return ErrTaskNotFound
		}
		return r.returnToTask(target)
	})
}

// GetWorkflow reads a workflow and its tasks without locking.
func (e *Engine) GetWorkflow(ctx *contextx.Context, workflowID string) (*objects.Workflow, []*objects.Task, error) {
	wf, err := objects.QueryWorkflowByID(ctx, workflowID)
	if err != nil {
		if objects.IsNotFoundError(err) {
			return nil, nil, ErrWorkflowNotFound
		}
		return nil, nil, err
	}
	if account := ctx.GetAccountID(); account != "" && wf.AccountID != account {
		return nil, nil, ErrWorkflowNotFound
	}
	tasks, err := objects.QueryTasksByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, nil, err
	}
	return wf, tasks, nil
}
