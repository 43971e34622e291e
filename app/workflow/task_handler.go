package workflow

import (
	"fmt"

	"conductor/app/objects"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"
)

// CompleteTask records the acting user's completion of a task and, once the
// completion policy is satisfied, completes the task and moves on.
func (e *Engine) CompleteTask(ctx *contextx.Context, workflowID, taskID string, output map[string]string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		task, err := r.findTask(taskID)
		if err != nil {
			return err
		}
		return r.completeTaskForUser(task, output)
	})
}

// RevertTask sends an active task back to the previous step.
func (e *Engine) RevertTask(ctx *contextx.Context, workflowID, taskID, comment string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		task, err := r.findTask(taskID)
		if err != nil {
			return err
		}
		return r.revert(task, comment)
	})
}

// ResumeTask ends the delay of a single delayed task.
func (e *Engine) ResumeTask(ctx *contextx.Context, workflowID, taskID string) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		task, err := r.findTask(taskID)
		if err != nil {
			return err
		}
		if r.done() {
			return ErrWorkflowCompleted
		}
		if err := r.resumeTask(task, NotifyDelayEnded); err != nil {
			return err
		}
		if err := r.advance(); err != nil {
			return err
		}
		return r.refreshStatus()
	})
}

// MarkChecklistItems sets how many checklist items of an active task are done.
func (e *Engine) MarkChecklistItems(ctx *contextx.Context, workflowID, taskID string, marked int) error {
	return e.run(ctx, workflowID, func(r *runner) error {
		task, err := r.findTask(taskID)
		if err != nil {
			return err
		}
		if task.Status != states.ACTIVE {
			return ErrTaskNotActive
		}
		if marked < 0 || marked > task.ChecklistsTotal {
			return ErrChecklistIncomplete.WithMessage(fmt.Sprintf("task %s has %d checklist items", task.APIName, task.ChecklistsTotal))
		}
		task.ChecklistsMarked = marked
		return task.Update(r.ctx, "ChecklistsMarked")
	})
}

func (r *runner) completeTaskForUser(task *objects.Task, output map[string]string) error {
	switch {
	case r.done():
		return ErrWorkflowCompleted
	case r.wf.Status == states.DELAYED:
		return ErrWorkflowDelayed
	case task.Status == states.COMPLETED:
		return ErrTaskAlreadyCompleted
	case task.Status != states.ACTIVE:
		return ErrTaskNotActive
	}

	actorID := r.ctx.GetUserID()
	isOwner := r.ctx.IsAccountOwner()
	performers, groups, err := r.taskPerformers(task)
	if err != nil {
		return err
	}
	isPerformer := IsPerformer(performers, groups, actorID)
	if !isPerformer && !isOwner {
		return ErrUserNotPerformer
	}
	if isPerformer && !IsUnresolvedPerformer(performers, groups, actorID) {
		return ErrPerformerAlreadyCompleted
	}
	if err := r.ensureNoSubWorkflows(task); err != nil {
		return err
	}
	if !task.ChecklistsComplete() {
		return ErrChecklistIncomplete
	}

	now := r.now
	for _, p := range activePerformers(performers) {
		if !p.IsCompleted && covers(p, actorID, groups) {
			p.IsCompleted = true
			p.DateCompleted = &now
			if err := p.Update(r.ctx, "IsCompleted", "DateCompleted"); err != nil {
				return err
			}
		}
	}
	if len(output) > 0 {
		if task.Output == nil {
			task.Output = map[string]string{}
		}
		for k, v := range output {
			task.Output[k] = v
		}
		if err := task.Update(r.ctx, "Output"); err != nil {
			return err
		}
	}
	if err := r.event(objects.EventPerformerCompleted, task); err != nil {
		return err
	}

	if !IsTaskComplete(task.RequireCompletionByAll, performers, groups, actorID, isOwner) {
		return nil
	}
	if err := r.completeTask(task, actorID); err != nil {
		return err
	}
	if err := r.advance(); err != nil {
		return err
	}
	return r.refreshStatus()
}
