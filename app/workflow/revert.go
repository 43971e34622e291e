package workflow

import (
	"conductor/app/objects"
	"conductor/app/workflow/states"
)

// usableRevertTargets walks back from task through revert targets. A target
// whose verdict is SKIP or WAIT is passed through to its own targets. The
// visited set guards the walk; a revisit contributes nothing.
func (r *runner) usableRevertTargets(task *objects.Task, visited map[string]bool) ([]*objects.Task, error) {
	var usable []*objects.Task
	for _, target := range r.revertTargets(task) {
		if visited[target.ID] {
			continue
		}
		visited[target.ID] = true
		verdict, err := r.evaluate(target)
		if err != nil {
			return nil, err
		}
		if verdict != VerdictSkip && verdict != VerdictWait {
			usable = append(usable, target)
			continue
		}
		deeper, err := r.usableRevertTargets(target, visited)
		if err != nil {
			return nil, err
		}
		usable = append(usable, deeper...)
	}
	return usable, nil
}

// deactivateDescendants resets every started descendant of task to PENDING.
// Descendants that would be skipped anyway stay SKIPPED; the walk continues
// through them either way.
func (r *runner) deactivateDescendants(task *objects.Task, visited map[string]bool) error {
	for _, child := range r.children(task) {
		if visited[child.ID] {
			continue
		}
		visited[child.ID] = true
		if child.Status != states.PENDING {
			leaveSkipped := false
			if child.Status == states.SKIPPED {
				verdict, err := r.skipVerdict(child)
				if err != nil {
					return err
				}
				leaveSkipped = verdict == VerdictSkip
			}
			if !leaveSkipped {
				if err := r.resetToPending(child); err != nil {
					return err
				}
			}
		}
		if err := r.deactivateDescendants(child, visited); err != nil {
			return err
		}
	}
	return nil
}

// returnTo re-runs targets and rolls back everything below them.
func (r *runner) returnTo(targets []*objects.Task) error {
	visited := map[string]bool{}
	for _, target := range targets {
		visited[target.ID] = true
	}
	for _, target := range targets {
		if target.Status != states.PENDING {
			if err := r.resetToPending(target); err != nil {
				return err
			}
		}
		if err := r.dispatch(Action{Kind: VerdictStart, Task: target, Returned: true}); err != nil {
			return err
		}
	}
	for _, target := range targets {
		if err := r.deactivateDescendants(target, visited); err != nil {
			return err
		}
	}

	if r.done() {
		r.wf.Status = states.RUNNING
	}
	r.wf.DateCompleted = nil
	if err := r.wf.Update(r.ctx, "Status", "DateCompleted"); err != nil {
		return err
	}
	if err := r.advance(); err != nil {
		return err
	}
	return r.refreshStatus()
}

func (r *runner) ensureNoSubWorkflows(tasks ...*objects.Task) error {
	count, err := objects.CountRunningSubWorkflows(r.ctx, taskIDs(tasks)...)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrBlockedBySubWorkflows
	}
	return nil
}

// revert sends the workflow back from an active task to the nearest
// usable earlier tasks.
func (r *runner) revert(task *objects.Task, comment string) error {
	if r.done() {
		return ErrWorkflowCompleted
	}
	if r.wf.Status == states.DELAYED {
		return ErrWorkflowDelayed
	}
	if task.Status != states.ACTIVE {
		return ErrRevertInactiveTask
	}
	actorID := r.ctx.GetUserID()
	performers, groups, err := r.taskPerformers(task)
	if err != nil {
		return err
	}
	if !IsUnresolvedPerformer(performers, groups, actorID) && !r.ctx.IsAccountOwner() {
		return ErrUserNotPerformer
	}
	if err := r.ensureNoSubWorkflows(task); err != nil {
		return err
	}

	if len(r.revertTargets(task)) == 0 {
		return ErrRevertFirstTask
	}
	targets, err := r.usableRevertTargets(task, map[string]bool{task.ID: true})
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return ErrRevertSkippedTask
	}
	targets = r.outermost(targets)

	if err := r.returnTo(targets); err != nil {
		return err
	}
	if err := r.event(objects.EventTaskReverted, task, func(e *objects.Event) {
		e.Text = comment
		e.Payload = map[string]interface{}{"targets": taskIDs(targets)}
	}); err != nil {
		return err
	}
	if err := r.webhook(WebhookTaskReturned, task); err != nil {
		return err
	}
	return r.analytics("task_reverted", task.ID)
}

// returnToTask re-opens the workflow at an explicitly chosen task.
func (r *runner) returnToTask(target *objects.Task) error {
	if target.Status == states.PENDING {
		return ErrReturnToPendingTask
	}
	verdict, err := r.evaluate(target)
	if err != nil {
		return err
	}
	if verdict == VerdictSkip || verdict == VerdictWait {
		return ErrReturnToSkippedTask
	}
	from := r.tasksIn(states.ACTIVE, states.DELAYED)
	if err := r.ensureNoSubWorkflows(from...); err != nil {
		return err
	}

	if err := r.returnTo([]*objects.Task{target}); err != nil {
		return err
	}
	if err := r.event(objects.EventTaskReturned, target); err != nil {
		return err
	}
	for _, t := range from {
		if err := r.webhook(WebhookTaskReturned, t); err != nil {
			return err
		}
	}
	return r.analytics("task_returned", target.ID)
}
