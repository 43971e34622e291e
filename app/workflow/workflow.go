package workflow

import (
	"fmt"
	"time"

	"conductor/app/db/models"
	"conductor/app/objects"
	"conductor/app/workflow/data_flow"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"
	"conductor/pkg/log"
)

// runner carries one locked workflow through a single engine call.
type runner struct {
	engine    *Engine
	ctx       *contextx.Context
	wf        *objects.Workflow
	tasks     []*objects.Task
	byAPIName map[string]*objects.Task
	now       time.Time
}

func newRunner(e *Engine, ctx *contextx.Context, wf *objects.Workflow, tasks []*objects.Task) *runner {
	r := &runner{
		engine:    e,
		ctx:       ctx,
		wf:        wf,
		tasks:     tasks,
		byAPIName: map[string]*objects.Task{},
		now:       e.now(),
	}
	for _, t := range tasks {
		r.byAPIName[t.APIName] = t
	}
	return r
}

func (r *runner) fields(task *objects.Task) (data_flow.DataContext, error) {
	values, err := r.engine.renderer.Render(r.ctx, r.wf, task)
	if err != nil {
		return nil, fmt.Errorf("render fields of task %s: %w", task.APIName, err)
	}
	return data_flow.NewDataContext(values), nil
}

func (r *runner) done() bool {
	return states.IsDone(r.wf.Status)
}

// start runs a freshly instantiated workflow from its roots.
func (r *runner) start() error {
	if r.done() {
		return ErrWorkflowCompleted
	}
	for _, t := range r.tasks {
		if t.Status != states.PENDING {
			log.Infof(r.ctx, "workflow %s is already started", r.wf.ID)
			return nil
		}
	}
	if err := r.event(objects.EventWorkflowRun, nil); err != nil {
		return err
	}
	if r.wf.AncestorTaskID != "" {
		ancestor, err := objects.QueryTaskByID(r.ctx, r.wf.AncestorTaskID)
		if err != nil {
			return err
		}
		e := objects.NewEvent(objects.EventSubWorkflowRun, ancestor.WorkflowID, ancestor.ID, r.ctx.GetUserID())
		e.CreatedAt = r.now
		e.Payload = map[string]interface{}{"sub_workflow_id": r.wf.ID}
		if err := e.Save(r.ctx); err != nil {
			return err
		}
	}
	if err := r.advance(); err != nil {
		return err
	}
	if err := r.refreshStatus(); err != nil {
		return err
	}
	if err := r.webhook(WebhookWorkflowStarted, nil); err != nil {
		return err
	}
	return r.analytics("workflow_started", r.wf.ID)
}

// advance repeatedly dispatches the first pending task with a non-WAIT
// verdict until no pending task can move. Every dispatch takes a task out of
// PENDING, so the loop ends even on a cyclic graph. Waiting tasks stay
// PENDING for a later call; the workflow completes only once no task is
// PENDING, ACTIVE or DELAYED.
func (r *runner) advance() error {
	for !r.done() {
		dispatched := false
		for _, t := range r.tasksIn(states.PENDING) {
			verdict, err := r.evaluate(t)
			if err != nil {
				return err
			}
			if verdict == VerdictWait {
				continue
			}
			if err := r.dispatch(Action{Kind: verdict, Task: t}); err != nil {
				return err
			}
			dispatched = true
			break
		}
		if !dispatched {
			break
		}
	}
	if r.done() || len(r.tasksIn(states.PENDING)) > 0 {
		return nil
	}
	if len(r.tasksIn(states.ACTIVE, states.DELAYED)) == 0 {
		return r.completeWorkflow()
	}
	return nil
}

// endWorkflow handles an END_WORKFLOW verdict on a pending task.
func (r *runner) endWorkflow(task *objects.Task) error {
	if err := r.skipTask(task); err != nil {
		return err
	}
	if err := r.event(objects.EventWorkflowEnded, task); err != nil {
		return err
	}
	return r.completeWorkflow()
}

// completeWorkflow finishes the workflow. Open tasks are only left behind
// when an END_WORKFLOW condition fires: delayed ones are resumed and
// completed, active ones completed and pending ones skipped.
func (r *runner) completeWorkflow() error {
	for _, t := range r.tasks {
		switch t.Status {
		case states.DELAYED:
			if err := r.closeOpenDelay(t); err != nil {
				return err
			}
			if err := r.setStatus(t, states.ACTIVE); err != nil {
				return err
			}
			if err := r.completeTask(t, ""); err != nil {
				return err
			}
		case states.ACTIVE:
			if err := r.completeTask(t, ""); err != nil {
				return err
			}
		case states.PENDING:
			if err := r.skipTask(t); err != nil {
				return err
			}
		}
		if t.IsUrgent {
			t.IsUrgent = false
			if err := t.Update(r.ctx, "IsUrgent"); err != nil {
				return err
			}
		}
	}

	now := r.now
	r.wf.IsUrgent = false
	r.wf.DateCompleted = &now
	r.wf.Status = states.DONE
	if err := r.wf.Update(r.ctx, "IsUrgent", "DateCompleted", "Status"); err != nil {
		return err
	}
	log.Infof(r.ctx, "workflow %s is completed", r.wf.ID)
	if err := r.event(objects.EventWorkflowComplete, nil); err != nil {
		return err
	}
	if err := r.webhook(WebhookWorkflowCompleted, nil); err != nil {
		return err
	}
	return r.analytics("workflow_completed", r.wf.ID)
}

// refreshStatus derives RUNNING or DELAYED from the task states.
func (r *runner) refreshStatus() error {
	if r.done() {
		return nil
	}
	status := states.RUNNING
	if len(r.tasksIn(states.ACTIVE)) == 0 && len(r.tasksIn(states.DELAYED)) > 0 {
		status = states.DELAYED
	}
	if r.wf.Status == status {
		return nil
	}
	r.wf.Status = status
	return r.wf.Update(r.ctx, "Status")
}

// forceDelay holds every active or delayed task until date.
func (r *runner) forceDelay(date time.Time) error {
	if r.done() {
		return ErrWorkflowCompleted
	}
	if !date.After(r.now) {
		return ErrDelayDateInPast
	}
	duration := date.Sub(r.now)

	var last *objects.Delay
	for _, t := range r.tasksIn(states.ACTIVE, states.DELAYED) {
		if err := r.closeOpenDelay(t); err != nil {
			return err
		}
		delay := objects.NewDelay(t.ID, duration, models.DelayOriginForce)
		delay.Start(r.now)
		if err := delay.Save(r.ctx); err != nil {
			return err
		}
		last = delay
		if err := r.setStatus(t, states.DELAYED); err != nil {
			return err
		}
		if err := t.Update(r.ctx, "Status"); err != nil {
			return err
		}
		performers, groups, err := r.taskPerformers(t)
		if err != nil {
			return err
		}
		if err := r.notify(NotifyDelayedWorkflow, t, recipients(performers, groups)); err != nil {
			return err
		}
	}
	if last == nil {
		return nil
	}
	if err := r.refreshStatus(); err != nil {
		return err
	}
	return r.event(objects.EventWorkflowDelayed, nil, func(e *objects.Event) {
		e.DelayID = last.ID
	})
}

// forceResume is a no-op on a running workflow.
func (r *runner) forceResume() error {
	if r.done() {
		return ErrWorkflowCompleted
	}
	if r.wf.Status == states.RUNNING {
		return nil
	}
	if err := r.event(objects.EventWorkflowResumed, nil); err != nil {
		return err
	}
	for _, t := range r.tasksIn(states.DELAYED) {
		if err := r.resumeTask(t, NotifyResumedWorkflow); err != nil {
			return err
		}
	}
	if err := r.advance(); err != nil {
		return err
	}
	return r.refreshStatus()
}

// updateTasksStatus reconciles open tasks with their conditions, delays and
// performers, then moves the workflow forward.
func (r *runner) updateTasksStatus() error {
	if r.done() {
		return nil
	}
	for _, t := range r.tasksIn(states.ACTIVE, states.DELAYED) {
		if r.done() {
			return nil
		}
		verdict, err := r.evaluate(t)
		if err != nil {
			return err
		}
		switch verdict {
		case VerdictSkip:
			if err := r.skipTask(t); err != nil {
				return err
			}
			continue
		case VerdictEndWorkflow:
			return r.completeWorkflowEndedBy(t)
		}

		if t.Status == states.DELAYED {
			delay, err := objects.QueryOpenDelay(r.ctx, t.ID)
			if err != nil {
				return err
			}
			if delay == nil || delay.IsExpired(r.now) {
				if err := r.resumeTask(t, NotifyDelayEnded); err != nil {
					return err
				}
			}
			continue
		}

		performers, groups, err := r.taskPerformers(t)
		if err != nil {
			return err
		}
		if IsTaskComplete(t.RequireCompletionByAll, performers, groups, "", false) {
			if err := r.completeTask(t, ""); err != nil {
				return err
			}
		}
	}
	if err := r.advance(); err != nil {
		return err
	}
	return r.refreshStatus()
}

// completeWorkflowEndedBy ends the workflow because an already started task
// now satisfies an END_WORKFLOW condition.
func (r *runner) completeWorkflowEndedBy(task *objects.Task) error {
	if err := r.event(objects.EventWorkflowEnded, task); err != nil {
		return err
	}
	return r.completeWorkflow()
}

// terminate deletes the workflow after telling current performers.
func (r *runner) terminate() error {
	for _, t := range r.tasksIn(states.ACTIVE, states.DELAYED) {
		if err := r.notifyRemoval(t); err != nil {
			return err
		}
	}
	for _, t := range r.tasks {
		if err := r.guestCache(GuestCacheDelete, t); err != nil {
			return err
		}
	}
	if err := r.analytics("workflow_terminated", r.wf.ID); err != nil {
		return err
	}
	log.Infof(r.ctx, "terminating workflow %s", r.wf.ID)
	return r.wf.Delete(r.ctx)
}
