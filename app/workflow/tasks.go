package workflow

import (
	"fmt"
	"time"

	"conductor/app/db/models"
	"conductor/app/expressions"
	"conductor/app/objects"
	"conductor/app/workflow/states"
	"conductor/pkg/log"
)

type startOptions struct {
	returned bool
	// resumed marks the end of a delay, a task that already ran is not
	// started again
	resumed bool
	// notification kind sent on activation, NEW_TASK when empty
	notifyKind string
}

func (r *runner) setStatus(task *objects.Task, status string) error {
	if err := states.ValidateTaskTransition(task.Status, status); err != nil {
		return fmt.Errorf("task %s: %w", task.APIName, err)
	}
	task.Status = status
	return nil
}

// ensureStarterPerformer adds the workflow starter to a task that asks for it.
func (r *runner) ensureStarterPerformer(task *objects.Task, performers []*objects.Performer) ([]*objects.Performer, error) {
	if !task.StarterIsPerformer || r.wf.StarterID == "" {
		return performers, nil
	}
	for _, p := range performers {
		if p.Type == models.PerformerUser && p.UserID == r.wf.StarterID {
			return performers, nil
		}
	}
	p := objects.NewPerformer(task.ID, models.PerformerUser, r.wf.StarterID)
	if err := p.Save(r.ctx); err != nil {
		return nil, err
	}
	return append(performers, p), nil
}

// startTask runs the start sequence of a PENDING (or just resumed) task and
// returns the status it ended in: ACTIVE, DELAYED or SKIPPED.
func (r *runner) startTask(task *objects.Task, opts startOptions) (string, error) {
	fields, err := r.fields(task)
	if err != nil {
		return "", err
	}
	rendered, err := expressions.Render(task.Description, fields.ToTable())
	if err != nil {
		log.Warnf(r.ctx, "render description of task %s failed: %s", task.APIName, err.Error())
		rendered = task.Description
	}
	task.DescriptionRendered = rendered

	performers, groups, err := r.taskPerformers(task)
	if err != nil {
		return "", err
	}
	if performers, err = r.ensureStarterPerformer(task, performers); err != nil {
		return "", err
	}
	if len(activePerformers(performers)) == 0 {
		log.Infof(r.ctx, "task %s has no performers, skipping it", task.APIName)
		if err := r.skipTask(task); err != nil {
			return "", err
		}
		return states.SKIPPED, nil
	}

	delay, err := objects.QueryOpenDelay(r.ctx, task.ID)
	if err != nil {
		return "", err
	}
	if delay == nil {
		if delay, err = objects.QueryTemplateDelay(r.ctx, task.ID); err != nil {
			return "", err
		}
		if delay != nil {
			delay.Start(r.now)
			if err := delay.Save(r.ctx); err != nil {
				return "", err
			}
		}
	}
	if delay != nil {
		if err := r.setStatus(task, states.DELAYED); err != nil {
			return "", err
		}
		if err := task.Save(r.ctx); err != nil {
			return "", err
		}
		return states.DELAYED, r.event(objects.EventTaskDelayed, task, func(e *objects.Event) {
			e.DelayID = delay.ID
		})
	}

	firstStart := task.DateFirstStarted == nil
	if err := r.setStatus(task, states.ACTIVE); err != nil {
		return "", err
	}
	now := r.now
	task.DateStarted = &now
	if firstStart {
		task.DateFirstStarted = &now
	}
	task.DateCompleted = nil
	task.DueDate = nil
	if task.DueInSeconds > 0 {
		due := now.Add(time.Duration(task.DueInSeconds) * time.Second)
		task.DueDate = &due
	}
	if err := task.Save(r.ctx); err != nil {
		return "", err
	}
	if !opts.returned && (firstStart || !opts.resumed) {
		if err := r.event(objects.EventTaskStarted, task); err != nil {
			return "", err
		}
	}

	users := recipients(performers, groups)
	kind := opts.notifyKind
	if kind == "" {
		kind = NotifyNewTask
		if opts.returned {
			kind = NotifyReturnedTask
		}
	}
	// The starter just filled in the kickoff form, a full notification about
	// a first root task would be noise.
	if kind == NotifyNewTask && firstStart && task.IsRoot() && r.wf.StarterID != "" {
		var rest []string
		signal := false
		for _, u := range users {
			if u == r.wf.StarterID {
				signal = true
				continue
			}
			rest = append(rest, u)
		}
		users = rest
		if signal {
			if err := r.notify(NotifyNewTaskSignal, task, []string{r.wf.StarterID}); err != nil {
				return "", err
			}
		}
	}
	if err := r.notify(kind, task, users); err != nil {
		return "", err
	}
	return states.ACTIVE, r.analytics("task_started", task.ID)
}

// resumeTask closes the open delay of a DELAYED task and starts it.
func (r *runner) resumeTask(task *objects.Task, notifyKind string) error {
	if task.Status != states.DELAYED {
		return ErrTaskNotActive.WithMessage(fmt.Sprintf("task %s is not delayed", task.APIName))
	}
	if err := r.closeOpenDelay(task); err != nil {
		return err
	}
	if err := r.setStatus(task, states.ACTIVE); err != nil {
		return err
	}
	_, err := r.startTask(task, startOptions{resumed: true, notifyKind: notifyKind})
	return err
}

func (r *runner) closeOpenDelay(task *objects.Task) error {
	delay, err := objects.QueryOpenDelay(r.ctx, task.ID)
	if err != nil || delay == nil {
		return err
	}
	delay.Close(r.now)
	return delay.Save(r.ctx)
}

// skipTask bypasses a task. Descendants are reached by the next pass of the
// orchestrator.
func (r *runner) skipTask(task *objects.Task) error {
	prev := task.Status
	if prev == states.DELAYED {
		if err := r.closeOpenDelay(task); err != nil {
			return err
		}
	}
	if err := r.setStatus(task, states.SKIPPED); err != nil {
		return err
	}
	if err := task.Save(r.ctx); err != nil {
		return err
	}
	if prev == states.ACTIVE {
		if err := r.notifyRemoval(task); err != nil {
			return err
		}
	}
	return r.event(objects.EventTaskSkipped, task)
}

func (r *runner) notifyRemoval(task *objects.Task) error {
	performers, groups, err := r.taskPerformers(task)
	if err != nil {
		return err
	}
	var pending []*objects.Performer
	for _, p := range performers {
		if !p.IsCompleted {
			pending = append(pending, p)
		}
	}
	return r.notify(NotifyRemovedTask, task, recipients(pending, groups))
}

// completeTask moves an ACTIVE task to COMPLETED on behalf of actorID.
func (r *runner) completeTask(task *objects.Task, actorID string) error {
	if err := r.setStatus(task, states.COMPLETED); err != nil {
		return err
	}
	now := r.now
	task.DateCompleted = &now
	task.IsUrgent = false

	performers, groups, err := r.taskPerformers(task)
	if err != nil {
		return err
	}
	var leftover, subscribers []*objects.Performer
	for _, p := range activePerformers(performers) {
		if p.NotifyOnComplete && !covers(p, actorID, groups) {
			subscribers = append(subscribers, p)
		}
		if p.IsCompleted {
			continue
		}
		if !covers(p, actorID, groups) {
			leftover = append(leftover, p)
		}
		p.IsCompleted = true
		p.DateCompleted = &now
		if err := p.Update(r.ctx, "IsCompleted", "DateCompleted"); err != nil {
			return err
		}
	}
	if err := task.Save(r.ctx); err != nil {
		return err
	}
	if err := r.invalidateGuests(task, performers); err != nil {
		return err
	}

	if err := r.notify(NotifyRemovedTask, task, without(recipients(leftover, groups), actorID)); err != nil {
		return err
	}
	if err := r.notify(NotifyCompletedTask, task, without(recipients(subscribers, groups), actorID)); err != nil {
		return err
	}
	if err := r.event(objects.EventTaskCompleted, task); err != nil {
		return err
	}
	if err := r.webhook(WebhookTaskCompleted, task); err != nil {
		return err
	}
	return r.analytics("task_completed", task.ID)
}

// resetToPending rolls a task back so it can be reached again.
func (r *runner) resetToPending(task *objects.Task) error {
	prev := task.Status
	if err := r.setStatus(task, states.PENDING); err != nil {
		return err
	}
	task.DateStarted = nil
	task.DateCompleted = nil
	task.DueDate = nil
	if err := task.Save(r.ctx); err != nil {
		return err
	}

	performers, _, err := r.taskPerformers(task)
	if err != nil {
		return err
	}
	if err := r.invalidateGuests(task, performers); err != nil {
		return err
	}
	for _, p := range performers {
		if p.IsCompleted {
			p.IsCompleted = false
			p.DateCompleted = nil
			if err := p.Update(r.ctx, "IsCompleted", "DateCompleted"); err != nil {
				return err
			}
		}
	}

	delays, err := objects.QueryDelaysByTask(r.ctx, task.ID)
	if err != nil {
		return err
	}
	for _, d := range delays {
		switch {
		case d.Origin == models.DelayOriginTemplate && d.StartDate != nil:
			d.Reset()
		case d.Origin == models.DelayOriginForce && d.IsOpen():
			d.Close(r.now)
		default:
			continue
		}
		if err := d.Save(r.ctx); err != nil {
			return err
		}
	}

	if prev == states.ACTIVE || prev == states.DELAYED {
		return r.notifyRemoval(task)
	}
	return nil
}

func without(users []string, id string) []string {
	var out []string
	for _, u := range users {
		if u != id {
			out = append(out, u)
		}
	}
	return out
}
