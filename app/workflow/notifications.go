package workflow

import (
	"conductor/app/db/models"
	"conductor/app/objects"
)

// Notification kinds delivered to users.
const (
	NotifyNewTask         = "NEW_TASK"
	NotifyNewTaskSignal   = "NEW_TASK_SIGNAL"
	NotifyRemovedTask     = "REMOVED_TASK"
	NotifyCompletedTask   = "COMPLETED_TASK"
	NotifyReturnedTask    = "RETURNED_TASK"
	NotifyDelayedWorkflow = "DELAYED_WORKFLOW"
	NotifyResumedWorkflow = "RESUMED_WORKFLOW"
	NotifyDelayEnded      = "DELAY_ENDED"
)

// Webhook events an account can subscribe to.
const (
	WebhookWorkflowStarted   = "workflow_started"
	WebhookWorkflowCompleted = "workflow_completed"
	WebhookTaskCompleted     = "task_completed"
	WebhookTaskReturned      = "task_returned"
)

// Guest cache operations.
const (
	GuestCacheInvalidate = "invalidate"
	GuestCacheDelete     = "delete"
)

func (r *runner) taskPayload(task *objects.Task) map[string]interface{} {
	payload := map[string]interface{}{
		"workflow_id":   r.wf.ID,
		"workflow_name": r.wf.Name,
	}
	if task != nil {
		payload["task_id"] = task.ID
		payload["task_api_name"] = task.APIName
		payload["task_name"] = task.Name
		payload["task_status"] = task.Status
		if task.DueDate != nil {
			payload["due_date"] = task.DueDate.Format("2006-01-02T15:04:05Z07:00")
		}
	}
	return payload
}

func (r *runner) enqueue(kind, event string, recipients []string, payload map[string]interface{}) error {
	intent := objects.NewOutboxIntent(kind, event, r.wf.AccountID, r.wf.ID, recipients, payload)
	return intent.Save(r.ctx)
}

// notify records a user notification, nothing is recorded without recipients.
func (r *runner) notify(kind string, task *objects.Task, users []string) error {
	if len(users) == 0 {
		return nil
	}
	return r.enqueue(models.IntentNotification, kind, users, r.taskPayload(task))
}

// webhook records a webhook delivery if the account subscribes to event.
func (r *runner) webhook(event string, task *objects.Task) error {
	ok, err := objects.HasWebhookSubscription(r.ctx, r.wf.AccountID, event)
	if err != nil || !ok {
		return err
	}
	return r.enqueue(models.IntentWebhook, event, nil, r.taskPayload(task))
}

func (r *runner) analytics(event string, subjects ...string) error {
	return r.enqueue(models.IntentAnalytics, event, nil, map[string]interface{}{
		"actor":       r.ctx.GetUserID(),
		"workflow_id": r.wf.ID,
		"subjects":    subjects,
	})
}

func (r *runner) guestCache(op string, task *objects.Task) error {
	return r.enqueue(models.IntentGuestCache, op, nil, map[string]interface{}{
		"task_id": task.ID,
	})
}

// invalidateGuests drops cached guest credentials of a task that stops
// being active, if any guest performs it.
func (r *runner) invalidateGuests(task *objects.Task, performers []*objects.Performer) error {
	for _, p := range performers {
		if p.Type == models.PerformerGuest {
			return r.guestCache(GuestCacheInvalidate, task)
		}
	}
	return nil
}

func (r *runner) event(kind string, task *objects.Task, mutate ...func(e *objects.Event)) error {
	taskID := ""
	if task != nil {
		taskID = task.ID
	}
	e := objects.NewEvent(kind, r.wf.ID, taskID, r.ctx.GetUserID())
	e.CreatedAt = r.now
	for _, m := range mutate {
		m(e)
	}
	return e.Save(r.ctx)
}
