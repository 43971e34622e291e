package objects

import (
	"time"

	"conductor/app/db/models"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
)

const (
	EventWorkflowRun        = "WORKFLOW_RUN"
	EventSubWorkflowRun     = "SUB_WORKFLOW_RUN"
	EventWorkflowComplete   = "WORKFLOW_COMPLETE"
	EventWorkflowEnded      = "WORKFLOW_ENDED_BY_CONDITION"
	EventWorkflowDelayed    = "WORKFLOW_DELAYED"
	EventWorkflowResumed    = "WORKFLOW_RESUMED"
	EventTaskStarted        = "TASK_STARTED"
	EventTaskCompleted      = "TASK_COMPLETED"
	EventTaskSkipped        = "TASK_SKIPPED"
	EventTaskDelayed        = "TASK_DELAYED"
	EventTaskReverted       = "TASK_REVERTED"
	EventTaskReturned       = "TASK_RETURNED"
	EventPerformerCompleted = "PERFORMER_COMPLETED"
)

type Event struct {
	*models.Event
	ContextObject
}

// Save appends the event, events are never updated.
func (e *Event) Save(ctx *contextx.Context) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := e.GetDB(ctx).Create(e.Event).Error; err != nil {
		return err
	}
	e.SetContext(ctx)
	return nil
}

func NewEvent(kind, workflowID, taskID, userID string) *Event {
	return &Event{Event: &models.Event{
		Type:       kind,
		WorkflowID: workflowID,
		TaskID:     taskID,
		UserID:     userID,
	}}
}

// QueryEvents returns a workflow's history, oldest first.
func QueryEvents(ctx *contextx.Context, workflowID string) ([]*Event, error) {
	var ms []*models.Event
	if err := GetDB(ctx).Where("workflow_id = ?", workflowID).Order("created_at, id").Find(&ms).Error; err != nil {
		return nil, err
	}
	events := make([]*Event, 0, len(ms))
	for _, m := range ms {
		events = append(events, &Event{Event: m})
	}
	return events, nil
}
