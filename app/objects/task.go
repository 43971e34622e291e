package objects

import (
	"conductor/app/db/models"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
)

type Task struct {
	*models.Task
	ContextObject
	PersistentObject
}

func (t *Task) Save(ctx *contextx.Context) error {
	if !t.IsCreated() {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if err := t.GetDB(ctx).Create(t.Task).Error; err != nil {
			return err
		}
	} else if err := t.GetDB(ctx).Save(t.Task).Error; err != nil {
		return err
	}
	t.SetContext(ctx)
	t.SetCreated()
	return nil
}

func (t *Task) Update(ctx *contextx.Context, fields ...string) error {
	return updateFields(t.GetDB(ctx), t.Task, fields)
}

// IsRoot reports whether the task has no parents in the graph.
func (t *Task) IsRoot() bool {
	return len(t.Parents) == 0
}

// ChecklistsComplete reports whether every checklist item is marked.
func (t *Task) ChecklistsComplete() bool {
	return t.ChecklistsMarked >= t.ChecklistsTotal
}

func NewTask() *Task {
	return &Task{Task: &models.Task{}}
}

func NewTaskFromDB(ctx *contextx.Context, m *models.Task) *Task {
	t := &Task{Task: m}
	t.SetContext(ctx)
	t.SetCreated()
	return t
}

// QueryTasksByWorkflow returns the tasks of a workflow in declaration order.
func QueryTasksByWorkflow(ctx *contextx.Context, workflowID string) ([]*Task, error) {
	var ms []*models.Task
	if err := GetDB(ctx).Where("workflow_id = ?", workflowID).Order("number").Find(&ms).Error; err != nil {
		return nil, err
	}
	tasks := make([]*Task, 0, len(ms))
	for _, m := range ms {
		tasks = append(tasks, NewTaskFromDB(ctx, m))
	}
	return tasks, nil
}

func QueryTaskByID(ctx *contextx.Context, id string) (*Task, error) {
	m := &models.Task{}
	if err := GetDB(ctx).Where("id = ?", id).First(m).Error; err != nil {
		return nil, err
	}
	return NewTaskFromDB(ctx, m), nil
}
