package objects

import (
	"time"

	"conductor/app/db/models"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Workflow struct {
	*models.Workflow
	ContextObject
	PersistentObject
}

func (w *Workflow) Save(ctx *contextx.Context) error {
	now := time.Now().UTC()
	w.UpdatedAt = now
	if !w.IsCreated() {
		w.CreatedAt = now
		if w.ID == "" {
			w.ID = uuid.NewString()
		}
		if err := w.GetDB(ctx).Create(w.Workflow).Error; err != nil {
			return err
		}
	} else if err := w.GetDB(ctx).Save(w.Workflow).Error; err != nil {
		return err
	}
	w.SetContext(ctx)
	w.SetCreated()
	return nil
}

func (w *Workflow) Update(ctx *contextx.Context, fields ...string) error {
	w.UpdatedAt = time.Now().UTC()
	if len(fields) > 0 {
		fields = append(fields, "UpdatedAt")
	}
	return updateFields(w.GetDB(ctx), w.Workflow, fields)
}

// Delete removes the workflow together with every row hanging off it.
func (w *Workflow) Delete(ctx *contextx.Context) error {
	if !w.IsCreated() {
		return nil
	}
	tx := w.GetDB(ctx)
	taskIDs := tx.Model(&models.Task{}).Select("id").Where("workflow_id = ?", w.ID)
	steps := []func() error{
		func() error { return tx.Where("task_id IN (?)", taskIDs).Delete(&models.Performer{}).Error },
		func() error { return tx.Where("task_id IN (?)", taskIDs).Delete(&models.Delay{}).Error },
		func() error { return tx.Where("task_id IN (?)", taskIDs).Delete(&models.Condition{}).Error },
		func() error { return tx.Where("workflow_id = ?", w.ID).Delete(&models.Event{}).Error },
		func() error { return tx.Where("workflow_id = ?", w.ID).Delete(&models.Task{}).Error },
		func() error { return tx.Delete(&models.Workflow{}, "id = ?", w.ID).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Lock bumps the version column if nobody else did since w was read. The
// UPDATE holds the row lock until the surrounding transaction ends.
func (w *Workflow) Lock(ctx *contextx.Context) error {
	res := w.GetDB(ctx).Model(&models.Workflow{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	w.Version++
	return nil
}

func NewWorkflow() *Workflow {
	return &Workflow{Workflow: &models.Workflow{}}
}

func NewWorkflowFromDB(ctx *contextx.Context, m *models.Workflow) *Workflow {
	w := &Workflow{Workflow: m}
	w.SetContext(ctx)
	w.SetCreated()
	return w
}

func QueryWorkflowByID(ctx *contextx.Context, id string) (*Workflow, error) {
	m := &models.Workflow{}
	if err := GetDB(ctx).Where("id = ?", id).First(m).Error; err != nil {
		return nil, err
	}
	return NewWorkflowFromDB(ctx, m), nil
}

// QueryWorkflowsWithExpiredDelays lists ids of unfinished workflows owning
// an open delay whose estimated end is not after now.
func QueryWorkflowsWithExpiredDelays(ctx *contextx.Context, now time.Time) ([]*Workflow, error) {
	tx := GetDB(ctx)
	taskIDs := tx.Model(&models.Delay{}).Select("task_id").
		Where("start_date IS NOT NULL AND end_date IS NULL AND estimated_end_date <= ?", now)
	wfIDs := tx.Model(&models.Task{}).Select("workflow_id").Where("id IN (?)", taskIDs)

	var ms []*models.Workflow
	if err := tx.Where("id IN (?) AND status <> ?", wfIDs, states.DONE).Order("created_at").Find(&ms).Error; err != nil {
		return nil, err
	}
	wfs := make([]*Workflow, 0, len(ms))
	for _, m := range ms {
		wfs = append(wfs, NewWorkflowFromDB(ctx, m))
	}
	return wfs, nil
}

// CountRunningSubWorkflows counts unfinished workflows started from any of
// the given tasks.
func CountRunningSubWorkflows(ctx *contextx.Context, taskIDs ...string) (int64, error) {
	if len(taskIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := GetDB(ctx).Model(&models.Workflow{}).
		Where("ancestor_task_id IN ? AND status <> ?", taskIDs, states.DONE).
		Count(&count).Error
	return count, err
}
