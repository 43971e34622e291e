package objects

import (
	"time"

	"conductor/app/db/models"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
)

type Delay struct {
	*models.Delay
	ContextObject
	PersistentObject
}

func (d *Delay) Save(ctx *contextx.Context) error {
	if !d.IsCreated() {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if err := d.GetDB(ctx).Create(d.Delay).Error; err != nil {
			return err
		}
	} else if err := d.GetDB(ctx).Save(d.Delay).Error; err != nil {
		return err
	}
	d.SetContext(ctx)
	d.SetCreated()
	return nil
}

func (d *Delay) Delete(ctx *contextx.Context) error {
	return d.GetDB(ctx).Delete(&models.Delay{}, "id = ?", d.ID).Error
}

// IsOpen means started and not ended yet.
func (d *Delay) IsOpen() bool {
	return d.StartDate != nil && d.EndDate == nil
}

func (d *Delay) IsExpired(now time.Time) bool {
	return d.IsOpen() && d.EstimatedEndDate != nil && !d.EstimatedEndDate.After(now)
}

// Start opens the delay window at now.
func (d *Delay) Start(now time.Time) {
	start := now
	end := now.Add(time.Duration(d.Duration) * time.Second)
	d.StartDate = &start
	d.EstimatedEndDate = &end
	d.EndDate = nil
}

func (d *Delay) Close(now time.Time) {
	end := now
	d.EndDate = &end
}

// Reset forgets a template delay window so the next start opens it again.
func (d *Delay) Reset() {
	d.StartDate = nil
	d.EstimatedEndDate = nil
	d.EndDate = nil
}

func NewDelay(taskID string, duration time.Duration, origin string) *Delay {
	return &Delay{Delay: &models.Delay{
		TaskID:   taskID,
		Duration: int64(duration / time.Second),
		Origin:   origin,
	}}
}

func NewDelayFromDB(ctx *contextx.Context, m *models.Delay) *Delay {
	d := &Delay{Delay: m}
	d.SetContext(ctx)
	d.SetCreated()
	return d
}

func QueryDelaysByTask(ctx *contextx.Context, taskID string) ([]*Delay, error) {
	var ms []*models.Delay
	if err := GetDB(ctx).Where("task_id = ?", taskID).Order("start_date, id").Find(&ms).Error; err != nil {
		return nil, err
	}
	delays := make([]*Delay, 0, len(ms))
	for _, m := range ms {
		delays = append(delays, NewDelayFromDB(ctx, m))
	}
	return delays, nil
}

// QueryOpenDelay returns the single open delay of a task, or nil.
func QueryOpenDelay(ctx *contextx.Context, taskID string) (*Delay, error) {
	var ms []*models.Delay
	err := GetDB(ctx).Where("task_id = ? AND start_date IS NOT NULL AND end_date IS NULL", taskID).
		Limit(1).Find(&ms).Error
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return NewDelayFromDB(ctx, ms[0]), nil
}

// QueryTemplateDelay returns the not yet started template delay of a task, or nil.
func QueryTemplateDelay(ctx *contextx.Context, taskID string) (*Delay, error) {
	var ms []*models.Delay
	err := GetDB(ctx).Where("task_id = ? AND origin = ? AND start_date IS NULL", taskID, models.DelayOriginTemplate).
		Limit(1).Find(&ms).Error
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return NewDelayFromDB(ctx, ms[0]), nil
}
