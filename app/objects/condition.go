package objects

import (
	"conductor/app/db/models"
	"conductor/pkg/contextx"

	"github.com/google/uuid"
)

type Condition struct {
	*models.Condition
	ContextObject
	PersistentObject
}

func (c *Condition) Save(ctx *contextx.Context) error {
	if !c.IsCreated() {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if err := c.GetDB(ctx).Create(c.Condition).Error; err != nil {
			return err
		}
	} else if err := c.GetDB(ctx).Save(c.Condition).Error; err != nil {
		return err
	}
	c.SetContext(ctx)
	c.SetCreated()
	return nil
}

func NewCondition() *Condition {
	return &Condition{Condition: &models.Condition{}}
}

// QueryConditionsByTask returns conditions in declaration order.
func QueryConditionsByTask(ctx *contextx.Context, taskID string) ([]*Condition, error) {
	var ms []*models.Condition
	if err := GetDB(ctx).Where("task_id = ?", taskID).Order("position").Find(&ms).Error; err != nil {
		return nil, err
	}
	conditions := make([]*Condition, 0, len(ms))
	for _, m := range ms {
		c := &Condition{Condition: m}
		c.SetContext(ctx)
		c.SetCreated()
		conditions = append(conditions, c)
	}
	return conditions, nil
}
