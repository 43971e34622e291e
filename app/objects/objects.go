package objects

import (
	"conductor/app/db"
	"conductor/pkg/contextx"

	"gorm.io/gorm"
)

// Table is a bag of field values, e.g. kickoff and task outputs.
type Table map[string]interface{}

// GetDB returns the unit of work bound to ctx, or the shared connection.
func GetDB(ctx *contextx.Context) *gorm.DB {
	if ctx != nil {
		if tx, ok := ctx.GetDB().(*gorm.DB); ok && tx != nil {
			return tx
		}
	}
	return db.GetDBConnection()
}

type ContextObject struct {
	ctx *contextx.Context
}

func (c *ContextObject) GetContext() *contextx.Context {
	return c.ctx
}

func (c *ContextObject) SetContext(ctx *contextx.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

func (c *ContextObject) GetDB(ctx *contextx.Context) *gorm.DB {
	if ctx == nil {
		ctx = c.GetContext()
	}
	return GetDB(ctx)
}

type PersistentObject struct {
	isCreated bool
}

func (p *PersistentObject) IsCreated() bool {
	return p.isCreated
}

func (p *PersistentObject) SetCreated() {
	if !p.isCreated {
		p.isCreated = true
	}
}

// updateFields writes only the named struct fields of a persisted row.
func updateFields(tx *gorm.DB, model interface{}, fields []string) error {
	if len(fields) == 0 {
		return tx.Save(model).Error
	}
	return tx.Model(model).Select(fields).Updates(model).Error
}
