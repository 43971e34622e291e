package objects

import (
	"conductor/pkg/contextx"

	"gorm.io/gorm"
)

// Transaction runs fc inside one database transaction bound to a cloned ctx.
// A ctx that already carries a transaction is reused through a savepoint.
func Transaction(ctx *contextx.Context, fc func(subCtx *contextx.Context) error) error {
	subCtx := ctx.Clone()
	return GetDB(ctx).Transaction(func(tx *gorm.DB) error {
		subCtx.SetDB(tx)
		return fc(subCtx)
	})
}
