package contextx

import "context"

const (
	keyUserID    = "user_id"
	keyAccountID = "account_id"
	keyRequestID = "requestId"
	keyWorkflow  = "workflow"
)

// Context is the acting context of one engine call: who acts, on behalf of
// which account, and the unit of work (database transaction) it runs in.
type Context struct {
	context.Context
	dbTx      interface{}
	data      map[string]interface{}
	ownerRole bool
}

func (ctx *Context) Clone() *Context {
	newCtx := &Context{
		Context:   ctx.Context,
		data:      map[string]interface{}{},
		ownerRole: ctx.ownerRole,
		dbTx:      ctx.dbTx,
	}
	for k, v := range ctx.data {
		newCtx.data[k] = v
	}

	return newCtx
}

func (ctx *Context) GetDB() interface{} {
	return ctx.dbTx
}

func (ctx *Context) SetDB(tx interface{}) {
	ctx.dbTx = tx
}

func (ctx *Context) getString(key string) string {
	if v, ok := ctx.data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (ctx *Context) GetUserID() string {
	return ctx.getString(keyUserID)
}

func (ctx *Context) GetAccountID() string {
	return ctx.getString(keyAccountID)
}

func (ctx *Context) GetRequestID() string {
	return ctx.getString(keyRequestID)
}

func (ctx *Context) SetRequestID(id string) {
	ctx.data[keyRequestID] = id
}

func (ctx *Context) GetWorkflow() string {
	return ctx.getString(keyWorkflow)
}

func (ctx *Context) SetWorkflow(id string) {
	ctx.data[keyWorkflow] = id
}

// IsAccountOwner reports whether the acting user owns the account.
func (ctx *Context) IsAccountOwner() bool {
	return ctx.ownerRole
}

func NewContext() *Context {
	return &Context{
		Context: context.Background(),
		data:    map[string]interface{}{},
	}
}

// NewUserContext builds the acting context for a user of an account.
func NewUserContext(parent context.Context, accountID, userID string, owner bool) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		Context: parent,
		data: map[string]interface{}{
			keyAccountID: accountID,
			keyUserID:    userID,
		},
		ownerRole: owner,
	}
}

// NewSystemContext is used by reconciliation jobs that act without a user.
func NewSystemContext(accountID string) *Context {
	return &Context{
		Context: context.Background(),
		data: map[string]interface{}{
			keyAccountID: accountID,
		},
		ownerRole: true,
	}
}
