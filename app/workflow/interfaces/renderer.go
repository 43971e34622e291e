package interfaces

import (
	"conductor/app/objects"
	"conductor/pkg/contextx"
)

// FieldRenderer supplies the field values visible to a task. The engine
// treats the result as an opaque string-keyed mapping.
type FieldRenderer interface {
	Render(ctx *contextx.Context, wf *objects.Workflow, task *objects.Task) (map[string]string, error)
}
