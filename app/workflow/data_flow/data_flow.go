package data_flow

import (
	"conductor/app/objects"
	"conductor/app/workflow/states"
	"conductor/pkg/contextx"
)

// DataContext is the field scope a task sees.
type DataContext map[string]string

func NewDataContext(data ...map[string]string) DataContext {
	ctx := DataContext{}
	for _, d := range data {
		for name, value := range d {
			ctx[name] = value
		}
	}
	return ctx
}

// ToTable widens the context for the expression evaluators.
func (d DataContext) ToTable() objects.Table {
	t := objects.Table{}
	for k, v := range d {
		t[k] = v
	}
	return t
}

// Renderer exposes kickoff values overlaid with the outputs of completed
// tasks, in declaration order.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (Renderer) Render(ctx *contextx.Context, wf *objects.Workflow, task *objects.Task) (map[string]string, error) {
	tasks, err := objects.QueryTasksByWorkflow(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	values := NewDataContext(wf.Kickoff)
	for _, t := range tasks {
		if t.Status == states.COMPLETED {
			for k, v := range t.Output {
				values[k] = v
			}
		}
	}
	values["workflow_name"] = wf.Name
	if task != nil {
		values["task_name"] = task.Name
	}
	return values, nil
}
