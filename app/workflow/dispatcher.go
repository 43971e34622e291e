package workflow

import (
	"fmt"

	"conductor/app/objects"
)

// Action is what the orchestrator decided to do with one task. Kind is one
// of START, SKIP or END_WORKFLOW; Returned marks a start caused by a
// revert or return-to.
type Action struct {
	Kind     Verdict
	Task     *objects.Task
	Returned bool
}

type actionHandler func(r *runner, a Action) error

var dispatchTable = map[Verdict]actionHandler{
	VerdictStart: func(r *runner, a Action) error {
		_, err := r.startTask(a.Task, startOptions{returned: a.Returned})
		return err
	},
	VerdictSkip: func(r *runner, a Action) error {
		return r.skipTask(a.Task)
	},
	VerdictEndWorkflow: func(r *runner, a Action) error {
		return r.endWorkflow(a.Task)
	},
}

func (r *runner) dispatch(a Action) error {
	handler, ok := dispatchTable[a.Kind]
	if !ok {
		return fmt.Errorf("no handler for action %s on task %s", a.Kind, a.Task.APIName)
	}
	return handler(r, a)
}
