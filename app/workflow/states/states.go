package states

import "fmt"

var (
	// PENDING Task is instantiated but not reached yet.
	PENDING = "PENDING"

	// ACTIVE Task is waiting for its performers.
	ACTIVE = "ACTIVE"

	// DELAYED Task (or workflow) is reached but held back by an open delay.
	DELAYED = "DELAYED"

	// SKIPPED Task was bypassed by a condition or had nobody to perform it.
	SKIPPED = "SKIPPED"

	// COMPLETED Task has been completed by its performers.
	COMPLETED = "COMPLETED"

	// RUNNING Workflow has at least one active task or work left to reach.
	RUNNING = "RUNNING"

	// DONE Workflow has no pending, active or delayed task left.
	DONE = "DONE"

	// OpenStates are the task states that keep a workflow from being done.
	OpenStates = []string{PENDING, ACTIVE, DELAYED}

	// ResolvedStates let descendants start.
	ResolvedStates = []string{COMPLETED, SKIPPED}

	transitions = map[string][]string{
		PENDING:   {ACTIVE, DELAYED, SKIPPED},
		ACTIVE:    {COMPLETED, DELAYED, SKIPPED, PENDING},
		DELAYED:   {ACTIVE, PENDING, SKIPPED},
		SKIPPED:   {PENDING, ACTIVE, DELAYED},
		COMPLETED: {PENDING, ACTIVE, DELAYED},
	}
)

func in(state string, list []string) bool {
	for _, s := range list {
		if s == state {
			return true
		}
	}
	return false
}

func IsOpen(state string) bool {
	return in(state, OpenStates)
}

func IsResolved(state string) bool {
	return in(state, ResolvedStates)
}

func IsDone(state string) bool {
	return state == DONE
}

// ValidateTaskTransition rejects moves the lifecycle never makes, e.g. a
// skipped task cannot be completed directly.
func ValidateTaskTransition(curState, state string) error {
	if curState == state {
		return nil
	}
	if in(state, transitions[curState]) {
		return nil
	}
	return fmt.Errorf("illegal task transition %s -> %s", curState, state)
}
