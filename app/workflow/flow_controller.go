package workflow

import (
	"conductor/app/objects"
	"conductor/app/workflow/states"
)

// The task graph is held in declaration order; parents are referenced by
// api-name.

func (r *runner) task(apiName string) *objects.Task {
	return r.byAPIName[apiName]
}

func (r *runner) taskByID(id string) *objects.Task {
	for _, t := range r.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (r *runner) roots() []*objects.Task {
	var roots []*objects.Task
	for _, t := range r.tasks {
		if t.IsRoot() {
			roots = append(roots, t)
		}
	}
	return roots
}

// children lists the tasks that name task as a direct parent.
func (r *runner) children(task *objects.Task) []*objects.Task {
	var children []*objects.Task
	for _, t := range r.tasks {
		if t.Parents.Has(task.APIName) {
			children = append(children, t)
		}
	}
	return children
}

// revertTargets is the explicit revert target, else the direct parents.
func (r *runner) revertTargets(task *objects.Task) []*objects.Task {
	names := []string(task.Parents)
	if task.RevertTask != "" {
		names = []string{task.RevertTask}
	}
	var targets []*objects.Task
	for _, name := range names {
		if t := r.task(name); t != nil {
			targets = append(targets, t)
		}
	}
	return targets
}

// reachable reports whether to lies below from along child edges.
func (r *runner) reachable(from, to *objects.Task, visited map[string]bool) bool {
	for _, child := range r.children(from) {
		if child.ID == to.ID {
			return true
		}
		if visited[child.ID] {
			continue
		}
		visited[child.ID] = true
		if r.reachable(child, to, visited) {
			return true
		}
	}
	return false
}

// outermost drops every target that lies below another target. Of two
// targets on a cycle the first one is kept.
func (r *runner) outermost(targets []*objects.Task) []*objects.Task {
	var kept []*objects.Task
	for i, t := range targets {
		below := false
		for j, other := range targets {
			if i == j || !r.reachable(other, t, map[string]bool{}) {
				continue
			}
			if j < i || !r.reachable(t, other, map[string]bool{}) {
				below = true
				break
			}
		}
		if !below {
			kept = append(kept, t)
		}
	}
	return kept
}

// parentsResolved is the implicit start predicate of every task. A skipped
// parent only counts once its own parents are resolved, so a branch left
// skipped by a revert waits for the re-run task above it.
func (r *runner) parentsResolved(task *objects.Task) bool {
	return r.resolvedParents(task, map[string]bool{task.ID: true})
}

func (r *runner) resolvedParents(task *objects.Task, visited map[string]bool) bool {
	for _, name := range task.Parents {
		parent := r.task(name)
		if parent == nil || visited[parent.ID] {
			continue
		}
		if !states.IsResolved(parent.Status) {
			return false
		}
		if parent.Status == states.SKIPPED {
			visited[parent.ID] = true
			if !r.resolvedParents(parent, visited) {
				return false
			}
		}
	}
	return true
}

func (r *runner) tasksIn(statuses ...string) []*objects.Task {
	var out []*objects.Task
	for _, t := range r.tasks {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func taskIDs(tasks []*objects.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
