package workflow

import (
	"conductor/app/db/models"
	"conductor/app/objects"
)

// covers reports whether the performer stands for the actor, directly or
// through group membership.
func covers(p *objects.Performer, actorID string, groups map[string][]string) bool {
	if actorID == "" {
		return false
	}
	if p.Type == models.PerformerGroup {
		for _, member := range groups[p.GroupID] {
			if member == actorID {
				return true
			}
		}
		return false
	}
	return p.UserID == actorID
}

func activePerformers(performers []*objects.Performer) []*objects.Performer {
	var active []*objects.Performer
	for _, p := range performers {
		if !p.DirectlyDeleted {
			active = append(active, p)
		}
	}
	return active
}

// IsTaskComplete decides whether the task as a whole is complete once the
// actor has acted. Completed performers always count as satisfied. With
// ANY policy one satisfied performer is enough, with ALL every non-removed
// performer must be satisfied. An account owner who performs nothing on the
// task completes it on behalf of everyone.
func IsTaskComplete(requireAll bool, performers []*objects.Performer, groups map[string][]string, actorID string, actorIsOwner bool) bool {
	active := activePerformers(performers)
	if actorIsOwner && !IsPerformer(active, groups, actorID) {
		return true
	}
	satisfied := 0
	for _, p := range active {
		if p.IsCompleted || covers(p, actorID, groups) {
			satisfied++
		}
	}
	if requireAll {
		return satisfied == len(active)
	}
	return satisfied > 0
}

// IsPerformer reports whether any non-removed performer covers the actor.
func IsPerformer(performers []*objects.Performer, groups map[string][]string, actorID string) bool {
	for _, p := range activePerformers(performers) {
		if covers(p, actorID, groups) {
			return true
		}
	}
	return false
}

// IsUnresolvedPerformer reports whether the actor still has something to do.
func IsUnresolvedPerformer(performers []*objects.Performer, groups map[string][]string, actorID string) bool {
	for _, p := range activePerformers(performers) {
		if !p.IsCompleted && covers(p, actorID, groups) {
			return true
		}
	}
	return false
}

// taskPerformers loads performers and the members of their groups.
func (r *runner) taskPerformers(task *objects.Task) ([]*objects.Performer, map[string][]string, error) {
	performers, err := objects.QueryPerformersByTask(r.ctx, task.ID)
	if err != nil {
		return nil, nil, err
	}
	var groupIDs []string
	for _, p := range performers {
		if p.Type == models.PerformerGroup {
			groupIDs = append(groupIDs, p.GroupID)
		}
	}
	groups, err := objects.QueryGroupMembers(r.ctx, groupIDs...)
	if err != nil {
		return nil, nil, err
	}
	return performers, groups, nil
}

// recipients resolves the active performers of a task to user ids.
func recipients(performers []*objects.Performer, groups map[string][]string) []string {
	seen := map[string]bool{}
	var users []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	for _, p := range activePerformers(performers) {
		if p.Type == models.PerformerGroup {
			for _, member := range groups[p.GroupID] {
				add(member)
			}
		} else {
			add(p.UserID)
		}
	}
	return users
}
