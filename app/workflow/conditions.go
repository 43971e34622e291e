package workflow

import (
	"conductor/app/db/models"
	"conductor/app/expressions"
	"conductor/app/objects"
	"conductor/app/workflow/data_flow"
	"conductor/pkg/log"
)

// Verdict is the outcome of evaluating a task's conditions.
type Verdict string

const (
	VerdictStart       Verdict = "START"
	VerdictSkip        Verdict = "SKIP"
	VerdictEndWorkflow Verdict = "END_WORKFLOW"
	VerdictWait        Verdict = "WAIT"
)

// ruleHolds evaluates one rule. Markup goes through the expression
// evaluators, a bare rule names a field and tests its truthiness. Rules that
// fail to evaluate do not hold.
func ruleHolds(rule string, fields data_flow.DataContext) bool {
	if !expressions.IsExpression(rule) {
		v, ok := fields[rule]
		return ok && expressions.IsTruthy(v)
	}
	result, err := expressions.Evaluate(rule, fields.ToTable())
	if err != nil {
		log.Debugf(nil, "rule %q is not evaluated: %s", rule, err.Error())
		return false
	}
	return expressions.IsTruthy(result)
}

// conditionHolds combines the rules with the condition operator. A
// condition without rules always holds.
func conditionHolds(c *models.Condition, fields data_flow.DataContext) bool {
	if len(c.Rules) == 0 {
		return true
	}
	if c.Operator == "any" {
		for _, rule := range c.Rules {
			if ruleHolds(rule, fields) {
				return true
			}
		}
		return false
	}
	for _, rule := range c.Rules {
		if !ruleHolds(rule, fields) {
			return false
		}
	}
	return true
}

// EvaluateConditions decides what happens to a task. It has no side effects.
//
// The start predicates (implicit "parents resolved" plus any START_TASK
// conditions, of which one must hold) gate everything and yield WAIT. Skip
// predicates are then checked in declaration order: a passing END_WORKFLOW
// wins immediately, otherwise any passing SKIP_TASK yields SKIP.
func EvaluateConditions(parentsResolved bool, conditions []*objects.Condition, fields data_flow.DataContext) Verdict {
	if !parentsResolved {
		return VerdictWait
	}

	hasStart, started := false, false
	for _, c := range conditions {
		if c.Action == models.ConditionStartTask {
			hasStart = true
			if !started && conditionHolds(c.Condition, fields) {
				started = true
			}
		}
	}
	if hasStart && !started {
		return VerdictWait
	}

	skip := false
	for _, c := range conditions {
		switch c.Action {
		case models.ConditionEndWorkflow:
			if conditionHolds(c.Condition, fields) {
				return VerdictEndWorkflow
			}
		case models.ConditionSkipTask:
			if !skip && conditionHolds(c.Condition, fields) {
				skip = true
			}
		}
	}
	if skip {
		return VerdictSkip
	}
	return VerdictStart
}

// evaluate loads the task's conditions and field values and evaluates them.
func (r *runner) evaluate(task *objects.Task) (Verdict, error) {
	return r.evaluateWith(task, r.parentsResolved(task))
}

// skipVerdict ignores the parent gate, used while rolling back descendants
// whose parents are about to be re-run.
func (r *runner) skipVerdict(task *objects.Task) (Verdict, error) {
	return r.evaluateWith(task, true)
}

func (r *runner) evaluateWith(task *objects.Task, parentsResolved bool) (Verdict, error) {
	if !parentsResolved {
		return VerdictWait, nil
	}
	conditions, err := objects.QueryConditionsByTask(r.ctx, task.ID)
	if err != nil {
		return "", err
	}
	if len(conditions) == 0 {
		return VerdictStart, nil
	}
	fields, err := r.fields(task)
	if err != nil {
		return "", err
	}
	return EvaluateConditions(true, conditions, fields), nil
}
