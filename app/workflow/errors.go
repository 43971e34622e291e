package workflow

import (
	"errors"
)

// Error is a named domain rule violation. It is never retried, the
// transaction is rolled back and the error is handed back as is.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on the code so a copy with another message still matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

func newError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

var (
	ErrWorkflowCompleted         = newError("workflow_completed", "the workflow is already completed")
	ErrWorkflowDelayed           = newError("workflow_delayed", "the workflow is delayed")
	ErrWorkflowNotFound          = newError("workflow_not_found", "workflow not found")
	ErrTaskNotFound              = newError("task_not_found", "task not found")
	ErrTaskNotActive             = newError("task_not_active", "the task is not active")
	ErrTaskAlreadyCompleted      = newError("task_already_completed", "the task is already completed")
	ErrPerformerAlreadyCompleted = newError("performer_already_completed", "you have already completed this task")
	ErrUserNotPerformer          = newError("user_not_performer", "the user is not a performer of the task")
	ErrBlockedBySubWorkflows     = newError("blocked_by_sub_workflows", "the task has running sub-workflows")
	ErrChecklistIncomplete       = newError("checklist_incomplete", "all checklist items must be marked")
	ErrRevertInactiveTask        = newError("revert_inactive_task", "only an active task can be reverted")
	ErrRevertFirstTask           = newError("revert_first_task", "cannot revert past the first task")
	ErrRevertSkippedTask         = newError("revert_skipped_task", "the revert would return to a permanently skipped task")
	ErrReturnToPendingTask       = newError("return_to_pending_task", "cannot return to a task that was not started yet")
	ErrReturnToSkippedTask       = newError("return_to_skipped_task", "cannot return to a task that would be skipped")
	ErrDelayDateInPast           = newError("delay_date_in_past", "the delay date must be in the future")
	ErrConcurrentUpdate          = newError("concurrent_update", "the workflow was changed concurrently, retry")
	ErrInvalidTemplate           = newError("invalid_template", "invalid template")
)

// AsDomainError extracts the domain error from err, if any.
func AsDomainError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
