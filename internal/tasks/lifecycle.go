package tasks

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/chronos/pkg/models"
)

var (
	// ErrTransition is wrapped by every rejected status change.
	ErrTransition = errors.New("invalid task transition")
	// ErrNotOperator means the caller is not the operator bound to the task's
	// telescope.
	ErrNotOperator = errors.New("not the telescope operator")
	// ErrNotOwner means the caller did not submit the task.
	ErrNotOwner = errors.New("task belongs to another user")
)

// LifecycleError names the guard a status change violated.
type LifecycleError struct {
	Field  string
	Reason string
	Err    error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

var validTransitions = map[models.TaskStatus][]models.TaskStatus{
	models.TaskDraft:    {models.TaskCreated},
	models.TaskCreated:  {models.TaskReceived},
	models.TaskReceived: {models.TaskReady, models.TaskFailed},
}

// rank orders statuses along the lifecycle; ready and failed share a rank.
var rank = map[models.TaskStatus]int{
	models.TaskDraft:    0,
	models.TaskCreated:  1,
	models.TaskReceived: 2,
	models.TaskReady:    3,
	models.TaskFailed:   3,
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to models.TaskStatus) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to models.TaskStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &LifecycleError{
		Field:  "status",
		Reason: fmt.Sprintf("invalid transition %s -> %s", from, to),
		Err:    ErrTransition,
	}
}

// checkOperatorStatus rejects statuses an operator may not set.
func checkOperatorStatus(to models.TaskStatus) error {
	r, ok := rank[to]
	if !ok {
		return &LifecycleError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to), Err: ErrTransition}
	}
	if r < rank[models.TaskReceived] {
		return &LifecycleError{
			Field:  "status",
			Reason: fmt.Sprintf("operators may not set status %s", to),
			Err:    ErrTransition,
		}
	}
	return nil
}

func checkOperator(t *models.Telescope, userID uuid.UUID) error {
	if t.OperatedBy(userID) {
		return nil
	}
	return &LifecycleError{Field: "telescope", Reason: "telescope mismatch", Err: ErrNotOperator}
}

func taskIsNone(err error) error {
	return &LifecycleError{Field: "task", Reason: "task is none", Err: err}
}
