package execution

import (
	"errors"
	"fmt"

	"llm-task-manager/internal/pipeline"
)

// ErrorKind classifies an ExecutionError
type ErrorKind string

const (
	// InvalidIntentParamPairing is a defect: the intent and the parameter variant disagree
	InvalidIntentParamPairing ErrorKind = "InvalidIntentParamPairing"
	TaskCreationError         ErrorKind = "TaskCreationError"
	TaskModificationError     ErrorKind = "TaskModificationError"
	TaskDeletionError         ErrorKind = "TaskDeletionError"
	TaskRetrievalError        ErrorKind = "TaskRetrievalError"
)

var (
	// ErrMissingTaskID means a modify or delete arrived without a task id
	ErrMissingTaskID = errors.New("no task id specified")
	// ErrIncompleteParams means required parameters other than the id are missing
	ErrIncompleteParams = errors.New("incomplete parameters")
)

// ExecutionError reports a failure to resolve an (intent, parameters) pair
type ExecutionError struct {
	Kind   ErrorKind
	Intent pipeline.Intent
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsDefect reports whether err signals an internal inconsistency rather than
// a user or store problem: a pairing mismatch or a cross-intent merge
func IsDefect(err error) bool {
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.Kind == InvalidIntentParamPairing {
		return true
	}
	var mergeErr *pipeline.MergeDefectError
	return errors.As(err, &mergeErr)
}

// KindOf returns the kind of an ExecutionError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind, true
	}
	return "", false
}
