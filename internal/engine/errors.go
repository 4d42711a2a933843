package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates invalid input rejected before any mutation
	ErrValidation = errors.New("validation error")
	// ErrLimitReached indicates a completion would exceed numberLimit or dailyLimit
	ErrLimitReached = errors.New("limit reached")
	// ErrBoostConflict indicates a boost is already applied, or there is none to remove
	ErrBoostConflict = errors.New("boost conflict")
	// ErrSyncFailure indicates the change was kept locally but the remote write failed
	ErrSyncFailure = errors.New("saved locally, not yet synced")
	// ErrNotFound indicates an unknown task or completed entry
	ErrNotFound = errors.New("not found")
)

// Error is a rejected transition. Kind is one of the sentinel errors above.
type Error struct {
	Kind    error
	Op      string
	TaskID  string
	Message string
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s %s: %v: %s", e.Op, e.TaskID, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, op, taskID, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		TaskID:  taskID,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf returns the sentinel kind of err, or nil when err is not an engine rejection
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrLimitReached, ErrBoostConflict, ErrSyncFailure, ErrNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
