package errors

import "errors"

var (
	ErrTaskNotFound        = errors.New("task not found")
	ErrDuplicateSubmission = errors.New("a non-terminal task already exists for this url")
	ErrStaleTask           = errors.New("task was deleted concurrently")
	ErrTerminalConflict    = errors.New("task is already in a conflicting terminal state")
	ErrNotRetryable        = errors.New("only failed tasks can be retried")
	ErrNotCancellable      = errors.New("task is already in a terminal state")
	ErrNotDeletable        = errors.New("only terminal tasks can be deleted")
	ErrQueueFull           = errors.New("task queue is full")
)
