package interfaces

import (
	"errors"
)

var (
	// ErrTaskNotFound is returned when a task id is unknown or already evicted
	ErrTaskNotFound = errors.New("task not found")

	// ErrDocumentNotFound is returned when a document id is unknown
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNoPendingTasks is returned by ClaimNext when the queue is drained
	ErrNoPendingTasks = errors.New("no pending tasks")

	// ErrConflict is returned when an illegal state transition is attempted
	ErrConflict = errors.New("conflicting task state")
)
