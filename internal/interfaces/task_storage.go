package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/libris/internal/models"
)

// TaskListOptions filters and pages task listings
type TaskListOptions struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

// TaskStorage is the durable task store backing the engine's dedupe and
// mutual-exclusion guarantees. All mutation goes through its atomic
// operations; callers never write task records directly.
type TaskStorage interface {
	// Submit atomically creates a pending task, or returns the existing one
	// when an in-flight task with the same fingerprint already exists.
	// The returned bool is true when a new record was created.
	Submit(ctx context.Context, taskType string, payload json.RawMessage, maxAttempts int) (*models.Task, bool, error)

	// ClaimNext atomically moves one pending task to running and returns it.
	// Returns ErrNoPendingTasks when nothing is claimable. No two callers
	// can claim the same task.
	ClaimNext(ctx context.Context) (*models.Task, error)

	// Complete transitions running -> succeeded and records the result.
	// Returns ErrConflict if the task is not currently running.
	Complete(ctx context.Context, taskID string, result json.RawMessage) (*models.Task, error)

	// Fail routes a running task's failure: retryable errors re-queue the
	// task while attempts remain, anything else moves it to dead.
	// Returns ErrConflict if the task is not currently running.
	Fail(ctx context.Context, taskID string, taskErr *models.TaskError) (*models.Task, error)

	// Cancel transitions a pending task to cancelled immediately. For a
	// running task it sets the cooperative cancel flag and leaves the
	// status untouched. Returns ErrConflict for terminal tasks.
	Cancel(ctx context.Context, taskID string) (*models.Task, error)

	// FinishCancelled transitions a running task whose cancel flag was
	// observed by its worker to cancelled. Returns ErrConflict if the task
	// is not currently running.
	FinishCancelled(ctx context.Context, taskID string) (*models.Task, error)

	// GetTask returns the task by id, or ErrTaskNotFound. Expired records
	// are evicted lazily here.
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// ListTasks returns tasks matching the options, newest first
	ListTasks(ctx context.Context, opts *TaskListOptions) ([]*models.Task, error)

	// CountTasksByStatus returns task counts grouped by status
	CountTasksByStatus(ctx context.Context) (map[string]int, error)

	// EvictExpired removes terminal records past their expiry. Running
	// tasks are never evicted. Returns the number of records removed.
	EvictExpired(ctx context.Context) (int, error)

	// RecoverRunningTasks returns tasks left running by a previous process
	// to pending so they can be claimed again. Called once on startup.
	RecoverRunningTasks(ctx context.Context) (int, error)
}
