// -----------------------------------------------------------------------
// Task - Durable unit of work tracked by the task engine
// -----------------------------------------------------------------------

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusDead      TaskStatus = "dead"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// validTransitions is the task state machine. Anything not listed is a conflict.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusRunning, TaskStatusCancelled},
	TaskStatusRunning: {TaskStatusSucceeded, TaskStatusDead, TaskStatusCancelled, TaskStatusPending},
}

// CanTransition reports whether moving from s to target is permitted
func (s TaskStatus) CanTransition(target TaskStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no outgoing transitions
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusDead || s == TaskStatusCancelled
}

// TaskError is the structured error persisted on a dead task
type TaskError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Task is the canonical task record. The task store exclusively owns it;
// workers hold only a transient claim while the task is running.
type Task struct {
	ID          string          `json:"id" badgerhold:"key"`
	Fingerprint string          `json:"fingerprint" badgerhold:"index"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`

	Status TaskStatus      `json:"status" badgerhold:"index"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *TaskError      `json:"error,omitempty"`

	AttemptCount int `json:"attempt_count"`
	MaxAttempts  int `json:"max_attempts"`

	// CancelRequested is the cooperative cancellation flag. Processors that
	// never observe it run to completion regardless.
	CancelRequested bool `json:"cancel_requested"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// DefaultMaxAttempts applies when a submission omits max_attempts
const DefaultMaxAttempts = 3

// NewTask creates a pending task for the given type and payload
func NewTask(id, taskType string, payload json.RawMessage, maxAttempts int) *Task {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &Task{
		ID:           id,
		Fingerprint:  Fingerprint(taskType, payload),
		Type:         taskType,
		Payload:      payload,
		Status:       TaskStatusPending,
		AttemptCount: 0,
		MaxAttempts:  maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Fingerprint derives the dedupe digest from a task type and payload.
// The payload is normalized by decoding and re-encoding, so two JSON bodies
// that differ only in key order or whitespace produce the same fingerprint.
func Fingerprint(taskType string, payload json.RawMessage) string {
	normalized := normalizePayload(payload)
	sum := sha256.Sum256([]byte(taskType + "\n" + normalized))
	return hex.EncodeToString(sum[:])
}

func normalizePayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return string(payload)
	}
	// encoding/json marshals map keys in sorted order
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return string(payload)
	}
	return string(normalized)
}

// IsTerminal returns true if the task is in a terminal state
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsExpired reports whether the task is past its eviction deadline
func (t *Task) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// MarkRunning transitions the task to running and counts the attempt
func (t *Task) MarkRunning() {
	now := time.Now()
	t.Status = TaskStatusRunning
	t.AttemptCount++
	t.StartedAt = &now
	t.UpdatedAt = now
}

// MarkSucceeded records the result and schedules eviction
func (t *Task) MarkSucceeded(result json.RawMessage, retention time.Duration) {
	now := time.Now()
	expires := now.Add(retention)
	t.Status = TaskStatusSucceeded
	t.Result = result
	t.CompletedAt = &now
	t.ExpiresAt = &expires
	t.UpdatedAt = now
}

// MarkDead records the final error and schedules eviction
func (t *Task) MarkDead(taskErr *TaskError, retention time.Duration) {
	now := time.Now()
	expires := now.Add(retention)
	t.Status = TaskStatusDead
	t.Error = taskErr
	t.CompletedAt = &now
	t.ExpiresAt = &expires
	t.UpdatedAt = now
}

// MarkRequeued returns a running task to pending after a retryable failure.
// The error field is cleared; only dead tasks carry one.
func (t *Task) MarkRequeued() {
	t.Status = TaskStatusPending
	t.Error = nil
	t.StartedAt = nil
	t.UpdatedAt = time.Now()
}

// MarkCancelled transitions the task to cancelled and schedules eviction
func (t *Task) MarkCancelled(retention time.Duration) {
	now := time.Now()
	expires := now.Add(retention)
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
	t.ExpiresAt = &expires
	t.UpdatedAt = now
}

// Validate validates the task record
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if t.Type == "" {
		return fmt.Errorf("task type is required")
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	return nil
}

// Clone creates a copy of the task record
func (t *Task) Clone() *Task {
	clone := *t
	if t.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), t.Payload...)
	}
	if t.Result != nil {
		clone.Result = append(json.RawMessage(nil), t.Result...)
	}
	if t.Error != nil {
		errCopy := *t.Error
		clone.Error = &errCopy
	}
	return &clone
}
