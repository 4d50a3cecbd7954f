package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusPending, TaskStatusRunning, true},
		{TaskStatusPending, TaskStatusCancelled, true},
		{TaskStatusPending, TaskStatusSucceeded, false},
		{TaskStatusPending, TaskStatusDead, false},
		{TaskStatusRunning, TaskStatusSucceeded, true},
		{TaskStatusRunning, TaskStatusDead, true},
		{TaskStatusRunning, TaskStatusCancelled, true},
		{TaskStatusRunning, TaskStatusPending, true},
		{TaskStatusSucceeded, TaskStatusRunning, false},
		{TaskStatusSucceeded, TaskStatusPending, false},
		{TaskStatusDead, TaskStatusPending, false},
		{TaskStatusCancelled, TaskStatusRunning, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, (&Task{Status: TaskStatusSucceeded}).IsTerminal())
	assert.True(t, (&Task{Status: TaskStatusDead}).IsTerminal())
	assert.True(t, (&Task{Status: TaskStatusCancelled}).IsTerminal())
	assert.False(t, (&Task{Status: TaskStatusPending}).IsTerminal())
	assert.False(t, (&Task{Status: TaskStatusRunning}).IsTerminal())
}

func TestFingerprintNormalizesPayload(t *testing.T) {
	a := Fingerprint("structure", json.RawMessage(`{"a":1,"b":2}`))
	b := Fingerprint("structure", json.RawMessage(`{ "b": 2, "a": 1 }`))
	assert.Equal(t, a, b, "key order and whitespace should not change the fingerprint")

	c := Fingerprint("structure", json.RawMessage(`{"a":1,"b":3}`))
	assert.NotEqual(t, a, c)

	d := Fingerprint("keywords", json.RawMessage(`{"a":1,"b":2}`))
	assert.NotEqual(t, a, d, "task type is part of the fingerprint")
}

func TestMarkRunningIncrementsAttempts(t *testing.T) {
	task := NewTask("task_1", "structure", json.RawMessage(`{}`), 3)
	require.Equal(t, TaskStatusPending, task.Status)
	require.Equal(t, 0, task.AttemptCount)

	task.MarkRunning()
	assert.Equal(t, TaskStatusRunning, task.Status)
	assert.Equal(t, 1, task.AttemptCount)
	assert.NotNil(t, task.StartedAt)
}

func TestMarkSucceededSetsExpiry(t *testing.T) {
	task := NewTask("task_1", "structure", json.RawMessage(`{}`), 3)
	task.MarkRunning()

	before := time.Now()
	task.MarkSucceeded(json.RawMessage(`{"ok":true}`), time.Hour)

	assert.Equal(t, TaskStatusSucceeded, task.Status)
	require.NotNil(t, task.ExpiresAt)
	assert.WithinDuration(t, before.Add(time.Hour), *task.ExpiresAt, 5*time.Second)
	assert.NotNil(t, task.CompletedAt)
}

func TestMarkRequeuedClearsError(t *testing.T) {
	task := NewTask("task_1", "structure", json.RawMessage(`{}`), 3)
	task.MarkRunning()
	task.Error = &TaskError{Kind: ErrorKindProcessing, Message: "boom", Retryable: true}

	task.MarkRequeued()

	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.AttemptCount, "requeue keeps the attempt count")
	assert.Nil(t, task.Error, "only dead tasks carry an error")
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.ExpiresAt)
}

func TestIsExpired(t *testing.T) {
	now := time.Now()

	task := NewTask("task_1", "structure", json.RawMessage(`{}`), 3)
	assert.False(t, task.IsExpired(now), "tasks without expiry never expire")

	past := now.Add(-time.Minute)
	task.ExpiresAt = &past
	assert.True(t, task.IsExpired(now))

	future := now.Add(time.Minute)
	task.ExpiresAt = &future
	assert.False(t, task.IsExpired(now))
}

func TestNewTaskDefaultsMaxAttempts(t *testing.T) {
	task := NewTask("task_1", "structure", json.RawMessage(`{}`), 0)
	assert.Equal(t, 3, task.MaxAttempts)

	task = NewTask("task_2", "structure", json.RawMessage(`{}`), 5)
	assert.Equal(t, 5, task.MaxAttempts)
}

func TestClassifyError(t *testing.T) {
	verr := NewValidationError("field", "bad")
	classified := ClassifyError(verr)
	assert.Equal(t, ErrorKindValidation, classified.Kind)
	assert.False(t, classified.Retryable)

	perr := NewProcessingError("transient", true, nil)
	classified = ClassifyError(perr)
	assert.Equal(t, ErrorKindProcessing, classified.Kind)
	assert.True(t, classified.Retryable)

	terr := NewTimeoutError("too slow")
	classified = ClassifyError(terr)
	assert.Equal(t, ErrorKindTimeout, classified.Kind)
	assert.True(t, classified.Retryable)
}
