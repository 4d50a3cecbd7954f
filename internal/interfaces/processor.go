package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/libris/internal/models"
)

// Processor performs the actual work for one task type. Implementations must
// be reentrant: Execute may be called concurrently for different tasks.
// Long-running processors should observe ctx for cooperative cancellation.
type Processor interface {
	// Type returns the task type this processor handles
	Type() string

	// Validate checks a submission payload before a task is created
	Validate(payload json.RawMessage) error

	// Execute runs the processor and returns an opaque result
	Execute(ctx context.Context, task *models.Task) (json.RawMessage, error)
}
