package tasks

import (
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
)

// Registry maps task type names to processors. Adding a processor means
// registering it, never branching on type inside the dispatcher.
type Registry struct {
	processors map[string]interfaces.Processor
	logger     arbor.ILogger
	mu         sync.RWMutex
}

// NewRegistry creates an empty processor registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		processors: make(map[string]interfaces.Processor),
		logger:     logger,
	}
}

// Register adds a processor under its task type
func (r *Registry) Register(processor interfaces.Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processors[processor.Type()] = processor
	r.logger.Debug().
		Str("task_type", processor.Type()).
		Msg("Processor registered")
}

// Get returns the processor for a task type
func (r *Registry) Get(taskType string) (interfaces.Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	processor, ok := r.processors[taskType]
	return processor, ok
}

// Types returns the registered task type names
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.processors))
	for taskType := range r.processors {
		types = append(types, taskType)
	}
	return types
}
