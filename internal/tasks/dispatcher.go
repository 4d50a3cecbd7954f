// -----------------------------------------------------------------------
// Dispatcher - bounded worker pool draining pending tasks
// -----------------------------------------------------------------------

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/common"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

// DispatcherConfig bundles the worker pool settings
type DispatcherConfig struct {
	Concurrency      int
	PollInterval     time.Duration
	ProcessorTimeout time.Duration
}

// Dispatcher continuously drains pending work with a fixed-size pool of
// workers. Per-task mutual exclusion comes from the store's atomic claim;
// the dispatcher adds panic isolation, deadlines, and cooperative
// cancellation on top.
type Dispatcher struct {
	store    interfaces.TaskStorage
	registry *Registry
	logger   arbor.ILogger
	config   DispatcherConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	// active maps a running task id to the cancel func for its context.
	// Cancel requests flip the store flag and cancel this context.
	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// NewDispatcher creates a dispatcher over the given store and registry
func NewDispatcher(store interfaces.TaskStorage, registry *Registry, logger arbor.ILogger, config DispatcherConfig) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.ProcessorTimeout <= 0 {
		config.ProcessorTimeout = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		store:    store,
		registry: registry,
		logger:   logger,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("dispatcher already running")
	}
	if d.ctx.Err() != nil {
		return fmt.Errorf("dispatcher already stopped")
	}
	d.running = true

	d.logger.Info().
		Int("concurrency", d.config.Concurrency).
		Dur("poll_interval", d.config.PollInterval).
		Msg("Starting dispatcher")

	for i := 0; i < d.config.Concurrency; i++ {
		workerID := i
		d.wg.Add(1)
		common.SafeGoWithContext(d.ctx, d.logger, fmt.Sprintf("dispatcher-worker-%d", workerID), func() {
			defer d.wg.Done()
			d.worker(workerID)
		})
	}

	return nil
}

// Stop stops the pool and waits for in-flight tasks to finish
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping dispatcher")
	d.cancel()
	d.wg.Wait()
	d.logger.Info().Msg("Dispatcher stopped")
}

// CancelActive cancels the context of a running task so a cooperative
// processor can stop early. Safe to call for tasks this dispatcher does not
// hold; those are a no-op.
func (d *Dispatcher) CancelActive(taskID string) {
	d.activeMu.Lock()
	cancel, ok := d.active[taskID]
	d.activeMu.Unlock()

	if ok {
		d.logger.Debug().Str("task_id", taskID).Msg("Cancelling active task")
		cancel()
	}
}

// worker is the claim-process loop for one pool slot
func (d *Dispatcher) worker(workerID int) {
	// Stagger worker starts to reduce claim contention
	staggerDelay := (d.config.PollInterval / time.Duration(d.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-time.After(staggerDelay):
		case <-d.ctx.Done():
			return
		}
	}

	d.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	storageBackoff := time.Duration(0)

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain until the queue is empty, then wait for the next tick
			for {
				task, err := d.store.ClaimNext(d.ctx)
				if err != nil {
					if errors.Is(err, interfaces.ErrNoPendingTasks) {
						storageBackoff = 0
						break
					}
					// Store trouble: back off, the task queue is untouched
					storageBackoff = nextBackoff(storageBackoff)
					d.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Dur("backoff", storageBackoff).
						Msg("Claim failed, backing off")
					select {
					case <-time.After(storageBackoff):
					case <-d.ctx.Done():
						return
					}
					break
				}

				storageBackoff = 0
				d.processTask(workerID, task)

				select {
				case <-d.ctx.Done():
					return
				default:
				}
			}
		}
	}
}

// processTask runs one claimed task through its processor and routes the
// outcome back to the store
func (d *Dispatcher) processTask(workerID int, task *models.Task) {
	processor, ok := d.registry.Get(task.Type)
	if !ok {
		d.logger.Error().
			Str("task_id", task.ID).
			Str("type", task.Type).
			Msg("No processor registered for task type")
		d.failTask(task.ID, &models.TaskError{
			Kind:      models.ErrorKindProcessing,
			Message:   fmt.Sprintf("no processor registered for type %q", task.Type),
			Retryable: false,
		})
		return
	}

	taskCtx, cancel := context.WithTimeout(d.ctx, d.config.ProcessorTimeout)
	defer cancel()

	d.activeMu.Lock()
	d.active[task.ID] = cancel
	d.activeMu.Unlock()
	defer func() {
		d.activeMu.Lock()
		delete(d.active, task.ID)
		d.activeMu.Unlock()
	}()

	// Pending tasks flagged while previously running keep the flag set
	if task.CancelRequested {
		cancel()
	}

	d.logger.Debug().
		Str("task_id", task.ID).
		Str("type", task.Type).
		Int("attempt", task.AttemptCount).
		Int("worker_id", workerID).
		Msg("Processing task")

	startTime := time.Now()
	result, err := d.invoke(processor, taskCtx, task)
	duration := time.Since(startTime)

	if err != nil {
		// A cancel request that the processor honored finishes as cancelled,
		// not dead
		if d.cancelObserved(task.ID, err) {
			d.logger.Info().
				Str("task_id", task.ID).
				Dur("duration", duration).
				Msg("Task cancelled cooperatively")
			d.withStorageRetry(func() error {
				_, ferr := d.store.FinishCancelled(context.Background(), task.ID)
				return ferr
			})
			return
		}

		if taskCtx.Err() == context.DeadlineExceeded {
			err = models.NewTimeoutError(fmt.Sprintf("processor exceeded %s deadline", d.config.ProcessorTimeout))
		}

		taskErr := models.ClassifyError(err)
		var pe *panicError
		if errors.As(err, &pe) {
			taskErr = &models.TaskError{
				Kind:      models.ErrorKindPanic,
				Message:   pe.Error(),
				Retryable: false,
			}
		}
		d.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Str("type", task.Type).
			Bool("retryable", taskErr.Retryable).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Processor failed")

		d.failTask(task.ID, taskErr)
		return
	}

	d.logger.Info().
		Str("task_id", task.ID).
		Str("type", task.Type).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Task completed")

	d.withStorageRetry(func() error {
		_, cerr := d.store.Complete(context.Background(), task.ID, result)
		return cerr
	})
}

// invoke calls the processor with panic isolation. A panicking processor
// surfaces as a non-retryable failure instead of killing the worker.
func (d *Dispatcher) invoke(processor interfaces.Processor, ctx context.Context, task *models.Task) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			d.logger.Error().
				Str("task_id", task.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Processor panicked")
			err = &panicError{value: r}
		}
	}()

	return processor.Execute(ctx, task)
}

// cancelObserved reports whether the error is the processor honoring a
// cancel request for this task
func (d *Dispatcher) cancelObserved(taskID string, err error) bool {
	if !errors.Is(err, context.Canceled) {
		return false
	}
	current, gerr := d.store.GetTask(context.Background(), taskID)
	if gerr != nil {
		return false
	}
	return current.CancelRequested
}

// failTask routes a failure to the store with backoff on storage trouble
func (d *Dispatcher) failTask(taskID string, taskErr *models.TaskError) {
	d.withStorageRetry(func() error {
		_, err := d.store.Fail(context.Background(), taskID, taskErr)
		return err
	})
}

// withStorageRetry retries a store write with capped exponential backoff.
// Conflicts are final and not retried.
func (d *Dispatcher) withStorageRetry(op func() error) {
	backoff := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		err := op()
		if err == nil {
			return
		}
		if errors.Is(err, interfaces.ErrConflict) || errors.Is(err, interfaces.ErrTaskNotFound) {
			d.logger.Warn().Err(err).Msg("Store rejected task transition")
			return
		}

		backoff = nextBackoff(backoff)
		d.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Store write failed, retrying")

		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
	}
	d.logger.Error().Msg("Store write abandoned after repeated failures")
}

func nextBackoff(current time.Duration) time.Duration {
	if current <= 0 {
		return 100 * time.Millisecond
	}
	next := current * 2
	if next > 5*time.Second {
		return 5 * time.Second
	}
	return next
}

// panicError wraps a recovered panic value as a non-retryable error
type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("processor panic: %v", e.value)
}
