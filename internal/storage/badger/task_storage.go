package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/common"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// pendingIndexPrefix orders claimable tasks oldest-first via key sorting
const pendingIndexPrefix = "tasks:pending:"

// fingerprintEntry maps an in-flight fingerprint to its task id.
// The entry exists only while the task is pending or running.
type fingerprintEntry struct {
	Fingerprint string `badgerhold:"key"`
	TaskID      string
}

// TaskStorage implements the TaskStorage interface for Badger.
// BadgerHold has no compare-and-swap primitive, so every read-modify-write
// section is serialized behind a mutex. All engine instances in a process
// share one store, which keeps the claim and dedupe guarantees intact.
type TaskStorage struct {
	db        *BadgerDB
	logger    arbor.ILogger
	retention time.Duration
	mu        sync.Mutex
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger, retention time.Duration) interfaces.TaskStorage {
	if retention <= 0 {
		retention = time.Hour
	}
	return &TaskStorage{
		db:        db,
		logger:    logger,
		retention: retention,
	}
}

// Submit atomically creates a pending task, or returns the existing in-flight
// task with the same fingerprint
func (s *TaskStorage) Submit(ctx context.Context, taskType string, payload json.RawMessage, maxAttempts int) (*models.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fingerprint := models.Fingerprint(taskType, payload)

	var entry fingerprintEntry
	err := s.db.Store().Get(fingerprint, &entry)
	if err == nil {
		var existing models.Task
		if err := s.db.Store().Get(entry.TaskID, &existing); err == nil {
			if existing.Status == models.TaskStatusPending || existing.Status == models.TaskStatusRunning {
				return &existing, false, nil
			}
		}
		// Stale entry left by a terminal or evicted task, safe to overwrite
	} else if err != badgerhold.ErrNotFound {
		return nil, false, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	task := models.NewTask(common.NewTaskID(), taskType, payload, maxAttempts)
	if err := task.Validate(); err != nil {
		return nil, false, err
	}

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return nil, false, fmt.Errorf("failed to save task: %w", err)
	}
	if err := s.db.Store().Upsert(fingerprint, &fingerprintEntry{Fingerprint: fingerprint, TaskID: task.ID}); err != nil {
		return nil, false, fmt.Errorf("failed to save fingerprint entry: %w", err)
	}
	if err := s.addPendingIndex(task); err != nil {
		return nil, false, err
	}

	s.logger.Debug().
		Str("task_id", task.ID).
		Str("type", task.Type).
		Str("fingerprint", fingerprint).
		Msg("Task created")

	return task, true, nil
}

// ClaimNext atomically moves the oldest pending task to running
func (s *TaskStorage) ClaimNext(ctx context.Context) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		taskID, indexKey, err := s.nextPendingID()
		if err != nil {
			return nil, err
		}
		if taskID == "" {
			return nil, interfaces.ErrNoPendingTasks
		}

		var task models.Task
		if err := s.db.Store().Get(taskID, &task); err != nil {
			if err == badgerhold.ErrNotFound {
				// Index entry outlived its task, clean up and keep scanning
				if err := s.deletePendingKey(indexKey); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("failed to load pending task: %w", err)
		}

		if task.Status != models.TaskStatusPending {
			if err := s.deletePendingKey(indexKey); err != nil {
				return nil, err
			}
			continue
		}

		task.MarkRunning()
		if err := s.db.Store().Upsert(task.ID, &task); err != nil {
			return nil, fmt.Errorf("failed to claim task: %w", err)
		}
		if err := s.deletePendingKey(indexKey); err != nil {
			return nil, err
		}

		return &task, nil
	}
}

// Complete transitions running -> succeeded and records the result
func (s *TaskStorage) Complete(ctx context.Context, taskID string, result json.RawMessage) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.CanTransition(models.TaskStatusSucceeded) {
		return nil, fmt.Errorf("%w: cannot complete task in status %s", interfaces.ErrConflict, task.Status)
	}

	task.MarkSucceeded(result, s.retention)
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return nil, fmt.Errorf("failed to save completed task: %w", err)
	}
	if err := s.clearFingerprint(task); err != nil {
		return nil, err
	}

	return task, nil
}

// Fail re-queues a retryable failure while attempts remain, otherwise the
// task moves to dead with the last error preserved
func (s *TaskStorage) Fail(ctx context.Context, taskID string, taskErr *models.TaskError) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusRunning {
		return nil, fmt.Errorf("%w: cannot fail task in status %s", interfaces.ErrConflict, task.Status)
	}

	if taskErr != nil && taskErr.Retryable && task.AttemptCount < task.MaxAttempts {
		task.MarkRequeued()
		if err := s.db.Store().Upsert(task.ID, task); err != nil {
			return nil, fmt.Errorf("failed to re-queue task: %w", err)
		}
		if err := s.addPendingIndex(task); err != nil {
			return nil, err
		}
		s.logger.Debug().
			Str("task_id", task.ID).
			Int("attempt", task.AttemptCount).
			Int("max_attempts", task.MaxAttempts).
			Msg("Task re-queued after retryable failure")
		return task, nil
	}

	task.MarkDead(taskErr, s.retention)
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return nil, fmt.Errorf("failed to save dead task: %w", err)
	}
	if err := s.clearFingerprint(task); err != nil {
		return nil, err
	}

	return task, nil
}

// Cancel is immediate for pending tasks. For running tasks it only sets the
// cooperative flag; the processor decides when to stop.
func (s *TaskStorage) Cancel(ctx context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case models.TaskStatusPending:
		indexKey := pendingKey(task.CreatedAt, task.ID)
		task.MarkCancelled(s.retention)
		if err := s.db.Store().Upsert(task.ID, task); err != nil {
			return nil, fmt.Errorf("failed to cancel task: %w", err)
		}
		if err := s.deletePendingKey(indexKey); err != nil {
			return nil, err
		}
		if err := s.clearFingerprint(task); err != nil {
			return nil, err
		}
		return task, nil

	case models.TaskStatusRunning:
		task.CancelRequested = true
		task.UpdatedAt = time.Now()
		if err := s.db.Store().Upsert(task.ID, task); err != nil {
			return nil, fmt.Errorf("failed to flag task for cancellation: %w", err)
		}
		return task, nil

	default:
		return nil, fmt.Errorf("%w: cannot cancel task in status %s", interfaces.ErrConflict, task.Status)
	}
}

// FinishCancelled completes a cooperative cancellation observed by a worker
func (s *TaskStorage) FinishCancelled(ctx context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusRunning {
		return nil, fmt.Errorf("%w: cannot cancel task in status %s", interfaces.ErrConflict, task.Status)
	}

	task.MarkCancelled(s.retention)
	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return nil, fmt.Errorf("failed to save cancelled task: %w", err)
	}
	if err := s.clearFingerprint(task); err != nil {
		return nil, err
	}

	return task, nil
}

// GetTask returns the task by id. Expired terminal records are evicted here.
func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(taskID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// getLocked loads a task and applies lazy eviction. Caller holds s.mu.
func (s *TaskStorage) getLocked(taskID string) (*models.Task, error) {
	var task models.Task
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	// Running tasks are never evicted
	if task.Status != models.TaskStatusRunning && task.IsExpired(time.Now()) {
		if err := s.evictLocked(&task); err != nil {
			s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to evict expired task")
		}
		return nil, interfaces.ErrTaskNotFound
	}

	return &task, nil
}

// ListTasks returns tasks matching the options, newest first. Expired
// terminal records are evicted here like in GetTask, so limit and offset
// apply after eviction.
func (s *TaskStorage) ListTasks(ctx context.Context, opts *interfaces.TaskListOptions) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(models.TaskStatus(opts.Status))
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	result := make([]*models.Task, 0, len(tasks))
	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if task.Status != models.TaskStatusRunning && task.IsExpired(now) {
			if err := s.evictLocked(task); err != nil {
				s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to evict expired task")
			}
			continue
		}
		result = append(result, task)
	}

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(result) {
				return []*models.Task{}, nil
			}
			result = result[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(result) {
			result = result[:opts.Limit]
		}
	}
	return result, nil
}

// CountTasksByStatus returns task counts grouped by status, evicting
// expired terminal records on the way
func (s *TaskStorage) CountTasksByStatus(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	counts := make(map[string]int)
	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if task.Status != models.TaskStatusRunning && task.IsExpired(now) {
			if err := s.evictLocked(task); err != nil {
				s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to evict expired task")
			}
			continue
		}
		counts[string(task.Status)]++
	}
	return counts, nil
}

// EvictExpired purges terminal records past their expiry
func (s *TaskStorage) EvictExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []models.Task
	query := badgerhold.Where("Status").In(
		models.TaskStatusSucceeded,
		models.TaskStatusDead,
		models.TaskStatusCancelled,
	)
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return 0, fmt.Errorf("failed to scan for expired tasks: %w", err)
	}

	now := time.Now()
	evicted := 0
	for i := range tasks {
		if !tasks[i].IsExpired(now) {
			continue
		}
		if err := s.evictLocked(&tasks[i]); err != nil {
			s.logger.Warn().Err(err).Str("task_id", tasks[i].ID).Msg("Failed to evict expired task")
			continue
		}
		evicted++
	}

	return evicted, nil
}

// RecoverRunningTasks returns tasks left running by a crashed process to
// pending, or dead when their attempts are already exhausted
func (s *TaskStorage) RecoverRunningTasks(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []models.Task
	if err := s.db.Store().Find(&tasks, badgerhold.Where("Status").Eq(models.TaskStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to scan for running tasks: %w", err)
	}

	recovered := 0
	for i := range tasks {
		task := &tasks[i]

		if task.AttemptCount >= task.MaxAttempts {
			task.MarkDead(&models.TaskError{
				Kind:      models.ErrorKindProcessing,
				Message:   "process terminated before task completed",
				Retryable: false,
			}, s.retention)
			if err := s.db.Store().Upsert(task.ID, task); err != nil {
				return recovered, fmt.Errorf("failed to mark interrupted task dead: %w", err)
			}
			if err := s.clearFingerprint(task); err != nil {
				return recovered, err
			}
			continue
		}

		task.MarkRequeued()
		if err := s.db.Store().Upsert(task.ID, task); err != nil {
			return recovered, fmt.Errorf("failed to re-queue interrupted task: %w", err)
		}
		if err := s.addPendingIndex(task); err != nil {
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		s.logger.Info().Int("count", recovered).Msg("Re-queued tasks interrupted by restart")
	}

	return recovered, nil
}

// evictLocked removes a task record and its side entries. Caller holds s.mu.
func (s *TaskStorage) evictLocked(task *models.Task) error {
	if err := s.db.Store().Delete(task.ID, &models.Task{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return s.clearFingerprint(task)
}

// clearFingerprint removes the fingerprint entry if it still points at this task
func (s *TaskStorage) clearFingerprint(task *models.Task) error {
	var entry fingerprintEntry
	err := s.db.Store().Get(task.Fingerprint, &entry)
	if err == badgerhold.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up fingerprint entry: %w", err)
	}
	if entry.TaskID != task.ID {
		// Another live task owns the fingerprint now
		return nil
	}
	if err := s.db.Store().Delete(task.Fingerprint, &fingerprintEntry{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete fingerprint entry: %w", err)
	}
	return nil
}

// Pending index helpers. Keys are raw badger entries sorted by creation time,
// so claim order is oldest-first without a table scan.

func pendingKey(createdAt time.Time, taskID string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("%s%020d:%s", pendingIndexPrefix, createdAt.UnixNano(), taskID))
}

func (s *TaskStorage) addPendingIndex(task *models.Task) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(pendingKey(task.CreatedAt, task.ID), []byte(task.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to write pending index: %w", err)
	}
	return nil
}

func (s *TaskStorage) deletePendingKey(key []byte) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to delete pending index key: %w", err)
	}
	return nil
}

// nextPendingID returns the oldest pending task id, or empty when drained
func (s *TaskStorage) nextPendingID() (string, []byte, error) {
	var taskID string
	var indexKey []byte

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = true
		prefix := []byte(pendingIndexPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			indexKey = item.KeyCopy(nil)
			return item.Value(func(val []byte) error {
				taskID = string(val)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to scan pending index: %w", err)
	}

	return taskID, indexKey, nil
}
