// -----------------------------------------------------------------------
// Task Handler - submit, status, cancel, and list endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
	"github.com/ternarybob/libris/internal/tasks"
)

// TaskCanceller cancels the context of an actively running task
type TaskCanceller interface {
	CancelActive(taskID string)
}

// SubmitRequest is the task submission body
type SubmitRequest struct {
	Type        string          `json:"type" validate:"required"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	MaxAttempts int             `json:"max_attempts" validate:"gte=0,lte=10"`
}

// TaskHandler serves the task API
type TaskHandler struct {
	store     interfaces.TaskStorage
	registry  *tasks.Registry
	canceller TaskCanceller
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewTaskHandler creates the task API handler
func NewTaskHandler(store interfaces.TaskStorage, registry *tasks.Registry, canceller TaskCanceller, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		store:     store,
		registry:  registry,
		canceller: canceller,
		validate:  validator.New(),
		logger:    logger,
	}
}

// SubmitHandler accepts a task for asynchronous processing.
// POST /api/tasks/submit
func (h *TaskHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	processor, ok := h.registry.Get(req.Type)
	if !ok {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown task type %q", req.Type))
		return
	}
	if err := processor.Validate(req.Payload); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, created, err := h.store.Submit(r.Context(), req.Type, req.Payload, req.MaxAttempts)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("type", task.Type).
		Bool("created", created).
		Msg("Task submitted")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":     task.ID,
		"status": string(task.Status),
	})
}

// StatusHandler returns the current state of a task.
// GET /api/tasks/status/{id}
func (h *TaskHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/status/")
	if taskID == "" {
		WriteError(w, http.StatusBadRequest, "task id is required")
		return
	}

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	response := map[string]interface{}{
		"id":            task.ID,
		"status":        string(task.Status),
		"attempt_count": task.AttemptCount,
	}
	if len(task.Result) > 0 {
		response["result"] = task.Result
	}
	if task.Error != nil {
		response["error"] = task.Error
	}

	WriteJSON(w, http.StatusOK, response)
}

// CancelHandler cancels a pending task, or requests cooperative cancellation
// of a running one.
// POST /api/tasks/cancel/{id}
func (h *TaskHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/cancel/")
	if taskID == "" {
		WriteError(w, http.StatusBadRequest, "task id is required")
		return
	}

	task, err := h.store.Cancel(r.Context(), taskID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	// A running task also gets its processor context cancelled so it can
	// stop early
	if task.Status == models.TaskStatusRunning && h.canceller != nil {
		h.canceller.CancelActive(task.ID)
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Msg("Task cancel requested")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":     task.ID,
		"status": string(task.Status),
	})
}

// ListHandler returns tasks filtered by status and type, newest first.
// GET /api/tasks?status=&type=&limit=&offset=
func (h *TaskHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.TaskListOptions{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	taskList, err := h.store.ListTasks(r.Context(), opts)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	counts, err := h.store.CountTasksByStatus(r.Context())
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":  taskList,
		"counts": counts,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return fallback
}
