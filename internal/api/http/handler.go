package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"vidbrief/internal/domain"
	errpkg "vidbrief/internal/errors"
)

// TaskService defines the orchestration surface the HTTP layer consumes.
type TaskService interface {
	Submit(url string) (*domain.Task, error)
	SubmitBatch(urls []string) ([]*domain.Task, map[string]string)
	Retry(id string) (*domain.Task, error)
	Cancel(id string) error
	Delete(id string) error
	Get(id string) (*domain.Task, error)
	List(stage domain.Stage) []*domain.Task
	Stats() domain.StatsResponse
}

// TaskHandler handles HTTP requests for tasks.
type TaskHandler struct {
	service   TaskService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the provided service and logger.
func NewTaskHandler(service TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Submit handles POST /tasks: accepts a video URL and returns the new task id
// immediately; processing happens asynchronously.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.service.Submit(req.URL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("task submitted", "task_id", task.ID, "url", req.URL)
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": task.ID})
}

// SubmitBatch handles POST /tasks/batch.
func (h *TaskHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, rejected := h.service.SubmitBatch(req.URLs)

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"task_ids": ids,
		"rejected": rejected,
	})
}

// GetTask handles GET /tasks/{taskID}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Get(chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// ListTasks handles GET /tasks with an optional ?stage= filter.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	stage := domain.Stage(r.URL.Query().Get("stage"))

	tasks := h.service.List(stage)
	responses := make([]domain.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, domain.NewTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Stats handles GET /tasks/stats.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Stats())
}

// Retry handles POST /tasks/{taskID}/retry.
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Retry(chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("task retried", "task_id", task.ID)
	writeJSON(w, http.StatusOK, domain.NewTaskResponse(task))
}

// Cancel handles POST /tasks/{taskID}/cancel.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := h.service.Cancel(id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("task cancelled", "task_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id, "status": "cancelled"})
}

// Delete handles DELETE /tasks/{taskID}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := h.service.Delete(id); err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.logger.Info("task deleted", "task_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errpkg.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, errpkg.ErrDuplicateSubmission),
		errors.Is(err, errpkg.ErrNotRetryable),
		errors.Is(err, errpkg.ErrNotCancellable),
		errors.Is(err, errpkg.ErrNotDeletable),
		errors.Is(err, errpkg.ErrTerminalConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errpkg.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
