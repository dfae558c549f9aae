package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidbrief/internal/domain"
	errpkg "vidbrief/internal/errors"
)

type mockService struct {
	submitTask *domain.Task
	submitErr  error
	batchTasks []*domain.Task
	batchRej   map[string]string
	getTask    *domain.Task
	getErr     error
	listTasks  []*domain.Task
	listStage  domain.Stage
	retryTask  *domain.Task
	retryErr   error
	cancelErr  error
	deleteErr  error
	stats      domain.StatsResponse
}

func (m *mockService) Submit(string) (*domain.Task, error) { return m.submitTask, m.submitErr }
func (m *mockService) SubmitBatch([]string) ([]*domain.Task, map[string]string) {
	return m.batchTasks, m.batchRej
}
func (m *mockService) Retry(string) (*domain.Task, error) { return m.retryTask, m.retryErr }
func (m *mockService) Cancel(string) error                { return m.cancelErr }
func (m *mockService) Delete(string) error                { return m.deleteErr }
func (m *mockService) Get(string) (*domain.Task, error)   { return m.getTask, m.getErr }
func (m *mockService) List(stage domain.Stage) []*domain.Task {
	m.listStage = stage
	return m.listTasks
}
func (m *mockService) Stats() domain.StatsResponse { return m.stats }

func sampleTask(id string, stage domain.Stage) *domain.Task {
	now := time.Now().UTC()
	return &domain.Task{
		ID:        id,
		URL:       "https://example.com/video",
		Stage:     stage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func doRequest(t *testing.T, svc TaskService, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router := NewRouter(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmit(t *testing.T) {
	svc := &mockService{submitTask: sampleTask("t-1", domain.StageQueued)}

	rec := doRequest(t, svc, http.MethodPost, "/tasks", domain.SubmitRequest{URL: "https://example.com/video"})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t-1", resp["task_id"])
}

func TestSubmit_InvalidBody(t *testing.T) {
	svc := &mockService{}

	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	NewRouter(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_InvalidURL(t *testing.T) {
	svc := &mockService{}

	rec := doRequest(t, svc, http.MethodPost, "/tasks", domain.SubmitRequest{URL: "not-a-url"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmit_Duplicate(t *testing.T) {
	svc := &mockService{submitErr: errpkg.ErrDuplicateSubmission}

	rec := doRequest(t, svc, http.MethodPost, "/tasks", domain.SubmitRequest{URL: "https://example.com/video"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmit_QueueFull(t *testing.T) {
	svc := &mockService{submitErr: errpkg.ErrQueueFull}

	rec := doRequest(t, svc, http.MethodPost, "/tasks", domain.SubmitRequest{URL: "https://example.com/video"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitBatch(t *testing.T) {
	svc := &mockService{
		batchTasks: []*domain.Task{sampleTask("t-1", domain.StageQueued), sampleTask("t-2", domain.StageQueued)},
		batchRej:   map[string]string{"https://example.com/dup": "duplicate submission"},
	}

	rec := doRequest(t, svc, http.MethodPost, "/tasks/batch", domain.BatchRequest{
		URLs: []string{"https://example.com/a", "https://example.com/b", "https://example.com/dup"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		TaskIDs  []string          `json:"task_ids"`
		Rejected map[string]string `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"t-1", "t-2"}, resp.TaskIDs)
	assert.Contains(t, resp.Rejected, "https://example.com/dup")
}

func TestSubmitBatch_EmptyList(t *testing.T) {
	svc := &mockService{}

	rec := doRequest(t, svc, http.MethodPost, "/tasks/batch", domain.BatchRequest{URLs: []string{}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTask(t *testing.T) {
	task := sampleTask("t-1", domain.StageSummarizing)
	task.Progress = 60
	svc := &mockService{getTask: task}

	rec := doRequest(t, svc, http.MethodGet, "/tasks/t-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t-1", resp.ID)
	assert.Equal(t, domain.StageSummarizing, resp.Stage)
	assert.Equal(t, 60, resp.Progress)
}

func TestGetTask_NotFound(t *testing.T) {
	svc := &mockService{getErr: errpkg.ErrTaskNotFound}

	rec := doRequest(t, svc, http.MethodGet, "/tasks/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasks_StageFilter(t *testing.T) {
	svc := &mockService{listTasks: []*domain.Task{sampleTask("t-1", domain.StageFailed)}}

	rec := doRequest(t, svc, http.MethodGet, "/tasks?stage=failed", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StageFailed, svc.listStage)

	var resp []domain.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "t-1", resp[0].ID)
}

func TestStats(t *testing.T) {
	svc := &mockService{stats: domain.StatsResponse{
		Total:  3,
		Stages: map[domain.Stage]int{domain.StageQueued: 2, domain.StageCompleted: 1},
	}}

	rec := doRequest(t, svc, http.MethodGet, "/tasks/stats", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Stages[domain.StageQueued])
}

func TestRetry(t *testing.T) {
	svc := &mockService{retryTask: sampleTask("t-1", domain.StageQueued)}

	rec := doRequest(t, svc, http.MethodPost, "/tasks/t-1/retry", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StageQueued, resp.Stage)
}

func TestRetry_NotRetryable(t *testing.T) {
	svc := &mockService{retryErr: errpkg.ErrNotRetryable}

	rec := doRequest(t, svc, http.MethodPost, "/tasks/t-1/retry", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancel(t *testing.T) {
	svc := &mockService{}

	rec := doRequest(t, svc, http.MethodPost, "/tasks/t-1/cancel", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp["status"])
}

func TestCancel_Terminal(t *testing.T) {
	svc := &mockService{cancelErr: errpkg.ErrNotCancellable}

	rec := doRequest(t, svc, http.MethodPost, "/tasks/t-1/cancel", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDelete(t *testing.T) {
	svc := &mockService{}

	rec := doRequest(t, svc, http.MethodDelete, "/tasks/t-1", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDelete_NotTerminal(t *testing.T) {
	svc := &mockService{deleteErr: errpkg.ErrNotDeletable}

	rec := doRequest(t, svc, http.MethodDelete, "/tasks/t-1", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, &mockService{}, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
