package domain

import "time"

// SubmitRequest represents the request body for submitting a single video.
type SubmitRequest struct {
	URL string `json:"url" validate:"required,url,max=2048"`
}

// BatchRequest represents the request body for submitting several videos.
type BatchRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=20,dive,url,max=2048"`
}

// TaskResponse is the status view returned for a task. Artifact values are
// not echoed back wholesale; Artifacts lists which kinds are present.
type TaskResponse struct {
	ID        string     `json:"task_id"`
	URL       string     `json:"url"`
	Stage     Stage      `json:"stage"`
	Progress  int        `json:"progress"`
	Error     *TaskError `json:"error,omitempty"`
	Warning   string     `json:"warning,omitempty"`
	Artifacts []string   `json:"artifacts"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewTaskResponse builds the status view for a task snapshot.
func NewTaskResponse(t *Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		URL:       t.URL,
		Stage:     t.Stage,
		Progress:  t.Progress,
		Error:     t.Error,
		Warning:   t.Warning,
		Artifacts: t.Artifacts.Present(),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// StatsResponse aggregates task counts per stage for polling.
type StatsResponse struct {
	Total  int           `json:"total"`
	Stages map[Stage]int `json:"stages"`
}
