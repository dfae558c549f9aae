package domain

import (
	"fmt"
	"time"
)

// ErrorKind classifies a terminal task failure.
type ErrorKind string

const (
	KindDownloadFailed      ErrorKind = "download_failed"
	KindTranscriptionFailed ErrorKind = "transcription_failed"
	KindSummarizationFailed ErrorKind = "summarization_failed"
	KindExportFailed        ErrorKind = "export_failed"
	KindInterrupted         ErrorKind = "interrupted"
	KindCancelled           ErrorKind = "cancelled"
)

// TaskError carries structured failure detail for a failed task.
type TaskError struct {
	Kind     ErrorKind `json:"kind"`
	Message  string    `json:"message"`
	Provider string    `json:"provider,omitempty"`
}

func (e *TaskError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Artifacts holds the outputs recorded as stages complete. Fields are
// append-only: once set they are never cleared, except that the audio file
// itself may be removed from disk after transcription when retention is off.
type Artifacts struct {
	AudioPath      string            `json:"audio_path,omitempty"`
	TranscriptPath string            `json:"transcript_path,omitempty"`
	SummaryText    string            `json:"summary_text,omitempty"`
	ExportPaths    map[string]string `json:"export_paths,omitempty"`
}

// Present returns the artifact kinds that have been recorded so far.
func (a Artifacts) Present() []string {
	var kinds []string
	if a.AudioPath != "" {
		kinds = append(kinds, "audio_path")
	}
	if a.TranscriptPath != "" {
		kinds = append(kinds, "transcript_path")
	}
	if a.SummaryText != "" {
		kinds = append(kinds, "summary_text")
	}
	if len(a.ExportPaths) > 0 {
		kinds = append(kinds, "export_paths")
	}
	return kinds
}

// Task is one end-to-end summarization request tracked through the pipeline.
type Task struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Stage      Stage      `json:"stage"`
	Progress   int        `json:"progress"`
	RetryCount int        `json:"retry_count"`
	Artifacts  Artifacts  `json:"artifacts"`
	Error      *TaskError `json:"error,omitempty"`
	Warning    string     `json:"warning,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so read snapshots cannot observe later mutation.
func (t *Task) Clone() *Task {
	c := *t
	if t.Error != nil {
		e := *t.Error
		c.Error = &e
	}
	if t.Artifacts.ExportPaths != nil {
		c.Artifacts.ExportPaths = make(map[string]string, len(t.Artifacts.ExportPaths))
		for k, v := range t.Artifacts.ExportPaths {
			c.Artifacts.ExportPaths[k] = v
		}
	}
	return &c
}

// ArtifactUpdate describes the artifact fields to set during a stage
// transition. Nil fields are left untouched; ExportPaths entries are merged.
type ArtifactUpdate struct {
	AudioPath      *string
	TranscriptPath *string
	SummaryText    *string
	ExportPaths    map[string]string
	Warning        *string
}

// Apply merges the update into the task.
func (u ArtifactUpdate) Apply(t *Task) {
	if u.AudioPath != nil {
		t.Artifacts.AudioPath = *u.AudioPath
	}
	if u.TranscriptPath != nil {
		t.Artifacts.TranscriptPath = *u.TranscriptPath
	}
	if u.SummaryText != nil {
		t.Artifacts.SummaryText = *u.SummaryText
	}
	if len(u.ExportPaths) > 0 {
		if t.Artifacts.ExportPaths == nil {
			t.Artifacts.ExportPaths = make(map[string]string, len(u.ExportPaths))
		}
		for k, v := range u.ExportPaths {
			t.Artifacts.ExportPaths[k] = v
		}
	}
	if u.Warning != nil {
		t.Warning = *u.Warning
	}
}
