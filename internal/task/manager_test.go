package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"vidbrief/internal/config"
	"vidbrief/internal/domain"
	errpkg "vidbrief/internal/errors"
	"vidbrief/internal/repository"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	storage, err := repository.NewTaskStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewTaskStorage error: %v", err)
	}

	cfg := &config.Config{
		DedupSubmissions: true,
		TaskTTL:          24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
	return NewManager(storage, cfg)
}

func mustCreate(t *testing.T, m *Manager, url string) *domain.Task {
	t.Helper()
	task, err := m.Create(url)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	return task
}

func TestManager_CreateStartsQueued(t *testing.T) {
	m := newTestManager(t)

	task := mustCreate(t, m, "https://example.com/video-a")

	got, err := m.Get(task.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Stage != domain.StageQueued {
		t.Fatalf("expected queued, got %s", got.Stage)
	}
	if got.Progress != 0 {
		t.Fatalf("expected progress 0, got %d", got.Progress)
	}
	if got.Error != nil {
		t.Fatalf("expected no error, got %+v", got.Error)
	}
}

func TestManager_DuplicateSubmissionRejected(t *testing.T) {
	m := newTestManager(t)

	task := mustCreate(t, m, "https://example.com/video-a")

	if _, err := m.Create("https://example.com/video-a"); !errors.Is(err, errpkg.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	// A terminal task frees the url for resubmission.
	if err := m.MarkFailed(task.ID, &domain.TaskError{Kind: domain.KindDownloadFailed, Message: "gone"}); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if _, err := m.Create("https://example.com/video-a"); err != nil {
		t.Fatalf("expected resubmission after terminal state, got %v", err)
	}
}

func TestManager_StageTransitionsOnlyForward(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if err := m.UpdateStage(task.ID, domain.StageDownloading, 0, domain.ArtifactUpdate{}); err != nil {
		t.Fatalf("UpdateStage error: %v", err)
	}
	if err := m.UpdateStage(task.ID, domain.StageTranscribing, 25, domain.ArtifactUpdate{}); err != nil {
		t.Fatalf("UpdateStage error: %v", err)
	}

	if err := m.UpdateStage(task.ID, domain.StageDownloading, 0, domain.ArtifactUpdate{}); err == nil {
		t.Fatalf("expected backward transition to be rejected")
	}

	got, _ := m.Get(task.ID)
	if got.Stage != domain.StageTranscribing {
		t.Fatalf("rejected transition must not change state, got %s", got.Stage)
	}
}

func TestManager_ProgressNeverRegresses(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if err := m.UpdateStage(task.ID, domain.StageDownloading, 25, domain.ArtifactUpdate{}); err != nil {
		t.Fatalf("UpdateStage error: %v", err)
	}
	if err := m.UpdateStage(task.ID, domain.StageTranscribing, 10, domain.ArtifactUpdate{}); err != nil {
		t.Fatalf("UpdateStage error: %v", err)
	}

	got, _ := m.Get(task.ID)
	if got.Progress != 25 {
		t.Fatalf("expected progress to hold at 25, got %d", got.Progress)
	}
}

func TestManager_TerminalIdempotence(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if err := m.MarkCompleted(task.ID); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if err := m.MarkCompleted(task.ID); err != nil {
		t.Fatalf("second MarkCompleted must be a no-op, got %v", err)
	}

	err := m.MarkFailed(task.ID, &domain.TaskError{Kind: domain.KindDownloadFailed, Message: "late"})
	if !errors.Is(err, errpkg.ErrTerminalConflict) {
		t.Fatalf("expected ErrTerminalConflict, got %v", err)
	}

	got, _ := m.Get(task.ID)
	if got.Stage != domain.StageCompleted || got.Progress != 100 {
		t.Fatalf("completed record must be untouched, got %+v", got)
	}
}

func TestManager_FailedKeepsFirstError(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if err := m.MarkFailed(task.ID, &domain.TaskError{Kind: domain.KindDownloadFailed, Message: "first"}); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	if err := m.MarkFailed(task.ID, &domain.TaskError{Kind: domain.KindTranscriptionFailed, Message: "second"}); err != nil {
		t.Fatalf("repeat MarkFailed must be a no-op, got %v", err)
	}

	got, _ := m.Get(task.ID)
	if got.Error.Kind != domain.KindDownloadFailed {
		t.Fatalf("expected first error kept, got %+v", got.Error)
	}
}

func TestManager_UpdateAfterCancelDiscarded(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	cancelled := false
	m.RegisterCancel(task.ID, func() { cancelled = true })

	if err := m.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected in-flight cancel function to fire")
	}

	err := m.UpdateStage(task.ID, domain.StageSummarizing, 50, domain.ArtifactUpdate{})
	if !errors.Is(err, errpkg.ErrTerminalConflict) {
		t.Fatalf("expected late mutation to be discarded, got %v", err)
	}

	got, _ := m.Get(task.ID)
	if got.Error == nil || got.Error.Kind != domain.KindCancelled {
		t.Fatalf("expected cancelled error kind, got %+v", got.Error)
	}

	if err := m.Cancel(task.ID); !errors.Is(err, errpkg.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable on terminal task, got %v", err)
	}
}

func TestManager_RetryRequeuesFailedTask(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if _, err := m.Retry(task.ID); !errors.Is(err, errpkg.ErrNotRetryable) {
		t.Fatalf("expected ErrNotRetryable for non-failed task, got %v", err)
	}

	transcript := "/tmp/does-not-matter.txt"
	if err := m.UpdateStage(task.ID, domain.StageTranscribing, 50, domain.ArtifactUpdate{TranscriptPath: &transcript}); err != nil {
		t.Fatalf("UpdateStage error: %v", err)
	}
	if err := m.MarkFailed(task.ID, &domain.TaskError{Kind: domain.KindSummarizationFailed, Message: "both providers down"}); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}

	retried, err := m.Retry(task.ID)
	if err != nil {
		t.Fatalf("Retry error: %v", err)
	}
	if retried.Stage != domain.StageQueued {
		t.Fatalf("expected queued after retry, got %s", retried.Stage)
	}
	if retried.Error != nil || retried.RetryCount != 0 {
		t.Fatalf("retry must clear error and retry count, got %+v", retried)
	}
	if retried.Artifacts.TranscriptPath != transcript {
		t.Fatalf("retry must keep existing artifacts, got %+v", retried.Artifacts)
	}
}

func TestManager_LoadOnStartupFailsOrphans(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{DedupSubmissions: true, TaskTTL: 24 * time.Hour, CleanupInterval: time.Hour}

	storage, err := repository.NewTaskStorage(dir)
	if err != nil {
		t.Fatalf("NewTaskStorage error: %v", err)
	}
	m := NewManager(storage, cfg)

	inFlight := mustCreate(t, m, "https://example.com/in-flight")
	if err := m.UpdateStage(inFlight.ID, domain.StageSummarizing, 50, domain.ArtifactUpdate{}); err != nil {
		t.Fatalf("UpdateStage error: %v", err)
	}
	done := mustCreate(t, m, "https://example.com/done")
	if err := m.MarkCompleted(done.ID); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}

	// Simulate a restart over the same registry directory.
	reloaded, err := repository.NewTaskStorage(dir)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	m2 := NewManager(reloaded, cfg)

	orphans, err := m2.LoadOnStartup()
	if err != nil {
		t.Fatalf("LoadOnStartup error: %v", err)
	}
	if orphans != 1 {
		t.Fatalf("expected 1 orphan, got %d", orphans)
	}

	got, _ := m2.Get(inFlight.ID)
	if got.Stage != domain.StageFailed || got.Error == nil || got.Error.Kind != domain.KindInterrupted {
		t.Fatalf("expected failed/interrupted, got %+v", got)
	}

	untouched, _ := m2.Get(done.ID)
	if untouched.Stage != domain.StageCompleted {
		t.Fatalf("terminal tasks must survive restart untouched, got %s", untouched.Stage)
	}
}

func TestManager_DeleteOnlyTerminal(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if err := m.Delete(task.ID); !errors.Is(err, errpkg.ErrNotDeletable) {
		t.Fatalf("expected ErrNotDeletable, got %v", err)
	}

	if err := m.MarkCompleted(task.ID); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if err := m.Delete(task.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := m.Get(task.ID); !errors.Is(err, errpkg.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound after delete, got %v", err)
	}
}

func TestManager_StatsCountsPerStage(t *testing.T) {
	m := newTestManager(t)

	a := mustCreate(t, m, "https://example.com/a")
	mustCreate(t, m, "https://example.com/b")
	if err := m.MarkCompleted(a.ID); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}

	stats := m.Stats()
	if stats.Total != 2 {
		t.Fatalf("expected 2 tasks, got %d", stats.Total)
	}
	if stats.Stages[domain.StageCompleted] != 1 || stats.Stages[domain.StageQueued] != 1 {
		t.Fatalf("unexpected stage counts: %+v", stats.Stages)
	}
}

func TestManager_UpdateStageOnDeletedTaskIsStale(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	if err := m.MarkCompleted(task.ID); err != nil {
		t.Fatalf("MarkCompleted error: %v", err)
	}
	if err := m.Delete(task.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	err := m.UpdateStage(task.ID, domain.StageDownloading, 0, domain.ArtifactUpdate{})
	if !errors.Is(err, errpkg.ErrStaleTask) {
		t.Fatalf("expected ErrStaleTask, got %v", err)
	}
}

func TestManager_CancelContext(t *testing.T) {
	m := newTestManager(t)
	task := mustCreate(t, m, "https://example.com/video-a")

	ctx, cancel := context.WithCancel(context.Background())
	m.RegisterCancel(task.ID, cancel)
	defer m.UnregisterCancel(task.ID)

	if err := m.Cancel(task.ID); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected in-flight context to be cancelled")
	}
}
