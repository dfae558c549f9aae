package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidbrief/internal/config"
	"vidbrief/internal/domain"
	errpkg "vidbrief/internal/errors"
	"vidbrief/internal/metrics"
	"vidbrief/internal/repository"
)

// errNoop signals from a mutation callback that the requested change is
// already in effect and nothing should be written.
var errNoop = errors.New("no-op")

// Manager owns the task registry. Every mutation runs under one lock and is
// persisted before the mutating call returns, so a caller observing success
// knows the new state survives a crash.
type Manager struct {
	repo repository.TaskRepo
	cfg  *config.Config

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewManager creates a Manager over the given registry.
func NewManager(repo repository.TaskRepo, cfg *config.Config) *Manager {
	return &Manager{
		repo:    repo,
		cfg:     cfg,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create allocates a new queued task for url and persists it. When
// deduplication is enabled, a second submission for a url that already has a
// non-terminal task is rejected with ErrDuplicateSubmission.
func (m *Manager) Create(url string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.DedupSubmissions {
		for _, t := range m.repo.GetAll() {
			if t.URL == url && !t.Stage.IsTerminal() {
				return nil, errpkg.ErrDuplicateSubmission
			}
		}
	}

	now := time.Now()
	t := &domain.Task{
		ID:        uuid.New().String(),
		URL:       url,
		Stage:     domain.StageQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.repo.Save(t); err != nil {
		return nil, fmt.Errorf("persist new task: %w", err)
	}

	metrics.TasksCreated.Inc()
	slog.Info("task created", "task_id", t.ID, "url", url)
	return t.Clone(), nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (*domain.Task, error) {
	return m.repo.Get(id)
}

// List returns snapshots of all tasks, newest first, optionally filtered by
// stage ("" means no filter).
func (m *Manager) List(stage domain.Stage) []*domain.Task {
	all := m.repo.GetAll()

	var tasks []*domain.Task
	for _, t := range all {
		if stage == "" || t.Stage == stage {
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks
}

// Stats aggregates task counts per stage.
func (m *Manager) Stats() domain.StatsResponse {
	stats := domain.StatsResponse{Stages: make(map[domain.Stage]int)}
	for _, t := range m.repo.GetAll() {
		stats.Total++
		stats.Stages[t.Stage]++
	}
	return stats
}

// mutate applies fn to the task under the registry lock and persists the
// result. fn returning errNoop leaves the record untouched.
func (m *Manager) mutate(id string, fn func(*domain.Task) error) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.repo.Get(id)
	if err != nil {
		return nil, err
	}

	if err := fn(t); err != nil {
		if errors.Is(err, errNoop) {
			return t, nil
		}
		return nil, err
	}

	t.UpdatedAt = time.Now()
	if err := m.repo.Save(t); err != nil {
		return nil, fmt.Errorf("persist task update: %w", err)
	}
	return t.Clone(), nil
}

// UpdateStage advances the task to stage, applies artifact updates and raises
// progress. Transitions only move forward; updates against a deleted task
// fail with ErrStaleTask, updates against a terminal task with
// ErrTerminalConflict (a mutation racing a cancellation is discarded, not
// applied).
func (m *Manager) UpdateStage(id string, stage domain.Stage, progress int, update domain.ArtifactUpdate) error {
	_, err := m.mutate(id, func(t *domain.Task) error {
		if t.Stage.IsTerminal() {
			return fmt.Errorf("%w: task is %s", errpkg.ErrTerminalConflict, t.Stage)
		}
		if !t.Stage.CanAdvanceTo(stage) {
			return fmt.Errorf("invalid stage transition %s -> %s", t.Stage, stage)
		}

		if stage != t.Stage {
			t.RetryCount = 0
		}
		t.Stage = stage
		if progress > t.Progress {
			t.Progress = progress
		}
		update.Apply(t)
		return nil
	})
	if errors.Is(err, errpkg.ErrTaskNotFound) {
		return errpkg.ErrStaleTask
	}
	return err
}

// IncrementRetry bumps the per-stage transient retry counter.
func (m *Manager) IncrementRetry(id string) {
	if _, err := m.mutate(id, func(t *domain.Task) error {
		if t.Stage.IsTerminal() {
			return errNoop
		}
		t.RetryCount++
		return nil
	}); err != nil {
		slog.Warn("failed to record retry", "task_id", id, "error", err)
	}
}

// MarkCompleted makes the task terminal-successful. Calling it again is a
// no-op; calling it on a failed task reports ErrTerminalConflict.
func (m *Manager) MarkCompleted(id string) error {
	_, err := m.mutate(id, func(t *domain.Task) error {
		switch t.Stage {
		case domain.StageCompleted:
			return errNoop
		case domain.StageFailed:
			return fmt.Errorf("%w: task already failed", errpkg.ErrTerminalConflict)
		}
		t.Stage = domain.StageCompleted
		t.Progress = 100
		return nil
	})
	if err == nil {
		metrics.TasksCompleted.Inc()
		slog.Info("task completed", "task_id", id)
	}
	return err
}

// MarkFailed makes the task terminal-failed with structured detail. A task
// that already failed keeps its first recorded error; failing a completed
// task reports ErrTerminalConflict.
func (m *Manager) MarkFailed(id string, taskErr *domain.TaskError) error {
	_, err := m.mutate(id, func(t *domain.Task) error {
		switch t.Stage {
		case domain.StageFailed:
			return errNoop
		case domain.StageCompleted:
			return fmt.Errorf("%w: task already completed", errpkg.ErrTerminalConflict)
		}
		t.Stage = domain.StageFailed
		t.Error = taskErr
		return nil
	})
	if err == nil {
		metrics.TasksFailed.Inc()
		slog.Warn("task failed", "task_id", id, "kind", taskErr.Kind, "error", taskErr.Message)
	}
	return err
}

// Cancel fails the task with kind cancelled and abandons any in-flight
// external call, best effort. Terminal tasks cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	_, err := m.mutate(id, func(t *domain.Task) error {
		if t.Stage.IsTerminal() {
			return errpkg.ErrNotCancellable
		}
		t.Stage = domain.StageFailed
		t.Error = &domain.TaskError{Kind: domain.KindCancelled, Message: "cancelled by user"}
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	cancel := m.cancels[id]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	metrics.TasksCancelled.Inc()
	slog.Info("task cancelled", "task_id", id)
	return nil
}

// Retry requeues a failed task. The error is cleared and execution resumes
// from the first stage whose artifact is missing; an audio artifact whose
// file no longer exists on disk is dropped so the download is redone.
func (m *Manager) Retry(id string) (*domain.Task, error) {
	t, err := m.mutate(id, func(t *domain.Task) error {
		if t.Stage != domain.StageFailed {
			return errpkg.ErrNotRetryable
		}

		if t.Artifacts.AudioPath != "" {
			if _, statErr := os.Stat(t.Artifacts.AudioPath); statErr != nil && t.Artifacts.TranscriptPath == "" {
				t.Artifacts.AudioPath = ""
			}
		}

		t.Stage = domain.StageQueued
		t.Error = nil
		t.Warning = ""
		t.RetryCount = 0
		t.Progress = 0
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.TasksRetried.Inc()
	slog.Info("task requeued for retry", "task_id", id)
	return t, nil
}

// Delete removes a terminal task from the registry along with any files it
// left behind. Tasks are never removed implicitly.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.repo.Get(id)
	if err != nil {
		return err
	}
	if !t.Stage.IsTerminal() {
		return errpkg.ErrNotDeletable
	}

	removeArtifactFiles(t)
	return m.repo.Delete(id)
}

// LoadOnStartup fails over tasks that were mid-flight when the previous
// process stopped: every non-terminal task is orphaned and transitions to
// failed with kind interrupted. Returns the number of orphans.
func (m *Manager) LoadOnStartup() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orphans := 0
	for _, t := range m.repo.GetAll() {
		if t.Stage.IsTerminal() {
			continue
		}

		t.Stage = domain.StageFailed
		t.Error = &domain.TaskError{
			Kind:    domain.KindInterrupted,
			Message: "process stopped while the task was in flight",
		}
		t.UpdatedAt = time.Now()

		if err := m.repo.Save(t); err != nil {
			return orphans, fmt.Errorf("fail over orphaned task %s: %w", t.ID, err)
		}
		orphans++
	}

	if orphans > 0 {
		slog.Warn("orphaned tasks failed over", "count", orphans)
	}
	return orphans, nil
}

// RegisterCancel stores the cancel function for a task's in-flight pipeline
// run so Cancel can abandon it.
func (m *Manager) RegisterCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[id] = cancel
}

// UnregisterCancel drops the stored cancel function once the run finishes.
func (m *Manager) UnregisterCancel(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, id)
}

// StartCleanup launches the expiry loop removing terminal tasks older than
// the configured TTL.
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanupExpired()
			}
		}
	}()
}

func (m *Manager) cleanupExpired() {
	cutoff := time.Now().Add(-m.cfg.TaskTTL)

	for _, t := range m.repo.GetAll() {
		if !t.Stage.IsTerminal() || t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.Delete(t.ID); err != nil {
			slog.Warn("failed to clean up expired task", "task_id", t.ID, "error", err)
			continue
		}
		slog.Info("expired task removed", "task_id", t.ID, "age", time.Since(t.UpdatedAt))
	}
}

func removeArtifactFiles(t *domain.Task) {
	var paths []string
	if t.Artifacts.AudioPath != "" {
		paths = append(paths, t.Artifacts.AudioPath)
	}
	if t.Artifacts.TranscriptPath != "" {
		paths = append(paths, t.Artifacts.TranscriptPath)
	}
	for _, p := range t.Artifacts.ExportPaths {
		paths = append(paths, p)
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove artifact file", "path", p, "error", err)
		}
	}
}
