package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"vidbrief/internal/domain"
	errpkg "vidbrief/internal/errors"
)

// TaskStorage keeps the registry in memory and mirrors every record to a JSON
// file per task under dir. Writes are synchronous: a successful Save means the
// record is on disk.
type TaskStorage struct {
	mu    sync.RWMutex
	dir   string
	tasks map[string]*domain.Task
}

// NewTaskStorage creates a TaskStorage and loads any existing records from
// dir. Unreadable or corrupt record files are dropped with a warning rather
// than failing the whole reload.
func NewTaskStorage(dir string) (*TaskStorage, error) {
	s := &TaskStorage{
		dir:   filepath.Clean(dir),
		tasks: make(map[string]*domain.Task),
	}

	if err := s.loadTasks(); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	slog.Info("task registry initialized", "dir", s.dir, "tasks_count", len(s.tasks))
	return s, nil
}

func (s *TaskStorage) loadTasks() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("dropping unreadable task record", "path", path, "error", err)
			continue
		}

		var task domain.Task
		if err := json.Unmarshal(data, &task); err != nil || task.ID == "" {
			slog.Warn("dropping corrupt task record", "path", path, "error", err)
			continue
		}

		s.tasks[task.ID] = &task
	}

	return nil
}

// Save stores the task in memory and persists it to disk before returning.
func (s *TaskStorage) Save(task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
	return s.persist(task)
}

// Get retrieves a task snapshot by ID.
func (s *TaskStorage) Get(id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, errpkg.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// GetAll returns snapshots of every task in the registry.
func (s *TaskStorage) GetAll() []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*domain.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task.Clone())
	}
	return tasks
}

// Delete removes the task from memory and disk.
func (s *TaskStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[id]; !exists {
		return errpkg.ErrTaskNotFound
	}
	delete(s.tasks, id)

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove task file: %w", err)
	}
	return nil
}

func (s *TaskStorage) persist(task *domain.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	path := s.recordPath(task.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temporary task file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename task file: %w", err)
	}

	slog.Debug("task record persisted", "task_id", task.ID, "stage", task.Stage)
	return nil
}

func (s *TaskStorage) recordPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}
