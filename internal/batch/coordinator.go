package batch

import (
	"context"
	"log/slog"
	"sync"

	"vidbrief/internal/config"
	"vidbrief/internal/domain"
	errpkg "vidbrief/internal/errors"
	"vidbrief/internal/task"
)

// TaskRunner executes the stage pipeline for one task.
type TaskRunner interface {
	Run(ctx context.Context, taskID string)
}

// Coordinator accepts submissions, creates tasks through the Manager and
// drives their pipelines on a bounded worker pool. Tasks beyond the worker
// cap wait in the queue in stage queued; one task failing never aborts its
// siblings.
type Coordinator struct {
	cfg    *config.Config
	mgr    *task.Manager
	runner TaskRunner

	queue chan string
	wg    sync.WaitGroup
}

// NewCoordinator creates a Coordinator with a buffered submission queue.
func NewCoordinator(cfg *config.Config, mgr *task.Manager, runner TaskRunner) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		mgr:    mgr,
		runner: runner,
		queue:  make(chan string, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when the queue is closed by
// Shutdown or the context is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.cfg.WorkerPoolSize; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-c.queue:
					if !ok {
						return
					}
					c.runner.Run(ctx, id)
				}
			}
		}(i + 1)
	}
	slog.Info("batch coordinator started", "workers", c.cfg.WorkerPoolSize)
}

// Submit creates one task for url and schedules it. Returns immediately with
// the queued task; processing happens asynchronously. A saturated queue
// rejects the submission before a task is created.
func (c *Coordinator) Submit(url string) (*domain.Task, error) {
	if len(c.queue) == cap(c.queue) {
		return nil, errpkg.ErrQueueFull
	}
	t, err := c.mgr.Create(url)
	if err != nil {
		return nil, err
	}
	c.queue <- t.ID
	return t, nil
}

// SubmitBatch creates one task per URL and schedules them all. URLs that are
// rejected (duplicate submissions) are reported per-URL without affecting the
// rest of the batch.
func (c *Coordinator) SubmitBatch(urls []string) ([]*domain.Task, map[string]string) {
	var tasks []*domain.Task
	failed := make(map[string]string)

	for _, url := range urls {
		t, err := c.Submit(url)
		if err != nil {
			failed[url] = err.Error()
			continue
		}
		tasks = append(tasks, t)
	}

	slog.Info("batch submitted", "accepted", len(tasks), "rejected", len(failed))
	return tasks, failed
}

// Retry requeues a failed task and schedules it again.
func (c *Coordinator) Retry(id string) (*domain.Task, error) {
	t, err := c.mgr.Retry(id)
	if err != nil {
		return nil, err
	}
	c.queue <- t.ID
	return t, nil
}

// Get returns a snapshot of one task.
func (c *Coordinator) Get(id string) (*domain.Task, error) { return c.mgr.Get(id) }

// List returns task snapshots, optionally filtered by stage.
func (c *Coordinator) List(stage domain.Stage) []*domain.Task { return c.mgr.List(stage) }

// Stats aggregates task counts per stage.
func (c *Coordinator) Stats() domain.StatsResponse { return c.mgr.Stats() }

// Cancel cancels a non-terminal task.
func (c *Coordinator) Cancel(id string) error { return c.mgr.Cancel(id) }

// Delete removes a terminal task and its files.
func (c *Coordinator) Delete(id string) error { return c.mgr.Delete(id) }

// Shutdown stops accepting work and waits for in-flight pipelines to wind
// down or the context to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	close(c.queue)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("batch coordinator shut down")
		return nil
	case <-ctx.Done():
		slog.Warn("batch coordinator shutdown timed out")
		return ctx.Err()
	}
}
