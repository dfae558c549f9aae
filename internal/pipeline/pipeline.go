package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"vidbrief/internal/config"
	"vidbrief/internal/domain"
	"vidbrief/internal/exporter"
	"vidbrief/internal/metrics"
	"vidbrief/internal/retry"
	"vidbrief/internal/summarize"
	"vidbrief/internal/task"
)

// Downloader produces an audio file for a video URL.
type Downloader interface {
	Download(ctx context.Context, taskID, url string) (string, error)
}

// Transcriber converts an audio file into a transcript file.
type Transcriber interface {
	Transcribe(ctx context.Context, taskID, audioPath string) (string, error)
}

// progressRange maps a stage to its progress sub-range: entry is reported
// when the stage starts, done when it completes. Progress never regresses.
type progressRange struct {
	entry, done int
}

var stageProgress = map[domain.Stage]progressRange{
	domain.StageDownloading:  {0, 25},
	domain.StageTranscribing: {25, 50},
	domain.StageSummarizing:  {50, 85},
	domain.StageExporting:    {85, 100},
}

// Runner executes the fixed stage sequence for one task at a time. Stages
// whose artifacts already exist are skipped, which makes re-entry after an
// explicit retry resume from the first incomplete stage.
type Runner struct {
	cfg         *config.Config
	mgr         *task.Manager
	downloader  Downloader
	transcriber Transcriber
	primary     summarize.Summarizer
	fallback    summarize.Summarizer
	exporters   []exporter.Exporter
}

// NewRunner wires the pipeline's collaborators.
func NewRunner(
	cfg *config.Config,
	mgr *task.Manager,
	dl Downloader,
	tr Transcriber,
	primary, fallback summarize.Summarizer,
	exporters []exporter.Exporter,
) *Runner {
	return &Runner{
		cfg:         cfg,
		mgr:         mgr,
		downloader:  dl,
		transcriber: tr,
		primary:     primary,
		fallback:    fallback,
		exporters:   exporters,
	}
}

// Run drives the task through its remaining stages. Any error ends the run;
// the terminal state has already been recorded by the failing step. A task
// cancelled mid-flight stops at the next stage commit, whose update is
// rejected by the manager rather than applied.
func (r *Runner) Run(ctx context.Context, taskID string) {
	t, err := r.mgr.Get(taskID)
	if err != nil {
		slog.Error("task vanished before processing", "task_id", taskID, "error", err)
		return
	}
	if t.Stage.IsTerminal() {
		// Cancelled while waiting in the queue.
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mgr.RegisterCancel(taskID, cancel)
	defer r.mgr.UnregisterCancel(taskID)

	slog.Info("pipeline started", "task_id", taskID, "url", t.URL, "stage", t.Stage)

	steps := []func(context.Context, *domain.Task) (*domain.Task, error){
		r.download,
		r.transcribe,
		r.summarize,
		r.export,
	}

	for _, step := range steps {
		t, err = step(runCtx, t)
		if err != nil {
			slog.Info("pipeline stopped", "task_id", taskID, "error", err)
			return
		}
	}

	if err := r.mgr.MarkCompleted(taskID); err != nil {
		slog.Warn("could not mark task completed", "task_id", taskID, "error", err)
		return
	}
	slog.Info("pipeline finished", "task_id", taskID)
}

func (r *Runner) download(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	// A transcript makes the audio redundant; it may already be deleted.
	if t.Artifacts.AudioPath != "" || t.Artifacts.TranscriptPath != "" {
		return t, nil
	}

	if err := r.enterStage(t.ID, domain.StageDownloading); err != nil {
		return nil, err
	}
	defer observeStage(domain.StageDownloading)()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.DownloadTimeout)
	defer cancel()

	audioPath, err := r.downloader.Download(callCtx, t.ID, t.URL)
	if err != nil {
		return nil, r.fail(t.ID, domain.KindDownloadFailed, err, "")
	}

	if err := r.completeStage(t.ID, domain.StageDownloading, domain.ArtifactUpdate{AudioPath: &audioPath}); err != nil {
		return nil, err
	}

	t.Artifacts.AudioPath = audioPath
	return t, nil
}

func (r *Runner) transcribe(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	if t.Artifacts.TranscriptPath != "" {
		return t, nil
	}

	if err := r.enterStage(t.ID, domain.StageTranscribing); err != nil {
		return nil, err
	}
	defer observeStage(domain.StageTranscribing)()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.TranscribeTimeout)
	defer cancel()

	transcriptPath, err := r.transcriber.Transcribe(callCtx, t.ID, t.Artifacts.AudioPath)
	if err != nil {
		return nil, r.fail(t.ID, domain.KindTranscriptionFailed, err, "")
	}

	if err := r.completeStage(t.ID, domain.StageTranscribing, domain.ArtifactUpdate{TranscriptPath: &transcriptPath}); err != nil {
		return nil, err
	}

	if !r.cfg.KeepAudio {
		if err := os.Remove(t.Artifacts.AudioPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove audio file", "task_id", t.ID, "path", t.Artifacts.AudioPath, "error", err)
		}
	}

	t.Artifacts.TranscriptPath = transcriptPath
	return t, nil
}

func (r *Runner) summarize(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	if t.Artifacts.SummaryText != "" {
		return t, nil
	}

	if err := r.enterStage(t.ID, domain.StageSummarizing); err != nil {
		return nil, err
	}
	defer observeStage(domain.StageSummarizing)()

	transcript, err := os.ReadFile(t.Artifacts.TranscriptPath)
	if err != nil {
		return nil, r.fail(t.ID, domain.KindSummarizationFailed, fmt.Errorf("read transcript: %w", err), "")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.SummarizeTimeout)
	defer cancel()

	opts := retry.Options{
		MaxAttempts: r.cfg.RetryMaxAttempts,
		BaseDelay:   r.cfg.RetryBaseDelay,
		MaxDelay:    r.cfg.RetryMaxDelay,
		OnRetry: func(int, error) {
			r.mgr.IncrementRetry(t.ID)
		},
	}

	text := string(transcript)
	summary, provider, err := retry.DoWithFallback(callCtx, opts,
		retry.Provider[string]{Name: r.primary.Name(), Call: func(c context.Context) (string, error) {
			return r.primary.Summarize(c, text)
		}},
		retry.Provider[string]{Name: r.fallback.Name(), Call: func(c context.Context) (string, error) {
			return r.fallback.Summarize(c, text)
		}},
	)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(r.fallback.Name(), "error").Inc()
		return nil, r.fail(t.ID, domain.KindSummarizationFailed, err, "")
	}

	metrics.ProviderCalls.WithLabelValues(provider, "success").Inc()
	if provider == r.fallback.Name() {
		metrics.FallbackUsed.Inc()
		slog.Info("summary produced by fallback provider", "task_id", t.ID, "provider", provider)
	}

	if err := r.completeStage(t.ID, domain.StageSummarizing, domain.ArtifactUpdate{SummaryText: &summary}); err != nil {
		return nil, err
	}

	t.Artifacts.SummaryText = summary
	return t, nil
}

func (r *Runner) export(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	if len(t.Artifacts.ExportPaths) > 0 {
		return t, nil
	}

	if err := r.enterStage(t.ID, domain.StageExporting); err != nil {
		return nil, err
	}
	defer observeStage(domain.StageExporting)()

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ExportTimeout)
	defer cancel()

	res := exporter.ExportAll(callCtx, r.exporters, exporter.Input{
		TaskID:  t.ID,
		Title:   t.URL,
		Summary: t.Artifacts.SummaryText,
		Dir:     r.cfg.ExportDir,
	})

	if len(res.Paths) == 0 {
		err := fmt.Errorf("all export formats failed: %s", strings.Join(res.Warnings, "; "))
		return nil, r.fail(t.ID, domain.KindExportFailed, err, "")
	}

	update := domain.ArtifactUpdate{ExportPaths: res.Paths}
	if len(res.Warnings) > 0 {
		warning := "some export formats failed: " + strings.Join(res.Warnings, "; ")
		update.Warning = &warning
	}

	if err := r.completeStage(t.ID, domain.StageExporting, update); err != nil {
		return nil, err
	}

	t.Artifacts.ExportPaths = res.Paths
	return t, nil
}

// enterStage commits the transition into a stage at its entry progress. A
// rejected commit (the task was cancelled or deleted meanwhile) aborts the
// run without touching the recorded state.
func (r *Runner) enterStage(id string, stage domain.Stage) error {
	if err := r.mgr.UpdateStage(id, stage, stageProgress[stage].entry, domain.ArtifactUpdate{}); err != nil {
		return fmt.Errorf("enter stage %s: %w", stage, err)
	}
	return nil
}

// completeStage records the stage's artifacts at its completion progress.
func (r *Runner) completeStage(id string, stage domain.Stage, update domain.ArtifactUpdate) error {
	if err := r.mgr.UpdateStage(id, stage, stageProgress[stage].done, update); err != nil {
		return fmt.Errorf("complete stage %s: %w", stage, err)
	}
	return nil
}

// fail records the terminal failure and returns an error ending the run.
func (r *Runner) fail(id string, kind domain.ErrorKind, cause error, provider string) error {
	taskErr := &domain.TaskError{Kind: kind, Message: cause.Error(), Provider: provider}
	if err := r.mgr.MarkFailed(id, taskErr); err != nil {
		slog.Warn("could not record task failure", "task_id", id, "error", err)
	}
	return taskErr
}

func observeStage(stage domain.Stage) func() {
	start := time.Now()
	return func() {
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
}
