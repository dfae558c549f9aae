package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vidbrief/internal/config"
	"vidbrief/pkg/executor"
)

// Downloader fetches a video's audio track with yt-dlp.
type Downloader struct {
	cfg  *config.Config
	exec executor.Executor
}

// New creates a Downloader backed by the yt-dlp binary from config.
func New(cfg *config.Config, exec executor.Executor) *Downloader {
	return &Downloader{cfg: cfg, exec: exec}
}

// Download extracts the audio for url into the audio directory and returns
// the resulting file path. yt-dlp owns its own retry behaviour; a failure
// here is final for the stage.
func (d *Downloader) Download(ctx context.Context, taskID, url string) (string, error) {
	outTemplate := filepath.Join(d.cfg.AudioDir, taskID+".%(ext)s")

	args := []string{
		"-x",
		"--audio-format", "m4a",
		"--audio-quality", "0",
		"--no-playlist",
		"--no-progress",
		"-o", outTemplate,
		url,
	}

	slog.Info("downloading audio", "task_id", taskID, "url", url)

	if _, err := d.exec.Execute(ctx, d.cfg.YtdlpPath, args...); err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}

	audioPath := filepath.Join(d.cfg.AudioDir, taskID+".m4a")
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("yt-dlp finished but audio file is missing: %w", err)
	}

	slog.Info("audio downloaded", "task_id", taskID, "audio_path", audioPath)
	return audioPath, nil
}
