package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"vidbrief/internal/config"
	"vidbrief/pkg/executor"
)

// chunkConcurrency bounds how many audio segments are transcribed at once.
const chunkConcurrency = 3

// Transcriber converts audio files to text through an OpenAI-compatible
// transcription endpoint. Files over the configured chunk threshold are split
// into time segments with ffmpeg and the segment transcripts concatenated.
type Transcriber struct {
	cfg    *config.Config
	exec   executor.Executor
	client *http.Client
}

// New creates a Transcriber using the Whisper endpoint from config.
func New(cfg *config.Config, exec executor.Executor) *Transcriber {
	return &Transcriber{
		cfg:    cfg,
		exec:   exec,
		client: &http.Client{Timeout: cfg.TranscribeTimeout},
	}
}

// Transcribe converts audioPath to text and writes it to a transcript file in
// the temp directory, returning the transcript path.
func (t *Transcriber) Transcribe(ctx context.Context, taskID, audioPath string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("stat audio file: %w", err)
	}

	var text string
	if info.Size() > t.cfg.ChunkSizeBytes {
		slog.Info("audio exceeds chunk threshold, splitting",
			"task_id", taskID, "size", info.Size(), "threshold", t.cfg.ChunkSizeBytes)
		text, err = t.transcribeChunked(ctx, taskID, audioPath)
	} else {
		text, err = t.transcribeFile(ctx, audioPath)
	}
	if err != nil {
		return "", err
	}

	transcriptPath := filepath.Join(t.cfg.TempDir, taskID+"_transcript.txt")
	if err := os.WriteFile(transcriptPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	slog.Info("transcription completed", "task_id", taskID, "transcript_path", transcriptPath)
	return transcriptPath, nil
}

// transcribeChunked splits the audio into 10-minute segments, transcribes
// them concurrently and joins the results in segment order.
func (t *Transcriber) transcribeChunked(ctx context.Context, taskID, audioPath string) (string, error) {
	chunkDir := filepath.Join(t.cfg.TempDir, taskID+"_chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return "", fmt.Errorf("create chunk dir: %w", err)
	}
	defer os.RemoveAll(chunkDir)

	pattern := filepath.Join(chunkDir, "chunk_%03d"+filepath.Ext(audioPath))
	args := []string{
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", "600",
		"-c", "copy",
		"-y",
		pattern,
	}
	if _, err := t.exec.Execute(ctx, t.cfg.FFmpegPath, args...); err != nil {
		return "", fmt.Errorf("ffmpeg split: %w", err)
	}

	chunks, err := listChunks(chunkDir)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("ffmpeg produced no segments for %s", audioPath)
	}

	texts := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chunkConcurrency)

	for i, chunk := range chunks {
		g.Go(func() error {
			text, err := t.transcribeFile(gctx, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			texts[i] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(texts, "\n"), nil
}

func (t *Transcriber) transcribeFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy audio into form: %w", err)
	}
	if err := writer.WriteField("model", t.cfg.WhisperModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	url := strings.TrimRight(t.cfg.WhisperBaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.cfg.OpenAIAPIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	return result.Text, nil
}

func listChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chunk dir: %w", err)
	}

	var chunks []string
	for _, e := range entries {
		if !e.IsDir() {
			chunks = append(chunks, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(chunks)
	return chunks, nil
}
