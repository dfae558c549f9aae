package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"VB_ENV" default:"development"`

	HTTPPort    int           `envconfig:"VB_HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"VB_HTTP_TIMEOUT" default:"15s"`

	WorkerPoolSize int `envconfig:"VB_WORKER_POOL_SIZE" default:"3"`
	QueueSize      int `envconfig:"VB_QUEUE_SIZE" default:"100"`

	RegistryDir string `envconfig:"VB_REGISTRY_DIR" default:"./data/tasks"`
	AudioDir    string `envconfig:"VB_AUDIO_DIR" default:"./data/audio"`
	ExportDir   string `envconfig:"VB_EXPORT_DIR" default:"./data/exports"`
	TempDir     string `envconfig:"VB_TEMP_DIR" default:"./data/tmp"`

	KeepAudio        bool `envconfig:"VB_KEEP_AUDIO" default:"false"`
	DedupSubmissions bool `envconfig:"VB_DEDUP_SUBMISSIONS" default:"true"`

	DownloadTimeout   time.Duration `envconfig:"VB_DOWNLOAD_TIMEOUT" default:"15m"`
	TranscribeTimeout time.Duration `envconfig:"VB_TRANSCRIBE_TIMEOUT" default:"20m"`
	SummarizeTimeout  time.Duration `envconfig:"VB_SUMMARIZE_TIMEOUT" default:"5m"`
	ExportTimeout     time.Duration `envconfig:"VB_EXPORT_TIMEOUT" default:"2m"`

	RetryMaxAttempts int           `envconfig:"VB_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"VB_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay    time.Duration `envconfig:"VB_RETRY_MAX_DELAY" default:"60s"`

	TaskTTL         time.Duration `envconfig:"VB_TASK_TTL" default:"24h"`
	CleanupInterval time.Duration `envconfig:"VB_CLEANUP_INTERVAL" default:"1h"`
	ShutdownTimeout time.Duration `envconfig:"VB_SHUTDOWN_TIMEOUT" default:"30s"`

	YtdlpPath  string `envconfig:"VB_YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath string `envconfig:"VB_FFMPEG_PATH" default:"ffmpeg"`

	WhisperBaseURL string `envconfig:"VB_WHISPER_BASE_URL" default:"https://api.openai.com/v1"`
	WhisperModel   string `envconfig:"VB_WHISPER_MODEL" default:"whisper-1"`
	ChunkSizeBytes int64  `envconfig:"VB_CHUNK_SIZE_BYTES" default:"26214400"`

	GeminiAPIKey string `envconfig:"VB_GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"VB_GEMINI_MODEL" default:"gemini-2.5-flash"`

	OpenAIAPIKey  string `envconfig:"VB_OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"VB_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel   string `envconfig:"VB_OPENAI_MODEL" default:"gpt-4o-mini"`

	ExportFormats []string `envconfig:"VB_EXPORT_FORMATS" default:"markdown,docx,txt"`

	LogLevel  string `envconfig:"VB_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"VB_LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.WorkerPoolSize <= 0 {
		return fmt.Errorf("worker pool size must be positive: %d", c.WorkerPoolSize)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive: %d", c.QueueSize)
	}

	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive: %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive: %s", c.RetryBaseDelay)
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("retry max delay %s is below base delay %s", c.RetryMaxDelay, c.RetryBaseDelay)
	}

	if c.ChunkSizeBytes <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", c.ChunkSizeBytes)
	}

	if c.RegistryDir == "" {
		return fmt.Errorf("registry directory cannot be empty")
	}
	if c.AudioDir == "" {
		return fmt.Errorf("audio directory cannot be empty")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("export directory cannot be empty")
	}
	if c.TempDir == "" {
		return fmt.Errorf("temp directory cannot be empty")
	}

	if len(c.ExportFormats) == 0 {
		return fmt.Errorf("at least one export format is required")
	}
	for _, f := range c.ExportFormats {
		switch f {
		case "markdown", "docx", "txt":
		default:
			return fmt.Errorf("unknown export format: %q", f)
		}
	}

	return nil
}
