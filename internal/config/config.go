// Package config loads and validates process configuration.
//
// Sources, lowest precedence first: built-in defaults, the YAML file named by
// STT_CONFIG_FILE, the dotenv files, the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"interview-stt-go/internal/transcription"
	"interview-stt-go/internal/types"
)

// EnvFiles are loaded in order when present. Variables already set are kept.
var EnvFiles = []string{".env", ".env.prod", "secrets.env"}

var (
	ModelSizes   = []string{"tiny", "small", "medium", "large-v2"}
	ComputeTypes = []string{"int8", "float16", "float32"}
	Languages    = []string{"fr", "en"}
)

const (
	QueueRedis  = "redis"
	QueueMemory = "memory"
)

type ASR struct {
	Engine         string        `yaml:"engine"`
	Language       string        `yaml:"language"`
	ModelSize      string        `yaml:"model_size"`
	ComputeType    string        `yaml:"compute_type"`
	HFToken        string        `yaml:"hf_token"`
	WordcabURL     string        `yaml:"wordcab_url"`
	WordcabTimeout time.Duration `yaml:"wordcab_timeout"`
	WhisperBin     string        `yaml:"whisper_bin"`
	WhisperXBin    string        `yaml:"whisperx_bin"`
	FFmpegBin      string        `yaml:"ffmpeg_bin"`
	ScratchDir     string        `yaml:"scratch_dir"`
}

type Queue struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
	Name     string `yaml:"name"`
	// Consumer names this process's in-flight list; defaults to the hostname.
	Consumer string `yaml:"consumer"`
}

type Worker struct {
	Concurrency int           `yaml:"concurrency"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	// JobTimeout bounds one transcription run; zero means unbounded.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

type Config struct {
	ASR         ASR    `yaml:"asr"`
	Queue       Queue  `yaml:"queue"`
	Worker      Worker `yaml:"worker"`
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
}

func defaults() Config {
	return Config{
		ASR: ASR{
			Engine:      string(types.SourceWhisper),
			Language:    "fr",
			ModelSize:   "small",
			ComputeType: "int8",
		},
		Queue:       Queue{Backend: QueueRedis, RedisURL: "redis://localhost:6379/0", Name: "stt:jobs", Consumer: hostname()},
		Worker:      Worker{Concurrency: 2, MaxRetries: 5, RetryDelay: time.Second},
		DatabaseURL: "stt.db",
		HTTPAddr:    ":8080",
	}
}

// Load reads every source and validates the result.
func Load() (*Config, error) {
	for _, f := range EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from defaults, the optional YAML file and getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(getenv("STT_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("ASR_ENGINE", &cfg.ASR.Engine)
	str("ASR_LANGUAGE", &cfg.ASR.Language)
	str("WHISPER_MODEL_SIZE", &cfg.ASR.ModelSize)
	str("WHISPERX_COMPUTE_TYPE", &cfg.ASR.ComputeType)
	str("HF_TOKEN", &cfg.ASR.HFToken)
	str("WORDCAB_URL", &cfg.ASR.WordcabURL)
	dur("WORDCAB_TIMEOUT", &cfg.ASR.WordcabTimeout)
	str("WHISPER_BIN", &cfg.ASR.WhisperBin)
	str("WHISPERX_BIN", &cfg.ASR.WhisperXBin)
	str("FFMPEG_BIN", &cfg.ASR.FFmpegBin)
	str("SCRATCH_DIR", &cfg.ASR.ScratchDir)

	str("QUEUE_BACKEND", &cfg.Queue.Backend)
	str("REDIS_URL", &cfg.Queue.RedisURL)
	str("QUEUE_NAME", &cfg.Queue.Name)
	str("WORKER_ID", &cfg.Queue.Consumer)

	num("WORKER_CONCURRENCY", &cfg.Worker.Concurrency)
	num("MAX_RETRIES", &cfg.Worker.MaxRetries)
	dur("RETRY_DELAY", &cfg.Worker.RetryDelay)
	dur("JOB_TIMEOUT", &cfg.Worker.JobTimeout)

	str("DATABASE_URL", &cfg.DatabaseURL)
	str("HTTP_ADDR", &cfg.HTTPAddr)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks every value a worker relies on, so a bad deployment fails
// at startup and not on the first job.
func (c *Config) Validate() error {
	src, err := types.ParseTranscriptSource(c.ASR.Engine)
	if err != nil {
		return err
	}
	c.ASR.Engine = string(src)

	if !oneOf(c.ASR.Language, Languages) {
		return fmt.Errorf("language %q not supported (want one of %v)", c.ASR.Language, Languages)
	}

	switch src {
	case types.SourceWhisper, types.SourceWhisperX:
		if !oneOf(c.ASR.ModelSize, ModelSizes) {
			return fmt.Errorf("model size %q not supported (want one of %v)", c.ASR.ModelSize, ModelSizes)
		}
	}
	if src == types.SourceWhisperX {
		if !oneOf(c.ASR.ComputeType, ComputeTypes) {
			return fmt.Errorf("compute type %q not supported (want one of %v)", c.ASR.ComputeType, ComputeTypes)
		}
		if c.ASR.HFToken == "" {
			return fmt.Errorf("whisperx diarization requires HF_TOKEN")
		}
	}
	if src == types.SourceWordcab && c.ASR.WordcabURL == "" {
		return fmt.Errorf("wordcab engine requires WORDCAB_URL")
	}

	switch c.Queue.Backend {
	case QueueRedis:
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("redis queue requires REDIS_URL")
		}
	case QueueMemory:
	default:
		return fmt.Errorf("queue backend %q not supported", c.Queue.Backend)
	}
	if c.Queue.Name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}
	if c.Queue.Backend == QueueRedis && c.Queue.Consumer == "" {
		return fmt.Errorf("redis queue requires WORKER_ID")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Worker.RetryDelay < 0 || c.Worker.JobTimeout < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url cannot be empty")
	}
	return nil
}

// Transcription maps the ASR section onto the engine configuration.
func (c *Config) Transcription() transcription.Config {
	return transcription.Config{
		Engine:      types.TranscriptSource(c.ASR.Engine),
		Language:    c.ASR.Language,
		ModelSize:   c.ASR.ModelSize,
		ComputeType: c.ASR.ComputeType,
		HFToken:     c.ASR.HFToken,
		WordcabURL:  c.ASR.WordcabURL,
		WhisperBin:  c.ASR.WhisperBin,
		WhisperXBin: c.ASR.WhisperXBin,
		FFmpegBin:   c.ASR.FFmpegBin,
		ScratchDir:  c.ASR.ScratchDir,
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
