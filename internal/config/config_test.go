package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-stt-go/internal/types"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "whisper", cfg.ASR.Engine)
	assert.Equal(t, "fr", cfg.ASR.Language)
	assert.Equal(t, 5, cfg.Worker.MaxRetries)
	assert.Equal(t, time.Second, cfg.Worker.RetryDelay)
	assert.Zero(t, cfg.Worker.JobTimeout)
	assert.Equal(t, types.SourceWhisper, cfg.Transcription().Engine)
}

func TestYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
asr:
  engine: wordcab
  wordcab_url: http://asr:5001
queue:
  backend: memory
worker:
  concurrency: 4
  retry_delay: 3s
`), 0o644))

	cfg, err := FromEnv(envMap(map[string]string{
		"STT_CONFIG_FILE":    path,
		"WORKER_CONCURRENCY": "8",
		"JOB_TIMEOUT":        "30m",
	}))
	require.NoError(t, err)

	assert.Equal(t, "wordcab", cfg.ASR.Engine)
	assert.Equal(t, "http://asr:5001", cfg.ASR.WordcabURL)
	assert.Equal(t, QueueMemory, cfg.Queue.Backend)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Worker.RetryDelay)
	assert.Equal(t, 30*time.Minute, cfg.Worker.JobTimeout)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown engine", map[string]string{"ASR_ENGINE": "kaldi"}},
		{"bad model size", map[string]string{"WHISPER_MODEL_SIZE": "huge"}},
		{"bad language", map[string]string{"ASR_LANGUAGE": "de"}},
		{"whisperx without token", map[string]string{"ASR_ENGINE": "whisperx"}},
		{"whisperx bad compute", map[string]string{"ASR_ENGINE": "whisperx", "HF_TOKEN": "x", "WHISPERX_COMPUTE_TYPE": "int4"}},
		{"wordcab without url", map[string]string{"ASR_ENGINE": "wordcab"}},
		{"bad queue", map[string]string{"QUEUE_BACKEND": "kafka"}},
		{"zero concurrency", map[string]string{"WORKER_CONCURRENCY": "0"}},
		{"unparsable retries", map[string]string{"MAX_RETRIES": "many"}},
		{"unparsable delay", map[string]string{"RETRY_DELAY": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestEngineNameIsCaseInsensitive(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"ASR_ENGINE": "WhisperX", "HF_TOKEN": "hf"}))
	require.NoError(t, err)
	assert.Equal(t, "whisperx", cfg.ASR.Engine)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := FromEnv(envMap(map[string]string{"STT_CONFIG_FILE": filepath.Join(t.TempDir(), "absent.yaml")}))
	assert.Error(t, err)
}

func TestWorkerIDNamesConsumer(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{"WORKER_ID": "stt-worker-2"}))
	require.NoError(t, err)
	assert.Equal(t, "stt-worker-2", cfg.Queue.Consumer)

	cfg, err = FromEnv(envMap(nil))
	require.NoError(t, err)
	host, _ := os.Hostname()
	assert.Equal(t, host, cfg.Queue.Consumer)
}
