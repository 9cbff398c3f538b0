// Package transcription drives the ASR engines. Each engine is a
// Transcriptor built for one audio file; the engine in use is chosen once at
// startup from configuration.
package transcription

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"interview-stt-go/internal/process"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

// Outcome is the result of one transcription attempt. Transcript is set only
// when Success is true; Reason explains a failure.
type Outcome struct {
	Success    bool
	Duration   time.Duration
	Transcript transcript.Raw
	Reason     string
}

func failed(d time.Duration, format string, args ...any) Outcome {
	return Outcome{Duration: d, Reason: fmt.Sprintf(format, args...)}
}

// Transcriptor transcribes the audio file it was built for.
//
// Engine failures are reported with Outcome.Success=false and a nil error.
// The error return carries *process.MissingBackendError only.
type Transcriptor interface {
	Source() types.TranscriptSource
	RunTranscription(ctx context.Context) (Outcome, error)
}

// Factory builds a Transcriptor for one audio path.
type Factory func(audioPath string) Transcriptor

// CommandRunner runs local engine programs.
type CommandRunner interface {
	Run(ctx context.Context, cmd process.Command) (process.Result, error)
}

// HTTPDoer performs remote engine calls.
type HTTPDoer interface {
	Do(req *http.Request) (process.Result, error)
}

// Config is the engine configuration, validated by the config package.
type Config struct {
	Engine      types.TranscriptSource
	Language    string
	ModelSize   string
	ComputeType string
	HFToken     string
	WordcabURL  string
	WhisperBin  string
	WhisperXBin string
	FFmpegBin   string
	// ScratchDir holds per-run output directories; empty means os.TempDir().
	ScratchDir string
}

// Deps are the collaborators shared by every Transcriptor.
type Deps struct {
	Runner CommandRunner
	Remote HTTPDoer
	Log    *logrus.Entry
}

// Constructor turns configuration into a Factory for one engine.
type Constructor func(cfg Config, deps Deps) (Factory, error)

var registry = map[types.TranscriptSource]Constructor{
	types.SourceWhisper:  newWhisperFactory,
	types.SourceWhisperX: newWhisperXFactory,
	types.SourceWordcab:  newWordcabFactory,
}

// Engines lists the registered engine identifiers.
func Engines() []types.TranscriptSource {
	out := make([]types.TranscriptSource, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewFactory resolves the configured engine.
func NewFactory(cfg Config, deps Deps) (Factory, error) {
	ctor, ok := registry[cfg.Engine]
	if !ok {
		return nil, fmt.Errorf("no transcriptor registered for engine %q", cfg.Engine)
	}
	if cfg.Language == "" {
		cfg.Language = "fr"
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	deps.Log = deps.Log.WithField("engine", string(cfg.Engine))
	return ctor(cfg, deps)
}

// runDir creates the per-run output directory.
func runDir(scratch, engine string) (string, error) {
	if scratch == "" {
		scratch = os.TempDir()
	}
	return os.MkdirTemp(scratch, engine+"-*")
}

// outputPath is where the CLI engines write their JSON result.
func outputPath(dir, audio string) string {
	stem := strings.TrimSuffix(filepath.Base(audio), filepath.Ext(audio))
	return filepath.Join(dir, stem+".json")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
