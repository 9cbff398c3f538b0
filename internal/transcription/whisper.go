package transcription

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"interview-stt-go/internal/process"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

// whisper runs the openai-whisper CLI.
type whisper struct {
	cfg   Config
	deps  Deps
	audio string
}

func newWhisperFactory(cfg Config, deps Deps) (Factory, error) {
	cfg.WhisperBin = orDefault(cfg.WhisperBin, "whisper")
	return func(audio string) Transcriptor {
		return &whisper{cfg: cfg, deps: deps, audio: audio}
	}, nil
}

func (w *whisper) Source() types.TranscriptSource { return types.SourceWhisper }

func (w *whisper) RunTranscription(ctx context.Context) (Outcome, error) {
	log := w.deps.Log.WithField("audio", w.audio)
	start := time.Now()

	dir, err := runDir(w.cfg.ScratchDir, "whisper")
	if err != nil {
		return failed(time.Since(start), "create output dir: %v", err), nil
	}
	defer os.RemoveAll(dir)

	res, err := w.deps.Runner.Run(ctx, process.Command{
		Program: w.cfg.WhisperBin,
		Args: []string{
			w.audio,
			"--language", w.cfg.Language,
			"--model", w.cfg.ModelSize,
			"--output_dir", dir,
			"--output_format", "json",
			"--word_timestamps", "True",
		},
	})
	if err != nil {
		return Outcome{Duration: time.Since(start), Reason: err.Error()}, err
	}
	if !res.Success() {
		return failed(time.Since(start), "whisper exited with code %d", res.ExitCode), nil
	}

	data, err := os.ReadFile(outputPath(dir, w.audio))
	if err != nil {
		return failed(time.Since(start), "read whisper output: %v", err), nil
	}
	raw, err := transcript.DecodeWhisper(data)
	if err != nil {
		return failed(time.Since(start), "%v", err), nil
	}

	d := time.Since(start)
	log.WithFields(logrus.Fields{"segments": len(raw.Segments), "elapsed_ms": d.Milliseconds()}).Info("whisper transcription done")
	return Outcome{Success: true, Duration: d, Transcript: raw}, nil
}
