package transcription

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"interview-stt-go/internal/media"
	"interview-stt-go/internal/process"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

// whisperX runs the whisperx CLI with diarization. It needs WAV input.
type whisperX struct {
	cfg   Config
	deps  Deps
	audio string
}

func newWhisperXFactory(cfg Config, deps Deps) (Factory, error) {
	cfg.WhisperXBin = orDefault(cfg.WhisperXBin, "whisperx")
	cfg.FFmpegBin = orDefault(cfg.FFmpegBin, "ffmpeg")
	return func(audio string) Transcriptor {
		return &whisperX{cfg: cfg, deps: deps, audio: audio}
	}, nil
}

func (w *whisperX) Source() types.TranscriptSource { return types.SourceWhisperX }

func (w *whisperX) RunTranscription(ctx context.Context) (Outcome, error) {
	log := w.deps.Log.WithField("audio", w.audio)
	start := time.Now()

	dir, err := runDir(w.cfg.ScratchDir, "whisperx")
	if err != nil {
		return failed(time.Since(start), "create output dir: %v", err), nil
	}
	defer os.RemoveAll(dir)

	wav, release, err := media.ConvertToWAV(ctx, w.deps.Runner, w.cfg.FFmpegBin, w.audio, dir)
	if err != nil {
		if process.IsMissingBackend(err) {
			return Outcome{Duration: time.Since(start), Reason: err.Error()}, err
		}
		return failed(time.Since(start), "convert to wav: %v", err), nil
	}
	defer release()

	res, err := w.deps.Runner.Run(ctx, process.Command{
		Program: w.cfg.WhisperXBin,
		Args: []string{
			wav,
			"--language", w.cfg.Language,
			"--model", w.cfg.ModelSize,
			"--output_dir", dir,
			"--output_format", "json",
			"--compute_type", w.cfg.ComputeType,
			"--diarize",
			"--hf_token", w.cfg.HFToken,
		},
	})
	if err != nil {
		return Outcome{Duration: time.Since(start), Reason: err.Error()}, err
	}
	if !res.Success() {
		return failed(time.Since(start), "whisperx exited with code %d", res.ExitCode), nil
	}

	data, err := os.ReadFile(outputPath(dir, wav))
	if err != nil {
		return failed(time.Since(start), "read whisperx output: %v", err), nil
	}
	raw, err := transcript.DecodeWhisperX(data)
	if err != nil {
		return failed(time.Since(start), "%v", err), nil
	}

	d := time.Since(start)
	log.WithFields(logrus.Fields{"segments": len(raw.Segments), "elapsed_ms": d.Milliseconds()}).Info("whisperx transcription done")
	return Outcome{Success: true, Duration: d, Transcript: raw}, nil
}
