package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"interview-stt-go/internal/process"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/types"
)

// gatewayRetryWindow bounds the retries on a busy gateway within one attempt.
const gatewayRetryWindow = 15 * time.Second

// wordcab posts the audio to a wordcab-transcribe service.
type wordcab struct {
	cfg   Config
	deps  Deps
	audio string
}

func newWordcabFactory(cfg Config, deps Deps) (Factory, error) {
	if strings.TrimSpace(cfg.WordcabURL) == "" {
		return nil, fmt.Errorf("wordcab engine requires a service url")
	}
	cfg.WordcabURL = strings.TrimRight(cfg.WordcabURL, "/")
	return func(audio string) Transcriptor {
		return &wordcab{cfg: cfg, deps: deps, audio: audio}
	}, nil
}

func (w *wordcab) Source() types.TranscriptSource { return types.SourceWordcab }

func (w *wordcab) RunTranscription(ctx context.Context) (Outcome, error) {
	log := w.deps.Log.WithField("audio", w.audio)
	start := time.Now()

	audio, err := os.ReadFile(w.audio)
	if err != nil {
		return failed(time.Since(start), "read audio: %v", err), nil
	}

	var res process.Result
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = gatewayRetryWindow

	// 502/503/504 mean the service is up but saturated; everything else is final.
	operation := func() error {
		req, err := w.newRequest(ctx, audio)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err = w.deps.Remote.Do(req)
		if err != nil {
			return backoff.Permanent(err)
		}
		switch res.ExitCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("wordcab busy: status %d", res.ExitCode)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("wait_ms", wait.Milliseconds()).Warn("retrying wordcab request")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		if process.IsMissingBackend(err) {
			return Outcome{Duration: time.Since(start), Reason: err.Error()}, err
		}
		if res.ExitCode == 0 {
			return failed(time.Since(start), "wordcab request: %v", err), nil
		}
	}
	if res.ExitCode == -1 {
		return failed(time.Since(start), "wordcab request: %s", res.Stderr), nil
	}
	if !res.Success() {
		return failed(time.Since(start), "wordcab returned status %d", res.ExitCode), nil
	}

	raw, err := transcript.DecodeWordcab(res.Stdout)
	if err != nil {
		return failed(time.Since(start), "%v", err), nil
	}

	d := time.Since(start)
	log.WithFields(logrus.Fields{"utterances": len(raw.Utterances), "elapsed_ms": d.Milliseconds()}).Info("wordcab transcription done")
	return Outcome{Success: true, Duration: d, Transcript: raw}, nil
}

// newRequest builds POST <url>/audio as multipart/form-data with the audio
// under "file" and the processing options as form fields.
func (w *wordcab) newRequest(ctx context.Context, audio []byte) (*http.Request, error) {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)

	fields := [][2]string{
		{"alignment", "true"},
		{"diarization", "true"},
		{"dual_channel", "false"},
		{"source_lang", w.cfg.Language},
		{"timestamps", "s"},
		{"word_timestamps", "true"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(w.audio))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(audio)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WordcabURL+"/audio", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	return req, nil
}
