// Package media prepares audio files for the ASR engines.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"interview-stt-go/internal/process"
)

// CommandRunner is the subset of process.Runner used here.
type CommandRunner interface {
	Run(ctx context.Context, cmd process.Command) (process.Result, error)
}

// IsWAV reports whether path already names a WAV file.
func IsWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// ConvertToWAV resamples input to 16 kHz mono PCM s16le inside dir and returns
// the new path together with a release func that removes it. When input is
// already a WAV file it is returned unchanged and release does nothing.
//
// A missing ffmpeg surfaces as *process.MissingBackendError.
func ConvertToWAV(ctx context.Context, runner CommandRunner, ffmpeg, input, dir string) (string, func(), error) {
	noop := func() {}
	if IsWAV(input) {
		return input, noop, nil
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := filepath.Join(dir, base+".wav")

	// ffmpeg -i input -vn -acodec pcm_s16le -ar 16000 -ac 1 -y output
	res, err := runner.Run(ctx, process.Command{
		Program: ffmpeg,
		Args: []string{
			"-i", input,
			"-vn",
			"-acodec", "pcm_s16le",
			"-ar", "16000",
			"-ac", "1",
			"-y", out,
		},
	})
	release := func() { _ = os.Remove(out) }
	if err != nil {
		return "", noop, err
	}
	if !res.Success() {
		release()
		return "", noop, fmt.Errorf("ffmpeg exited with code %d: %s", res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return out, release, nil
}
