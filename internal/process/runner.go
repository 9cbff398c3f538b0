// Package process runs the external programs and remote calls ASR engines are
// built on, and reports their outcome structurally.
package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Command is a program and its arguments. No shell is involved.
type Command struct {
	Program string
	Args    []string
	Dir     string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Program + " " + strings.Join(c.Args, " "))
}

// Result is the observable outcome of a run. For remote calls ExitCode holds
// the HTTP status and Stdout the response body.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	remote   bool
}

func (r Result) Success() bool {
	if r.remote {
		return r.ExitCode == 200
	}
	return r.ExitCode == 0
}

// Runner starts local programs.
type Runner struct {
	log *logrus.Entry
}

func NewRunner(log *logrus.Entry) *Runner {
	return &Runner{log: log.WithField("component", "process")}
}

// Run executes cmd and waits for it. A non-zero exit is reported through the
// Result, never as an error. The only error is *MissingBackendError, returned
// when the program cannot be found or started. Cancelling ctx kills the
// process.
func (r *Runner) Run(ctx context.Context, cmd Command) (Result, error) {
	log := r.log.WithField("program", cmd.Program)

	path, err := exec.LookPath(cmd.Program)
	if err != nil {
		log.WithError(err).Error("program not found")
		return Result{ExitCode: -1}, &MissingBackendError{Backend: cmd.Program, Cause: err}
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	// grandchildren holding the pipes must not block Wait after a kill
	c.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	log.WithField("cmd", cmd.String()).Debug("starting process")
	start := time.Now()
	if err := c.Start(); err != nil {
		log.WithError(err).Error("process failed to start")
		return Result{ExitCode: -1}, &MissingBackendError{Backend: cmd.Program, Cause: err}
	}
	waitErr := c.Wait()

	res := Result{
		ExitCode: exitCode(waitErr),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	entry := log.WithFields(logrus.Fields{
		"exit_code":  res.ExitCode,
		"elapsed_ms": res.Duration.Milliseconds(),
	})
	if res.Success() {
		entry.Info("process completed")
	} else {
		entry.WithField("stderr", tail(res.Stderr, 2048)).Error("process failed")
	}
	return res, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	// killed by a signal (usually context cancellation)
	return -1
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
