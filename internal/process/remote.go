package process

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Remote performs HTTP calls against an ASR service.
type Remote struct {
	client *http.Client
	log    *logrus.Entry
}

// NewRemote builds a Remote. A zero timeout means no client-side limit; ASR
// requests routinely take longer than the audio they transcribe.
func NewRemote(log *logrus.Entry, timeout time.Duration) *Remote {
	return &Remote{
		client: &http.Client{Timeout: timeout},
		log:    log.WithField("component", "remote"),
	}
}

// Do sends req and reads the whole body. Only a failure to connect is
// returned, as *MissingBackendError. Timeouts, cancellation and broken
// connections are a failed Result with ExitCode -1 and the cause in Stderr;
// any HTTP status is reported through the Result.
// The request context controls cancellation.
func (r *Remote) Do(req *http.Request) (Result, error) {
	log := r.log.WithFields(logrus.Fields{"method": req.Method, "url": req.URL.String()})
	log.Debug("sending request")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		log.WithError(err).Error("request failed")
		if unreachable(err) {
			return Result{ExitCode: -1, remote: true}, &MissingBackendError{Backend: req.URL.Host, Cause: err}
		}
		return Result{ExitCode: -1, Stderr: []byte(err.Error()), Duration: time.Since(start), remote: true}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	res := Result{
		ExitCode: resp.StatusCode,
		Stdout:   body,
		Duration: time.Since(start),
		remote:   true,
	}
	if readErr != nil {
		res.Stderr = []byte(readErr.Error())
		res.ExitCode = -1
	}

	entry := log.WithFields(logrus.Fields{
		"status":     res.ExitCode,
		"elapsed_ms": res.Duration.Milliseconds(),
	})
	if res.Success() {
		entry.Info("request completed")
	} else {
		entry.WithField("body", tail(body, 2048)).Error("request returned an error")
	}
	return res, nil
}

// unreachable reports whether err means the service could not be connected to
// at all, as opposed to a slow or interrupted exchange.
func unreachable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false
	}
	var dns *net.DNSError
	if errors.As(err, &dns) {
		return true
	}
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}
