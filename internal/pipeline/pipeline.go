// Package pipeline runs one transcription job: it drives an interview from
// uploaded to transcripted through the configured ASR engine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"interview-stt-go/internal/metrics"
	"interview-stt-go/internal/process"
	"interview-stt-go/internal/queue"
	"interview-stt-go/internal/store"
	"interview-stt-go/internal/transcript"
	"interview-stt-go/internal/transcription"
	"interview-stt-go/internal/types"
)

// Job owns the pipeline-managed fields of an interview while it runs.
type Job struct {
	store   store.Store
	factory transcription.Factory
	engine  types.TranscriptSource
	timeout time.Duration
	log     *logrus.Entry
	now     func() time.Time
}

type Options struct {
	Engine types.TranscriptSource
	// Timeout bounds one transcription run; zero means unbounded.
	Timeout time.Duration
}

func NewJob(st store.Store, factory transcription.Factory, opts Options, log *logrus.Entry) *Job {
	return &Job{
		store:   st,
		factory: factory,
		engine:  opts.Engine,
		timeout: opts.Timeout,
		log:     log.WithField("component", "pipeline"),
		now:     time.Now,
	}
}

func (j *Job) Engine() types.TranscriptSource { return j.engine }

// Run executes one attempt for task. It returns nil when the interview was
// transcripted or was already in a terminal state.
//
// Errors raised after the run took ownership are wrapped in *RunError.
// Errors: *ConsistencyError when the interview is absent,
// *process.MissingBackendError when the engine cannot be reached,
// *TranscriptionError when the engine failed, ErrStaleRun when a newer run
// owns the interview.
func (j *Job) Run(ctx context.Context, task queue.Task) error {
	log := j.log.WithFields(logrus.Fields{
		"user_id":      task.UserID.String(),
		"interview_id": task.InterviewID.String(),
		"task_id":      task.ID,
	})

	iv, err := j.store.GetInterview(ctx, task.UserID, task.InterviewID)
	if err != nil {
		return fmt.Errorf("load interview: %w", err)
	}
	if iv == nil {
		metrics.RecordJob(string(j.engine), metrics.OutcomeInconsistent)
		return &ConsistencyError{UserID: task.UserID, InterviewID: task.InterviewID}
	}
	if iv.Status.Terminal() {
		log.WithField("status", iv.Status).Info("interview already finished, skipping")
		metrics.RecordJob(string(j.engine), metrics.OutcomeSkipped)
		return nil
	}

	token := uuid.NewString()
	attempts := iv.RunAttempts + 1
	processing := types.StatusProcessing
	if _, err := j.store.UpdateInterview(ctx, task.UserID, task.InterviewID, types.InterviewUpdate{
		Status:      &processing,
		RunToken:    &token,
		RunAttempts: &attempts,
	}); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	log = log.WithFields(logrus.Fields{"run_token": token, "attempt": attempts})
	log.Info("transcription started")

	if err := j.execute(ctx, task, iv, token, log); err != nil {
		return &RunError{RunToken: token, Err: err}
	}
	return nil
}

// execute runs the engine and persists the result fenced by token.
func (j *Job) execute(ctx context.Context, task queue.Task, iv *types.Interview, token string, log *logrus.Entry) error {
	audio := task.AudioLocation
	if audio == "" {
		audio = iv.AudioLocation
	}

	runCtx := ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	tr := j.factory(audio)
	engine := string(tr.Source())
	metrics.InFlight.Inc()
	outcome, err := tr.RunTranscription(runCtx)
	metrics.InFlight.Dec()
	metrics.RecordASRDuration(engine, outcome.Success, outcome.Duration.Seconds())

	if err != nil {
		var mb *process.MissingBackendError
		if errors.As(err, &mb) {
			log.WithError(err).Error("asr backend unavailable")
			metrics.RecordJob(engine, metrics.OutcomeMisconfig)
			return err
		}
		return fmt.Errorf("run %s: %w", engine, err)
	}
	if !outcome.Success || outcome.Transcript == nil {
		reason := outcome.Reason
		if runCtx.Err() != nil && ctx.Err() == nil {
			reason = fmt.Sprintf("timed out after %s: %s", j.timeout, reason)
		}
		log.WithField("reason", reason).Warn("transcription failed")
		return &TranscriptionError{Engine: engine, Reason: reason}
	}

	canonical, anomalies := transcript.Normalize(outcome.Transcript)
	for _, a := range anomalies {
		metrics.RecordAnomaly(engine, string(a.Kind))
		log.WithField("anomaly", a.String()).Warn("transcript value corrected")
	}
	if err := canonical.Validate(); err != nil {
		return &TranscriptionError{Engine: engine, Reason: fmt.Sprintf("invalid transcript: %v", err)}
	}

	transcripted := types.StatusTranscripted
	source := tr.Source()
	seconds := int(math.Ceil(outcome.Duration.Seconds()))
	ts := j.now().UTC()
	_, err = j.store.UpdateInterview(ctx, task.UserID, task.InterviewID, types.InterviewUpdate{
		Status:              &transcripted,
		Transcript:          &canonical,
		TranscriptSource:    &source,
		TranscriptDurationS: &seconds,
		TranscriptTS:        &ts,
		ExpectRunToken:      &token,
	})
	if errors.Is(err, store.ErrStaleRun) {
		log.Warn("run superseded, result discarded")
		metrics.RecordJob(engine, metrics.OutcomeStale)
		return ErrStaleRun
	}
	if err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}

	log.WithFields(logrus.Fields{
		"segments":   len(canonical.Segments),
		"speakers":   len(canonical.Speakers),
		"anomalies":  len(anomalies),
		"duration_s": seconds,
	}).Info("interview transcripted")
	metrics.RecordJob(engine, metrics.OutcomeTranscripted)
	return nil
}

// MarkFailed records that the task's retry budget is spent. The interview
// keeps its transcript fields untouched. When cause carries a run token the
// write only applies while that run still owns the interview; otherwise
// ErrStaleRun is returned.
func (j *Job) MarkFailed(ctx context.Context, task queue.Task, cause error) error {
	failed := types.StatusFailed
	reason := cause.Error()
	upd := types.InterviewUpdate{
		Status:        &failed,
		FailureReason: &reason,
	}
	var re *RunError
	if errors.As(cause, &re) {
		upd.ExpectRunToken = &re.RunToken
	}
	_, err := j.store.UpdateInterview(ctx, task.UserID, task.InterviewID, upd)
	if errors.Is(err, store.ErrStaleRun) {
		metrics.RecordJob(string(j.engine), metrics.OutcomeStale)
		return ErrStaleRun
	}
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	j.log.WithFields(logrus.Fields{
		"user_id":      task.UserID.String(),
		"interview_id": task.InterviewID.String(),
		"reason":       reason,
	}).Error("interview failed")
	metrics.RecordJob(string(j.engine), metrics.OutcomeFailed)
	return nil
}
