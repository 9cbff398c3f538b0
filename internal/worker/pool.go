// Package worker consumes the task queue with a fixed number of goroutines
// and applies the retry policy around each job.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"interview-stt-go/internal/metrics"
	"interview-stt-go/internal/pipeline"
	"interview-stt-go/internal/queue"
)

// Runner is the job contract the pool drives.
type Runner interface {
	Run(ctx context.Context, task queue.Task) error
	MarkFailed(ctx context.Context, task queue.Task, cause error) error
}

type Config struct {
	Concurrency int
	// MaxRetries is the number of re-executions after the first attempt.
	MaxRetries int
	RetryDelay time.Duration
	Engine     string
}

type Pool struct {
	queue  queue.Queue
	runner Runner
	cfg    Config
	flight singleflight.Group
	log    *logrus.Entry
}

func NewPool(q queue.Queue, runner Runner, cfg Config, log *logrus.Entry) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pool{
		queue:  q,
		runner: runner,
		cfg:    cfg,
		log:    log.WithField("component", "worker"),
	}
}

// Run blocks until ctx is cancelled or a worker hits a queue error.
// Unacknowledged tasks from a previous process are requeued first.
func (p *Pool) Run(ctx context.Context) error {
	if _, err := p.queue.Requeue(ctx); err != nil {
		return err
	}
	p.log.WithField("concurrency", p.cfg.Concurrency).Info("worker pool started")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error { return p.loop(gctx, id) })
	}
	err := g.Wait()
	p.log.Info("worker pool stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) loop(ctx context.Context, id int) error {
	log := p.log.WithField("worker", id)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Warn("dequeue failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if d == nil {
			continue
		}
		p.Handle(ctx, d.Task)
		if ctx.Err() != nil {
			// left in flight; requeued on next start
			return ctx.Err()
		}
		if err := p.queue.Ack(ctx, d); err != nil {
			log.WithError(err).Error("ack failed")
		}
	}
}

// Handle runs task to completion under the retry policy. Concurrent calls
// for the same interview share one execution.
func (p *Pool) Handle(ctx context.Context, task queue.Task) {
	key := task.UserID.String() + "/" + task.InterviewID.String()
	_, _, shared := p.flight.Do(key, func() (interface{}, error) {
		p.handle(ctx, task)
		return nil, nil
	})
	if shared {
		p.log.WithField("interview_id", task.InterviewID.String()).Debug("duplicate delivery coalesced")
	}
}

func (p *Pool) handle(ctx context.Context, task queue.Task) {
	log := p.log.WithFields(logrus.Fields{
		"user_id":      task.UserID.String(),
		"interview_id": task.InterviewID.String(),
		"task_id":      task.ID,
	})

	attempt := 0
	operation := func() (err error) {
		attempt++
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panic: %v", r)
			}
		}()
		err = p.runner.Run(ctx, task)
		if err != nil && pipeline.IsFatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordRetry(p.cfg.Engine)
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warn("transcription attempt failed, retrying")
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(p.cfg.RetryDelay)
	policy = backoff.WithMaxRetries(policy, uint64(max(p.cfg.MaxRetries, 0)))
	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		log.WithError(err).Warn("shutdown interrupted the job")
		return
	}

	switch {
	case errors.Is(err, pipeline.ErrStaleRun):
		log.Info("a newer run owns the interview")
	case pipeline.IsFatal(err):
		log.WithError(err).Error("job aborted")
	default:
		log.WithError(err).WithField("attempts", attempt).Error("retry budget exhausted")
		mErr := p.runner.MarkFailed(ctx, task, err)
		switch {
		case errors.Is(mErr, pipeline.ErrStaleRun):
			log.Info("a newer run owns the interview, failure not recorded")
		case mErr != nil:
			log.WithError(mErr).Error("could not mark interview failed")
		}
	}
}
