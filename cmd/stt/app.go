package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"interview-stt-go/internal/config"
	"interview-stt-go/internal/logger"
	"interview-stt-go/internal/pipeline"
	"interview-stt-go/internal/process"
	"interview-stt-go/internal/queue"
	"interview-stt-go/internal/store"
	"interview-stt-go/internal/transcription"
	"interview-stt-go/internal/types"
	"interview-stt-go/internal/worker"
)

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store store.Store
	db    *gorm.DB
	queue queue.Queue
}

func newApp(ctx context.Context, withQueue bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newAppWith(ctx, cfg, withQueue)
}

func newAppWith(ctx context.Context, cfg *config.Config, withQueue bool) (*app, error) {
	log := logger.New()
	log = &logger.Logger{Entry: log.WithField("service", "interview-stt")}

	st, db, err := store.Open(cfg.DatabaseURL, log.Entry)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: st, db: db}
	if !withQueue {
		return a, nil
	}

	switch cfg.Queue.Backend {
	case config.QueueMemory:
		a.queue = queue.NewMemory(0)
	default:
		q, err := queue.DialRedis(ctx, cfg.Queue.RedisURL, cfg.Queue.Name, cfg.Queue.Consumer, log.Entry)
		if err != nil {
			a.close()
			return nil, err
		}
		a.queue = q
	}
	return a, nil
}

func (a *app) close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.log.WithError(err).Warn("close queue")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// pool wires the configured engine into a worker pool.
func (a *app) pool() (*worker.Pool, error) {
	factory, err := transcription.NewFactory(a.cfg.Transcription(), transcription.Deps{
		Runner: process.NewRunner(a.log.Entry),
		Remote: process.NewRemote(a.log.Entry, a.cfg.ASR.WordcabTimeout),
		Log:    a.log.Entry,
	})
	if err != nil {
		return nil, fmt.Errorf("build transcriptor: %w", err)
	}
	job := pipeline.NewJob(a.store, factory, pipeline.Options{
		Engine:  types.TranscriptSource(a.cfg.ASR.Engine),
		Timeout: a.cfg.Worker.JobTimeout,
	}, a.log.Entry)

	return worker.NewPool(a.queue, job, worker.Config{
		Concurrency: a.cfg.Worker.Concurrency,
		MaxRetries:  a.cfg.Worker.MaxRetries,
		RetryDelay:  a.cfg.Worker.RetryDelay,
		Engine:      a.cfg.ASR.Engine,
	}, a.log.Entry), nil
}
