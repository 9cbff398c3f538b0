package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"interview-stt-go/internal/api"
	"interview-stt-go/internal/config"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), true, false, false)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume the task queue and transcribe interviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), false, true, false)
	},
}

var standaloneCmd = &cobra.Command{
	Use:   "standalone",
	Short: "Serve the API and run workers in one process on an in-memory queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), true, true, true)
	},
}

func init() {
	rootCmd.AddCommand(apiCmd, workerCmd, standaloneCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serve(parent context.Context, withAPI, withWorkers, inMemory bool) error {
	ctx, stop := signalContext(parent)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if inMemory {
		cfg.Queue.Backend = config.QueueMemory
	}
	a, err := newAppWith(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)
	if withWorkers {
		pool, err := a.pool()
		if err != nil {
			return err
		}
		g.Go(func() error { return pool.Run(gctx) })
	}
	if withAPI {
		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewServer(a.store, a.queue, a.log).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	a.log.Info("shutdown complete")
	return err
}
