package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Stockpipe/internal/api"
	"github.com/shaiso/Stockpipe/internal/config"
	"github.com/shaiso/Stockpipe/internal/mq"
	"github.com/shaiso/Stockpipe/internal/repo"
	"github.com/shaiso/Stockpipe/internal/scheduler"
)

func newServeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, queue consumer and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	name := a.pipeline.Name

	// Runs, прерванные рестартом, не продолжаются
	if a.runRepo != nil {
		n, err := a.runRepo.MarkInterrupted(ctx, name)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Warn("marked interrupted runs as failed", "count", n)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Scheduler
	if cfg.SchedulerEnabled && a.pipeline.Schedule.CronExpr != "" {
		schedCfg := scheduler.Config{
			Pipeline:     name,
			Schedule:     a.pipeline.Schedule,
			Submitter:    a.coord,
			TickInterval: cfg.TickInterval,
			Logger:       logger,
		}
		if a.history != nil {
			conn, err := a.history.Acquire(ctx)
			if err != nil {
				return err
			}
			defer conn.Release()

			schedCfg.Slots = repo.NewScheduleRepo(a.history)
			schedCfg.Leader = repo.NewAdvisoryLock(conn, lockKey(name))
		}

		sched, err := scheduler.New(schedCfg)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return ignoreCanceled(sched.Run(gctx))
		})
	}

	// Очередь runs.trigger
	if a.mqConn != nil {
		consumer := mq.NewConsumer(a.mqConn, logger, mq.ConsumerConfig{
			Queue:   mq.QueueRunsTrigger,
			Handler: a.coord.HandleTrigger,
		})
		g.Go(func() error {
			return ignoreCanceled(consumer.Start(gctx))
		})
	}

	// HTTP: API + /metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	apiCfg := api.Config{Runner: a.coord, Logger: logger}
	if a.runRepo != nil {
		apiCfg.History = a.runRepo
	}
	api.NewHandler(apiCfg).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}

		a.coord.Stop()
		return nil
	})

	logger.Info("stockpipe started",
		"pipeline", name,
		"schedule", a.pipeline.Schedule.CronExpr,
		"stages", a.pipeline.Size(),
		"scheduler", cfg.SchedulerEnabled,
		"queue", a.mqConn != nil,
		"history", a.runRepo != nil,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stockpipe stopped")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
