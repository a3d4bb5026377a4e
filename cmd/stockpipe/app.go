package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Stockpipe/internal/config"
	"github.com/shaiso/Stockpipe/internal/engine"
	"github.com/shaiso/Stockpipe/internal/mq"
	"github.com/shaiso/Stockpipe/internal/notify"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/orchestrator"
	"github.com/shaiso/Stockpipe/internal/remotejob"
	"github.com/shaiso/Stockpipe/internal/repo"
	"github.com/shaiso/Stockpipe/internal/sensor"
	"github.com/shaiso/Stockpipe/internal/steps"
	"github.com/shaiso/Stockpipe/internal/telemetry"
	"github.com/shaiso/Stockpipe/internal/warehouse"
)

// app — собранные зависимости демона.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pipeline *engine.Pipeline
	coord    *orchestrator.Coordinator

	// history и dw совпадают, если DB_URL и DW_URL указывают на одну базу
	history *pgxpool.Pool
	dw      *pgxpool.Pool
	runRepo *repo.RunRepo

	mqConn    *mq.Connection
	publisher *mq.Publisher
}

// buildPipeline загружает и проверяет спецификацию pipeline.
func buildPipeline(cfg *config.Config, registry *steps.Registry) (*engine.Pipeline, error) {
	spec, err := config.LoadPipeline(cfg.PipelineFile)
	if err != nil {
		return nil, err
	}
	if err := engine.Validate(spec, registry.Known()); err != nil {
		return nil, err
	}
	return engine.BuildPipeline(spec)
}

// newApp подключает внешние системы и собирает Coordinator.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Object store
	minioClient, err := objectstore.NewMinioClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	store := objectstore.NewMinioStore(minioClient, cfg.Storage.Region)

	// Warehouse
	a.dw, err = repo.NewPool(ctx, cfg.WarehouseDSN())
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}
	logger.Info("warehouse connected")

	// История runs
	if cfg.DBURL != "" {
		if cfg.DBURL == cfg.WarehouseDSN() {
			a.history = a.dw
		} else if a.history, err = repo.NewPool(ctx, cfg.DBURL); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := repo.Migrate(ctx, a.history); err != nil {
			return nil, err
		}
		a.runRepo = repo.NewRunRepo(a.history)
		logger.Info("run history enabled")
	}

	// RabbitMQ
	if cfg.RabbitMQURL != "" {
		a.mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		if err := mq.SetupTopology(ctx, a.mqConn); err != nil {
			return nil, err
		}
		a.publisher = mq.NewPublisher(a.mqConn, logger)
		logger.Info("rabbitmq connected")
	}

	registry := steps.NewStockMarketRegistry(steps.StockMarket{
		Quotes: steps.NewQuoteClient(steps.QuoteClientConfig{Headers: cfg.StockAPI.Headers()}),
		Store:  store,
		Job: remotejob.NewDockerJob(remotejob.DockerConfig{
			Bin:    cfg.Docker.Bin,
			Host:   cfg.Docker.Host,
			Logger: logger,
		}),
		Loader:  warehouse.NewPostgresLoader(a.dw, logger),
		Bucket:  cfg.Storage.Bucket,
		Symbol:  cfg.StockAPI.Symbol,
		Image:   cfg.Docker.Image,
		Network: cfg.Docker.Network,
		Table:   warehouse.Table{Schema: cfg.Warehouse.Schema, Name: cfg.Warehouse.Table},
		Logger:  logger,
	})

	a.pipeline, err = buildPipeline(cfg, registry)
	if err != nil {
		return nil, err
	}
	stages, err := registry.Bind(a.pipeline)
	if err != nil {
		return nil, err
	}

	polarity, err := sensor.ParsePolarity(cfg.StockAPI.ProbePolarity)
	if err != nil {
		return nil, err
	}

	coordCfg := orchestrator.Config{
		Pipeline: a.pipeline,
		Stages:   stages,
		Probe: sensor.NewHTTPProbe(sensor.HTTPProbeConfig{
			Host:     cfg.StockAPI.Host,
			Endpoint: cfg.StockAPI.Endpoint,
			Headers:  cfg.StockAPI.Headers(),
			Polarity: polarity,
		}),
		Notifier: a.notifier(),
		Metrics:  telemetry.NewMetrics(reg),
		Logger:   logger,
	}
	if a.runRepo != nil {
		coordCfg.RunStore = a.runRepo
	}

	a.coord, err = orchestrator.New(coordCfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) notifier() notify.Notifier {
	n := notify.Multi{notify.LogNotifier{Logger: a.logger}}
	if a.cfg.Slack.WebhookURL != "" {
		n = append(n, notify.NewSlackNotifier(notify.SlackConfig{
			WebhookURL: a.cfg.Slack.WebhookURL,
			Channel:    a.cfg.Slack.Channel,
		}))
	}
	if a.publisher != nil {
		n = append(n, notify.NewMQNotifier(a.publisher))
	}
	return n
}

// Close освобождает подключения.
func (a *app) Close() {
	if a.mqConn != nil {
		if err := a.mqConn.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", "error", err)
		}
	}
	if a.history != nil && a.history != a.dw {
		a.history.Close()
	}
	if a.dw != nil {
		a.dw.Close()
	}
}

// lockKey — ключ advisory lock планировщика для pipeline.
func lockKey(pipeline string) int64 {
	h := fnv.New64a()
	h.Write([]byte("stockpipe:scheduler:" + pipeline))
	return int64(h.Sum64())
}
