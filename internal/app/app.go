// Package app initializes and holds long-lived services shared by CLI
// commands, acting as a small dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/api"
	"github.com/JakeFAU/chunkgen/internal/availability"
	"github.com/JakeFAU/chunkgen/internal/backend/memory"
	"github.com/JakeFAU/chunkgen/internal/config"
	"github.com/JakeFAU/chunkgen/internal/grid"
	"github.com/JakeFAU/chunkgen/internal/logging"
	"github.com/JakeFAU/chunkgen/internal/metrics"
	"github.com/JakeFAU/chunkgen/internal/progress"
	"github.com/JakeFAU/chunkgen/internal/progress/sinks"
	"github.com/JakeFAU/chunkgen/internal/report"
	"github.com/JakeFAU/chunkgen/internal/scheduler"
	memstore "github.com/JakeFAU/chunkgen/internal/storage/memory"
	"github.com/JakeFAU/chunkgen/internal/storage/postgres"
	"github.com/JakeFAU/chunkgen/internal/store"
	"github.com/JakeFAU/chunkgen/internal/telemetry"
)

// App holds the shared services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	worlds   *memory.Registry
	runs     store.RunRepository
	pgStore  *postgres.RunStore
	redis    *redis.Client
	hub      *progress.Hub
	sched    *scheduler.Metrics
	server   *api.Server
	tracer   *sdktrace.TracerProvider
}

// New builds every service described by cfg. It fails fast when a
// configured dependency cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	if a.sched, err = scheduler.NewMetrics(a.registry); err != nil {
		return nil, fmt.Errorf("scheduler metrics: %w", err)
	}

	if err := a.openRuns(ctx); err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.closeStores()
		return nil, err
	}

	if cfg.Tracing.Enabled {
		if a.tracer, err = telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName); err != nil {
			a.closeStores()
			return nil, err
		}
	}

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	hubCfg := cfg.Progress
	hubCfg.Logger = logger.Named("progress")
	a.hub = progress.NewHub(hubCfg,
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(a.runs, logger.Named("runs")),
	)

	a.worlds = memory.NewRegistry(cfg.Worlds.Names, memory.Config{
		Latency: cfg.Worlds.Latency,
		Limit:   cfg.Worlds.Limit,
		Fail:    memory.FailRandomly(cfg.Worlds.FailRate, cfg.Worlds.Seed),
	}, logger.Named("world"))

	a.server = api.NewServer(api.Options{
		Runs:        a.runs,
		Gatherer:    a.registry,
		HTTPMetrics: metrics.NewHTTP(a.registry),
		Logger:      logger.Named("api"),
	})

	logger.Info("application services initialized",
		zap.Strings("worlds", a.worlds.Names()),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("redis", a.redis != nil),
	)
	return a, nil
}

func (a *App) openRuns(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "", "memory":
		a.runs = memstore.NewRunStore()
	case "postgres":
		pg, err := postgres.NewRunStore(ctx, a.cfg.Store.Postgres)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		a.pgStore = pg
		a.runs = pg
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if !a.cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("connect redis %s: %w", a.cfg.Redis.Addr, err)
	}
	a.redis = client
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runs returns the run history repository.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// Worlds returns the worlds available to generate.
func (a *App) Worlds() *memory.Registry {
	return a.worlds
}

// Registry returns the Prometheus registry all collectors are attached to.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Serve runs the status server on cfg.Server.Listen until ctx is done. It
// returns immediately when no listen address is configured.
func (a *App) Serve(ctx context.Context) error {
	if a.cfg.Server.Listen == "" {
		return nil
	}
	return a.server.ListenAndServe(ctx, a.cfg.Server.Listen)
}

// GenerateRequest names the world and inclusive cell range to populate.
type GenerateRequest struct {
	World          string
	X1, Z1, X2, Z2 int
	// Concurrency overrides cfg.Scheduler.Concurrency when positive.
	Concurrency int
}

// StartMessage is delivered once the world is found, before any progress.
const StartMessage = "Generating..."

// UnknownWorldMessage is delivered when a request names no registered world.
func UnknownWorldMessage(name string) string {
	return fmt.Sprintf("No world with the folder name %q found.", name)
}

// Generate populates the requested range, delivering progress text to out.
// An unknown world is reported without the start line.
// Failures after the reporter starts have already been delivered to out when
// they are returned.
func (a *App) Generate(ctx context.Context, req GenerateRequest, out report.Sink) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "chunkgen.generate", trace.WithAttributes(
		attribute.String("world", req.World),
		attribute.IntSlice("range", []int{req.X1, req.Z1, req.X2, req.Z2}),
		attribute.Int("concurrency", req.Concurrency),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if out == nil {
		out = report.NewLogSink(a.logger)
	}
	world, err := a.worlds.Lookup(req.World)
	if err != nil {
		if errors.Is(err, memory.ErrUnknownWorld) {
			out.Deliver(UnknownWorldMessage(req.World))
		}
		return err
	}
	out.Deliver(StartMessage)

	preds := []scheduler.Predicate{availability.Context(ctx), world.Predicate()}
	if a.redis != nil {
		flag := availability.NewRedisFlag(a.redis,
			availability.FlagKey(a.cfg.Redis.KeyPrefix, world.Name()),
			availability.RedisFlagConfig{
				Refresh: a.cfg.Redis.Refresh,
				Timeout: a.cfg.Redis.Timeout,
				Logger:  a.logger,
			})
		if err := flag.Mark(ctx); err != nil {
			out.Deliver(err.Error())
			return err
		}
		preds = append(preds, flag.Predicate())
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = a.cfg.Scheduler.Concurrency
	}
	logger := logging.ForWorld(a.logger, world.Name())
	sched := scheduler.New(world,
		scheduler.WithPredicate(availability.All(preds...)),
		scheduler.WithLogger(logger.Named("scheduler")),
		scheduler.WithMetrics(a.sched),
	)
	src := report.Defer(func() (*scheduler.Run, error) {
		rng, err := grid.NewRange(req.X1, req.Z1, req.X2, req.Z2)
		if err != nil {
			return nil, err
		}
		return sched.ScheduleRange(rng, concurrency)
	})

	reporter := report.New(report.Config{
		Region:      world.Name(),
		Threshold:   a.cfg.Report.Threshold,
		DoneMessage: a.cfg.Report.DoneMessage,
	}, out,
		report.WithEmitter(a.hub),
		report.WithLogger(logger.Named("report")),
	)
	return reporter.Run(ctx, src)
}

// Close flushes progress sinks and releases every service.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.worlds != nil {
		a.worlds.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	a.closeStores()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeStores() {
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}
