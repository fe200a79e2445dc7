package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/socraticlabs/tutor-orchestrator/internal/activities"
	"github.com/socraticlabs/tutor-orchestrator/internal/agents"
	"github.com/socraticlabs/tutor-orchestrator/internal/config"
	"github.com/socraticlabs/tutor-orchestrator/internal/constants"
	"github.com/socraticlabs/tutor-orchestrator/internal/db"
	"github.com/socraticlabs/tutor-orchestrator/internal/embeddings"
	"github.com/socraticlabs/tutor-orchestrator/internal/httpapi"
	"github.com/socraticlabs/tutor-orchestrator/internal/llm"
	"github.com/socraticlabs/tutor-orchestrator/internal/session"
	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
	"github.com/socraticlabs/tutor-orchestrator/internal/tracing"
	"github.com/socraticlabs/tutor-orchestrator/internal/vectordb"
	"github.com/socraticlabs/tutor-orchestrator/internal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot reload for the debate policy knobs.
	watcher, err := config.NewWatcher(config.ConfigFilePath(), logger)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config hot reload unavailable", zap.Error(err))
	}

	shutdownTracing, err := tracing.Initialize(tracing.Config{
		Enabled:      cfg.Observability.OTLPEndpoint != "",
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Services.RedisAddr})
	defer rdb.Close()

	var database *sqlx.DB
	if cfg.Services.PostgresDSN != "" {
		database, err = sqlx.Connect("postgres", cfg.Services.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer database.Close()
	} else {
		logger.Warn("No postgres DSN configured, debate records will not be persisted")
	}

	streams := streaming.NewManager(cfg.Streaming.RingCapacity).WithRedisMirror(rdb)
	llmClient := llm.NewClient(llm.Config{BaseURL: cfg.Services.LLMBaseURL}, logger)
	embedder := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Services.EmbeddingBaseURL,
	}, embeddings.NewRedisCache(rdb), logger)
	search := vectordb.NewClient(vectordb.Config{
		Host:       cfg.Services.VectorHost,
		Port:       cfg.Services.VectorPort,
		Collection: cfg.Services.VectorCollection,
		TopK:       cfg.Retrieval.TopK,
	}, logger)
	sessions := session.NewManager(rdb, cfg.Session, logger)

	var recorder *db.Recorder
	if database != nil {
		recorder = db.NewRecorder(database, logger)
	}

	acts := activities.NewActivities(activities.Deps{
		LLM:      llmClient,
		Embedder: embedder,
		Search:   search,
		Executor: agents.NewExecutor(agents.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
		}, logger),
		Streams:  streams,
		Sessions: sessions,
		Recorder: recorder,
		Config:   cfg,
		Logger:   logger,
	})

	temporalClient, err := client.Dial(client.Options{
		HostPort: cfg.Services.TemporalHostPort,
	})
	if err != nil {
		return fmt.Errorf("temporal: %w", err)
	}
	defer temporalClient.Close()

	w := worker.New(temporalClient, constants.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.DebateWorkflow)
	registerActivities(w, acts)

	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()
	logger.Info("Worker started", zap.String("task_queue", constants.TaskQueue))

	// Metrics endpoint.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Public API: task submission, sessions, event streams, health.
	mux := http.NewServeMux()
	httpapi.NewTaskHandler(temporalClient, sessions, watcher.Current, logger).RegisterRoutes(mux)
	httpapi.NewSessionHandler(sessions, logger).RegisterRoutes(mux)
	httpapi.NewStreamingHandler(streams, logger).RegisterRoutes(mux)
	health := httpapi.NewHealthHandler()
	health.AddCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	if database != nil {
		health.AddCheck("postgres", func(ctx context.Context) error { return database.PingContext(ctx) })
	}
	health.RegisterRoutes(mux)

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Services.HTTPPort),
		Handler: mux,
	}
	go func() {
		logger.Info("API server listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
	return nil
}

// registerActivities binds the activity implementations to the names the
// workflow schedules them by.
func registerActivities(w worker.Worker, a *activities.Activities) {
	w.RegisterActivityWithOptions(a.ExecuteRetrieval, activity.RegisterOptions{Name: constants.ExecuteRetrievalActivity})
	w.RegisterActivityWithOptions(a.ExecuteStrategist, activity.RegisterOptions{Name: constants.ExecuteStrategistActivity})
	w.RegisterActivityWithOptions(a.ExecuteCritic, activity.RegisterOptions{Name: constants.ExecuteCriticActivity})
	w.RegisterActivityWithOptions(a.ExecuteModerator, activity.RegisterOptions{Name: constants.ExecuteModeratorActivity})
	w.RegisterActivityWithOptions(a.ExecuteSynthesis, activity.RegisterOptions{Name: constants.ExecuteSynthesisActivity})
	w.RegisterActivityWithOptions(a.ExecuteTutor, activity.RegisterOptions{Name: constants.ExecuteTutorActivity})
	w.RegisterActivityWithOptions(a.EmitTaskUpdate, activity.RegisterOptions{Name: constants.EmitTaskUpdateActivity})
	w.RegisterActivityWithOptions(a.UpdateSessionResult, activity.RegisterOptions{Name: constants.UpdateSessionResultActivity})
	w.RegisterActivityWithOptions(a.RecordDebate, activity.RegisterOptions{Name: constants.RecordDebateActivity})
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
