package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/lumenart/backend/internal/accounts"
	"github.com/lumenart/backend/internal/artifacts"
	"github.com/lumenart/backend/internal/config"
	"github.com/lumenart/backend/internal/generation"
	"github.com/lumenart/backend/internal/ledger"
	"github.com/lumenart/backend/internal/maintenance"
	"github.com/lumenart/backend/internal/pricing"
	"github.com/lumenart/backend/internal/progress"
	"github.com/lumenart/backend/internal/queue"
	"github.com/lumenart/backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := store.Ensure(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Progress relay: Redis when configured, in-process otherwise.
	var relay progress.Relay
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Cannot reach Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		relay = progress.NewRedisRelay(rdb, logger)
		slog.Info("Using Redis progress relay", "addr", cfg.RedisAddr)
	} else {
		relay = progress.NewMemoryRelay()
		slog.Info("Using in-process progress relay")
	}

	// Artifact store: GCS when a bucket is configured, in-memory otherwise.
	var artifactStore artifacts.Store
	if cfg.GCSBucket != "" {
		gcs, err := artifacts.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			slog.Error("Failed to init GCS artifact store", "bucket", cfg.GCSBucket, "error", err)
			os.Exit(1)
		}
		artifactStore = gcs
		slog.Info("Using GCS artifact store", "bucket", cfg.GCSBucket)
	} else {
		artifactStore = artifacts.NewMemoryStore("http://" + cfg.HTTPAddr + "/artifacts")
		slog.Warn("Using in-memory artifact store (dev only)")
	}

	// Ledger & pricing
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, ledgerRepo, ledgerRepo)

	pricingRepo := pricing.NewRepository(pool)
	pricingSvc := pricing.NewService(pricingRepo)

	// Generation: enqueue func is set after the River client exists (breaks
	// the init cycle between workers, service and queue client).
	var insertMu sync.Mutex
	var insertFn generation.EnqueueTxFunc
	enqueueGenerate := func(ctx context.Context, tx pgx.Tx, args river.JobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	taskRepo := generation.NewRepository(pool)
	genSvc := generation.NewService(taskRepo, ledgerSvc, pricingSvc, enqueueGenerate, logger)

	synth := generation.NewHTTPSynthesizer(cfg.ModelEndpoint, cfg.ModelTimeout)

	workers := river.NewWorkers()
	river.AddWorker(workers, generation.NewGenerateWorker(genSvc, synth, artifactStore, relay, logger))
	river.AddWorker(workers, maintenance.NewFeedStatsWorker(pool, logger))

	feedJob, err := queue.Periodic(cfg.FeedRefreshCron, maintenance.FeedStatsArgs{})
	if err != nil {
		slog.Error("Invalid feed refresh schedule", "cron", cfg.FeedRefreshCron, "error", err)
		os.Exit(1)
	}

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.GenerationMaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{feedJob},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	queueClient := queue.NewClient(riverClient, cfg.GenerationMaxAttempts, logger)
	insertMu.Lock()
	insertFn = queueClient.EnqueueTx
	insertMu.Unlock()

	// HTTP surface
	accountRepo := accounts.NewRepository(pool)
	genHandler := generation.NewHandler(genSvc, relay, cfg.StreamHeartbeatInterval, logger)
	ledgerHandler := ledger.NewHandler(ledgerSvc, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, cfg, accountRepo, genHandler, ledgerHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
