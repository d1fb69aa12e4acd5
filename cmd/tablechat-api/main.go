package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tablechat/tablechat/internal/api"
	"github.com/tablechat/tablechat/internal/assistant"
	"github.com/tablechat/tablechat/internal/auth"
	"github.com/tablechat/tablechat/internal/catalog"
	catalogpostgres "github.com/tablechat/tablechat/internal/catalog/postgres"
	"github.com/tablechat/tablechat/internal/config"
	"github.com/tablechat/tablechat/internal/ephemeral"
	"github.com/tablechat/tablechat/internal/federation"
	"github.com/tablechat/tablechat/internal/maintenance"
	"github.com/tablechat/tablechat/internal/nl2sql"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/query"
	duckdbengine "github.com/tablechat/tablechat/internal/query/duckdb"
	sqliteengine "github.com/tablechat/tablechat/internal/query/sqlite"
	"github.com/tablechat/tablechat/internal/storage"
	s3store "github.com/tablechat/tablechat/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tablechat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	storeDB, err := catalogpostgres.Open(context.Background(), cfg.Store)
	if err != nil {
		logger.Error("failed to open store db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = storeDB.Close() }()

	store := catalogpostgres.NewStore(storeDB, cfg.Store.Schema)
	registryOpts := []ephemeral.Option{
		ephemeral.WithLogger(logger),
		ephemeral.WithObserver(observability.SetEphemeralTables),
	}
	if cfg.Registry.SweepInterval > 0 {
		registryOpts = append(registryOpts, ephemeral.WithEvictionTracking())
	}
	registry := ephemeral.NewRegistry(cfg.Registry.TTL, registryOpts...)
	executor := federation.NewExecutor(registry, store, newEngine(cfg.Federation.Engine), federation.Options{
		Rewriter:      federation.NewRewriter(cfg.Federation.RewriteMode),
		Timeout:       cfg.Federation.QueryTimeout,
		MaxConcurrent: int64(cfg.Federation.MaxConcurrent),
		Logger:        logger,
	})

	completions, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:           cfg.AI.BaseURL,
		APIKey:            cfg.AI.APIKey,
		Model:             cfg.AI.Model,
		Temperature:       cfg.AI.Temperature,
		Timeout:           cfg.AI.Timeout,
		RequestsPerSecond: cfg.AI.RequestsPerSecond,
		Burst:             cfg.AI.Burst,
	})
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	serviceDeps := assistant.Dependencies{
		Store:       store,
		Metadata:    newMetadataStore(cfg, storeDB, logger),
		Uploads:     registry,
		Executor:    executor,
		Translator:  nl2sql.NewTranslator(completions),
		Describer:   nl2sql.NewDescriber(completions, logger),
		Summarizer:  nl2sql.NewSummarizer(completions),
		Logger:      logger,
		SampleRows:  cfg.Federation.SampleRows,
		PreviewRows: cfg.Federation.PreviewRows,
	}
	sweeper := &maintenance.Service{
		Registry: registry,
		Config:   maintenance.Config{SweepInterval: cfg.Registry.SweepInterval},
		Logger:   logger,
	}
	if cfg.ObjectStore.ArchiveUploads {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archive := storage.NewArchive(objectStore)
		serviceDeps.Archive = archive
		sweeper.Archive = archive
	}

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: assistant.NewService(serviceDeps),
		Readiness: api.CombineReadinessChecks(
			api.CheckStoreDSN(cfg),
			store.HealthCheck,
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("engine", cfg.Federation.Engine),
			slog.String("metadata_backend", cfg.Metadata.Backend),
			slog.Bool("archive_uploads", cfg.ObjectStore.ArchiveUploads),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	if cfg.Registry.SweepInterval > 0 {
		go func() {
			_ = sweeper.Run(ctx)
		}()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func newEngine(name string) query.Engine {
	if name == config.EngineSQLite {
		return sqliteengine.NewEngine()
	}
	return duckdbengine.NewEngine()
}

func newMetadataStore(cfg config.Config, db *sql.DB, logger *slog.Logger) catalog.MetadataStore {
	switch cfg.Metadata.Backend {
	case config.MetadataMemory:
		return catalog.NewMemoryMetadataStore()
	case config.MetadataPostgres:
		return catalogpostgres.NewMetadataRepository(db)
	default:
		return catalog.NewFallbackMetadataStore(catalogpostgres.NewMetadataRepository(db), logger)
	}
}
