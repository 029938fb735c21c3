package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/classify"
	"github.com/propbase/propbase-engine/pkg/config"
	"github.com/propbase/propbase-engine/pkg/database"
	"github.com/propbase/propbase-engine/pkg/extract"
	"github.com/propbase/propbase-engine/pkg/handlers"
	"github.com/propbase/propbase-engine/pkg/logging"
	"github.com/propbase/propbase-engine/pkg/middleware"
	"github.com/propbase/propbase-engine/pkg/normalize"
	"github.com/propbase/propbase-engine/pkg/repositories"
	"github.com/propbase/propbase-engine/pkg/services"
	"github.com/propbase/propbase-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load .env for local development; production relies on real env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("redis_host", cfg.Redis.Host))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	projectRepo := repositories.NewProjectRepository(db)
	unitRepo := repositories.NewUnitRepository(db)
	versionRepo := repositories.NewPriceVersionRepository(db)
	historyRepo := repositories.NewPriceHistoryRepository(db)
	associationRepo := repositories.NewAssociationRepository(db)

	// Session store: Redis when configured, in-memory otherwise.
	sessionStore, err := buildSessionStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	go services.RunSweeper(ctx, sessionStore, cfg.Parser.SweepInterval())

	queue := workqueue.New(logger, workqueue.WithMaxWorkers(cfg.Parser.WorkerCount))

	// Services
	extractor := extract.NewService(logger)
	classifier := classify.New(associationRepo)
	learner := services.NewLearnerService(associationRepo, logger)
	reconciler := services.NewReconcilerService(db, versionRepo, projectRepo, logger)
	parser := services.NewParserService(extractor, classifier, sessionStore, learner, reconciler, projectRepo, versionRepo, queue, normalize.RateTable(cfg.Parser.ExchangeRatesUSD), cfg.Parser.SyncParseRowLimit, logger)
	prices := services.NewPriceService(versionRepo, projectRepo, historyRepo, logger)
	projects := services.NewProjectService(projectRepo, unitRepo, logger)

	// HTTP surface
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projects, logger).RegisterRoutes(mux)
	handlers.NewParserHandler(parser, learner, cfg.Parser.MaxUploadBytes, logger).RegisterRoutes(mux)
	handlers.NewPricesHandler(prices, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("Starting propbase-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	// Let queued ingestion runs finish before closing the pool.
	queue.Wait()
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func buildSessionStore(cfg *config.Config, logger *zap.Logger) (services.SessionStore, error) {
	client, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return services.NewMemorySessionStore(cfg.Parser.SessionTTL(), logger), nil
	}
	logger.Info("Using Redis session store", zap.String("host", cfg.Redis.Host))
	return services.NewRedisSessionStore(client, cfg.Parser.SessionTTL()), nil
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
