package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/reelmatch/reelmatch/internal/api"
	"github.com/reelmatch/reelmatch/internal/auth"
	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/db"
	"github.com/reelmatch/reelmatch/internal/export"
	"github.com/reelmatch/reelmatch/internal/importer"
	"github.com/reelmatch/reelmatch/internal/jobs"
	"github.com/reelmatch/reelmatch/internal/platforms"
	"github.com/reelmatch/reelmatch/internal/repository"
	"github.com/reelmatch/reelmatch/internal/scheduler"
	"github.com/reelmatch/reelmatch/internal/scoring"
	"github.com/reelmatch/reelmatch/internal/version"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()
	slog := logger.Sugar()
	slog.Infow("reelmatch starting", "version", version.Version, "env", cfg.Env)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		slog.Fatalw("database connection failed", "error", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Fatalw("migration failed", "error", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Fatalw("data dir unavailable", "dir", cfg.DataDir, "error", err)
	}

	view := scoring.NewView(database.DB, slog.Named("scoring"))
	if err := view.SyncCountries(context.Background()); err != nil {
		slog.Fatalw("country dictionary sync failed", "error", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer cache.Close()

	platformRepo := repository.NewPlatformRepository(database.DB)
	objectRepo := repository.NewObjectRepository(database.DB)
	importRepo := repository.NewImportRepository(database.DB)
	platformSvc := platforms.NewService(platformRepo, cache, slog.Named("platforms"))

	runner := &importer.TxRunner{DB: database, MaxRetries: cfg.ImportMaxRetries}
	imp := importer.New(runner, importRepo, platformSvc, cfg.DataDir, slog.Named("importer"))

	exporter := export.New(objectRepo, platformSvc, slog.Named("export"))

	authSvc, err := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		slog.Fatalw("auth init failed", "error", err)
	}

	queue := jobs.NewQueue(cfg.RedisAddr, slog.Named("jobs"))
	defer queue.Stop()

	server := api.NewServer(api.Deps{
		Config:     cfg,
		DB:         database,
		Platforms:  platformSvc,
		ObjectRepo: objectRepo,
		ImportRepo: importRepo,
		Importer:   imp,
		View:       view,
		Exporter:   exporter,
		Queue:      queue,
		Auth:       authSvc,
		Log:        slog.Named("api"),
	})

	jobs.RegisterHandlers(queue, imp, view, server.WSHub())
	if err := queue.Start(context.Background()); err != nil {
		slog.Fatalw("job queue start failed", "error", err)
	}

	sched := scheduler.New(queue, view, slog.Named("scheduler"))
	if err := sched.Start(cfg.RefreshCron); err != nil {
		slog.Fatalw("scheduler start failed", "error", err)
	}
	defer sched.Stop()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.Fatalw("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warnw("http shutdown", "error", err)
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Dev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
