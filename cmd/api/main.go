package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"mediaforge/internal/config"
	"mediaforge/internal/history"
	"mediaforge/internal/logging"
	"mediaforge/internal/queue"
	"mediaforge/internal/storage"
)

type app struct {
	cfg      *config.Config
	history  *history.Store
	queue    *queue.Queue
	storage  *storage.Storage
	validate *validator.Validate
	logger   zerolog.Logger
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fallback := logging.New(logging.Options{})
		fallback.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Component(logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}), "api")
	logger.Info().
		Int64("max_file_mb", cfg.API.MaxFileSize/(1024*1024)).
		Int("retention_hours", cfg.API.RetentionHours).
		Msg("MediaForge API starting")

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := history.Open(ctx, history.Options{
		Driver: cfg.History.Driver,
		DSN:    cfg.History.DSN,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("history store error")
	}
	defer store.Close()

	q, err := queue.New(ctx, queue.Options{
		Addr:     cfg.Queue.RedisAddr,
		PoolSize: cfg.Queue.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis error")
	}
	defer q.Close()

	files, err := storage.New(cfg.API.StoragePath, masterKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage error")
	}
	logger.Info().Str("path", cfg.API.StoragePath).Msg("storage ready")

	a := newApp(cfg, store, q, files, logger)
	go a.startCleanup(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           a.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info().Int("port", cfg.API.Port).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	logger.Info().Msg("shutting down API server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("API server stopped")
}

func newApp(cfg *config.Config, h *history.Store, q *queue.Queue, s *storage.Storage, logger zerolog.Logger) *app {
	return &app{
		cfg:      cfg,
		history:  h,
		queue:    q,
		storage:  s,
		validate: validator.New(),
		logger:   logger,
	}
}

func (a *app) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(a.localeMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/formats", a.handleFormats)
		r.Get("/stats", a.handleStats)

		r.Post("/jobs", a.handleCreateJob)
		r.Get("/jobs/{id}", a.handleGetJob)
		r.Get("/jobs/{id}/download", a.handleDownload)
		r.Delete("/jobs/{id}", a.handleDeleteJob)
	})

	return r
}

func (a *app) startCleanup(ctx context.Context) {
	interval := time.Duration(a.cfg.API.CleanupIntervalMin) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.Component(a.logger, "cleanup")
	logger.Info().Dur("interval", interval).Msg("cleanup scheduled")

	a.runCleanup(logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("cleanup stopped")
			return
		case <-ticker.C:
			a.runCleanup(logger)
		}
	}
}

func (a *app) runCleanup(logger zerolog.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ids, err := a.history.DeleteExpired(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("expired jobs error")
		return 0
	}
	for _, id := range ids {
		if err := a.storage.DeleteJobFiles(id); err != nil {
			logger.Warn().Err(err).Str("job_id", id).Msg("remove job files")
		}
	}
	if len(ids) > 0 {
		logger.Info().Int("jobs", len(ids)).Msg("removed expired jobs and files")
	}
	return len(ids)
}
