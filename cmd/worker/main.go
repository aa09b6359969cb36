package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"mediaforge/internal/codec/vips"
	"mediaforge/internal/config"
	"mediaforge/internal/dispatcher"
	"mediaforge/internal/history"
	"mediaforge/internal/logging"
	"mediaforge/internal/processor"
	"mediaforge/internal/queue"
	"mediaforge/internal/storage"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fallback := logging.New(logging.Options{})
		fallback.Fatal().Err(err).Msg("config error")
	}
	logger := logging.Component(logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}), "worker")
	logger.Info().Msg("MediaForge worker starting")

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}

	if err := os.MkdirAll(cfg.Worker.TmpDir, 0o700); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Worker.TmpDir).Msg("tmp directory error")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Worker.LockFile), 0o755); err != nil {
		logger.Fatal().Err(err).Msg("lock directory error")
	}
	lock := flock.New(cfg.Worker.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		logger.Fatal().Err(err).Msg("acquire lock")
	}
	if !ok {
		logger.Fatal().Str("lock", cfg.Worker.LockFile).Msg("another worker is already using this tmp dir")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn().Err(err).Msg("failed to release worker lock")
		}
	}()

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

	tools := cfg.ResolveToolPaths()
	w := newWorker(cfg, store, q, files, dispatcher.New(dispatcher.Options{
		Tools:           tools,
		Codec:           vips.New(),
		Documents:       processor.NewSoffice(tools.Soffice, ""),
		BitratePrecheck: cfg.Slim.BitratePrecheck,
		Logger:          logger,
	}), logger)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.run(ctx, id)
		}(i)
	}

	logger.Info().Int("goroutines", cfg.Worker.Concurrency).Msg("worker ready, listening on queue")

	<-done
	logger.Info().Msg("shutting down worker")
	cancel()

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info().Msg("all worker goroutines stopped")
	case <-time.After(2 * time.Minute):
		logger.Warn().Msg("shutdown timeout, some jobs may not have completed cleanly")
	}
}

func workerLogger(l zerolog.Logger, id int) zerolog.Logger {
	return l.With().Int("worker", id).Logger()
}
