package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/config"
	"mediaforge/internal/dispatcher"
	"mediaforge/internal/history"
	"mediaforge/internal/models"
	"mediaforge/internal/queue"
	"mediaforge/internal/storage"
)

type worker struct {
	cfg        *config.Config
	history    *history.Store
	queue      *queue.Queue
	storage    *storage.Storage
	dispatcher *dispatcher.Dispatcher
	logger     zerolog.Logger
	// pollTimeout bounds each blocking dequeue so shutdown is noticed.
	pollTimeout time.Duration
}

func newWorker(cfg *config.Config, h *history.Store, q *queue.Queue, s *storage.Storage, d *dispatcher.Dispatcher, logger zerolog.Logger) *worker {
	return &worker{
		cfg:         cfg,
		history:     h,
		queue:       q,
		storage:     s,
		dispatcher:  d,
		logger:      logger,
		pollTimeout: 5 * time.Second,
	}
}

func (w *worker) run(ctx context.Context, id int) {
	logger := workerLogger(w.logger, id)
	logger.Debug().Msg("started")

	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("context cancelled, stopping")
			return
		}

		jobID, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("dequeue error")
			time.Sleep(time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		w.processJob(ctx, logger.With().Str("job_id", jobID).Logger(), jobID)
	}
}

func (w *worker) processJob(ctx context.Context, logger zerolog.Logger, jobID string) {
	start := time.Now()

	claimed, err := w.history.ClaimJob(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("claim job")
		return
	}
	if !claimed {
		logger.Info().Msg("job is not pending, skipping")
		return
	}

	job, err := w.history.GetJob(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("fetch job")
		return
	}
	logger = logger.With().Str("operation", job.Operation).Logger()
	logger.Info().Str("file", job.OriginalName).Msg("job started")

	req, err := job.ParseRequest()
	if err != nil {
		w.finish(ctx, logger, job, models.Failed(models.KindInvalidRequest, "invalid stored request: "+err.Error()))
		return
	}

	tmpDir := filepath.Join(w.cfg.Worker.TmpDir, jobID)
	inDir := filepath.Join(tmpDir, "in")
	outDir := filepath.Join(tmpDir, "out")
	for _, dir := range []string{inDir, outDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			w.handleFailure(ctx, logger, job, models.Failed(models.KindIOFailure, "create job directory: "+err.Error()))
			return
		}
	}
	defer os.RemoveAll(tmpDir)

	inputPath := filepath.Join(inDir, stagedName(job.OriginalName))
	if err := w.storage.RestoreInput(jobID, inputPath); err != nil {
		w.handleFailure(ctx, logger, job, models.Failed(models.KindIOFailure, err.Error()))
		return
	}

	req.InputPath = inputPath
	req.InputPaths = nil
	req.OutputDir = outDir

	jobCtx, cancel := context.WithTimeout(logger.WithContext(ctx), w.cfg.TimeoutFor(job.Operation))
	o := w.dispatcher.Dispatch(jobCtx, req)
	cancel()

	if !o.Success {
		w.handleFailure(ctx, logger, job, o)
		return
	}

	outputSize, err := w.storage.SaveOutput(jobID, o.Output())
	if err != nil {
		w.handleFailure(ctx, logger, job, models.Failed(models.KindIOFailure, err.Error()))
		return
	}
	outputName := filepath.Base(o.Output())
	if err := w.history.CompleteJob(ctx, jobID, outputName, outputSize); err != nil {
		logger.Error().Err(err).Msg("update completed")
	}
	w.record(logger, job, o)

	logger.Info().
		Str("output", outputName).
		Int64("input_bytes", job.InputSize).
		Int64("output_bytes", outputSize).
		Dur("elapsed", time.Since(start).Round(time.Millisecond)).
		Msg("job done")
}

// retryable kinds may succeed on a second run; everything else is a property
// of the input or the installation.
func retryable(kind models.ErrorKind) bool {
	return kind == models.KindToolExecutionFailed || kind == models.KindIOFailure
}

func (w *worker) handleFailure(ctx context.Context, logger zerolog.Logger, job *models.Job, o models.JobOutcome) {
	if ctx.Err() != nil || !retryable(o.Kind()) {
		w.finish(ctx, logger, job, o)
		return
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	retryCount, err := w.history.RetryJob(bg, job.ID)
	if err != nil {
		logger.Error().Err(err).Msg("retry count increment failed")
		w.finish(ctx, logger, job, o)
		return
	}
	if retryCount > w.cfg.Worker.MaxRetries {
		logger.Warn().Int("attempts", retryCount).Msg("job permanently failed")
		w.finish(ctx, logger, job, o)
		return
	}

	logger.Warn().
		Str("kind", string(o.Kind())).
		Str("detail", o.Detail()).
		Int("attempt", retryCount).
		Int("max", w.cfg.Worker.MaxRetries).
		Msg("job failed, requeuing")
	if err := w.queue.Requeue(bg, job.ID); err != nil {
		logger.Error().Err(err).Msg("requeue failed")
		w.finish(ctx, logger, job, o)
	}
}

// finish marks a job failed for good and records the outcome.
func (w *worker) finish(ctx context.Context, logger zerolog.Logger, job *models.Job, o models.JobOutcome) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	detail := o.Detail()
	if o.Kind() == models.KindNoImprovement {
		logger.Info().Msg("input already optimal, nothing stored")
	} else {
		logger.Error().Str("kind", string(o.Kind())).Str("detail", detail).Msg("job failed")
	}
	if err := w.history.FailJob(bg, job.ID, o.Kind(), detail); err != nil {
		logger.Error().Err(err).Msg("mark job failed")
	}
	w.record(logger, job, o)
}

func (w *worker) record(logger zerolog.Logger, job *models.Job, o models.JobOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Paths inside the job directory mean nothing once it is removed.
	if o.OutputPath != nil {
		name := filepath.Base(*o.OutputPath)
		o.OutputPath = &name
	}
	_, err := w.history.Record(ctx, models.HistoryEntry{
		JobID:     job.ID,
		Source:    history.SourceWorker,
		Operation: job.Operation,
		InputPath: job.OriginalName,
		Outcome:   o,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("record history")
	}
}

// stagedName keeps the uploaded extension, which classification depends on,
// and drops any directory parts.
func stagedName(original string) string {
	name := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "input.bin"
	}
	return name
}
