package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mediaforge/internal/dispatcher"
	"mediaforge/internal/history"
	"mediaforge/internal/models"
)

type jobFunc func(ctx context.Context, d *dispatcher.Dispatcher) models.JobOutcome

// batchJob is one dispatcher call. Input labels the job in output and history.
type batchJob struct {
	Op    string
	Input string
	Run   jobFunc
}

// perInput builds one job per input path.
func perInput(op string, inputs []string, fn func(ctx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome) []batchJob {
	jobs := make([]batchJob, 0, len(inputs))
	for _, input := range inputs {
		input := input
		jobs = append(jobs, batchJob{
			Op:    op,
			Input: input,
			Run: func(ctx context.Context, d *dispatcher.Dispatcher) models.JobOutcome {
				return fn(ctx, d, input)
			},
		})
	}
	return jobs
}

type jobResult struct {
	JobID     string            `json:"jobId"`
	Operation string            `json:"operation"`
	Input     string            `json:"input"`
	Outcome   models.JobOutcome `json:"outcome"`
}

// runJobs runs at most jobLimit jobs at a time. Results keep the job order.
func (c *commandContext) runJobs(cmd *cobra.Command, jobs []batchJob) error {
	ctx := cmd.Context()
	d := c.dispatcher()

	store := c.openHistory(ctx)
	if store != nil {
		defer store.Close()
	}

	results := make([]jobResult, len(jobs))
	sem := make(chan struct{}, c.jobLimit())
	var wg sync.WaitGroup
	for i, j := range jobs {
		i, j := i, j
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			jobID := uuid.New().String()
			logger := c.logger.With().Str("job_id", jobID).Logger()
			jobCtx, cancel := context.WithTimeout(logger.WithContext(ctx), c.timeout(j.Op))
			o := j.Run(jobCtx, d)
			cancel()

			results[i] = jobResult{JobID: jobID, Operation: j.Op, Input: j.Input, Outcome: o}
			c.record(store, results[i])
		}()
	}
	wg.Wait()

	if err := c.printResults(cmd, results); err != nil {
		return err
	}
	return failureError(results)
}

func (c *commandContext) record(store *history.Store, r jobResult) {
	if store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := store.Record(ctx, models.HistoryEntry{
		JobID:     r.JobID,
		Source:    history.SourceCLI,
		Operation: r.Operation,
		InputPath: r.Input,
		Outcome:   r.Outcome,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("job_id", r.JobID).Msg("record history")
	}
}

func (c *commandContext) printResults(cmd *cobra.Command, results []jobResult) error {
	if c.wantJSON() {
		return writeJSON(cmd, results)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(results, c.locale(), colorEnabled(cmd.OutOrStdout())))
	return nil
}

// failureError ignores NoImprovement: the input is left as it was, which is
// what the user wanted anyway.
func failureError(results []jobResult) error {
	failed := 0
	for _, r := range results {
		if !r.Outcome.Success && r.Outcome.Kind() != models.KindNoImprovement {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d jobs failed", failed, len(results))
}
