// Package dispatcher is the single entry point for every media job. Each
// operation classifies its input, resolves a profile, runs one tool and
// normalizes the result. Entry points never return an error; every failure is
// folded into the returned JobOutcome.
package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/codec"
	"mediaforge/internal/config"
	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
	"mediaforge/internal/naming"
	"mediaforge/internal/outcome"
	"mediaforge/internal/processor"
)

type Options struct {
	Tools     config.ToolPaths
	Codec     codec.Codec
	Documents processor.DocumentConverter
	// BitratePrecheck skips video and audio encodes whose source is already
	// at or below the tier threshold.
	BitratePrecheck bool
	Logger          zerolog.Logger
}

type Dispatcher struct {
	tools    config.ToolPaths
	codec    codec.Codec
	docs     processor.DocumentConverter
	precheck bool
	logger   zerolog.Logger
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		tools:    opts.Tools,
		codec:    opts.Codec,
		docs:     opts.Documents,
		precheck: opts.BitratePrecheck,
		logger:   opts.Logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Tools() config.ToolPaths {
	return d.tools
}

// log prefers a logger carried by ctx so callers can attach job fields.
func (d *Dispatcher) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &d.logger
}

type job struct {
	op        string
	input     string
	output    string
	slimming  bool
	inputSize *int64
	started   time.Time
}

// produce runs fn against a hidden temporary path next to the final output and
// renames it into place only when the outcome is a success.
func (d *Dispatcher) produce(ctx context.Context, j job, fn func(tmp string) error) models.JobOutcome {
	dir := filepath.Dir(j.output)
	if err := naming.EnsureDir(dir); err != nil {
		return d.report(ctx, j, outcome.Fail(joberror.IO("create output directory", err)), err)
	}

	tmp := naming.TempPath(dir, filepath.Ext(j.output))
	defer os.Remove(tmp)

	d.log(ctx).Debug().
		Str("op", j.op).
		Str("input", j.input).
		Str("output", j.output).
		Msg("running tool")

	err := fn(tmp)
	o := outcome.Normalize(outcome.Input{
		Slimming:   j.slimming,
		Err:        err,
		OutputPath: tmp,
		InputSize:  j.inputSize,
	})
	if o.Success {
		if renameErr := os.Rename(tmp, j.output); renameErr != nil {
			err = renameErr
			o = outcome.Fail(joberror.IO("finalize output", renameErr))
		} else {
			out := j.output
			o.OutputPath = &out
		}
	}
	return d.report(ctx, j, o, err)
}

func (d *Dispatcher) reject(ctx context.Context, op, input string, err error) models.JobOutcome {
	return d.report(ctx, job{op: op, input: input, started: time.Now()}, outcome.Fail(err), err)
}

func (d *Dispatcher) report(ctx context.Context, j job, o models.JobOutcome, err error) models.JobOutcome {
	l := d.log(ctx)

	var jerr *joberror.Error
	if errors.As(err, &jerr) && jerr.Command != "" {
		l.Debug().Str("op", j.op).Str("command", jerr.Command).Msg("tool command failed")
	}

	elapsed := time.Since(j.started)
	if o.Success {
		ev := l.Info().
			Str("op", j.op).
			Str("input", j.input).
			Str("output", o.Output()).
			Dur("elapsed", elapsed)
		if o.CompressionRatioPercent != nil {
			ev = ev.Float64("ratio_percent", *o.CompressionRatioPercent)
		}
		ev.Msg("job finished")
		return o
	}

	ev := l.Warn()
	if o.Kind() == models.KindNoImprovement {
		ev = l.Info()
	}
	ev.Str("op", j.op).
		Str("input", j.input).
		Str("kind", string(o.Kind())).
		Str("detail", o.Detail()).
		Dur("elapsed", elapsed).
		Msg("job failed")
	return o
}
