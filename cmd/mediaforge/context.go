package main

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"mediaforge/internal/codec"
	"mediaforge/internal/config"
	"mediaforge/internal/dispatcher"
	"mediaforge/internal/history"
	"mediaforge/internal/joberror"
	"mediaforge/internal/logging"
	"mediaforge/internal/processor"
)

type commandContext struct {
	configFlag *string
	outputDir  *string
	jsonOutput *bool
	jobs       *int
	codec      codec.Codec

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     zerolog.Logger
}

func newCommandContext(configFlag, outputDir *string, jsonOutput *bool, jobs *int, imageCodec codec.Codec) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		outputDir:  outputDir,
		jsonOutput: jsonOutput,
		jobs:       jobs,
		codec:      imageCodec,
		logger:     zerolog.Nop(),
	}
}

func (c *commandContext) ensureConfig(logOut io.Writer) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logging.New(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Out:    logOut,
		})
	})
	return c.config, c.configErr
}

func (c *commandContext) dispatcher() *dispatcher.Dispatcher {
	tools := c.config.ResolveToolPaths()
	return dispatcher.New(dispatcher.Options{
		Tools:           tools,
		Codec:           c.codec,
		Documents:       processor.NewSoffice(tools.Soffice, ""),
		BitratePrecheck: c.config.Slim.BitratePrecheck,
		Logger:          c.logger,
	})
}

// openHistory never fails the command; the job result matters more than its
// record.
func (c *commandContext) openHistory(ctx context.Context) *history.Store {
	store, err := history.Open(ctx, history.Options{
		Driver:          c.config.History.Driver,
		DSN:             c.config.History.DSN,
		ConnectAttempts: 1,
		Logger:          c.logger,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("history unavailable, outcomes will not be recorded")
		return nil
	}
	return store
}

func (c *commandContext) outputDirectory() string {
	if c.outputDir == nil {
		return ""
	}
	return strings.TrimSpace(*c.outputDir)
}

func (c *commandContext) wantJSON() bool {
	return c.jsonOutput != nil && *c.jsonOutput
}

func (c *commandContext) jobLimit() int {
	if c.jobs != nil && *c.jobs > 0 {
		return *c.jobs
	}
	if c.config != nil && c.config.Worker.Concurrency > 0 {
		return c.config.Worker.Concurrency
	}
	return 1
}

func (c *commandContext) locale() language.Tag {
	return joberror.MatchLocale(c.config.Locale.Default)
}

func (c *commandContext) timeout(op string) time.Duration {
	return c.config.TimeoutFor(op)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
