package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mediadesk/internal/config"
	"mediadesk/internal/coordinator"
	"mediadesk/internal/engine"
	"mediadesk/internal/logging"
	"mediadesk/internal/media"
	"mediadesk/internal/modelcache"
	"mediadesk/internal/protocol"
	"mediadesk/internal/sink"
	"mediadesk/internal/transcription"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil {
			if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
				cfg.Logging.Level = level
				if err := cfg.Validate(); err != nil {
					c.configErr = err
					return
				}
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// app is the in-process engine stack shared by the job commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *modelcache.Catalog
	index   *modelcache.Index
	fetcher *modelcache.Fetcher
	sink    *sink.LocalSink
	coord   *coordinator.Coordinator
}

// openApp wires the model cache, both engine factories, and the coordinator.
// Engines are spawned lazily, so commands that only touch the model cache pay
// nothing for them.
func (c *commandContext) openApp(ctx context.Context, observe func(engine.Kind, protocol.Response)) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	index, err := modelcache.OpenIndex(ctx, cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("open model index: %w", err)
	}
	catalog := modelcache.NewCatalog(cfg.Transcription.CatalogBaseURL)
	fetcher := modelcache.NewFetcher(catalog, index, cfg.Paths.ModelDir, cfg.DownloadTimeoutDuration(), logger)
	out := sink.NewLocalSink(cfg.Paths.OutputDir, logger)

	mediaFactory := func() engine.Executor {
		return media.NewEngine(media.LoadFFmpeg(cfg.Media.FFmpegBinary, cfg.Paths.WorkDir), cfg.MaxInputBytes(), logger)
	}
	transcriptionFactory := func() engine.Executor {
		builder := transcription.NewWhisperCPPBuilder(fetcher, cfg.Transcription.WhisperBinary, cfg.Paths.WorkDir, logger)
		return transcription.NewEngine(builder, catalog, cfg.Transcription.DefaultModel, logger)
	}

	coord := coordinator.New(coordinator.Options{
		Media:                  mediaFactory,
		Transcription:          transcriptionFactory,
		Sink:                   out,
		InferenceTick:          cfg.InferenceTick(),
		TerminateMediaAfterJob: cfg.Media.TerminateAfterJob,
		Observe:                observe,
		Logger:                 logger,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		index:   index,
		fetcher: fetcher,
		sink:    out,
		coord:   coord,
	}, nil
}

func (a *app) Close() error {
	coordErr := a.coord.Close()
	if err := a.index.Close(); err != nil {
		return err
	}
	return coordErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
