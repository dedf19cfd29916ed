package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rplview/internal/config"
)

// cli holds state shared by every subcommand
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "rplview",
		Short:         "Live force-directed view of a routing tree",
		Long:          `rplview discovers a routing tree with traceroute or reads it from a topology file, lays it out with a spring simulation and serves the live view over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: search "+config.EnvConfigPath+", ./"+config.ConfigFileName+", XDG dirs)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log level: debug, info, warn, error")

	root.AddCommand(
		c.serveCommand(),
		c.simulateCommand(),
		c.configCommand(),
	)
	return root
}

// setup loads configuration and builds the logger
func (c *cli) setup() error {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if c.configPath != "" {
		cfg, path, err = config.LoadFromPath(c.configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger
	if path != "" {
		logger.Debug("loaded config", zap.String("path", path))
	}
	return nil
}

// newLogger builds a zap logger from the log section
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapConfig.Build()
}
