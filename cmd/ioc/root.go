package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ioc-platform/ioc/internal/config"
)

// newRootCmd builds the command tree. A fresh tree per call keeps flag state
// out of package globals.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "ioc",
		Short: "Intelligent Operating Centre dashboard",
		Long: `Intelligent Operating Centre dashboard.

Serves the operations dashboard, the JSON API and the rail control
simulator, and provides the setup and migration tasks that prepare
its database.

Example:
  ioc setup --config ioc.yml
  ioc serve --config ioc.yml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to ioc.yml config file")

	load := func() (*config.Config, error) { return loadConfig(configPath) }

	root.AddCommand(
		newServeCmd(load),
		newSetupCmd(load),
		newMigrateCmd(load),
		newTokenCmd(load),
		newVersionCmd(),
	)
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrConfigFileNotFound) {
			return nil, fmt.Errorf("%w\n\nCopy the example config to get started:\n  cp ioc.example.yml %s", err, path)
		}
		return nil, fmt.Errorf("loading config (%s): %w", path, err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs the default slog logger. When a log file is
// configured, output goes to stderr and to a rotating file. The returned
// closer releases the file.
func setupLogging(cfg *config.Config, stderr io.Writer) io.Closer {
	out := stderr
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
		}
		out = io.MultiWriter(stderr, rotator)
		closer = rotator
	}
	slog.SetDefault(slog.New(newLogHandler(cfg.LogFormat, parseLevel(cfg.LogLevel), out)))
	return closer
}

func newLogHandler(format string, level slog.Level, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
