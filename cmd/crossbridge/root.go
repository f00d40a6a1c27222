package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"crossbridge/internal/config"
	"crossbridge/internal/engine"
	"crossbridge/internal/observability"
	"crossbridge/internal/paths"
	"crossbridge/internal/slogutil"
	"crossbridge/internal/version"
)

var (
	repoFlag      string
	verboseFlag   int
	quietFlag     bool
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "crossbridge",
	Short: "Map BDD steps and tests to the code they exercise",
	Long: `crossbridge keeps the facts adapters discover about test suites: which page
objects, methods and code paths each step touches, and which tests are impacted
when a code element changes.

State lives in .crossbridge/ under the repository root.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("crossbridge version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "Repository root (default: current directory)")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress log output")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format (human, json); overrides config")
}

func repoRoot() (string, error) {
	if repoFlag != "" {
		return filepath.Abs(repoFlag)
	}
	return os.Getwd()
}

// session is one command's engine plus the logging and metrics around it
type session struct {
	root    string
	cfg     *config.Config
	engine  *engine.Engine
	logger  *slog.Logger
	metrics *observability.Metrics
	logFile io.Closer
}

func loadConfig() (string, *config.Config, error) {
	root, err := repoRoot()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	root, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := buildLogger(cmd.ErrOrStderr(), root, cfg)
	if err != nil {
		return nil, err
	}
	s := &session{root: root, cfg: cfg, logger: logger, logFile: logFile}

	if cfg.Metrics.Enabled {
		m, err := observability.Setup()
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("set up metrics: %w", err)
		}
		s.metrics = m
	}

	e, err := engine.Open(cmd.Context(), cfg, root, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = e
	logger.Debug("Session opened", "version", version.Info(), "repo", root, "command", cmd.Name())
	return s, nil
}

func buildLogger(console io.Writer, root string, cfg *config.Config) (*slog.Logger, io.Closer, error) {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if verboseFlag > 0 || quietFlag {
		level = slogutil.LevelFromVerbosity(verboseFlag, quietFlag)
	}
	format := slogutil.Format(cfg.Logging.Format)
	if logFormatFlag != "" {
		format = slogutil.Format(logFormatFlag)
	}
	file := cfg.Logging.File
	if file != "" && !filepath.IsAbs(file) {
		file = filepath.Join(root, file)
	}
	return slogutil.Build(console, slogutil.Options{
		Format:     format,
		Level:      level,
		File:       file,
		FileLevel:  slog.LevelDebug,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
}

// Close closes the engine and, with metrics enabled, writes the textfile
func (s *session) Close() {
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Warn("Failed to close engine", "error", err)
		}
	}
	if s.metrics != nil {
		path := s.cfg.Metrics.Textfile
		if path == "" {
			path = filepath.Join(paths.StateDir(s.root), "metrics.prom")
		} else if !filepath.IsAbs(path) {
			path = filepath.Join(s.root, path)
		}
		if err := s.metrics.WriteTextfile(path); err != nil {
			s.logger.Warn("Failed to write metrics", "path", path, "error", err)
		}
		if err := s.metrics.Shutdown(context.Background()); err != nil {
			s.logger.Debug("Metrics shutdown", "error", err)
		}
	}
	if s.logFile != nil {
		s.logFile.Close()
	}
}
