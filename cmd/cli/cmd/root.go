package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mlbench/mlbench/internal/config"
	"github.com/mlbench/mlbench/internal/format"
)

var (
	configFile   string
	logLevel     string
	outputFormat string

	cfg    = config.Default()
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

// RootCmd is the top-level CLI command.
var RootCmd = &cobra.Command{
	Use:               "mlbench",
	Short:             "mlbench - run, store and compare machine learning benchmarks",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configFile, "config", envOrDefault("MLBENCH_CONFIG", ""), "Config file (default: mlbench.{yaml,toml,json} in . or ~/.config/mlbench)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	RootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format: table, json, yaml, csv")
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
		if err := loaded.Validate(); err != nil {
			return err
		}
	}
	cfg = loaded
	logger = newLogger(cmd.ErrOrStderr(), cfg.Level())
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func out() io.Writer {
	return RootCmd.OutOrStdout()
}

func getFormat() (format.OutputFormat, error) {
	return format.Parse(outputFormat)
}

// render writes v in the structured formats, or headers and rows as a table
// or CSV.
func render(v any, headers []string, rows [][]string) error {
	f, err := getFormat()
	if err != nil {
		return err
	}
	switch f {
	case format.FormatJSON:
		return format.JSONTo(out(), v)
	case format.FormatYAML:
		return format.YAMLTo(out(), v)
	case format.FormatCSV:
		return format.CSV(out(), headers, rows)
	default:
		format.TableTo(out(), headers, rows)
		return nil
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
