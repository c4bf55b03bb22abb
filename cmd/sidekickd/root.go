package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sidekick/internal/config"
)

// rootOptions carries the persistent flags shared by all subcommands.
type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	if v := os.Getenv("SIDEKICK_CONFIG"); v != "" {
		opts.configPath = v
	}
	root := &cobra.Command{
		Use:           "sidekickd",
		Short:         "Local completion daemon backed by llama.cpp",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", opts.configPath, "Config file (.yaml, .json or .toml; defaults SIDEKICK_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Force JSON logs even on a terminal")

	root.AddCommand(
		newServeCmd(opts),
		newCompleteCmd(opts),
		newProbeCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file when one is given and applies the
// persistent flag overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger: human-readable on a terminal, JSON
// otherwise.
func (o *rootOptions) newLogger(level string, out *os.File) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = out
	if !o.logJSON && isatty.IsTerminal(out.Fd()) {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", "sidekickd").Logger(), nil
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
