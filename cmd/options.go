package cmd

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/helmcode/tenderctl/pkg/api"
	"github.com/helmcode/tenderctl/pkg/config"
	"github.com/helmcode/tenderctl/pkg/formatter"
	"github.com/helmcode/tenderctl/pkg/observability"
)

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	APIURL     string
	Output     string
	LogLevel   string
	Timeout    time.Duration
}

// Bind registers the persistent flags on root.
func (o *GlobalOptions) Bind(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&o.ConfigPath, "config", "", "Path to config file (default ~/.tenderctl/config.yaml)")
	flags.StringVar(&o.APIURL, "api-url", config.DefaultAPIURL, "Analysis backend URL")
	flags.StringVarP(&o.Output, "output", "o", "human", "Output format (human, json, yaml)")
	flags.StringVar(&o.LogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.DurationVar(&o.Timeout, "timeout", 30*time.Second, "Timeout of API requests")
}

// app is everything a command needs once flags and config are resolved.
type app struct {
	cfg      *config.Config
	format   formatter.Format
	client   *api.Client
	observer observability.Observer
	logger   *slog.Logger
	// out receives results, status receives progress decorations. They
	// differ for structured output so stdout stays machine readable.
	out    io.Writer
	status io.Writer
}

func (o *GlobalOptions) resolve(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = o.APIURL
	}
	if flags.Changed("output") {
		cfg.Output = o.Output
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("timeout") {
		cfg.HTTPTimeout = o.Timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := formatter.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	observer := observability.NewSlogObserver(logger)

	a := &app{
		cfg:      cfg,
		format:   format,
		client:   api.New(cfg.APIURL, api.WithTimeout(cfg.HTTPTimeout), api.WithObserver(observer)),
		observer: observer,
		logger:   logger,
		out:      cmd.OutOrStdout(),
		status:   cmd.OutOrStdout(),
	}
	if format != formatter.FormatHuman {
		a.status = cmd.ErrOrStderr()
	}
	return a, nil
}
