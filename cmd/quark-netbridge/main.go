// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/gao-feng/Quark/lib/config"
	"github.com/gao-feng/Quark/lib/process"
	"github.com/gao-feng/Quark/lib/version"
)

const binaryName = "quark-netbridge"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// options are the command-line settings layered over the config file.
type options struct {
	configPath string
	listen     string
	tracePath  string
	verbose    bool
}

func run(args []string, stdout io.Writer) error {
	if len(args) > 0 && args[0] == "--version" {
		version.Print(stdout, binaryName)
		return nil
	}
	if len(args) > 0 && args[0] == "trace" {
		return runTrace(args[1:], stdout)
	}

	var opts options
	flagSet := pflag.NewFlagSet(binaryName, pflag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVarP(&opts.listen, "listen", "l", "", "host TCP address to listen on, overriding listen.address")
	flagSet.StringVar(&opts.tracePath, "trace", "", "write a readiness trace to this file, overriding trace.path")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "enable per-connection debug logging")
	flagSet.Usage = func() {
		fmt.Fprintf(stdout, "%s - host socket bridge with an echo guest\n\nUSAGE\n    %s [flags]\n    %s trace <file>\n\nFLAGS\n", binaryName, binaryName, binaryName)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q", flagSet.Arg(0))
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// loadConfig resolves the config file (flag, then QUARK_CONFIG, then
// defaults), applies flag overrides, and validates the result.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.listen != "" {
		cfg.Listen.Address = opts.listen
	}
	if opts.tracePath != "" {
		cfg.Trace.Path = opts.tracePath
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the log section. Without an
// explicit format, a terminal gets text and anything else (pipes, CI,
// journald) gets json.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	handlerOptions := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == "" {
		format = "json"
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			format = "text"
		}
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOptions)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOptions)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
