// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gao-feng/Quark/bridge"
	"github.com/gao-feng/Quark/lib/asyncio"
	"github.com/gao-feng/Quark/lib/config"
	"github.com/gao-feng/Quark/lib/fdtable"
	"github.com/gao-feng/Quark/lib/poller"
	"github.com/gao-feng/Quark/lib/readiness"
	"github.com/gao-feng/Quark/lib/trace"
	"github.com/gao-feng/Quark/workload"
)

// serve wires the bridge and runs it until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) (err error) {
	if err = cfg.EnsurePaths(); err != nil {
		return err
	}

	var recorder readiness.Recorder
	if cfg.Trace.Path != "" {
		writer, createErr := trace.Create(cfg.Trace.Path)
		if createErr != nil {
			return createErr
		}
		defer func() {
			if closeErr := writer.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
			logger.Info("trace written",
				"path", cfg.Trace.Path,
				"records", writer.Count(),
				"dropped", writer.Dropped(),
			)
		}()
		recorder = writer
	}

	table := fdtable.New()
	events, err := poller.New(table, logger)
	if err != nil {
		return err
	}
	defer events.Close()

	hub := readiness.NewHub(recorder)
	hostBridge := &bridge.Bridge{
		Host:            bridge.SystemHost(),
		Registry:        table,
		Async:           asyncio.NewRegistry(cfg.AsyncIO.TableSize),
		Watcher:         events,
		Signaler:        hub,
		ReadBufferSize:  cfg.Buffers.ReadSize,
		WriteBufferSize: cfg.Buffers.WriteSize,
		Logger:          logger,
	}

	server, err := hostBridge.Listen(cfg.Listen.Address, cfg.Listen.Backlog)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("closing listener: %w", closeErr))
		}
	}()

	if address, addressErr := server.Addr(); addressErr == nil {
		logger.Info("quark-netbridge running",
			"address", address.String(),
			"workers", cfg.Poller.Workers,
			"read_buffer", cfg.Buffers.ReadSize,
			"write_buffer", cfg.Buffers.WriteSize,
			"trace", cfg.Trace.Path,
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pollerDone := make(chan error, 1)
	go func() {
		pollerDone <- events.Run(runCtx, cfg.Poller.Workers)
	}()

	echo := &workload.Echo{Bridge: hostBridge, Hub: hub, Logger: logger}
	serveErr := echo.Serve(runCtx, server)

	// Serve returns on cancellation or a latched accept error; either
	// way the poller stops too.
	cancel()
	pollerErr := <-pollerDone

	logger.Info("quark-netbridge stopped",
		"connections", echo.Connections(),
		"bytes_echoed", echo.Echoed(),
	)
	return errors.Join(serveErr, pollerErr)
}
