// Zaparoo Factory Test
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Factory Test.
//
// Zaparoo Factory Test is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Factory Test is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Factory Test.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ZaparooProject/factory-test/internal/telemetry"
	"github.com/ZaparooProject/factory-test/pkg/cli"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/helpers"
	"github.com/ZaparooProject/factory-test/pkg/service"
	"github.com/ZaparooProject/factory-test/pkg/service/daemon"
	"github.com/ZaparooProject/factory-test/pkg/ui/tui"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.CommandLine
	flags := cli.SetupFlags(fs)
	daemonMode := fs.Bool(
		"daemon",
		false,
		"run the station in the foreground with no UI",
	)

	if exit, err := flags.Pre(fs, os.Args[1:], os.Stdout); exit || err != nil {
		return err
	}

	var logWriters []io.Writer
	if *daemonMode {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg, err := cli.Setup(config.BaseDefaults, logWriters)
	if err != nil {
		return err
	}
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			telemetry.Flush()
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if exit, err := flags.Post(ctx, cfg, helpers.DataDir(), os.Stdout); exit || err != nil {
		return err
	}

	lock, err := daemon.Acquire(helpers.DataDir())
	if err != nil {
		return fmt.Errorf("error locking station: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("error releasing station lock")
		}
	}()

	svc, err := service.Start(cfg, service.Options{})
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping service")
		}
	}()

	if *daemonMode {
		log.Info().Msg("started in daemon mode")
		select {
		case <-ctx.Done():
		case <-svc.Done():
		}
		return nil
	}

	app := tui.New(tui.Options{
		Feed:    svc.Broker,
		Dialogs: svc.Dialogs,
		Theme:   cfg.DesktopMode(),
		LogPath: filepath.Join(helpers.LogDir(), config.LogFile),
	})
	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("error running UI")
		return fmt.Errorf("error running UI: %w", err)
	}
	return nil
}
