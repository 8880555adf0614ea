// Zaparoo MSU
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo MSU.
//
// Zaparoo MSU is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo MSU is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo MSU.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-msu/pkg/cli"
	"github.com/ZaparooProject/zaparoo-msu/pkg/config"
	"github.com/ZaparooProject/zaparoo-msu/pkg/service"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const platformID = "linux"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre(platformID)

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg := cli.Setup(config.BaseDefaults, platformID, *flags.Debug, logWriters)
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			telemetry.Flush()
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	flags.Post(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	running := cli.IsServiceRunning(ctx, http.DefaultClient, cfg)
	cancel()
	if running {
		return errors.New("service is already running")
	}

	stopSvc, done, err := service.Start(cfg, service.Options{})
	if err != nil {
		log.Error().Msgf("error starting service: %s", err)
		return fmt.Errorf("error starting service: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		log.Info().Stringer("signal", sig).Msg("shutting down")
	case <-done:
		log.Warn().Msg("service exited unexpectedly")
	}

	err = stopSvc()
	if err != nil {
		log.Error().Msgf("error stopping service: %s", err)
		return fmt.Errorf("error stopping service: %w", err)
	}

	return nil
}
