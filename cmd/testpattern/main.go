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

// Command testpattern cycles solid colors on a display without starting the
// full service. It is used to check wiring and the frame encoder on real
// hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/msu"
	"github.com/ZaparooProject/zaparoo-msu/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

var palette = []uint16{
	msu.ColorRed,
	msu.ColorGreen,
	msu.ColorBlue,
	msu.ColorWhite,
	msu.ColorYellow,
	msu.ColorCyan,
	msu.ColorMagenta,
	msu.ColorBlack,
}

type colorCycle struct {
	n atomic.Uint64
}

func (c *colorCycle) Frame(context.Context) ([]uint16, error) {
	color := palette[c.n.Add(1)%uint64(len(palette))]
	px := make([]uint16, msu.DisplayWidth*msu.DisplayHeight)
	for i := range px {
		px[i] = color
	}
	return px, nil
}

type settings struct {
	vendorID string
	ports    []string
	interval time.Duration
	flip     bool
}

func (s settings) RefreshInterval() time.Duration { return s.interval }
func (s settings) FlipVertical() bool             { return s.flip }
func (s settings) Ports() []string                { return s.ports }
func (s settings) VendorID() string               { return s.vendorID }

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.String("port", "", "comma separated serial ports, default is USB discovery")
	vendorID := flag.String("vid", msu.DefaultVendorID, "USB vendor ID used for discovery")
	interval := flag.Duration("interval", time.Second, "time each color is shown")
	flip := flag.Bool("flip", false, "flip the display vertically")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	s := settings{
		interval: *interval,
		flip:     *flip,
		vendorID: *vendorID,
	}
	if *port != "" {
		s.ports = strings.Split(*port, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	d := service.NewDaemon(msu.NewTransport(msu.DefaultPortOpener), s, &colorCycle{})
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("test pattern stopped: %w", err)
	}
	return nil
}
