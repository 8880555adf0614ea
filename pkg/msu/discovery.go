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

package msu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Discovery finds, authenticates and initialises a single device.
type Discovery struct {
	transport  *Transport
	commands   *Commands
	flipped    func() bool
	retryDelay time.Duration
}

// NewDiscovery returns a discovery bound to t. flipped is read after
// authentication to set the initial orientation.
func NewDiscovery(t *Transport, c *Commands, flipped func() bool) *Discovery {
	if flipped == nil {
		flipped = func() bool { return false }
	}
	return &Discovery{
		transport:  t,
		commands:   c,
		flipped:    flipped,
		retryDelay: OpenRetryDelay,
	}
}

// Discover tries each candidate port in order and returns the first device
// that authenticates and initialises. ErrNoDevice means no candidate
// answered correctly, which is a normal outcome.
func (d *Discovery) Discover(ctx context.Context, ports []string) (Device, error) {
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return Device{}, fmt.Errorf("discovery cancelled: %w", err)
		}

		version, ok := d.authenticate(ctx, port)
		if !ok {
			continue
		}

		dev, err := d.initialize(port, version)
		if err != nil {
			d.transport.Disconnect()
			return Device{}, err
		}

		if !d.transport.SetState(StateConnected) {
			return Device{}, fmt.Errorf("%w: port closed during initialization", ErrNotOpen)
		}

		log.Info().
			Str("port", dev.Port).
			Stringer("version", dev.Version).
			Int("calibration", dev.Calibration).
			Msg("device connected")
		return dev, nil
	}

	return Device{}, ErrNoDevice
}

// authenticate opens port, waits for the greeting and runs the echo
// challenge. On failure the port is closed.
func (d *Discovery) authenticate(ctx context.Context, port string) (Version, bool) {
	if err := d.transport.Open(port); err != nil {
		log.Warn().Err(err).Str("port", port).Msg("failed to open port, it may be in use")
		d.transport.Disconnect()
		sleepCtx(ctx, d.retryDelay)
		return Version{}, false
	}

	greeting, err := d.transport.ReadAvailable()
	if err != nil {
		log.Debug().Err(err).Str("port", port).Msg("no greeting from port")
		d.transport.Disconnect()
		return Version{}, false
	}

	for n := 0; n+len(IdentityMarker)+2 <= len(greeting); n++ {
		version, ok := parseGreeting(greeting[n:])
		if !ok {
			continue
		}

		recv, err := d.transport.Exchange(IdentityChallenge, true, len(IdentityChallenge))
		if err == nil && bytes.HasSuffix(recv, IdentityChallenge) {
			return version, true
		}

		log.Debug().
			Err(err).
			Str("port", port).
			Hex("response", recv).
			Msg("identity challenge failed")
		if !d.transport.IsOpen() {
			break
		}
	}

	log.Info().Str("port", port).Msg("device verification failed")
	d.transport.Disconnect()
	return Version{}, false
}

func (d *Discovery) initialize(port string, version Version) (Device, error) {
	flipped := d.flipped()
	if err := d.commands.SetOrientation(flipped); err != nil {
		return Device{}, fmt.Errorf("failed to initialize %s: %w", port, err)
	}

	sum := 0
	for range CalibrationSamples {
		v, err := d.commands.ReadAnalogChannel(CalibrationChannel)
		if err != nil {
			return Device{}, fmt.Errorf("failed to calibrate %s: %w", port, err)
		}
		sum += int(v)
	}

	return Device{
		Port:        port,
		Version:     version,
		Calibration: sum/CalibrationSamples - CalibrationOffset,
		Flipped:     flipped,
	}, nil
}

// parseGreeting matches IdentityMarker followed by two ASCII digits at the
// start of b.
func parseGreeting(b []byte) (Version, bool) {
	if len(b) < len(IdentityMarker)+2 || !bytes.HasPrefix(b, IdentityMarker) {
		return Version{}, false
	}
	major, minor := b[len(IdentityMarker)], b[len(IdentityMarker)+1]
	if !isDigit(major) || !isDigit(minor) {
		return Version{}, false
	}
	return Version{Major: int(major - '0'), Minor: int(minor - '0')}, true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// IsNoDevice reports whether err means discovery simply found nothing.
func IsNoDevice(err error) bool {
	return errors.Is(err, ErrNoDevice)
}
