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

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-msu/pkg/msu"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// NoDeviceDelay is the pause after no candidate port or no device was
	// found.
	NoDeviceDelay = 2 * time.Second
	// ErrorDelay is the pause after a failed tick.
	ErrorDelay = 1 * time.Second
)

// FrameSource renders the next full display frame as row-major RGB565.
type FrameSource interface {
	Frame(ctx context.Context) ([]uint16, error)
}

// Settings are the live config values read by the daemon every tick.
type Settings interface {
	RefreshInterval() time.Duration
	FlipVertical() bool
	Ports() []string
	VendorID() string
}

// Notifier receives daemon events. It must not block.
type Notifier func(models.Notification)

// Daemon drives the display: it discovers a device while disconnected and
// streams frames to it while connected.
type Daemon struct {
	transport *msu.Transport
	commands  *msu.Commands
	discovery *msu.Discovery
	frames    FrameSource
	settings  Settings
	lister    helpers.PortLister
	notify    Notifier
	clock     clockwork.Clock

	status   models.DaemonStatus
	statusMu syncutil.RWMutex
	// flipped is the orientation currently applied on the device.
	flipped bool
}

// DaemonOption configures a Daemon built by NewDaemon.
type DaemonOption func(*Daemon)

// WithClock replaces the real clock used for backoff and frame pacing.
func WithClock(c clockwork.Clock) DaemonOption {
	return func(d *Daemon) {
		d.clock = c
	}
}

// WithNotifier sets the callback for connect, disconnect and status events.
func WithNotifier(n Notifier) DaemonOption {
	return func(d *Daemon) {
		d.notify = n
	}
}

// WithPortLister overrides how candidate serial ports are enumerated.
func WithPortLister(l helpers.PortLister) DaemonOption {
	return func(d *Daemon) {
		d.lister = l
	}
}

// NewDaemon creates a disconnected daemon that drives t. Without options it
// uses the real clock, the default serial port lister and a no-op notifier.
func NewDaemon(t *msu.Transport, settings Settings, frames FrameSource, opts ...DaemonOption) *Daemon {
	commands := msu.NewCommands(t)
	d := &Daemon{
		transport: t,
		commands:  commands,
		frames:    frames,
		settings:  settings,
		lister:    helpers.DefaultPortLister,
		notify:    func(models.Notification) {},
		clock:     clockwork.NewRealClock(),
		status:    models.DaemonStatus{State: msu.StateDisconnected.String()},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.discovery = msu.NewDiscovery(t, commands, settings.FlipVertical)
	return d
}

// Run loops until ctx is cancelled. Faults inside a tick, including panics,
// are logged and followed by ErrorDelay; they never end the loop.
func (d *Daemon) Run(ctx context.Context) error {
	log.Info().Msg("display daemon started")
	defer func() {
		d.transport.Disconnect()
		d.markDisconnected()
		log.Info().Msg("display daemon stopped")
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := d.safeTick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error().Err(err).Msg("display tick failed")
			if d.sleep(ctx, ErrorDelay) != nil {
				return nil
			}
		}
	}
}

func (d *Daemon) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("panic in display tick")
			err = fmt.Errorf("panic in display tick: %v", r)
		}
	}()
	return d.Tick(ctx)
}

// Tick runs one iteration of the state machine.
func (d *Daemon) Tick(ctx context.Context) error {
	if d.transport.Connected() {
		return d.tickConnected(ctx)
	}
	d.markDisconnected()
	return d.tickDisconnected(ctx)
}

func (d *Daemon) tickDisconnected(ctx context.Context) error {
	ports, err := d.candidates()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list serial ports")
	}
	if len(ports) == 0 {
		log.Debug().Msg("no candidate serial ports")
		return d.sleep(ctx, NoDeviceDelay)
	}

	log.Debug().Strs("ports", ports).Msg("searching for display")
	dev, err := d.discovery.Discover(ctx, ports)
	switch {
	case err == nil:
		d.markConnected(dev)
		return nil
	case msu.IsNoDevice(err):
		log.Info().Msg("no display found, check the connection")
		return d.sleep(ctx, NoDeviceDelay)
	case ctx.Err() != nil:
		return fmt.Errorf("discovery interrupted: %w", ctx.Err())
	default:
		log.Warn().Err(err).Msg("display failed to initialise")
		return d.sleep(ctx, NoDeviceDelay)
	}
}

func (d *Daemon) tickConnected(ctx context.Context) error {
	start := d.clock.Now()

	if want := d.settings.FlipVertical(); want != d.flipped {
		if err := d.commands.SetOrientation(want); err != nil {
			log.Warn().Err(err).Msg("failed to apply orientation change")
			return nil
		}
		log.Info().Bool("flipped", want).Msg("display orientation changed")
		d.flipped = want
	}

	err := d.commands.PrepareWriteRegion(0, 0, msu.DisplayWidth, msu.DisplayHeight)
	if err != nil {
		if errors.Is(err, msu.ErrInvalidResponse) {
			log.Debug().Err(err).Msg("write region rejected, ending tick")
			return nil
		}
		return fmt.Errorf("preparing write region: %w", err)
	}

	if err := d.commands.SetColors(msu.ColorWhite, msu.ColorBlack); err != nil {
		return fmt.Errorf("setting colors: %w", err)
	}

	pixels, err := d.frames.Frame(ctx)
	if err != nil {
		return fmt.Errorf("rendering frame: %w", err)
	}

	if err := d.commands.SendFrame(msu.EncodeFrame(pixels)); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}

	d.frameSent()

	return d.sleep(ctx, remaining(d.settings.RefreshInterval(), d.clock.Since(start)))
}

// remaining is the part of interval not already used, never negative.
func remaining(interval, elapsed time.Duration) time.Duration {
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

func (d *Daemon) candidates() ([]string, error) {
	if ports := d.settings.Ports(); len(ports) > 0 {
		return ports, nil
	}
	ports, err := helpers.ListSerialPorts(d.lister, d.settings.VendorID())
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return ports, nil
}

func (d *Daemon) sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-d.clock.After(dur):
		return nil
	}
}

// Status returns a snapshot safe to read from any goroutine.
func (d *Daemon) Status() models.DaemonStatus {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	s := d.status
	if s.Device != nil {
		dev := *s.Device
		s.Device = &dev
	}
	return s
}

func (d *Daemon) markConnected(dev msu.Device) {
	d.flipped = dev.Flipped

	d.statusMu.Lock()
	d.status.State = msu.StateConnected.String()
	d.status.Device = &dev
	d.statusMu.Unlock()

	log.Info().
		Str("port", dev.Port).
		Stringer("version", dev.Version).
		Int("calibration", dev.Calibration).
		Msg("display connected")
	d.emit(models.NotificationConnected)
}

func (d *Daemon) markDisconnected() {
	d.statusMu.Lock()
	wasConnected := d.status.Device != nil
	d.status.State = msu.StateDisconnected.String()
	d.status.Device = nil
	d.statusMu.Unlock()

	if wasConnected {
		log.Info().Msg("display lost")
		d.emit(models.NotificationLost)
	}
}

func (d *Daemon) frameSent() {
	d.statusMu.Lock()
	d.status.FramesSent++
	d.status.LastFrame = d.clock.Now()
	d.statusMu.Unlock()
	d.emit(models.NotificationStatus)
}

func (d *Daemon) emit(method string) {
	d.notify(models.Notification{
		Method: method,
		Params: models.StatusResponse{DaemonStatus: d.Status()},
	})
}
