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

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-msu/pkg/config"
	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/rs/zerolog/log"
)

const statusTimeout = 3 * time.Second

// ErrAPIDisabled is returned by status queries when api.listen is empty.
var ErrAPIDisabled = errors.New("status API is disabled in the config")

type Flags struct {
	Version   *bool
	Debug     *bool
	ListPorts *bool
	Status    *bool
	Daemon    *bool
}

// SetupFlags defines all common CLI flags between platforms.
func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Debug: flag.Bool(
			"debug",
			false,
			"enable debug logging regardless of the config",
		),
		ListPorts: flag.Bool(
			"list-ports",
			false,
			"list serial ports that may have a display attached",
		),
		Status: flag.Bool(
			"status",
			false,
			"print the status of the running service",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run in the foreground and also log to stderr",
		),
	}
}

// Pre runs flag parsing and actions any immediate flags that don't
// require environment setup. Add any custom flags before running this.
func (f *Flags) Pre(platformID string) {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("Zaparoo MSU v%s (%s)\n", config.AppVersion, platformID)
		os.Exit(0)
	}
}

// Post actions all remaining common flags that require the environment to be
// set up. Logging is allowed.
func (f *Flags) Post(cfg *config.Instance) {
	switch {
	case *f.ListPorts:
		if err := ListPorts(os.Stdout, helpers.DefaultPortLister, cfg.VendorID()); err != nil {
			log.Error().Err(err).Msg("error listing ports")
			_, _ = fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	case *f.Status:
		ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
		err := PrintStatus(ctx, os.Stdout, http.DefaultClient, cfg.APIListen())
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("error fetching status")
			_, _ = fmt.Fprintf(os.Stderr, "Error fetching status: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
}

// Setup initializes logging, the user config and error reporting. Returns a
// user config object.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, platformID string, debug bool, writers []io.Writer) *config.Instance {
	err := helpers.InitLogging(helpers.LogDir(), debug, writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(nil, helpers.ConfigDir(), defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if debug {
		cfg.SetDebugLogging(true)
	} else {
		helpers.SetLogLevel(cfg.DebugLogging())
	}

	if err := telemetry.Init(cfg.ErrorReporting(), telemetry.Options{
		DeviceID:   cfg.DeviceID(),
		AppVersion: config.AppVersion,
		Platform:   platformID,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg
}

// ListPorts writes one line per serial port matching vendorID.
func ListPorts(w io.Writer, lister helpers.PortLister, vendorID string) error {
	ports, err := helpers.ListSerialPorts(lister, vendorID)
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	if len(ports) == 0 {
		_, _ = fmt.Fprintf(w, "No serial ports found with vendor ID %s\n", vendorID)
		return nil
	}

	for _, p := range ports {
		if usb := helpers.USBPortPath(p); usb != "" {
			_, _ = fmt.Fprintf(w, "%s (usb %s)\n", p, usb)
			continue
		}
		_, _ = fmt.Fprintln(w, p)
	}
	return nil
}

// FetchStatus queries the status endpoint of a service listening on listen.
func FetchStatus(ctx context.Context, client *http.Client, listen string) (models.StatusResponse, error) {
	var status models.StatusResponse
	if listen == "" {
		return status, ErrAPIDisabled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+listen+"/api/status", http.NoBody)
	if err != nil {
		return status, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return status, fmt.Errorf("service not reachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("unexpected status response: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}

// IsServiceRunning reports whether another instance answers on the
// configured API address.
func IsServiceRunning(ctx context.Context, client *http.Client, cfg *config.Instance) bool {
	_, err := FetchStatus(ctx, client, cfg.APIListen())
	return err == nil
}

// PrintStatus writes a human readable summary of the running service.
func PrintStatus(ctx context.Context, w io.Writer, client *http.Client, listen string) error {
	status, err := FetchStatus(ctx, client, listen)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Display: %s\n", status.State)
	if dev := status.Device; dev != nil {
		_, _ = fmt.Fprintf(w, "Port: %s\n", dev.Port)
		_, _ = fmt.Fprintf(w, "Firmware: %s\n", dev.Version)
		_, _ = fmt.Fprintf(w, "Calibration: %d\n", dev.Calibration)
	}
	_, _ = fmt.Fprintf(w, "Frames sent: %d\n", status.FramesSent)
	if !status.LastFrame.IsZero() {
		_, _ = fmt.Fprintf(w, "Last frame: %s\n", status.LastFrame.Format(time.RFC3339))
	}

	if r := status.Readings; r != nil {
		_, _ = fmt.Fprintf(w, "CPU: %d%%\n", r.CPUPercent)
		_, _ = fmt.Fprintf(w, "RAM: %d%% (%s)\n", r.MemPercent, metrics.FormatBytes(r.MemUsed))
		_, _ = fmt.Fprintf(w, "Disk: %d%% (%s)\n", r.DiskPercent, metrics.FormatBytes(r.DiskUsed))
		_, _ = fmt.Fprintf(w, "Temperature: %s\n", r.TemperatureText())
	}
	return nil
}
