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

package helpers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

// PortLister enumerates serial ports with their USB details.
type PortLister func() ([]*enumerator.PortDetails, error)

// DefaultPortLister uses the operating system's USB enumeration.
func DefaultPortLister() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}

// ListSerialPorts returns the USB serial ports whose vendor ID matches
// vendorID (hex, case-insensitive, optional 0x prefix), sorted by name.
func ListSerialPorts(lister PortLister, vendorID string) ([]string, error) {
	if lister == nil {
		lister = DefaultPortLister
	}

	ports, err := lister()
	if err != nil {
		return nil, err
	}

	want := normalizeUSBID(vendorID)
	devices := make([]string, 0, len(ports))
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		if normalizeUSBID(p.VID) != want {
			log.Debug().
				Str("port", p.Name).
				Str("vid", p.VID).
				Str("pid", p.PID).
				Msg("skipping serial port with foreign vendor id")
			continue
		}
		devices = append(devices, p.Name)
	}

	sort.Strings(devices)
	return devices, nil
}

func normalizeUSBID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}
