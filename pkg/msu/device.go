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

import "fmt"

// Version is the protocol version announced in the device greeting.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Device describes an authenticated and initialised display. It is only
// built once every handshake field is known.
type Device struct {
	Port        string  `json:"port"`
	Version     Version `json:"version"`
	Calibration int     `json:"calibration"`
	// Flipped is the orientation applied during initialisation.
	Flipped bool `json:"flipped"`
}

func (d Device) String() string {
	return fmt.Sprintf("%s (v%s)", d.Port, d.Version)
}
