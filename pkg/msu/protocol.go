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

import "time"

// Opcodes
const (
	// OpMultiWrite prefixes every structured LCD command.
	OpMultiWrite byte = 0x02
	// OpWritePair writes one packed pixel pair at a page-local index.
	OpWritePair byte = 0x04
	// OpReadAnalog reads an ADC channel.
	OpReadAnalog byte = 0x08
)

// Sub-opcodes following OpMultiWrite
const (
	SubSetOrigin  byte = 0x00
	SubSetSize    byte = 0x01
	SubSetColors  byte = 0x02
	SubControl    byte = 0x03
	SubFillPacked byte = 0x04
)

// Control selectors following SubControl
const (
	CtrlLoadAddress byte = 0x07
	CtrlPageFlush   byte = 0x08
	CtrlOrientation byte = 0x0A
)

// FrameSize is the length of every command frame on the wire.
const FrameSize = 6

// Display geometry
const (
	DisplayWidth  = 160
	DisplayHeight = 80
	// PageEntries is the number of 16-bit pixels compressed as one unit.
	PageEntries = 128
	// PagePairs is the number of packed pixel pairs in a page.
	PagePairs = PageEntries / 2
	// FillerColor pads a trailing partial page.
	FillerColor uint16 = 0xFFFF
)

// RGB565 colors
const (
	ColorBlack   uint16 = 0x0000
	ColorWhite   uint16 = 0xFFFF
	ColorRed     uint16 = 0xF800
	ColorGreen   uint16 = 0x07E0
	ColorBlue    uint16 = 0x001F
	ColorYellow  uint16 = 0xFFE0
	ColorCyan    uint16 = 0x07FF
	ColorMagenta uint16 = 0xF81F
	ColorOrange  uint16 = 0xFC00
	ColorGray0   uint16 = 0xEF7D
	ColorGray1   uint16 = 0x8410
	ColorGray2   uint16 = 0x4208
)

// Handshake
var (
	// IdentityMarker precedes two ASCII version digits in the device greeting.
	IdentityMarker = []byte{0x00, 'M', 'S', 'N'}
	// IdentityChallenge is echoed back verbatim by an authentic device.
	IdentityChallenge = []byte{0x00, 'M', 'S', 'N', 'C', 'N'}
)

// Calibration
const (
	// CalibrationChannel is the ADC channel sampled for the button baseline.
	CalibrationChannel byte = 9
	// CalibrationSamples is how many readings are averaged.
	CalibrationSamples = 3
	// CalibrationOffset is subtracted from the averaged reading.
	CalibrationOffset = 200
)

// Communication settings
const (
	BaudRate = 115200
	// DefaultVendorID is the WCH USB-serial bridge used by the module.
	DefaultVendorID = "1a86"
	// ResponseTimeout bounds a single exchange.
	ResponseTimeout = 5 * time.Second
	// PollInterval is the serial read timeout used for each poll.
	PollInterval = 100 * time.Millisecond
	// OpenRetryDelay is the pause after a port fails to open.
	OpenRetryDelay = 200 * time.Millisecond
)
