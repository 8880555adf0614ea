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
	"fmt"

	"github.com/rs/zerolog/log"
)

// OriginFrame builds the "set window origin" command.
func OriginFrame(x, y uint16) []byte {
	return pairFrame(SubSetOrigin, x, y)
}

// SizeFrame builds the "set window size" command.
func SizeFrame(w, h uint16) []byte {
	return pairFrame(SubSetSize, w, h)
}

// ColorsFrame builds the "set foreground/background colors" command.
func ColorsFrame(fg, bg uint16) []byte {
	return pairFrame(SubSetColors, fg, bg)
}

// LoadAddressFrame builds the command committing pending origin and size.
func LoadAddressFrame() []byte {
	return []byte{OpMultiWrite, SubControl, CtrlLoadAddress, 0, 0, 0}
}

// OrientationFrame builds the display orientation command.
func OrientationFrame(flipped bool) []byte {
	var s byte
	if flipped {
		s = 1
	}
	return []byte{OpMultiWrite, SubControl, CtrlOrientation, s, 0, 0}
}

// AnalogFrame builds the ADC read command for channel ch.
func AnalogFrame(ch byte) []byte {
	return []byte{OpReadAnalog, ch, 0, 0, 0, 0}
}

func pairFrame(sub byte, a, b uint16) []byte {
	return []byte{
		OpMultiWrite, sub,
		byte(a >> 8), byte(a),
		byte(b >> 8), byte(b),
	}
}

// Commands issues LCD and ADC commands over a Transport and validates the
// acknowledgements. Any validation failure drops the connection.
type Commands struct {
	transport *Transport
}

// NewCommands returns a command builder bound to t.
func NewCommands(t *Transport) *Commands {
	return &Commands{transport: t}
}

// SetWindowOrigin sends the window origin without waiting for a response.
func (c *Commands) SetWindowOrigin(x, y uint16) error {
	return c.send(OriginFrame(x, y))
}

// SetWindowSize sends the window size without waiting for a response.
func (c *Commands) SetWindowSize(w, h uint16) error {
	return c.send(SizeFrame(w, h))
}

// SetColors sets the active fill colors for subsequent page commands.
func (c *Commands) SetColors(fg, bg uint16) error {
	return c.send(ColorsFrame(fg, bg))
}

// PrepareWriteRegion addresses the rectangle that the next frame stream
// fills. Origin, size and load-address go out as one exchange and the
// device must acknowledge with the load-address opcode. Whatever arrives
// first is checked, so a truncated acknowledgement is rejected without
// waiting out the response timeout.
func (c *Commands) PrepareWriteRegion(x, y, w, h uint16) error {
	load := LoadAddressFrame()
	cmd := make([]byte, 0, 3*FrameSize)
	cmd = append(cmd, OriginFrame(x, y)...)
	cmd = append(cmd, SizeFrame(w, h)...)
	cmd = append(cmd, load...)

	recv, err := c.transport.Exchange(cmd, true, 0)
	if err != nil {
		return fmt.Errorf("failed to prepare write region: %w", err)
	}

	if len(recv) < 2 || !bytes.Equal(recv[:2], load[:2]) {
		return c.reject("load address", recv)
	}
	return nil
}

// SetOrientation sets normal (false) or vertically flipped (true) output.
func (c *Commands) SetOrientation(flipped bool) error {
	cmd := OrientationFrame(flipped)
	recv, err := c.transport.Exchange(cmd, true, FrameSize)
	if err != nil {
		return fmt.Errorf("failed to set orientation: %w", err)
	}

	if !validEcho(cmd, recv) {
		return c.reject("orientation", recv)
	}
	return nil
}

// ReadAnalogChannel returns the 16-bit reading of ADC channel ch.
func (c *Commands) ReadAnalogChannel(ch byte) (uint16, error) {
	cmd := AnalogFrame(ch)
	recv, err := c.transport.Exchange(cmd, true, FrameSize)
	if err != nil {
		return 0, fmt.Errorf("failed to read analog channel %d: %w", ch, err)
	}

	if !validEcho(cmd, recv) {
		return 0, c.reject("analog read", recv)
	}
	return uint16(recv[4])<<8 | uint16(recv[5]), nil
}

// SendFrame transmits an encoded frame stream. The device does not
// acknowledge frame data.
func (c *Commands) SendFrame(stream []byte) error {
	return c.send(stream)
}

func (c *Commands) send(cmd []byte) error {
	if _, err := c.transport.Exchange(cmd, false, 0); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

func (c *Commands) reject(name string, recv []byte) error {
	log.Warn().
		Str("command", name).
		Hex("response", recv).
		Msg("device rejected command, reconnecting")
	c.transport.Disconnect()
	return fmt.Errorf("%w: %s: % x", ErrInvalidResponse, name, recv)
}

// validEcho requires a full-length response whose first two bytes match cmd.
func validEcho(cmd, recv []byte) bool {
	return len(recv) > 5 && recv[0] == cmd[0] && recv[1] == cmd[1]
}
