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

package testutils

import (
	"bytes"
	"errors"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
)

// Wire values as the firmware sees them. Kept independent of package msu so
// the simulator acts as an oracle for the encoder.
const (
	simFrameSize = 6
	simPagePairs = 64
)

var simChallenge = []byte{0x00, 'M', 'S', 'N', 'C', 'N'}

// SimulatedDevice models the display firmware behind a serial port. It
// answers the handshake, acknowledges control commands, replays the page
// commands into a pixel buffer and records every completed frame.
type SimulatedDevice struct {
	// Greeting is returned by the first reads after the port opens.
	Greeting []byte
	// ADC holds per-channel analog readings.
	ADC map[byte]uint16
	// Frames holds each fully received frame, row-major RGB565.
	Frames [][]uint16

	// Fault injection
	WrongEcho        bool
	RejectLoad       bool
	ShortLoadAck     bool
	RejectOrient     bool
	Silent           bool
	ShortADCResponse bool
	DisconnectAfter  int

	Orientation byte
	Foreground  uint16
	Background  uint16
	OriginX     uint16
	OriginY     uint16
	Width       uint16
	Height      uint16

	pending []byte
	page    [simPagePairs]uint32
	current []uint16
	writes  int
	mu      syncutil.Mutex
	closed  bool
	gone    bool
}

// NewSimulatedDevice returns a device that greets with protocol version 2.3.
func NewSimulatedDevice() *SimulatedDevice {
	greeting := []byte{0x00, 'M', 'S', 'N', '2', '3'}
	return &SimulatedDevice{
		Greeting: greeting,
		ADC:      map[byte]uint16{9: 1000},
		pending:  append([]byte(nil), greeting...),
	}
}

// Open simulates opening the port at path. The greeting is re-armed on
// every open.
func (d *SimulatedDevice) Open(string) (*SimulatedDevice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gone {
		return nil, errors.New("no such device")
	}
	d.closed = false
	d.pending = append([]byte(nil), d.Greeting...)
	return d, nil
}

// Unplug makes every following operation fail as if the cable was pulled.
func (d *SimulatedDevice) Unplug() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gone = true
}

// Replug reverses Unplug and clears any DisconnectAfter fault.
func (d *SimulatedDevice) Replug() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gone = false
	d.writes = 0
	d.DisconnectAfter = 0
}

// CurrentOrientation returns the last orientation the device accepted.
func (d *SimulatedDevice) CurrentOrientation() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Orientation
}

// Read returns queued responses.
func (d *SimulatedDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	if d.gone {
		d.mu.Unlock()
		return 0, errors.New("input/output error")
	}
	if d.closed {
		d.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if len(d.pending) == 0 {
		d.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	d.mu.Unlock()
	return n, nil
}

// Write parses complete command frames.
func (d *SimulatedDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.gone {
		return 0, errors.New("input/output error")
	}
	if d.closed {
		return 0, errors.New("port closed")
	}

	d.writes++
	if d.DisconnectAfter > 0 && d.writes > d.DisconnectAfter {
		d.gone = true
		return 0, errors.New("input/output error")
	}

	for i := 0; i+simFrameSize <= len(p); i += simFrameSize {
		d.handle(p[i : i+simFrameSize])
	}
	return len(p), nil
}

// Drain is a no-op.
func (*SimulatedDevice) Drain() error {
	return nil
}

// ResetInputBuffer drops unread responses.
func (d *SimulatedDevice) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
	return nil
}

// SetReadTimeout is accepted and ignored.
func (*SimulatedDevice) SetReadTimeout(time.Duration) error {
	return nil
}

// Close marks the port closed.
func (d *SimulatedDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// IsClosed reports whether Close was called since the last open.
func (d *SimulatedDevice) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// FrameCount returns how many complete frames were received.
func (d *SimulatedDevice) FrameCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Frames)
}

// LastFrame returns a copy of the most recent complete frame.
func (d *SimulatedDevice) LastFrame() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Frames) == 0 {
		return nil
	}
	return append([]uint16(nil), d.Frames[len(d.Frames)-1]...)
}

func (d *SimulatedDevice) reply(b []byte) {
	if d.Silent {
		return
	}
	d.pending = append(d.pending, b...)
}

func (d *SimulatedDevice) handle(f []byte) {
	if bytes.Equal(f, simChallenge) {
		if d.WrongEcho {
			d.reply([]byte{0x00, 'M', 'S', 'N', 'N', 'O'})
			return
		}
		d.reply(f)
		return
	}

	switch f[0] {
	case 0x04:
		if int(f[1]) < simPagePairs {
			d.page[f[1]] = word(f[2:])
		}
	case 0x08:
		v := d.ADC[f[1]]
		if d.ShortADCResponse {
			d.reply([]byte{0x08, f[1], 0})
			return
		}
		d.reply([]byte{0x08, f[1], 0, 0, byte(v >> 8), byte(v)})
	case 0x02:
		d.handleMulti(f)
	}
}

func (d *SimulatedDevice) handleMulti(f []byte) {
	switch f[1] {
	case 0x00:
		d.OriginX, d.OriginY = half(f[2:]), half(f[4:])
	case 0x01:
		d.Width, d.Height = half(f[2:]), half(f[4:])
	case 0x02:
		d.Foreground, d.Background = half(f[2:]), half(f[4:])
	case 0x04:
		v := word(f[2:])
		for i := range d.page {
			d.page[i] = v
		}
	case 0x03:
		d.handleControl(f)
	}
}

func (d *SimulatedDevice) handleControl(f []byte) {
	switch f[2] {
	case 0x07:
		d.current = d.current[:0]
		if d.RejectLoad {
			d.reply([]byte{0xEE, 0xEE})
			return
		}
		if d.ShortLoadAck {
			d.reply(f[:1])
			return
		}
		d.reply(f)
	case 0x0A:
		if d.RejectOrient {
			d.reply([]byte{0x02})
			return
		}
		d.Orientation = f[3]
		d.reply(f)
	case 0x08:
		entries := 2 * simPagePairs
		if f[3] == 0 {
			entries = int(f[4]) / 2
		}
		for i := 0; i < entries; i++ {
			pair := d.page[i/2]
			if i%2 == 0 {
				d.current = append(d.current, uint16(pair>>16))
			} else {
				d.current = append(d.current, uint16(pair))
			}
		}
		total := int(d.Width) * int(d.Height)
		if total > 0 && len(d.current) >= total {
			d.Frames = append(d.Frames, append([]uint16(nil), d.current[:total]...))
			d.current = d.current[:0]
		}
	}
}

func half(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func word(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
