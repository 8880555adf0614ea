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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// idleDelay is slept between empty polls so a port that returns immediately
// does not spin the CPU.
const idleDelay = time.Millisecond

// Port is the subset of serial.Port used by the transport.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Drain() error
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// PortOpener opens a serial port. Tests inject mocks through it.
type PortOpener func(path string, mode *serial.Mode) (Port, error)

// DefaultPortOpener opens a real serial port with go.bug.st/serial.
func DefaultPortOpener(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Transport owns the single serial handle to the device and the shared
// connection state. Every exchange holds the lock from the first write until
// the response is complete, so responses of two commands never interleave.
type Transport struct {
	port         Port
	opener       PortOpener
	path         string
	timeout      time.Duration
	pollInterval time.Duration
	mu           syncutil.Mutex
	state        ConnectionState
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithTimeout overrides the response deadline of a single exchange.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithPollInterval overrides the per-read serial timeout.
func WithPollInterval(d time.Duration) TransportOption {
	return func(t *Transport) {
		t.pollInterval = d
	}
}

// NewTransport creates a closed, disconnected transport.
func NewTransport(opener PortOpener, opts ...TransportOption) *Transport {
	if opener == nil {
		opener = DefaultPortOpener
	}
	t := &Transport{
		opener:       opener,
		timeout:      ResponseTimeout,
		pollInterval: PollInterval,
		state:        StateDisconnected,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open opens path as the transport's serial handle, closing any previous one.
// The connection state is left disconnected until a handshake succeeds.
func (t *Transport) Open(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setStateLocked(StateDisconnected)
	t.path = path

	port, err := t.opener(path, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	if err := port.SetReadTimeout(t.pollInterval); err != nil {
		_ = port.Close()
		return fmt.Errorf("%w: set read timeout: %w", ErrIO, err)
	}

	t.port = port
	log.Debug().Str("port", path).Msg("serial port opened")
	return nil
}

// Path returns the path of the most recently opened port.
func (t *Transport) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Exchange writes cmd and, when expectResponse is set, polls for a response
// of at least minSize bytes (at least one byte when minSize is 0). A closed
// handle returns ErrNotOpen immediately. I/O failures and timeouts close the
// handle, mark the connection disconnected and return an empty result.
func (t *Transport) Exchange(cmd []byte, expectResponse bool, minSize int) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		log.Debug().Msg("device not connected, skipping serial exchange")
		return nil, ErrNotOpen
	}

	if err := t.port.ResetInputBuffer(); err != nil {
		return nil, t.failLocked(fmt.Errorf("%w: reset input buffer: %w", ErrIO, err))
	}

	n, err := t.port.Write(cmd)
	if err != nil {
		return nil, t.failLocked(fmt.Errorf("%w: write: %w", ErrIO, err))
	}
	if n != len(cmd) {
		return nil, t.failLocked(fmt.Errorf("%w: incomplete write: wrote %d of %d bytes", ErrIO, n, len(cmd)))
	}

	if err := t.port.Drain(); err != nil {
		return nil, t.failLocked(fmt.Errorf("%w: drain: %w", ErrIO, err))
	}

	if !expectResponse {
		return nil, nil
	}

	return t.readLocked(minSize)
}

// ReadAvailable polls for unsolicited input, such as the greeting a device
// sends after the port is opened.
func (t *Transport) ReadAvailable() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil, ErrNotOpen
	}

	return t.readLocked(0)
}

func (t *Transport) readLocked(minSize int) ([]byte, error) {
	want := max(minSize, 1)
	deadline := time.Now().Add(t.timeout)
	buf := make([]byte, 256)
	var result []byte

	for {
		n, err := t.port.Read(buf)
		if err != nil {
			return nil, t.failLocked(fmt.Errorf("%w: read: %w", ErrIO, err))
		}

		if n > 0 {
			result = append(result, buf[:n]...)
			if len(result) >= want {
				return result, nil
			}
		}

		if !time.Now().Before(deadline) {
			log.Warn().
				Str("port", t.path).
				Int("received", len(result)).
				Int("wanted", want).
				Dur("timeout", t.timeout).
				Msg("serial read timed out")
			return nil, t.failLocked(ErrTimeout)
		}

		if n == 0 {
			time.Sleep(idleDelay)
		}
	}
}

// failLocked records a transport fault and drops the connection.
func (t *Transport) failLocked(err error) error {
	if isDisconnectionError(err) {
		log.Info().Str("port", t.path).Err(err).Msg("device disconnected")
	} else {
		log.Warn().Str("port", t.path).Err(err).Msg("serial exchange failed")
	}
	t.setStateLocked(StateDisconnected)
	return err
}

func (t *Transport) closeLocked() {
	if t.port == nil {
		return
	}
	if err := t.port.Close(); err != nil {
		log.Debug().Err(err).Str("port", t.path).Msg("failed to close serial port")
	}
	t.port = nil
}

// isDisconnectionError checks if an error indicates the device went away
func isDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "device not found") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "device disconnected")
}
