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

import "github.com/rs/zerolog/log"

// ConnectionState represents the current state of the device connection.
type ConnectionState int32

const (
	// StateDisconnected indicates no authenticated device is attached.
	StateDisconnected ConnectionState = iota
	// StateConnected indicates the device is authenticated and initialised.
	StateConnected
)

// String returns a human-readable representation of the connection state
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected reports whether the state is StateConnected.
func (t *Transport) Connected() bool {
	return t.State() == StateConnected
}

// IsOpen reports whether the serial handle is open.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// SetState changes the connection state. Moving to StateDisconnected always
// closes the serial handle. Moving to StateConnected is refused when the
// handle is closed.
func (t *Transport) SetState(s ConnectionState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setStateLocked(s)
}

// Disconnect closes the handle and marks the connection disconnected.
func (t *Transport) Disconnect() {
	t.SetState(StateDisconnected)
}

func (t *Transport) setStateLocked(s ConnectionState) bool {
	if s == StateConnected && t.port == nil {
		log.Warn().Str("port", t.path).Msg("refusing connected state without an open port")
		return false
	}

	prev := t.state
	t.state = s
	if s == StateDisconnected {
		t.closeLocked()
	}

	if prev != s {
		log.Info().
			Str("port", t.path).
			Stringer("from", prev).
			Stringer("to", s).
			Msg("device connection state changed")
	}
	return true
}
