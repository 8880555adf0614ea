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

import "errors"

var (
	// ErrNotOpen is returned when an exchange is attempted without an open port.
	ErrNotOpen = errors.New("serial port not open")
	// ErrTimeout is returned when no response arrived before the deadline.
	ErrTimeout = errors.New("serial read timed out")
	// ErrIO wraps any failure reported by the serial port itself.
	ErrIO = errors.New("serial i/o failure")
	// ErrInvalidResponse is returned when a response fails echo or length checks.
	ErrInvalidResponse = errors.New("invalid device response")
	// ErrNoDevice is returned when no candidate port authenticated.
	ErrNoDevice = errors.New("no device found")
)
