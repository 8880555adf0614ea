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

// Package testutils provides serial port doubles for protocol tests.
package testutils

import (
	"errors"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
)

// MockSerialPort is a scripted serial port. Reads drain ReadData, writes are
// recorded in Written.
type MockSerialPort struct {
	ReadError  error
	WriteError error
	CloseError error
	ResetError error
	TimeoutErr error
	ReadFunc   func(p []byte) (n int, err error)
	ReadData   []byte
	Written    []byte
	ReadIndex  int
	Closed     bool
	mu         syncutil.RWMutex
}

// NewMockSerialPort creates a new mock serial port for testing.
func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{}
}

// Read returns buffered data, or sleeps briefly and returns nothing like a
// real port hitting its read timeout.
func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, errors.New("port closed")
	}

	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}

	if m.ReadError != nil {
		return 0, m.ReadError
	}

	if m.ReadIndex >= len(m.ReadData) {
		time.Sleep(time.Millisecond)
		return 0, nil
	}

	n = copy(p, m.ReadData[m.ReadIndex:])
	m.ReadIndex += n
	return n, nil
}

// Write records p.
func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return 0, errors.New("port closed")
	}
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.Written = append(m.Written, p...)
	return len(p), nil
}

// Drain is a no-op.
func (*MockSerialPort) Drain() error {
	return nil
}

// ResetInputBuffer discards unread data.
func (m *MockSerialPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResetError != nil {
		return m.ResetError
	}
	m.ReadIndex = len(m.ReadData)
	return nil
}

// Respond queues data for the next reads.
func (m *MockSerialPort) Respond(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadData = append(m.ReadData[m.ReadIndex:], data...)
	m.ReadIndex = 0
}

// Close implements the Close method for serial ports.
func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.Closed = true
	closeError := m.CloseError
	m.mu.Unlock()
	return closeError
}

// SetReadTimeout implements the SetReadTimeout method for serial ports.
func (m *MockSerialPort) SetReadTimeout(_ time.Duration) error {
	return m.TimeoutErr
}

// IsClosed returns true if the port has been closed (thread-safe).
func (m *MockSerialPort) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Closed
}

// WrittenBytes returns a copy of everything written so far.
func (m *MockSerialPort) WrittenBytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.Written...)
}
