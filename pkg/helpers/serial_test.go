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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func TestListSerialPorts(t *testing.T) {
	t.Parallel()

	details := []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1A86", PID: "7523"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
		{Name: "/dev/ttyS0", IsUSB: false},
		nil,
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "55d4"},
	}
	lister := func() ([]*enumerator.PortDetails, error) { return details, nil }

	tests := []struct {
		name     string
		vendorID string
		expected []string
	}{
		{name: "lowercase", vendorID: "1a86", expected: []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}},
		{name: "uppercase with prefix", vendorID: "0x1A86", expected: []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}},
		{name: "other vendor", vendorID: "2341", expected: []string{"/dev/ttyACM0"}},
		{name: "no match", vendorID: "ffff", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ports, err := ListSerialPorts(lister, tt.vendorID)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, ports)
		})
	}
}

func TestListSerialPorts_ListerError(t *testing.T) {
	t.Parallel()

	ports, err := ListSerialPorts(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("enumeration not supported")
	}, "1a86")

	require.Error(t, err)
	assert.Nil(t, ports)
}

func TestNormalizeUSBID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1a86", normalizeUSBID(" 0X1A86 "))
	assert.Equal(t, "1a86", normalizeUSBID("1a86"))
}
