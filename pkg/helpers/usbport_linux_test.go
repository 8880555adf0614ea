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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUSBPortFromSysfs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		want string
	}{
		{
			name: "ch340 behind hub",
			path: "/sys/devices/platform/soc/3f980000.usb/usb1/1-1/1-1.3/1-1.3:1.0/ttyUSB0/tty/ttyUSB0",
			want: "1-1.3",
		},
		{
			name: "direct root port",
			path: "/sys/devices/pci0000:00/0000:00:14.0/usb2/2-4/2-4:1.0/tty/ttyACM0",
			want: "2-4",
		},
		{
			name: "onboard uart",
			path: "/sys/devices/platform/serial8250/tty/ttyS0",
			want: "",
		},
		{name: "empty", path: "", want: ""},
		{name: "root", path: "/", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, usbPortFromSysfs(tt.path))
		})
	}
}

func TestUSBPortPath_Unresolvable(t *testing.T) {
	t.Parallel()

	assert.Empty(t, USBPortPath(""))
	assert.Empty(t, USBPortPath(filepath.Join(t.TempDir(), "ttyACM9")))
	assert.Empty(t, USBPortPath(t.TempDir()), "directories are not serial devices")
}
