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
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// usbPortPattern matches sysfs USB port directories like "1-2" or "1-2.3.1".
var usbPortPattern = regexp.MustCompile(`^\d+-[\d.]+$`)

// USBPortPath returns the physical USB port a serial device is plugged into,
// for example "1-2.3". The value stays the same across reboots while the
// display stays in the same socket. Empty when it cannot be determined.
func USBPortPath(devicePath string) string {
	if devicePath == "" {
		return ""
	}

	var st unix.Stat_t
	if err := unix.Stat(devicePath, &st); err != nil {
		log.Debug().Str("path", devicePath).Err(err).Msg("cannot stat serial device")
		return ""
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return ""
	}

	sysPath := fmt.Sprintf("/sys/dev/char/%d:%d", unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev)))
	resolved, err := filepath.EvalSymlinks(sysPath)
	if err != nil {
		log.Debug().
			Str("path", devicePath).
			Str("sysPath", sysPath).
			Err(err).
			Msg("cannot resolve sysfs device")
		return ""
	}

	return usbPortFromSysfs(resolved)
}

// usbPortFromSysfs walks up a path such as
// /sys/devices/.../usb1/1-2/1-2.3/1-2.3:1.0/tty/ttyACM0 and returns the
// innermost port directory.
func usbPortFromSysfs(sysfsPath string) string {
	for cur := sysfsPath; cur != "/" && cur != "." && cur != ""; cur = filepath.Dir(cur) {
		if base := filepath.Base(cur); usbPortPattern.MatchString(base) {
			return base
		}
	}
	return ""
}
