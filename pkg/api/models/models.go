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

package models

import (
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/ZaparooProject/zaparoo-msu/pkg/msu"
)

const (
	NotificationStatus    = "display.status"
	NotificationConnected = "display.connected"
	NotificationLost      = "display.disconnected"
)

// DaemonStatus is a point-in-time copy of the display daemon state.
type DaemonStatus struct {
	LastFrame  time.Time   `json:"lastFrame"`
	Device     *msu.Device `json:"device,omitempty"`
	State      string      `json:"state"`
	FramesSent uint64      `json:"framesSent"`
}

type StatusResponse struct {
	Readings *metrics.Readings `json:"readings,omitempty"`
	DaemonStatus
}

type Notification struct {
	Params StatusResponse `json:"params"`
	Method string         `json:"method"`
}

type VersionResponse struct {
	Version  string `json:"version"`
	DeviceID string `json:"deviceId"`
}
