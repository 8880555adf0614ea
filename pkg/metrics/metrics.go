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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mackerelio/go-osstat/uptime"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
)

const (
	// CPUSampleInterval is how long CPU usage is measured for.
	CPUSampleInterval = 100 * time.Millisecond
	DiskPath          = "/"
)

// TemperatureSensors are checked in order, the first match wins.
var TemperatureSensors = []string{"coretemp", "cpu_thermal", "cpu-thermal", "k10temp"}

// Sources are the system calls a Collector reads from.
type Sources struct {
	CPUPercent    func(ctx context.Context, interval time.Duration, perCPU bool) ([]float64, error)
	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	DiskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
	NetIO         func(ctx context.Context, perNIC bool) ([]net.IOCountersStat, error)
	Temperatures  func(ctx context.Context) ([]sensors.TemperatureStat, error)
	Uptime        func() (time.Duration, error)
}

func DefaultSources() Sources {
	return Sources{
		CPUPercent:    cpu.PercentWithContext,
		VirtualMemory: mem.VirtualMemoryWithContext,
		DiskUsage:     disk.UsageWithContext,
		NetIO:         net.IOCountersWithContext,
		Temperatures:  sensors.TemperaturesWithContext,
		Uptime:        uptime.Get,
	}
}

type Readings struct {
	CollectedAt time.Time     `json:"collectedAt"`
	CPUPercent  int           `json:"cpuPercent"`
	MemPercent  int           `json:"memPercent"`
	MemUsed     uint64        `json:"memUsed"`
	DiskPercent int           `json:"diskPercent"`
	DiskUsed    uint64        `json:"diskUsed"`
	NetBytes    uint64        `json:"netBytes"`
	Temperature int           `json:"temperature"`
	HasTemp     bool          `json:"hasTemperature"`
	Uptime      time.Duration `json:"uptime"`
}

// TemperatureText is the rounded CPU temperature, or N/A when no known sensor
// is present.
func (r Readings) TemperatureText() string {
	if !r.HasTemp {
		return "N/A"
	}
	return fmt.Sprintf("%d°C", r.Temperature)
}

type Collector struct {
	src  Sources
	now  func() time.Time
	path string
}

func NewCollector(src Sources) *Collector {
	return &Collector{
		src:  src,
		now:  time.Now,
		path: DiskPath,
	}
}

// Collect samples every metric. Individual failures leave that field zeroed
// and are joined into the returned error, the remaining readings are still
// valid. A missing temperature sensor is not an error.
func (c *Collector) Collect(ctx context.Context) (Readings, error) {
	r := Readings{CollectedAt: c.now()}
	var errs []error

	if c.src.CPUPercent != nil {
		pcts, err := c.src.CPUPercent(ctx, CPUSampleInterval, false)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("cpu: %w", err))
		case len(pcts) > 0:
			r.CPUPercent = roundPercent(pcts[0])
		}
	}

	if c.src.VirtualMemory != nil {
		vm, err := c.src.VirtualMemory(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("memory: %w", err))
		} else if vm != nil {
			r.MemPercent = roundPercent(vm.UsedPercent)
			r.MemUsed = vm.Used
		}
	}

	if c.src.DiskUsage != nil {
		du, err := c.src.DiskUsage(ctx, c.path)
		if err != nil {
			errs = append(errs, fmt.Errorf("disk: %w", err))
		} else if du != nil {
			r.DiskUsed = du.Used
			r.DiskPercent = diskPercent(du.Used, du.Total)
		}
	}

	if c.src.NetIO != nil {
		counters, err := c.src.NetIO(ctx, false)
		if err != nil {
			errs = append(errs, fmt.Errorf("network: %w", err))
		}
		for _, ct := range counters {
			r.NetBytes += ct.BytesSent + ct.BytesRecv
		}
	}

	if c.src.Temperatures != nil {
		// partial results come back alongside warnings
		temps, err := c.src.Temperatures(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("reading temperature sensors")
		}
		r.Temperature, r.HasTemp = cpuTemperature(temps)
	}

	if c.src.Uptime != nil {
		up, err := c.src.Uptime()
		if err != nil {
			errs = append(errs, fmt.Errorf("uptime: %w", err))
		} else {
			r.Uptime = up
		}
	}

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	return r, errors.Join(errs...)
}

func cpuTemperature(temps []sensors.TemperatureStat) (int, bool) {
	for _, name := range TemperatureSensors {
		for _, t := range temps {
			if strings.HasPrefix(t.SensorKey, name) {
				return roundPercent(t.Temperature), true
			}
		}
	}
	return 0, false
}

// diskPercent is computed from used/total rather than the reported percent so
// reserved blocks count as free. An empty filesystem reports as full.
func diskPercent(used, total uint64) int {
	if total == 0 {
		return 100
	}
	return roundPercent(float64(used) * 100 / float64(total))
}

func roundPercent(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v + 0.5)
}

var byteUnits = []string{"B", "K", "M", "G"}

// FormatBytes renders a byte count with a single letter unit, e.g. 512B,
// 1.5K, 3.2G.
func FormatBytes(n uint64) string {
	v := float64(n)
	for _, unit := range byteUnits {
		if v < 1024 {
			if unit == "B" {
				return fmt.Sprintf("%d%s", int64(v), unit)
			}
			return fmt.Sprintf("%.1f%s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1fT", v)
}
