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

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	SchemaVersion = 1
	CfgEnv        = "ZAPAROO_MSU_CFG"
	CfgFile       = "config.toml"
	AppVersion    = "1.0.0"

	DefaultRefreshInterval = 1.0
	DefaultVendorID        = "1a86"
	DefaultAPIListen       = "localhost:7498"
)

type Values struct {
	DeviceID       string     `toml:"device_id"`
	Publishers     Publishers `toml:"publishers,omitempty"`
	API            API        `toml:"api"`
	Discovery      Discovery  `toml:"discovery"`
	Device         Device  `toml:"device"`
	Display        Display `toml:"display"`
	ConfigSchema   int     `toml:"config_schema"`
	DebugLogging   bool    `toml:"debug_logging"`
	ErrorReporting bool    `toml:"error_reporting"`
}

type Display struct {
	// RefreshInterval is in seconds.
	RefreshInterval float64 `toml:"refresh_interval" validate:"gt=0,lte=60"`
	FlipVertical    bool    `toml:"flip_vertical"`
}

type Device struct {
	VendorID string   `toml:"vendor_id" validate:"required,hexadecimal"`
	Ports    []string `toml:"ports,omitempty,multiline" validate:"dive,required"`
}

type API struct {
	// Listen is host:port for the status API, empty disables it.
	Listen string `toml:"listen" validate:"omitempty,hostname_port"`
	// AllowedIPs restricts API clients by IP or CIDR, empty allows all.
	AllowedIPs []string `toml:"allowed_ips,omitempty,multiline" validate:"dive,cidr|ip"`
}

type Discovery struct {
	// InstanceName overrides the advertised mDNS name, defaults to hostname.
	InstanceName string `toml:"instance_name,omitempty"`
	Enabled      bool   `toml:"enabled"`
}

type Publishers struct {
	MQTT []MQTTPublisher `toml:"mqtt,omitempty" validate:"dive"`
}

type MQTTPublisher struct {
	Enabled *bool    `toml:"enabled,omitempty"`
	Broker  string   `toml:"broker" validate:"required,hostname_port"`
	Topic   string   `toml:"topic" validate:"required"`
	Filter  []string `toml:"filter,omitempty"`
}

// IsEnabled defaults to true when Enabled is unset.
func (p MQTTPublisher) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Display: Display{
		RefreshInterval: DefaultRefreshInterval,
	},
	Device: Device{
		VendorID: DefaultVendorID,
	},
	API: API{
		Listen: DefaultAPIListen,
	},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type Instance struct {
	fs       afero.Fs
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

// NewConfig loads the config file from configDir (or the path in CfgEnv),
// writing the defaults first if the file does not exist yet.
//
//nolint:gocritic // config struct copied for immutability
func NewConfig(fs afero.Fs, configDir string, defaults Values) (*Instance, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	cfgPath := os.Getenv(CfgEnv)
	log.Debug().Msgf("env config path: %s", cfgPath)

	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		fs:       fs,
		cfgPath:  filepath.Clean(cfgPath),
		vals:     defaults,
		defaults: defaults,
	}

	exists, err := afero.Exists(fs, cfg.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if !exists {
		log.Info().Msg("saving new default config to disk")

		err := fs.MkdirAll(filepath.Dir(cfg.cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err = cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Path returns the config file location.
func (c *Instance) Path() string {
	return c.cfgPath
}

// Load reads the config file over the defaults. An invalid file leaves the
// current values untouched.
func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := afero.ReadFile(c.fs, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	newVals := c.defaults
	newVals.Device.Ports = slices.Clone(c.defaults.Device.Ports)
	newVals.API.AllowedIPs = slices.Clone(c.defaults.API.AllowedIPs)
	newVals.Publishers.MQTT = slices.Clone(c.defaults.Publishers.MQTT)
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	if err := validate.Struct(&newVals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	// generate a device id if one doesn't exist
	if c.vals.DeviceID == "" {
		newID := uuid.New().String()
		c.vals.DeviceID = newID
		log.Info().Msgf("generated new device id: %s", newID)
	}

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(c.fs, c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) RefreshInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Display.RefreshInterval * float64(time.Second))
}

func (c *Instance) SetRefreshInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Display.RefreshInterval = d.Seconds()
}

func (c *Instance) FlipVertical() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Display.FlipVertical
}

func (c *Instance) SetFlipVertical(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Display.FlipVertical = enabled
}

func (c *Instance) VendorID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device.VendorID
}

// Ports returns the explicitly configured device ports. When set, vendor
// filtering is skipped.
func (c *Instance) Ports() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Device.Ports)
}

func (c *Instance) APIListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.API.Listen
}

func (c *Instance) APIAllowedIPs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.API.AllowedIPs)
}

// APIPort returns the port part of the API listen address, or 0 when the API
// is disabled or the address has no numeric port.
func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.API.Listen == "" {
		return 0
	}
	_, port, err := net.SplitHostPort(c.vals.API.Listen)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

func (c *Instance) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Discovery.Enabled
}

func (c *Instance) DiscoveryInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Discovery.InstanceName
}

// MQTTPublishers returns the enabled MQTT publisher entries.
func (c *Instance) MQTTPublishers() []MQTTPublisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MQTTPublisher, 0, len(c.vals.Publishers.MQTT))
	for _, p := range c.vals.Publishers.MQTT {
		if p.IsEnabled() {
			p.Filter = slices.Clone(p.Filter)
			out = append(out, p)
		}
	}
	return out
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DeviceID
}

func (c *Instance) ErrorReporting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.ErrorReporting
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
	if enabled {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
