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

// Package mdns advertises the status API over DNS-SD so dashboards on the
// local network can find the display host.
package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/config"
	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const ServiceType = "_zaparoo-msu._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

// virtualInterfacePrefixes are container and VPN interfaces skipped for
// advertising.
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

type Settings interface {
	DiscoveryEnabled() bool
	DiscoveryInstanceName() string
	APIPort() int
	DeviceID() string
}

type server interface {
	Shutdown()
}

type registerFunc func(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error)

func zeroconfRegister(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error) {
	s, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	return s, nil
}

type Advertiser struct {
	settings     Settings
	clock        clockwork.Clock
	register     registerFunc
	interfaces   func() ([]net.Interface, error)
	hostname     func() (string, error)
	instanceName string
	mu           syncutil.Mutex
}

func New(settings Settings, clock clockwork.Clock) *Advertiser {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Advertiser{
		settings:   settings,
		clock:      clock,
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
	}
}

// Run advertises the API until ctx is done. When the network is not ready
// registration is retried for a while before giving up. Run returns nil in
// every case because advertising is best effort.
func (a *Advertiser) Run(ctx context.Context) error {
	if !a.settings.DiscoveryEnabled() {
		log.Info().Msg("mDNS discovery disabled by configuration")
		return nil
	}

	port := a.settings.APIPort()
	if port == 0 {
		log.Info().Msg("status API disabled, not advertising over mDNS")
		return nil
	}

	name := a.resolveInstanceName()
	a.mu.Lock()
	a.instanceName = name
	a.mu.Unlock()

	deadline := a.clock.Now().Add(maxRetryDuration)
	for {
		srv := a.tryRegister(name, port)
		if srv != nil {
			<-ctx.Done()
			log.Debug().Msg("stopping mDNS service advertising")
			srv.Shutdown()
			return nil
		}

		if a.clock.Now().After(deadline) {
			log.Warn().Msg("mDNS registration retry timed out, discovery will not be available")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-a.clock.After(retryInterval):
		}
	}
}

// InstanceName returns the advertised name once Run has resolved it.
func (a *Advertiser) InstanceName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instanceName
}

func (a *Advertiser) tryRegister(name string, port int) server {
	all, err := a.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return nil
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces found for mDNS")
		return nil
	}

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}

	txt := []string{
		"id=" + a.settings.DeviceID(),
		"version=" + config.AppVersion,
	}

	srv, err := a.register(name, ServiceType, "local.", port, txt, ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS registration attempt failed")
		return nil
	}

	log.Info().
		Str("instance", name).
		Int("port", port).
		Strs("interfaces", names).
		Msg("mDNS service advertising started")
	return srv
}

// resolveInstanceName prefers the configured name, then the hostname, then a
// name derived from the device id.
func (a *Advertiser) resolveInstanceName() string {
	if name := a.settings.DiscoveryInstanceName(); name != "" {
		return name
	}

	hostname, err := a.hostname()
	if err == nil && hostname != "" {
		return hostname
	}
	log.Warn().Err(err).Msg("failed to get hostname, using fallback")

	if id := a.settings.DeviceID(); len(id) >= 8 {
		return "zaparoo-msu-" + id[:8]
	}
	return "zaparoo-msu"
}

// filterInterfaces keeps interfaces that are up, multicast capable, not
// loopback and not virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		switch {
		case iface.Flags&net.FlagUp == 0,
			iface.Flags&net.FlagLoopback != 0,
			iface.Flags&net.FlagMulticast == 0,
			isVirtualInterface(iface.Name):
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
