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

package middleware

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// RemoteAddr parses the IP from a RemoteAddr string, with or without port.
func RemoteAddr(remoteAddr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// IPFilter is an allowlist of client addresses and prefixes.
type IPFilter struct {
	prefixes []netip.Prefix
	addrs    []netip.Addr
	enabled  bool
}

// NewIPFilter builds a filter from IPs and CIDRs. An empty list allows every
// client. Unparseable entries are skipped with a warning.
func NewIPFilter(allowed []string) *IPFilter {
	f := &IPFilter{enabled: len(allowed) > 0}

	for _, entry := range allowed {
		if host, _, err := net.SplitHostPort(entry); err == nil {
			entry = host
		}

		if prefix, err := netip.ParsePrefix(entry); err == nil {
			f.prefixes = append(f.prefixes, prefix.Masked())
			continue
		}

		if addr, err := netip.ParseAddr(entry); err == nil {
			f.addrs = append(f.addrs, addr.Unmap())
			continue
		}

		log.Warn().Str("ip", entry).Msg("invalid IP or CIDR in allowed_ips, skipping")
	}

	return f
}

func (f *IPFilter) IsAllowed(remoteAddr string) bool {
	if !f.enabled {
		return true
	}

	addr, ok := RemoteAddr(remoteAddr)
	if !ok {
		log.Warn().Str("addr", remoteAddr).Msg("failed to parse IP address")
		return false
	}

	for _, a := range f.addrs {
		if a == addr {
			return true
		}
	}
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IPFilterMiddleware rejects requests from clients outside the allowlist.
func IPFilterMiddleware(filter *IPFilter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.IsAllowed(r.RemoteAddr) {
				log.Debug().
					Str("addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Msg("request from blocked IP")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
