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

// Package telemetry provides opt-in error reporting via Sentry.
// Usernames are stripped from paths before anything is sent.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers"
	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

// DSN is injected at release build time with -ldflags. Development builds
// leave it empty and never report.
var DSN = ""

var (
	mu           sync.Mutex
	enabled      bool
	sentryWriter *sentryzerolog.Writer
	closeOnce    sync.Once

	homePathRe    = regexp.MustCompile(`(?i)/home/[^/]+/`)
	usersPathRe   = regexp.MustCompile(`(?i)/Users/[^/]+/`)
	windowsUserRe = regexp.MustCompile(`(?i)[a-zA-Z]:\\Users\\[^\\]+\\`)
)

// Options identify the installation in reports.
type Options struct {
	// Transport replaces the HTTP transport, used by tests.
	Transport  sentry.Transport
	DeviceID   string
	AppVersion string
	Platform   string
	DSN        string
}

// Init starts error reporting when reportingEnabled is set and a DSN is
// available. Error level logs are forwarded as events.
func Init(reportingEnabled bool, opts Options) error {
	if !reportingEnabled {
		log.Debug().Msg("error reporting disabled")
		return nil
	}

	dsn := opts.DSN
	if dsn == "" {
		dsn = DSN
	}
	if dsn == "" {
		log.Info().Msg("error reporting requested but this build has no reporting endpoint")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "zaparoo-msu@" + opts.AppVersion,
		Environment:      opts.Platform,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		ServerName:       "",
		MaxBreadcrumbs:   0,
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return sanitizeEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: opts.DeviceID})
		scope.SetTag("platform", opts.Platform)
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	w, err := sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:          []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout:    flushTimeout,
		WithBreadcrumbs: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry zerolog writer: %w", err)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(
		helpers.LogWriter(),
		w,
	)).With().Caller().Logger()

	mu.Lock()
	sentryWriter = w
	enabled = true
	mu.Unlock()

	log.Info().Msg("error reporting enabled")
	return nil
}

// SetDisplay tags later reports with the connected display's firmware
// version. An empty version clears the tag.
func SetDisplay(version string) {
	if !Enabled() {
		return
	}
	sentry.ConfigureScope(func(scope *sentry.Scope) {
		if version == "" {
			scope.RemoveTag("display_version")
			return
		}
		scope.SetTag("display_version", version)
	})
}

// Close flushes pending events and shuts down reporting. Safe to call more
// than once.
func Close() {
	if !Enabled() {
		return
	}
	closeOnce.Do(func() {
		mu.Lock()
		w := sentryWriter
		mu.Unlock()
		_ = w.Close()
		sentry.Flush(flushTimeout)
	})
}

// Flush sends pending events. Call before os.Exit.
func Flush() {
	if !Enabled() {
		return
	}
	sentry.Flush(flushTimeout)
}

func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

func sanitizeEvent(event *sentry.Event) *sentry.Event {
	// the SDK may fill this in despite ServerName being empty
	event.ServerName = ""

	for i := range event.Exception {
		if event.Exception[i].Stacktrace != nil {
			for j := range event.Exception[i].Stacktrace.Frames {
				frame := &event.Exception[i].Stacktrace.Frames[j]
				frame.AbsPath = sanitizePath(frame.AbsPath)
				frame.Filename = sanitizePath(frame.Filename)
			}
		}
	}

	event.Message = sanitizePath(event.Message)

	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = sanitizePath(s)
		}
	}

	return event
}

// sanitizePath removes usernames from file paths.
func sanitizePath(path string) string {
	if path == "" {
		return path
	}

	result := homePathRe.ReplaceAllString(path, "/home/<user>/")
	result = usersPathRe.ReplaceAllString(result, "/Users/<user>/")
	result = windowsUserRe.ReplaceAllString(result, "C:\\Users\\<user>\\")

	return result
}
