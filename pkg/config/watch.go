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
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the config whenever its file changes on disk and calls
// onReload after each successful reload. It blocks until ctx is done. The
// parent directory is watched so editors that replace the file atomically
// are picked up. Only meaningful with the OS filesystem.
func (c *Instance) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("failed to close config watcher")
		}
	}()

	dir := filepath.Dir(c.cfgPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory (%s): %w", dir, err)
	}

	log.Debug().Str("path", c.cfgPath).Msg("watching config file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != c.cfgPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.Load(); err != nil {
				log.Warn().Err(err).Msg("config changed on disk but could not be loaded, keeping previous values")
				continue
			}
			log.Info().Msg("config reloaded")
			if onReload != nil {
				onReload()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Msgf("error in config watcher: %s", watchErr)
		}
	}
}
