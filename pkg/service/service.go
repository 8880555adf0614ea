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

package service

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/zaparoo-msu/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-msu/pkg/api"
	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-msu/pkg/config"
	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-msu/pkg/metrics"
	"github.com/ZaparooProject/zaparoo-msu/pkg/msu"
	"github.com/ZaparooProject/zaparoo-msu/pkg/render"
	"github.com/ZaparooProject/zaparoo-msu/pkg/service/broker"
	"github.com/ZaparooProject/zaparoo-msu/pkg/service/mdns"
	"github.com/ZaparooProject/zaparoo-msu/pkg/service/publishers"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	notificationQueueSize = 100
	subscriberBufferSize  = 100
)

// Options replace the hardware and system bindings, mainly for tests. Zero
// values use the real implementations.
type Options struct {
	Opener  msu.PortOpener
	Lister  helpers.PortLister
	Sources *metrics.Sources
	Clock   clockwork.Clock
	// Frames overrides the system readings renderer.
	Frames FrameSource
	// SkipWatch disables config file watching.
	SkipWatch bool
}

// Start runs the display daemon and its supporting services in the
// background. stop cancels everything and waits for cleanup, done is closed
// once cleanup has finished.
func Start(cfg *config.Instance, opts Options) (stop func() error, done <-chan struct{}, err error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	if opts.Opener == nil {
		opts.Opener = msu.DefaultPortOpener
	}
	if opts.Lister == nil {
		opts.Lister = helpers.DefaultPortLister
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	sources := metrics.DefaultSources()
	if opts.Sources != nil {
		sources = *opts.Sources
	}

	renderer, err := render.NewRenderer(metrics.NewCollector(sources))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create renderer: %w", err)
	}
	var frames FrameSource = renderer
	if opts.Frames != nil {
		frames = opts.Frames
	}

	notifBroker := broker.NewBroker(notificationQueueSize)

	daemon := NewDaemon(
		msu.NewTransport(opts.Opener),
		cfg,
		frames,
		WithClock(opts.Clock),
		WithPortLister(opts.Lister),
		WithNotifier(func(n models.Notification) {
			switch n.Method {
			case models.NotificationConnected:
				if dev := n.Params.Device; dev != nil {
					telemetry.SetDisplay(dev.Version.String())
				}
			case models.NotificationLost:
				telemetry.SetDisplay("")
			}
			notifBroker.Publish(n)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	// subscriptions are made before the broker starts so nothing is missed
	var apiNotifs <-chan models.Notification
	listen := cfg.APIListen()
	if listen != "" {
		apiNotifs, _ = notifBroker.Subscribe(subscriberBufferSize)
	}

	type mqttRunner struct {
		publisher *publishers.MQTTPublisher
		notifs    <-chan models.Notification
	}
	mqttRunners := make([]mqttRunner, 0)
	for _, pub := range cfg.MQTTPublishers() {
		notifs, _ := notifBroker.Subscribe(subscriberBufferSize)
		mqttRunners = append(mqttRunners, mqttRunner{
			publisher: publishers.NewMQTTPublisher(pub.Broker, pub.Topic, pub.Filter),
			notifs:    notifs,
		})
	}

	log.Info().Msg("starting notification broker")
	g.Go(func() error {
		return notifBroker.Run(gctx)
	})

	log.Info().Msg("starting display daemon")
	g.Go(func() error {
		return daemon.Run(gctx)
	})

	if !opts.SkipWatch {
		g.Go(func() error {
			err := cfg.Watch(gctx, func() {
				helpers.SetLogLevel(cfg.DebugLogging())
			})
			if err != nil {
				log.Warn().Err(err).Msg("config file watching unavailable")
			}
			return nil
		})
	}

	if listen != "" {
		log.Info().Str("listen", listen).Msg("starting status API")
		srv := api.NewServer(cfg, daemon, renderer, opts.Clock)
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, listen, apiNotifs); err != nil {
				log.Error().Err(err).Msg("status API failed")
			}
			return nil
		})

		advertiser := mdns.New(cfg, opts.Clock)
		g.Go(func() error {
			return advertiser.Run(gctx)
		})
	}

	for _, r := range mqttRunners {
		log.Info().Msg("starting mqtt publisher")
		g.Go(func() error {
			if err := r.publisher.Run(gctx, r.notifs); err != nil {
				log.Error().Err(err).Msg("mqtt publisher failed")
			}
			return nil
		})
	}

	doneCh := make(chan struct{})
	go func() {
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Msg("service stopped with error")
		}
		log.Info().Msg("service cleanup completed")
		close(doneCh)
	}()

	stop = func() error {
		cancel()
		<-doneCh
		return nil
	}
	return stop, doneCh, nil
}
