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

package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// brokerClient is the part of mqtt.Client the publisher drives.
type brokerClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTTPublisher forwards display notifications to an MQTT topic. Status
// updates are published retained so new subscribers see the latest frame.
type MQTTPublisher struct {
	newClient func(*mqtt.ClientOptions) brokerClient
	client    brokerClient
	broker    string
	topic     string
	filter    []string
}

// NewMQTTPublisher creates a publisher for broker (host:port) and topic. An
// empty filter publishes every notification method.
func NewMQTTPublisher(broker, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		newClient: func(o *mqtt.ClientOptions) brokerClient { return mqtt.NewClient(o) },
		broker:    broker,
		topic:     topic,
		filter:    filter,
	}
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID("zaparoo-msu-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt publisher: connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", p.broker).Msg("mqtt publisher: connection lost")
	}
	return opts
}

// Run connects and publishes notifications until ctx is done or the channel
// closes. With connect retry enabled the client keeps retrying in the
// background, so only immediate configuration errors are returned.
func (p *MQTTPublisher) Run(ctx context.Context, notifications <-chan models.Notification) error {
	p.client = p.newClient(p.clientOptions())

	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker %s: %w", p.broker, err)
		}
	case <-ctx.Done():
		p.client.Disconnect(0)
		return nil
	}

	defer func() {
		log.Debug().Str("broker", p.broker).Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(disconnectQuiesce)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt publisher: notification channel closed")
				return nil
			}
			p.publish(notif)
		}
	}
}

func (p *MQTTPublisher) publish(notif models.Notification) {
	if !p.matchesFilter(notif.Method) {
		return
	}

	payload, err := json.Marshal(notif)
	if err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to marshal notification")
		return
	}

	retained := notif.Method == models.NotificationStatus
	token := p.client.Publish(p.topic, 0, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("method", notif.Method).Msg("mqtt publisher: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to publish message")
		return
	}

	log.Debug().Str("method", notif.Method).Msg("mqtt publisher: published notification")
}

func (p *MQTTPublisher) matchesFilter(method string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, method)
}
