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
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(client *fakeBroker, filter []string) *MQTTPublisher {
	p := NewMQTTPublisher("localhost:1883", "msu/status", filter)
	p.newClient = func(*mqtt.ClientOptions) brokerClient { return client }
	return p
}

func runPublisher(
	t *testing.T,
	p *MQTTPublisher,
	notifs <-chan models.Notification,
) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx, notifs) }()
	return stop, errCh
}

func TestNewMQTTPublisher(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher("broker.example.com:8883", "displays/desk", []string{models.NotificationLost})
	assert.Equal(t, "broker.example.com:8883", p.broker)
	assert.Equal(t, "displays/desk", p.topic)
	assert.Equal(t, []string{models.NotificationLost}, p.filter)
	assert.NotNil(t, p.newClient)

	opts := p.clientOptions()
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.example.com:8883", opts.Servers[0].String())
	assert.Contains(t, opts.ClientID, "zaparoo-msu-")
}

func TestMatchesFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		filter []string
		want   bool
	}{
		{name: "nil filter matches all", method: models.NotificationStatus, want: true},
		{name: "empty filter matches all", filter: []string{}, method: models.NotificationLost, want: true},
		{
			name:   "method in filter",
			filter: []string{models.NotificationConnected, models.NotificationLost},
			method: models.NotificationLost,
			want:   true,
		},
		{
			name:   "method not in filter",
			filter: []string{models.NotificationConnected},
			method: models.NotificationStatus,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewMQTTPublisher("localhost:1883", "t", tt.filter)
			assert.Equal(t, tt.want, p.matchesFilter(tt.method))
		})
	}
}

func TestRun_PublishesNotifications(t *testing.T) {
	t.Parallel()

	client := &fakeBroker{}
	p := newTestPublisher(client, nil)
	notifs := make(chan models.Notification, 2)
	cancel, done := runPublisher(t, p, notifs)

	notifs <- models.Notification{
		Method: models.NotificationStatus,
		Params: models.StatusResponse{DaemonStatus: models.DaemonStatus{State: "connected", FramesSent: 3}},
	}
	notifs <- models.Notification{Method: models.NotificationLost}

	require.Eventually(t, func() bool { return len(client.published()) == 2 }, time.Second, 5*time.Millisecond)

	msgs := client.published()
	assert.Equal(t, "msu/status", msgs[0].topic)
	assert.True(t, msgs[0].retained, "status is retained")
	assert.False(t, msgs[1].retained)

	var decoded models.Notification
	payload, ok := msgs[0].payload.([]byte)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, uint64(3), decoded.Params.FramesSent)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 1, client.disconnects())
}

func TestRun_FilterDropsUnlisted(t *testing.T) {
	t.Parallel()

	client := &fakeBroker{}
	p := newTestPublisher(client, []string{models.NotificationConnected})
	notifs := make(chan models.Notification, 2)
	_, done := runPublisher(t, p, notifs)

	notifs <- models.Notification{Method: models.NotificationStatus}
	notifs <- models.Notification{Method: models.NotificationConnected}
	close(notifs)

	require.NoError(t, <-done)
	msgs := client.published()
	require.Len(t, msgs, 1)
}

func TestRun_ConnectError(t *testing.T) {
	t.Parallel()

	client := &fakeBroker{}
	client.connectError = errors.New("refused")
	p := newTestPublisher(client, nil)

	err := p.Run(context.Background(), make(chan models.Notification))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "localhost:1883")
}

func TestRun_PublishErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	client := &fakeBroker{}
	client.publishError = errors.New("broker gone")
	p := newTestPublisher(client, nil)
	notifs := make(chan models.Notification, 1)
	cancel, done := runPublisher(t, p, notifs)

	notifs <- models.Notification{Method: models.NotificationStatus}
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Empty(t, client.published())
}
