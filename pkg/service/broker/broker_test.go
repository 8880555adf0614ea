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

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBroker(t *testing.T, b *Broker) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		<-done
	}
}

func receive(t *testing.T, ch <-chan models.Notification) models.Notification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return models.Notification{}
	}
}

func TestBroker_FanOut(t *testing.T) {
	t.Parallel()

	b := NewBroker(10)
	first, _ := b.Subscribe(5)
	second, _ := b.Subscribe(5)
	stop := startBroker(t, b)
	defer stop()

	require.True(t, b.Publish(models.Notification{Method: models.NotificationConnected}))

	assert.Equal(t, models.NotificationConnected, receive(t, first).Method)
	assert.Equal(t, models.NotificationConnected, receive(t, second).Method)
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	t.Parallel()

	b := NewBroker(2)
	assert.True(t, b.Publish(models.Notification{Method: "a"}))
	assert.True(t, b.Publish(models.Notification{Method: "b"}))
	assert.False(t, b.Publish(models.Notification{Method: "c"}), "queue full")
}

func TestBroker_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	b := NewBroker(10)
	slow, _ := b.Subscribe(1)
	fast, _ := b.Subscribe(10)
	stop := startBroker(t, b)
	defer stop()

	for range 3 {
		b.Publish(models.Notification{Method: models.NotificationStatus})
	}

	for range 3 {
		receive(t, fast)
	}
	receive(t, slow)
	select {
	case <-slow:
		t.Fatal("slow subscriber should have dropped the overflow")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_Unsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(1)
	ch, id := b.Subscribe(1)
	b.Unsubscribe(id)
	b.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroker_RunClosesSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker(1)
	ch, _ := b.Subscribe(1)
	stop := startBroker(t, b)
	stop()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok, "subscribing after shutdown yields a closed channel")
}
