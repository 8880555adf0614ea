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

// Package broker fans display notifications out to independent consumers
// without letting a slow consumer stall the daemon.
package broker

import (
	"context"

	"github.com/ZaparooProject/zaparoo-msu/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

type Broker struct {
	source      chan models.Notification
	subscribers map[int]chan models.Notification
	mu          syncutil.RWMutex
	nextID      int
	closed      bool
}

// NewBroker returns a broker whose inbound queue holds bufferSize
// notifications.
func NewBroker(bufferSize int) *Broker {
	return &Broker{
		source:      make(chan models.Notification, bufferSize),
		subscribers: make(map[int]chan models.Notification),
	}
}

// Publish queues a notification. It never blocks and reports false when the
// queue is full and the notification was dropped.
func (b *Broker) Publish(notif models.Notification) bool {
	select {
	case b.source <- notif:
		return true
	default:
		log.Warn().Str("method", notif.Method).Msg("broker queue full, dropping notification")
		return false
	}
}

// Run delivers queued notifications until ctx is done, then closes every
// subscriber channel.
func (b *Broker) Run(ctx context.Context) error {
	defer b.closeAllSubscribers()
	for {
		select {
		case notif := <-b.source:
			b.broadcast(notif)
		case <-ctx.Done():
			log.Debug().Msg("broker: context cancelled, shutting down")
			return nil
		}
	}
}

func (b *Broker) broadcast(notif models.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- notif:
		default:
			log.Warn().
				Int("subscriber_id", id).
				Str("method", notif.Method).
				Msg("subscriber channel full, dropping notification")
		}
	}
}

// Subscribe registers a consumer. The channel is closed when the broker
// stops or the subscription is removed. Subscribing to a stopped broker
// returns an already closed channel.
func (b *Broker) Subscribe(bufferSize int) (notifChan <-chan models.Notification, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Notification, bufferSize)
	id = b.nextID
	b.nextID++

	if b.closed {
		close(ch)
		return ch, id
	}

	b.subscribers[id] = ch
	log.Debug().
		Int("subscriber_id", id).
		Int("buffer_size", bufferSize).
		Msg("new subscriber registered")

	return ch, id
}

// Unsubscribe removes a subscription. Repeated calls are no-ops.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
		log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
	}
}

func (b *Broker) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		log.Debug().Int("subscriber_id", id).Msg("closed subscriber channel on shutdown")
	}
	b.subscribers = make(map[int]chan models.Notification)
	b.closed = true
}
