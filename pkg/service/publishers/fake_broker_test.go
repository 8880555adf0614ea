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
	"time"

	"github.com/ZaparooProject/zaparoo-msu/pkg/helpers/syncutil"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type message struct {
	payload  any
	topic    string
	retained bool
}

// fakeBroker records publishes in memory and fails on demand.
type fakeBroker struct {
	connectError error
	publishError error
	messages     []message
	disconnected int
	mu           syncutil.Mutex
}

var _ brokerClient = (*fakeBroker)(nil)

func (b *fakeBroker) Connect() mqtt.Token {
	return finishedToken{err: b.connectError}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected++
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload any) mqtt.Token {
	if b.publishError != nil {
		return finishedToken{err: b.publishError}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, message{topic: topic, retained: retained, payload: payload})
	return finishedToken{}
}

func (b *fakeBroker) published() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...)
}

func (b *fakeBroker) disconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnected
}

// finishedToken is an mqtt.Token that has already completed.
type finishedToken struct {
	err error
}

func (finishedToken) Wait() bool { return true }

func (finishedToken) WaitTimeout(time.Duration) bool { return true }

func (t finishedToken) Error() error { return t.err }

func (finishedToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
