// Zaparoo Factory Test
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Factory Test.
//
// Zaparoo Factory Test is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Factory Test is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Factory Test.  If not, see <http://www.gnu.org/licenses/>.

// Package broker fans the service notification stream out to every
// consumer (API clients, the TUI, publishers) without letting a slow
// consumer stall the station.
package broker

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// sticky notifications describe current state rather than an event, so the
// latest of each is kept and replayed to new subscribers.
var sticky = map[string]bool{
	models.NotificationTestStatus:    true,
	models.NotificationPhase:         true,
	models.NotificationCurrentDevice: true,
	models.NotificationSerialNumber:  true,
	models.NotificationTargetIP:      true,
	models.NotificationMachineCode:   true,
	models.NotificationUploadCount:   true,
	models.NotificationServerStatus:  true,
}

type Broker struct {
	ctx         context.Context
	source      <-chan models.Notification
	subscribers map[int]chan models.Notification
	latest      map[string]models.Notification
	mu          syncutil.RWMutex
	nextID      int
}

func NewBroker(ctx context.Context, source <-chan models.Notification) *Broker {
	return &Broker{
		ctx:         ctx,
		source:      source,
		subscribers: make(map[int]chan models.Notification),
		latest:      make(map[string]models.Notification),
	}
}

// Start runs the broadcast loop until the source closes or ctx is done,
// then closes every subscriber channel.
func (b *Broker) Start() {
	go func() {
		for {
			select {
			case notif, ok := <-b.source:
				if !ok {
					log.Debug().Msg("broker: source channel closed")
					b.closeAllSubscribers()
					return
				}
				b.broadcast(notif)
			case <-b.ctx.Done():
				log.Debug().Msg("broker: context cancelled, shutting down")
				b.closeAllSubscribers()
				return
			}
		}
	}()
}

func stickyKey(notif models.Notification) (string, bool) {
	if !sticky[notif.Method] {
		return "", false
	}
	if notif.Method != models.NotificationTestStatus {
		return notif.Method, true
	}
	var p models.TestStatusParams
	if err := json.Unmarshal(notif.Params, &p); err != nil || p.ButtonID == "" {
		return "", false
	}
	return notif.Method + ":" + p.ButtonID, true
}

// broadcast never blocks: a full subscriber loses the notification.
func (b *Broker) broadcast(notif models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if key, ok := stickyKey(notif); ok {
		b.latest[key] = notif
	}

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

// Snapshot returns the latest state notifications in a stable order.
func (b *Broker) Snapshot() []models.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *Broker) snapshotLocked() []models.Notification {
	keys := make([]string, 0, len(b.latest))
	for k := range b.latest {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]models.Notification, 0, len(keys))
	for _, k := range keys {
		out = append(out, b.latest[k])
	}
	return out
}

// Subscribe registers a consumer. With replay set, the current snapshot is
// queued first, as far as the buffer allows.
func (b *Broker) Subscribe(bufferSize int, replay bool) (notifChan <-chan models.Notification, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	ch := make(chan models.Notification, bufferSize)
	if replay {
		for _, n := range b.snapshotLocked() {
			select {
			case ch <- n:
			default:
			}
		}
	}
	b.subscribers[id] = ch

	log.Debug().
		Int("subscriber_id", id).
		Int("buffer_size", bufferSize).
		Bool("replay", replay).
		Msg("new subscriber registered")

	return ch, id
}

// Unsubscribe is safe to call more than once.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
		log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
	}
}

func (b *Broker) Stop() {
	b.closeAllSubscribers()
}

func (b *Broker) closeAllSubscribers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		log.Debug().Int("subscriber_id", id).Msg("closed subscriber channel on shutdown")
	}
	b.subscribers = make(map[int]chan models.Notification)
}
