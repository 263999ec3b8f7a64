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

// Package publishers mirrors station notifications to external systems so a
// line dashboard can follow every station without an API connection.
package publishers

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// retained notifications carry current state, so late dashboard
// subscribers see the latest value straight away.
var retained = map[string]bool{
	models.NotificationPhase:         true,
	models.NotificationCurrentDevice: true,
	models.NotificationSerialNumber:  true,
	models.NotificationTargetIP:      true,
	models.NotificationMachineCode:   true,
	models.NotificationUploadCount:   true,
	models.NotificationServerStatus:  true,
}

// MQTTPublisher publishes each notification's params to
// <topic>/<station>/<method>.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	stopCh    chan struct{}
	done      chan struct{}
	broker    string
	topic     string
	station   string
	filter    []string
	mu        syncutil.Mutex
	stopped   bool
}

func NewMQTTPublisher(broker, topic, station string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     strings.TrimSuffix(topic, "/"),
		station:   station,
		filter:    filter,
		newClient: mqtt.NewClient,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	broker := p.broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(config.AppName + "-" + p.station + "-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetWill(p.subject("online"), "false", 1, true)
	opts.OnConnect = func(c mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt publisher: connected")
		c.Publish(p.subject("online"), 1, true, "true")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", p.broker).Msg("mqtt publisher: connection lost")
	}
	return opts
}

// Start connects and forwards notifications until Stop or the channel
// closes. With connect retry enabled the first connect does not fail on an
// unreachable broker; publishing resumes once it comes up.
func (p *MQTTPublisher) Start(notifications <-chan models.Notification) error {
	p.client = p.newClient(p.clientOptions())

	token := p.client.Connect()
	if token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", p.broker, token.Error())
	}

	go p.publishNotifications(notifications)
	return nil
}

func (p *MQTTPublisher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	if p.client != nil && p.client.IsConnected() {
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Publish(p.subject("online"), 1, true, "false").WaitTimeout(publishTimeout)
		p.client.Disconnect(disconnectQuiesce)
	}
}

func (p *MQTTPublisher) subject(leaf string) string {
	return p.topic + "/" + p.station + "/" + leaf
}

func (p *MQTTPublisher) publishNotifications(notifications <-chan models.Notification) {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			return
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt publisher: notification channel closed")
				return
			}
			p.publish(notif)
		}
	}
}

func (p *MQTTPublisher) publish(notif models.Notification) {
	if !p.matchesFilter(notif.Method) {
		return
	}

	payload := []byte(notif.Params)
	if len(payload) == 0 {
		payload = []byte("null")
	} else if !json.Valid(payload) {
		log.Error().Str("method", notif.Method).Msg("mqtt publisher: invalid notification payload")
		return
	}

	subject := p.subject(strings.ReplaceAll(notif.Method, ".", "/"))
	token := p.client.Publish(subject, 0, retained[notif.Method], payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", subject).Msg("mqtt publisher: publish failed")
		return
	}
	log.Debug().Str("topic", subject).Msg("mqtt publisher: published")
}

func (p *MQTTPublisher) matchesFilter(method string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, method)
}

// Subscriber is the slice of the broker publishers need.
type Subscriber interface {
	Subscribe(bufferSize int, replay bool) (<-chan models.Notification, int)
	Unsubscribe(id int)
}

// StartMQTT starts every enabled publisher in cfg. A publisher that fails
// to start is logged and skipped.
func StartMQTT(cfg *config.Instance, sub Subscriber) []*MQTTPublisher {
	station := "station-" + strconv.Itoa(cfg.MachineNumber())
	var started []*MQTTPublisher
	for _, pc := range cfg.GetMQTTPublishers() {
		if pc.Enabled != nil && !*pc.Enabled {
			continue
		}
		pub := NewMQTTPublisher(pc.Broker, pc.Topic, station, pc.Filter)
		ch, id := sub.Subscribe(100, true)
		if err := pub.Start(ch); err != nil {
			log.Error().Err(err).Str("broker", pc.Broker).Msg("failed to start mqtt publisher")
			sub.Unsubscribe(id)
			continue
		}
		started = append(started, pub)
	}
	return started
}
