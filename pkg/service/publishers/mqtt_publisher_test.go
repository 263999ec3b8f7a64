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

package publishers

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(client *mockMQTTClient, filter []string) *MQTTPublisher {
	p := NewMQTTPublisher("localhost:1883", "factory/", "station-3", filter)
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	return p
}

func TestMatchesFilter(t *testing.T) {
	t.Parallel()

	open := NewMQTTPublisher("b", "t", "s", nil)
	assert.True(t, open.matchesFilter(models.NotificationPhase))

	only := NewMQTTPublisher("b", "t", "s", []string{models.NotificationPhase})
	assert.True(t, only.matchesFilter(models.NotificationPhase))
	assert.False(t, only.matchesFilter(models.NotificationTestStatus))
}

func TestPublishTopicsAndRetain(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := newTestPublisher(client, nil)
	ch := make(chan models.Notification, 4)
	require.NoError(t, p.Start(ch))

	phase, err := json.Marshal(models.PhaseParams{Phase: "testing"})
	require.NoError(t, err)
	ch <- models.Notification{Method: models.NotificationPhase, Params: phase}
	ch <- models.Notification{Method: models.NotificationTestStatus, Params: json.RawMessage(`{"buttonId":"hdmi"}`)}

	require.Eventually(t, func() bool { return len(client.published()) == 2 }, time.Second, 5*time.Millisecond)
	msgs := client.published()

	assert.Equal(t, "factory/station-3/"+replaceDots(models.NotificationPhase), msgs[0].topic)
	assert.True(t, msgs[0].retained)
	assert.JSONEq(t, string(phase), string(msgs[0].payload.([]byte)))

	assert.Equal(t, "factory/station-3/"+replaceDots(models.NotificationTestStatus), msgs[1].topic)
	assert.False(t, msgs[1].retained)

	p.Stop()
	p.Stop()
	assert.Equal(t, 1, client.disconnects)
}

func TestPublishFilteredAndInvalid(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	p := newTestPublisher(client, []string{models.NotificationPhase})
	ch := make(chan models.Notification, 4)
	require.NoError(t, p.Start(ch))

	ch <- models.Notification{Method: models.NotificationTestStatus, Params: json.RawMessage(`{}`)}
	ch <- models.Notification{Method: models.NotificationPhase, Params: json.RawMessage(`{broken`)}
	close(ch)

	select {
	case <-p.done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not exit on closed channel")
	}
	assert.Empty(t, client.published())
}

func TestStartConnectError(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.connectError = errors.New("refused")
	p := newTestPublisher(client, nil)

	err := p.Start(make(chan models.Notification))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "localhost:1883")
}

func TestPublishErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	client := newMockMQTTClient()
	client.publishError = errors.New("broker gone")
	p := newTestPublisher(client, nil)
	ch := make(chan models.Notification, 2)
	require.NoError(t, p.Start(ch))

	ch <- models.Notification{Method: models.NotificationPhase, Params: json.RawMessage(`{}`)}
	ch <- models.Notification{Method: models.NotificationPhase, Params: json.RawMessage(`{}`)}
	assert.Eventually(t, func() bool { return len(ch) == 0 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	p := NewMQTTPublisher("mqtt.local:1883", "line1", "station-1", nil)
	opts := p.clientOptions()
	reader := mqtt.NewOptionsReader(opts)

	require.Len(t, reader.Servers(), 1)
	assert.Equal(t, "tcp", reader.Servers()[0].Scheme)
	assert.Equal(t, "mqtt.local:1883", reader.Servers()[0].Host)
	assert.Equal(t, "line1/station-1/online", reader.WillTopic())
	assert.True(t, reader.WillRetained())
}

func replaceDots(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == '.' {
			out[i] = '/'
		}
	}
	return string(out)
}
