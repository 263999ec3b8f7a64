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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStation answers every request with reply, after first pushing a
// notification on the same socket.
func fakeStation(t *testing.T, reply func(req models.RequestObject) any) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = c.Close() }()
		for {
			var req models.RequestObject
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			_ = c.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"method":  models.NotificationPhase,
				"params":  models.PhaseParams{Phase: "Booting"},
			})
			if out := reply(req); out != nil {
				_ = c.WriteJSON(out)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + APIPath
}

func TestCall_Result(t *testing.T) {
	t.Parallel()

	seen := make(chan models.RequestObject, 1)
	wsURL := fakeStation(t, func(req models.RequestObject) any {
		seen <- req
		return models.ResponseObject{JSONRPC: "2.0", ID: req.ID, Result: map[string]int{"pending": 3}}
	})

	out, err := Call(context.Background(), wsURL, time.Second, models.MethodUploads, `{"a":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending":3}`, out)
	got := <-seen
	assert.Equal(t, models.MethodUploads, got.Method)
	assert.JSONEq(t, `{"a":1}`, string(got.Params))
}

func TestCall_ErrorObject(t *testing.T) {
	t.Parallel()

	wsURL := fakeStation(t, func(req models.RequestObject) any {
		return models.ResponseErrorObject{
			JSONRPC: "2.0", ID: req.ID,
			Error: &models.ErrorObject{Code: 1, Message: "unknown dialog"},
		}
	})

	_, err := Call(context.Background(), wsURL, time.Second, models.MethodDialogsRespond, "")
	require.EqualError(t, err, "unknown dialog")
}

func TestCall_IgnoresOtherIDs(t *testing.T) {
	t.Parallel()

	wsURL := fakeStation(t, func(models.RequestObject) any {
		other, _ := json.Marshal("someone-else")
		return models.ResponseObject{JSONRPC: "2.0", ID: other, Result: true}
	})

	_, err := Call(context.Background(), wsURL, 200*time.Millisecond, models.MethodStatus, "")
	require.ErrorIs(t, err, ErrRequestTimeout)
}

func TestCall_InvalidParams(t *testing.T) {
	t.Parallel()

	_, err := Call(context.Background(), "ws://127.0.0.1:1/api", time.Second, models.MethodStatus, "{nope")
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestCall_Cancelled(t *testing.T) {
	t.Parallel()

	wsURL := fakeStation(t, func(models.RequestObject) any { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Call(ctx, wsURL, 5*time.Second, models.MethodStatus, "")
	require.ErrorIs(t, err, ErrRequestCancelled)
}

func TestCall_ConnectFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + APIPath
	srv.Close()

	_, err := Call(context.Background(), wsURL, time.Second, models.MethodStatus, "")
	require.Error(t, err)
}
