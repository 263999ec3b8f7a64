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

package helpers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const readWait = 2 * time.Second

// APIClient is a JSON-RPC websocket client for exercising the API in
// tests. Notifications read while waiting for a response are kept for
// NextNotification.
type APIClient struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []models.RequestObject
	nextID  int
}

// JSONRPCResponse mirrors the wire reply with a raw result.
type JSONRPCResponse struct {
	Error   *models.ErrorObject `json:"error,omitempty"`
	JSONRPC string              `json:"jsonrpc"`
	ID      json.RawMessage     `json:"id"`
	Result  json.RawMessage     `json:"result"`
}

// DialAPI connects to the /api endpoint of an httptest server URL.
func DialAPI(t *testing.T, serverURL string) *APIClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c := &APIClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *APIClient) Conn() *websocket.Conn {
	return c.conn
}

// WriteRaw sends a text frame as-is.
func (c *APIClient) WriteRaw(msg string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

// ReadRaw returns the next text frame.
func (c *APIClient) ReadRaw() []byte {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readWait)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	return data
}

// Call sends a request and waits for the reply with the matching id.
func (c *APIClient) Call(method string, params any) JSONRPCResponse {
	c.t.Helper()
	c.nextID++
	id := json.RawMessage(strconv.Itoa(c.nextID))

	req := models.RequestObject{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		require.NoError(c.t, err)
		req.Params = b
	}
	b, err := json.Marshal(req)
	require.NoError(c.t, err)
	c.WriteRaw(string(b))

	for {
		data := c.ReadRaw()
		var head struct {
			Method string `json:"method"`
		}
		require.NoError(c.t, json.Unmarshal(data, &head))
		if head.Method != "" {
			var n models.RequestObject
			require.NoError(c.t, json.Unmarshal(data, &n))
			c.pending = append(c.pending, n)
			continue
		}
		var resp JSONRPCResponse
		require.NoError(c.t, json.Unmarshal(data, &resp))
		if string(resp.ID) == string(id) {
			return resp
		}
	}
}

// NextNotification returns the next server push, skipping nothing.
func (c *APIClient) NextNotification() models.RequestObject {
	c.t.Helper()
	if len(c.pending) > 0 {
		n := c.pending[0]
		c.pending = c.pending[1:]
		return n
	}
	var n models.RequestObject
	require.NoError(c.t, json.Unmarshal(c.ReadRaw(), &n))
	return n
}

// WaitNotification reads pushes until one with the given method arrives.
func (c *APIClient) WaitNotification(method string) models.RequestObject {
	c.t.Helper()
	for {
		n := c.NextNotification()
		if n.Method == method {
			return n
		}
	}
}
