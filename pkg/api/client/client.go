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

// Package client talks to a running station's local API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrRequestTimeout   = errors.New("request timed out")
	ErrInvalidParams    = errors.New("invalid params")
	ErrRequestCancelled = errors.New("request cancelled")
)

const APIPath = "/api"

// LocalURL is the websocket address of the API on this host.
func LocalURL(cfg *config.Instance) string {
	u := url.URL{
		Scheme: "ws",
		Host:   "localhost:" + strconv.Itoa(cfg.APIPort()),
		Path:   APIPath,
	}
	return u.String()
}

// LocalClient sends one method call to the station and waits for its
// response. params must be empty or valid JSON.
func LocalClient(ctx context.Context, cfg *config.Instance, method, params string) (string, error) {
	return Call(ctx, LocalURL(cfg), config.APIRequestLimit, method, params)
}

func Call(ctx context.Context, wsURL string, timeout time.Duration, method, params string) (string, error) {
	id, err := json.Marshal(uuid.New().String())
	if err != nil {
		return "", fmt.Errorf("failed to encode request id: %w", err)
	}

	req := models.RequestObject{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
	}
	if params != "" {
		if !json.Valid([]byte(params)) {
			return "", ErrInvalidParams
		}
		req.Params = json.RawMessage(params)
	}

	c, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("closing websocket")
		}
	}()

	done := make(chan *models.ResponseObject, 1)
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				return
			}
			var m models.ResponseObject
			if err := json.Unmarshal(message, &m); err != nil {
				continue
			}
			// notifications share the socket and carry no id
			if m.JSONRPC != "2.0" || string(m.ID) != string(id) {
				continue
			}
			done <- &m
			return
		}
	}()

	if err := c.WriteJSON(req); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var m *models.ResponseObject
	select {
	case m = <-done:
	case <-timer.C:
		return "", ErrRequestTimeout
	case <-ctx.Done():
		return "", ErrRequestCancelled
	}

	if m == nil {
		return "", ErrRequestTimeout
	}
	if m.Error != nil {
		return "", errors.New(m.Error.Message)
	}

	b, err := json.Marshal(m.Result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}
