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

// Package httpclient builds the HTTP clients used to reach the cloud
// record service.
package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout = 15 * time.Second
	TokenHeader    = "token"
)

// TokenTransport adds the station's upload token to every request that
// does not already carry one.
type TokenTransport struct {
	Base  http.RoundTripper
	Token string
}

func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = DefaultTransport
	}
	if t.Token != "" && req.Header.Get(TokenHeader) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(TokenHeader, t.Token)
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP round trip: %w", err)
	}
	return resp, nil
}

// DefaultTransport is shared by every client so idle connections to the
// record service are reused between uploads.
var DefaultTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ResponseHeaderTimeout: 15 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	MaxIdleConns:          10,
	MaxIdleConnsPerHost:   2,
	IdleConnTimeout:       90 * time.Second,
}

// NewClient returns a client that authenticates with token. A zero
// timeout uses DefaultTimeout.
func NewClient(token string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: &TokenTransport{Base: DefaultTransport, Token: token},
		Timeout:   timeout,
	}
}
