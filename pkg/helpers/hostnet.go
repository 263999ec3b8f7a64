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
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"
)

var ErrHostIPMissing = errors.New("host IP not configured on any interface")

// InterfaceLister returns the host NICs. It is a variable so tests can
// replace it.
var InterfaceLister = gnet.InterfacesWithContext

// HostInterface finds the NIC that carries ip, so the station can warn
// before a run when the fixture network is unplugged or misconfigured.
func HostInterface(ctx context.Context, ip string) (string, error) {
	want := net.ParseIP(ip)
	if want == nil {
		return "", fmt.Errorf("invalid host IP %q", ip)
	}

	ifaces, err := InterfaceLister(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			s := addr.Addr
			if i := strings.IndexByte(s, '/'); i >= 0 {
				s = s[:i]
			}
			if got := net.ParseIP(s); got != nil && got.Equal(want) {
				return iface.Name, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrHostIPMissing, ip)
}
