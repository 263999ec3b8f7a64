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

package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrFixtureNotFound is returned by a Scanner when no port matches.
var ErrFixtureNotFound = errors.New("test fixture not found")

// Port is the subset of go.bug.st/serial.Port the manager drives. It is an
// interface so tests can substitute a scripted port.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// PortFactory opens a port by path.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

// DefaultPortFactory opens a real serial port.
func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

// Scanner locates the fixture and returns its port path.
type Scanner func() (string, error)

// USBScanner matches the first USB serial port with the given vendor and
// product IDs. IDs are hex strings as reported by the OS, e.g. "1a86".
func USBScanner(vid, pid string) Scanner {
	return func() (string, error) {
		ports, err := enumerator.GetDetailedPortsList()
		if err != nil {
			return "", fmt.Errorf("failed to list serial ports: %w", err)
		}
		for _, p := range ports {
			if !p.IsUSB {
				continue
			}
			if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
				return p.Name, nil
			}
		}
		return "", ErrFixtureNotFound
	}
}

// SerialMode is the console framing: 8 data bits, no parity, one stop bit.
func SerialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// IsDisconnect reports whether err means the fixture is gone and the handle
// must be dropped. Everything else is treated as transient.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.ENXIO) ||
		errors.Is(err, syscall.EIO) {
		return true
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PermissionDenied, serial.PortClosed, serial.PortNotFound:
			return true
		default:
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "permission denied")
}
