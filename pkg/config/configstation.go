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

package config

import "time"

const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

type Station struct {
	BoardVersion  string `toml:"board_version" validate:"required,len=1,alpha"`
	DesktopMode   string `toml:"desktop_mode" validate:"omitempty,oneof=dark light"`
	MachineNumber int    `toml:"machine_number" validate:"min=1,max=9"`
}

var defaultStation = Station{
	BoardVersion:  "F",
	DesktopMode:   ThemeDark,
	MachineNumber: 1,
}

type Transport struct {
	VID              string `toml:"vid" validate:"required,hexadecimal,len=4"`
	PID              string `toml:"pid" validate:"required,hexadecimal,len=4"`
	ScanInterval     string `toml:"scan_interval,omitempty" validate:"duration"`
	ReadTimeout      string `toml:"read_timeout,omitempty" validate:"duration"`
	Baud             int    `toml:"baud" validate:"min=1200"`
	OpenFailureLimit int    `toml:"open_failure_limit" validate:"min=1"`
	QueueSize        int    `toml:"queue_size" validate:"min=1"`
	WindowSize       int    `toml:"window_size" validate:"min=1"`
}

var defaultTransport = Transport{
	VID:              "1a86",
	PID:              "55d3",
	ScanInterval:     "500ms",
	ReadTimeout:      "100ms",
	Baud:             115200,
	OpenFailureLimit: 20,
	QueueSize:        100,
	WindowSize:       10,
}

func (c *Instance) Transport() Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Transport
}

func (t *Transport) ScanIntervalDuration() time.Duration {
	return duration(t.ScanInterval, 500*time.Millisecond)
}

func (t *Transport) ReadTimeoutDuration() time.Duration {
	return duration(t.ReadTimeout, 100*time.Millisecond)
}

func (c *Instance) Station() Station {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Station
}

func (c *Instance) MachineNumber() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Station.MachineNumber
}

func (c *Instance) BoardVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Station.BoardVersion
}

func (c *Instance) DesktopMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Station.DesktopMode == "" {
		return ThemeDark
	}
	return c.vals.Station.DesktopMode
}
