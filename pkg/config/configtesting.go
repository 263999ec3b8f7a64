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

type Testing struct {
	Payload         string `toml:"payload" validate:"required"`
	RemoteDir       string `toml:"remote_dir" validate:"required"`
	PlanFile        string `toml:"plan_file,omitempty"`
	WiFiSSID        string `toml:"wifi_ssid,omitempty"`
	WiFiPassword    string `toml:"wifi_password,omitempty"`
	RetryDelay      string `toml:"retry_delay,omitempty" validate:"duration"`
	DownloadRetries int    `toml:"download_retries" validate:"min=1"`
	EthUpSpeed      int    `toml:"eth_up_speed" validate:"min=0"`
	EthDownSpeed    int    `toml:"eth_down_speed" validate:"min=0"`
	WiFiUpSpeed     int    `toml:"wifi_up_speed" validate:"min=0"`
	WiFiDownSpeed   int    `toml:"wifi_down_speed" validate:"min=0"`
}

var defaultTesting = Testing{
	Payload:         "/root/test.tar",
	RemoteDir:       "/root/NanoKVM_Pro_Testing",
	RetryDelay:      "1s",
	DownloadRetries: 5,
	EthUpSpeed:      300,
	EthDownSpeed:    500,
	WiFiUpSpeed:     10,
	WiFiDownSpeed:   10,
}

func (c *Instance) Testing() Testing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Testing
}

func (t *Testing) RetryDelayDuration() time.Duration {
	return duration(t.RetryDelay, time.Second)
}

// PlanFile is empty when the built-in plan should be used.
func (c *Instance) PlanFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Testing.PlanFile
}

type Printer struct {
	Name    string `toml:"name,omitempty"`
	Enabled bool   `toml:"enabled"`
}

var defaultPrinter = Printer{
	Enabled: true,
}

func (c *Instance) Printer() Printer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Printer
}

type Upload struct {
	URL            string `toml:"url" validate:"omitempty,url"`
	Token          string `toml:"token,omitempty"`
	ResultPassword string `toml:"result_password,omitempty"`
	Interval       string `toml:"interval,omitempty" validate:"duration"`
	Enabled        bool   `toml:"enabled"`
}

var defaultUpload = Upload{
	URL:      "https://maixvision.sipeed.com/api/v1/nanokvm",
	Interval: "10s",
	Enabled:  true,
}

func (c *Instance) Upload() Upload {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Upload
}

func (u *Upload) IntervalDuration() time.Duration {
	return duration(u.Interval, 10*time.Second)
}
