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
	NetworkStatic = "static"
	NetworkRouter = "router"
)

type Console struct {
	LoginPrompt       string `toml:"login_prompt" validate:"required"`
	ShellPrompt       string `toml:"shell_prompt" validate:"required"`
	BootloaderPrompt  string `toml:"bootloader_prompt" validate:"required"`
	PasswordPrompt    string `toml:"password_prompt" validate:"required"`
	WelcomeBanner     string `toml:"welcome_banner" validate:"required"`
	Username          string `toml:"username" validate:"required"`
	Password          string `toml:"password"`
	PollInterval      string `toml:"poll_interval,omitempty" validate:"duration"`
	UncertainTimeout  string `toml:"uncertain_timeout,omitempty" validate:"duration"`
	BootingTimeout    string `toml:"booting_timeout,omitempty" validate:"duration"`
	CommandTimeout    string `toml:"command_timeout,omitempty" validate:"duration"`
	BootingMinDensity int    `toml:"booting_min_density" validate:"min=0"`
	NoTargetThreshold int    `toml:"no_target_threshold" validate:"min=1"`
}

var defaultConsole = Console{
	LoginPrompt:       "login",
	ShellPrompt:       ":~#",
	BootloaderPrompt:  "AXERA-UBOOT=>",
	PasswordPrompt:    "Password",
	WelcomeBanner:     "Welcome",
	Username:          "root",
	Password:          "sipeed",
	PollInterval:      "10ms",
	UncertainTimeout:  "1s",
	BootingTimeout:    "30s",
	CommandTimeout:    "1s",
	BootingMinDensity: 10,
	NoTargetThreshold: 10,
}

func (c *Instance) Console() Console {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Console
}

func (cs *Console) PollIntervalDuration() time.Duration {
	return duration(cs.PollInterval, 10*time.Millisecond)
}

func (cs *Console) UncertainTimeoutDuration() time.Duration {
	return duration(cs.UncertainTimeout, time.Second)
}

func (cs *Console) BootingTimeoutDuration() time.Duration {
	return duration(cs.BootingTimeout, 30*time.Second)
}

func (cs *Console) CommandTimeoutDuration() time.Duration {
	return duration(cs.CommandTimeout, time.Second)
}

type Network struct {
	Mode             string `toml:"mode" validate:"oneof=static router"`
	HostIP           string `toml:"host_ip" validate:"required,ipv4"`
	TargetIP         string `toml:"target_ip" validate:"required,ipv4"`
	Interface        string `toml:"interface" validate:"required"`
	SSHUser          string `toml:"ssh_user" validate:"required"`
	SSHPassword      string `toml:"ssh_password"`
	FileServerListen string `toml:"file_server_listen,omitempty"`
	PrefixLen        int    `toml:"prefix_len" validate:"min=8,max=30"`
	PingRetries      int    `toml:"ping_retries" validate:"min=1"`
	SSHPort          int    `toml:"ssh_port" validate:"min=1,max=65535"`
	FileServerPort   int    `toml:"file_server_port" validate:"min=1,max=65535"`
}

var defaultNetwork = Network{
	Mode:           NetworkStatic,
	HostIP:         "172.168.100.1",
	TargetIP:       "172.168.100.2",
	Interface:      "eth0",
	SSHUser:        "root",
	SSHPassword:    "sipeed",
	PrefixLen:      24,
	PingRetries:    10,
	SSHPort:        22,
	FileServerPort: 8080,
}

func (c *Instance) Network() Network {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Network
}

func (c *Instance) StaticNetwork() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Network.Mode != NetworkRouter
}
