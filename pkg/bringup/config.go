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

package bringup

import (
	"fmt"
	"time"
)

// Config holds the console prompts, credentials and network layout of the
// fixture.
type Config struct {
	LoginPrompt      string
	ShellPrompt      string
	BootloaderPrompt string
	PasswordPrompt   string
	WelcomeBanner    string
	Username         string
	Password         string

	HostIP    string
	TargetIP  string
	Interface string

	Payload         string
	RemoteDir       string
	HardwareScript  string
	ClearScript     string
	StorageScript   string
	StorageMarker   string
	FinalizeCommand string
	FinalizeMarker  string
	BoardVersion    string
	// SerialFile is where a previous run left the unit's serial.
	SerialFile string

	UncertainTimeout time.Duration
	BootingTimeout   time.Duration
	CommandTimeout   time.Duration
	PingTimeout      time.Duration
	SettleDelay      time.Duration
	CaptureSettle    time.Duration
	PollInterval     time.Duration
	LoopPause        time.Duration
	DownloadPause    time.Duration

	BootingMinDensity int
	NoTargetThreshold int
	PingRetries       int
	DownloadRetries   int
	FileServerPort    int
	PrefixLen         int
	MachineNumber     int

	StaticIP bool
}

func DefaultConfig() Config {
	return Config{
		LoginPrompt:      "login",
		ShellPrompt:      ":~#",
		BootloaderPrompt: "AXERA-UBOOT=>",
		PasswordPrompt:   "Password",
		WelcomeBanner:    "Welcome",
		Username:         "root",
		Password:         "sipeed",

		HostIP:    "172.168.100.1",
		TargetIP:  "172.168.100.2",
		Interface: "eth0",

		Payload:         "/root/test.tar",
		RemoteDir:       "/root/NanoKVM_Pro_Testing",
		HardwareScript:  "/root/NanoKVM_Pro_Testing/test_sh/01_test_hardware.sh",
		ClearScript:     "/root/NanoKVM_Pro_Testing/test_sh/02_rm_tested.sh",
		StorageScript:   "/root/NanoKVM_Pro_Testing/test_sh/03_test_emmc.sh",
		StorageMarker:   "eMMC test passed",
		FinalizeCommand: "mkdir -p /etc/test-kvm && echo {serial} > /etc/test-kvm/serial && cat /etc/test-kvm/serial",
		FinalizeMarker:  "{serial}",
		BoardVersion:    "B",
		SerialFile:      "/etc/test-kvm/serial",

		UncertainTimeout: time.Second,
		BootingTimeout:   30 * time.Second,
		CommandTimeout:   time.Second,
		PingTimeout:      time.Second,
		SettleDelay:      2 * time.Second,
		CaptureSettle:    200 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
		LoopPause:        100 * time.Millisecond,
		DownloadPause:    time.Second,

		BootingMinDensity: 10,
		NoTargetThreshold: 10,
		PingRetries:       10,
		DownloadRetries:   5,
		FileServerPort:    8080,
		PrefixLen:         24,
		MachineNumber:     1,

		StaticIP: true,
	}
}

func (c *Config) downloadURL() string {
	return fmt.Sprintf("http://%s:%d/download", c.HostIP, c.FileServerPort)
}
