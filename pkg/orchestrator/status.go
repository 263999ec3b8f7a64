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

// Package orchestrator runs the per-subsystem hardware tests in parallel once
// the target is identified, and keeps the shared result table and defect list.
package orchestrator

import (
	"fmt"
	"slices"
)

type Status int

const (
	Untested Status = iota
	Testing
	Repairing
	Success
	Failed
	Hidden
)

var statusNames = [...]string{"untested", "testing", "repairing", "success", "failed", "hidden"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	i := slices.Index(statusNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("unknown status %q", b)
	}
	*s = Status(i)
	return nil
}

type Subsystem string

const (
	Connection     Subsystem = "connection"
	Boot           Subsystem = "boot"
	HardwareID     Subsystem = "hardware-id"
	Storage        Subsystem = "storage"
	DisplayIO      Subsystem = "display-io"
	DisplayLoop    Subsystem = "display-loop"
	DisplayCapture Subsystem = "display-capture"
	DisplayVersion Subsystem = "display-version"
	DisplayEDID    Subsystem = "display-edid"
	USB            Subsystem = "usb"
	EthernetUp     Subsystem = "ethernet-up"
	EthernetDown   Subsystem = "ethernet-down"
	WiFiConnect    Subsystem = "wifi-connect"
	WiFiUp         Subsystem = "wifi-up"
	WiFiDown       Subsystem = "wifi-down"
	Panel          Subsystem = "panel"
	Touch          Subsystem = "touch"
	Knob           Subsystem = "knob"
	Power          Subsystem = "power"
	GPIO           Subsystem = "gpio"
	StorageCard    Subsystem = "storage-card"
	UART           Subsystem = "uart"
	Finalize       Subsystem = "finalize"
)

// AllSubsystems is the fixed set, in display order.
var AllSubsystems = []Subsystem{
	Connection, Boot, HardwareID, Storage,
	DisplayIO, DisplayLoop, DisplayCapture, DisplayVersion, DisplayEDID,
	USB, EthernetUp, EthernetDown, WiFiConnect, WiFiUp, WiFiDown,
	Panel, Touch, Knob, Power, GPIO, StorageCard, UART, Finalize,
}

// BringupSubsystems are driven by the console state machine, not by tasks.
var BringupSubsystems = []Subsystem{Connection, Boot, HardwareID, Storage}

func KnownSubsystem(s string) bool {
	return slices.Contains(AllSubsystems, Subsystem(s))
}
