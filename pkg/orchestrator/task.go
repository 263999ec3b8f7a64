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

package orchestrator

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/records"
)

type Kind string

const (
	KindScript     Kind = "script"
	KindConfirm    Kind = "confirm"
	KindThroughput Kind = "throughput"
)

// Variant is the board family reported by the hardware script.
type Variant string

const (
	VariantATX  Variant = "ATX"
	VariantDesk Variant = "Desk"
)

// Task is one entry of the test plan. Command may reference placeholders
// like {host_ip}, {target_ip}, {serial}, {hardware}, {ssid} and
// {wifi_password}.
type Task struct {
	Subsystem    Subsystem     `yaml:"subsystem"`
	Kind         Kind          `yaml:"kind"`
	Command      string        `yaml:"command"`
	Marker       string        `yaml:"marker"`
	Prompt       string        `yaml:"prompt"`
	Defect       string        `yaml:"defect"`
	Item         records.Item  `yaml:"item"`
	Variants     []Variant     `yaml:"variants"`
	Attempts     int           `yaml:"attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	Timeout      time.Duration `yaml:"timeout"`
	MinMbps      float64       `yaml:"min_mbps"`
	RequiresWiFi bool          `yaml:"requires_wifi"`
}

func (t *Task) Validate() error {
	if !KnownSubsystem(string(t.Subsystem)) {
		return fmt.Errorf("unknown subsystem %q", t.Subsystem)
	}
	if slices.Contains(BringupSubsystems, t.Subsystem) || t.Subsystem == Finalize {
		return fmt.Errorf("subsystem %q is not a plan task", t.Subsystem)
	}
	switch t.Kind {
	case KindScript:
		if t.Command == "" || t.Marker == "" {
			return fmt.Errorf("%s: script task needs command and marker", t.Subsystem)
		}
	case KindConfirm:
		if t.Prompt == "" {
			return fmt.Errorf("%s: confirm task needs a prompt", t.Subsystem)
		}
	case KindThroughput:
		if t.Command == "" {
			return fmt.Errorf("%s: throughput task needs a command", t.Subsystem)
		}
	default:
		return fmt.Errorf("%s: unknown task kind %q", t.Subsystem, t.Kind)
	}
	if t.Item != "" && !records.ValidItem(string(t.Item)) {
		return fmt.Errorf("%s: unknown record item %q", t.Subsystem, t.Item)
	}
	for _, v := range t.Variants {
		if v != VariantATX && v != VariantDesk {
			return fmt.Errorf("%s: unknown variant %q", t.Subsystem, v)
		}
	}
	if t.Attempts < 0 {
		return fmt.Errorf("%s: attempts must not be negative", t.Subsystem)
	}
	return nil
}

// AppliesTo reports whether the task exists on the given unit.
func (t *Task) AppliesTo(dev *Device) bool {
	if t.RequiresWiFi && !dev.WiFi {
		return false
	}
	return len(t.Variants) == 0 || slices.Contains(t.Variants, dev.Variant)
}

// Device is the identity of the unit under test.
type Device struct {
	Serial   string
	Hardware string
	Name     string
	TargetIP string
	SocID    string
	Variant  Variant
	WiFi     bool
}

// VariantOf derives the board family from a hardware description.
func VariantOf(hardware string) Variant {
	if strings.Contains(hardware, string(VariantATX)) {
		return VariantATX
	}
	return VariantDesk
}

func expand(cmd string, dev *Device, vars map[string]string) string {
	pairs := []string{
		"{serial}", dev.Serial,
		"{hardware}", dev.Hardware,
		"{target_ip}", dev.TargetIP,
	}
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(cmd)
}
