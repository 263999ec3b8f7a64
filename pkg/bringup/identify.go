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
	"regexp"
	"strings"
)

// Markers printed by the hardware detection script on the target.
const (
	markerPrompt   = "弹窗内容："
	markerType     = "当前板卡的类型为："
	markerSerial   = "当前板卡的串号为："
	markerWiFi     = "当前板卡有wifi模块"
	markerSocID    = "SOC ID: "
	unknownBoard   = "Unknown"
	namePrefix     = "NanoKVM-"
	hardwareFormat = "NanoKVM_Pro (%s) "
)

// HardwareReport is what the detection script says about the unit.
type HardwareReport struct {
	// Prompt is an operator question the script wants answered, usually
	// whether to clear pass markers from an earlier run.
	Prompt    string
	BoardType string
	Serial    string
	SocID     string
	WiFi      bool
}

func ParseHardwareReport(out string) HardwareReport {
	return HardwareReport{
		Prompt:    field(out, markerPrompt),
		BoardType: field(out, markerType),
		Serial:    field(out, markerSerial),
		SocID:     field(out, markerSocID),
		WiFi:      strings.Contains(out, markerWiFi),
	}
}

// field returns the trimmed text between marker and the next newline. A
// marker without a terminating newline is treated as absent.
func field(out, marker string) string {
	_, rest, ok := strings.Cut(out, marker)
	if !ok {
		return ""
	}
	line, _, ok := strings.Cut(rest, "\n")
	if !ok {
		return ""
	}
	return strings.TrimSpace(line)
}

var serialRe = regexp.MustCompile(`\bN[de][a-z][a-zA-Z][0-9][0-9A-F]{4}\b`)

// ParseSerial picks a serial number out of captured console text, skipping
// the echoed command and prompt around it.
func ParseSerial(out string) string {
	return serialRe.FindString(out)
}

// NeedsRevision reports whether a board type lacks the "-<rev>" suffix.
func NeedsRevision(boardType string) bool {
	return !strings.Contains(boardType, "-")
}
