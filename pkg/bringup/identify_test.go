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
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleReport = "检测中...\n" +
	"弹窗内容：检测到上次产测记录，是否清除？\n" +
	"当前板卡的类型为：ATX-B\n" +
	"当前板卡的串号为：NdbP3000A\n" +
	"当前板卡有wifi模块\n" +
	"SOC ID: 4a1f09c2e7\n"

func TestParseHardwareReport(t *testing.T) {
	t.Parallel()
	rep := ParseHardwareReport(sampleReport)
	assert.Equal(t, HardwareReport{
		Prompt:    "检测到上次产测记录，是否清除？",
		BoardType: "ATX-B",
		Serial:    "NdbP3000A",
		SocID:     "4a1f09c2e7",
		WiFi:      true,
	}, rep)
}

func TestParseHardwareReport_Sparse(t *testing.T) {
	t.Parallel()
	rep := ParseHardwareReport("当前板卡的类型为：Desk\r\nSOC ID: 01")
	assert.Equal(t, "Desk", rep.BoardType)
	assert.Empty(t, rep.SocID, "unterminated line is ignored")
	assert.Empty(t, rep.Serial)
	assert.Empty(t, rep.Prompt)
	assert.False(t, rep.WiFi)
}

func TestNeedsRevision(t *testing.T) {
	t.Parallel()
	assert.True(t, NeedsRevision("ATX"))
	assert.True(t, NeedsRevision(unknownBoard))
	assert.False(t, NeedsRevision("Desk-B"))
}

func TestParseSerial(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "NdbP3000A",
		ParseSerial("cat /etc/test-kvm/serial\r\nNdbP3000A\r\nroot@kvm:~# "))
	assert.Empty(t, ParseSerial("cat: /etc/test-kvm/serial: No such file or directory\r\nroot@kvm:~# "))
	assert.Empty(t, ParseSerial("root@kvm:~# "))
}
