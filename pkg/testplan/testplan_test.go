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

package testplan

import (
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlan(t *testing.T) {
	t.Parallel()
	p := Default()

	subs := p.Subsystems()
	assert.Len(t, subs, 18)
	assert.NotContains(t, subs, orchestrator.Connection)
	assert.NotContains(t, subs, orchestrator.Finalize)

	byName := make(map[orchestrator.Subsystem]orchestrator.Task)
	for _, task := range p.Tasks {
		byName[task.Subsystem] = task
	}

	capture := byName[orchestrator.DisplayCapture]
	assert.Equal(t, 2*time.Second, capture.RetryDelay)
	assert.Equal(t, "new res", capture.Marker)
	assert.Equal(t, records.ItemLT6911, capture.Item)

	assert.Equal(t, []orchestrator.Variant{orchestrator.VariantDesk}, byName[orchestrator.Knob].Variants)
	assert.Equal(t, []orchestrator.Variant{orchestrator.VariantATX}, byName[orchestrator.Power].Variants)
	assert.True(t, byName[orchestrator.WiFiDown].RequiresWiFi)
	assert.Equal(t, orchestrator.KindThroughput, byName[orchestrator.EthernetDown].Kind)
	assert.Contains(t, byName[orchestrator.EthernetDown].Command, "http://{host_ip}:{file_port}/download")
	assert.Equal(t, "dtb文件更新成功", byName[orchestrator.DisplayIO].Marker)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no tasks", "version: 1\ntasks: []\n"},
		{"bad version", "version: 2\ntasks:\n  - {subsystem: usb, kind: confirm, prompt: p}\n"},
		{"unknown field", "version: 1\ntasks:\n  - {subsystem: usb, kind: confirm, promt: p}\n"},
		{"invalid task", "version: 1\ntasks:\n  - {subsystem: usb, kind: script}\n"},
		{
			"duplicate",
			"version: 1\ntasks:\n  - {subsystem: usb, kind: confirm, prompt: a}\n" +
				"  - {subsystem: usb, kind: confirm, prompt: b}\n",
		},
		{"not yaml", "version: [1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	plan := `version: 1
tasks:
  - subsystem: uart
    kind: script
    command: /opt/uart.sh
    marker: OK
    attempts: 5
    timeout: 10s
`
	require.NoError(t, afero.WriteFile(fs, "/etc/plan.yaml", []byte(plan), 0o600))

	p, err := Load(fs, "/etc/plan.yaml")
	require.NoError(t, err)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, 5, p.Tasks[0].Attempts)
	assert.Equal(t, 10*time.Second, p.Tasks[0].Timeout)

	p, err = Load(fs, "")
	require.NoError(t, err)
	assert.Len(t, p.Tasks, 18)

	_, err = Load(fs, "/missing.yaml")
	require.Error(t, err)
}
