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

package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/notifications"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/rs/zerolog/log"
)

const maxEvents = 200

// Model is the screen state folded from station notifications. It holds
// no tview types so it can be tested without a terminal.
type Model struct {
	now         func() time.Time
	Status      map[orchestrator.Subsystem]string
	Phase       string
	Device      string
	Serial      string
	TargetIP    string
	MachineCode string
	Server      string
	Events      []string
	Uploads     int
}

func NewModel(now func() time.Time) *Model {
	if now == nil {
		now = time.Now
	}
	return &Model{
		now:      now,
		Status:   make(map[orchestrator.Subsystem]string),
		Phase:    "-",
		Device:   "-",
		Serial:   "-",
		TargetIP: "-",
		Server:   "-",
	}
}

func (m *Model) event(format string, args ...any) {
	line := m.now().Format(time.TimeOnly) + " " + fmt.Sprintf(format, args...)
	m.Events = append(m.Events, line)
	if len(m.Events) > maxEvents {
		m.Events = m.Events[len(m.Events)-maxEvents:]
	}
}

func decode[T any](n models.Notification) (T, bool) {
	var v T
	if err := json.Unmarshal(n.Params, &v); err != nil {
		log.Debug().Err(err).Str("method", n.Method).Msg("tui: bad notification params")
		return v, false
	}
	return v, true
}

// Apply folds one notification into the model.
func (m *Model) Apply(n models.Notification) {
	switch n.Method {
	case models.NotificationTestStatus:
		p, ok := decode[models.TestStatusParams](n)
		if !ok {
			return
		}
		prev := m.Status[orchestrator.Subsystem(p.ButtonID)]
		m.Status[orchestrator.Subsystem(p.ButtonID)] = p.Status
		if p.Status == orchestrator.Failed.String() && prev != p.Status {
			m.event("%s failed", p.ButtonID)
		}
	case models.NotificationPhase:
		if p, ok := decode[models.PhaseParams](n); ok && p.Phase != m.Phase {
			m.Phase = p.Phase
			m.event("phase: %s", p.Phase)
		}
	case models.NotificationCurrentDevice:
		if v, ok := decode[string](n); ok {
			m.Device = v
		}
	case models.NotificationSerialNumber:
		if v, ok := decode[string](n); ok {
			m.Serial = v
			if v != "" && v != "-" {
				m.event("serial assigned: %s", v)
			}
		}
	case models.NotificationTargetIP:
		if v, ok := decode[string](n); ok {
			m.TargetIP = v
		}
	case models.NotificationMachineCode:
		if v, ok := decode[string](n); ok {
			m.MachineCode = v
		}
	case models.NotificationUploadCount:
		if v, ok := decode[int](n); ok {
			m.Uploads = v
		}
	case models.NotificationServerStatus:
		if v, ok := decode[string](n); ok {
			m.Server = v
		}
	case models.NotificationShowDialog:
		if p, ok := decode[models.DialogParams](n); ok {
			m.event("operator: %s", p.Message)
		}
	case models.NotificationDialogClosed:
		if p, ok := decode[models.DialogClosedParams](n); ok && p.Choice != "" {
			m.event("answered: %s", p.Choice)
		}
	case models.NotificationRunFinished:
		p, ok := decode[models.RunFinishedParams](n)
		if !ok {
			return
		}
		if p.Pass {
			m.event("%s PASSED", p.Serial)
		} else {
			m.event("%s FAILED: %s", p.Serial, strings.Join(p.Defects, "; "))
		}
	}
}

// Rows lists the subsystems to show, skipping those that were never
// reported for the current unit.
func (m *Model) Rows() []orchestrator.Subsystem {
	rows := make([]orchestrator.Subsystem, 0, len(m.Status))
	for _, s := range orchestrator.AllSubsystems {
		if st, ok := m.Status[s]; ok && st != orchestrator.Hidden.String() {
			rows = append(rows, s)
		}
	}
	return rows
}

func (m *Model) Header(t *Theme) string {
	server := fmt.Sprintf("[%s]%s[-]", t.SecondaryColorName, m.Server)
	switch m.Server {
	case notifications.ServerOnline:
		server = fmt.Sprintf("[%s]%s[-]", t.SuccessColorName, m.Server)
	case notifications.ServerOffline:
		server = fmt.Sprintf("[%s]%s[-]", t.ErrorColorName, m.Server)
	}
	return fmt.Sprintf(
		"[::b]Station:[::-] %s   [::b]Phase:[::-] [%s]%s[-]\n"+
			"[::b]Device:[::-] %s   [::b]Serial:[::-] %s   [::b]Target:[::-] %s\n"+
			"[::b]Uploads pending:[::-] %d   [::b]Server:[::-] %s",
		m.MachineCode, t.AccentColorName, m.Phase,
		m.Device, m.Serial, m.TargetIP,
		m.Uploads, server,
	)
}
