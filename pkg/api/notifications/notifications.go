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

// Package notifications builds the events the controller pushes to operator
// interfaces. Sends never block: a full channel drops the event.
package notifications

import (
	"encoding/json"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/rs/zerolog/log"
)

func send(ns chan<- models.Notification, method string, payload any) {
	if ns == nil {
		return
	}

	var params json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("marshalling notification params")
			return
		}
		params = b
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification channel full, dropping event")
	}
}

func TestStatus(ns chan<- models.Notification, subsystem, status string) {
	send(ns, models.NotificationTestStatus, models.TestStatusParams{
		ButtonID: subsystem,
		Status:   status,
	})
}

func Phase(ns chan<- models.Notification, phase string) {
	send(ns, models.NotificationPhase, models.PhaseParams{Phase: phase})
}

func CurrentDevice(ns chan<- models.Notification, device string) {
	send(ns, models.NotificationCurrentDevice, device)
}

func SerialNumber(ns chan<- models.Notification, serial string) {
	send(ns, models.NotificationSerialNumber, serial)
}

func TargetIP(ns chan<- models.Notification, ip string) {
	send(ns, models.NotificationTargetIP, ip)
}

func MachineCode(ns chan<- models.Notification, code string) {
	send(ns, models.NotificationMachineCode, code)
}

func ShowDialog(ns chan<- models.Notification, payload models.DialogParams) {
	send(ns, models.NotificationShowDialog, payload)
}

func DialogClosed(ns chan<- models.Notification, id, choice string) {
	send(ns, models.NotificationDialogClosed, models.DialogClosedParams{
		DialogID: id,
		Choice:   choice,
	})
}

func UploadCount(ns chan<- models.Notification, count int) {
	send(ns, models.NotificationUploadCount, count)
}

const (
	ServerOnline  = "online"
	ServerOffline = "offline"
)

func ServerStatus(ns chan<- models.Notification, ok bool) {
	status := ServerOffline
	if ok {
		status = ServerOnline
	}
	send(ns, models.NotificationServerStatus, status)
}

func RunFinished(ns chan<- models.Notification, payload models.RunFinishedParams) {
	send(ns, models.NotificationRunFinished, payload)
}
