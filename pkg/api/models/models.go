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

package models

import (
	"encoding/json"
	"time"
)

const (
	MethodStatus         = "status"
	MethodResults        = "results"
	MethodDialogsPending = "dialogs.pending"
	MethodDialogsRespond = "dialogs.respond"
	MethodRecordsRecent  = "records.recent"
	MethodRecordsGet     = "records.get"
	MethodUploads        = "uploads"
	MethodSettings       = "settings"
	MethodSettingsReload = "settings.reload"
	MethodVersion        = "version"
)

const (
	NotificationTestStatus    = "test-button-status-update"
	NotificationPhase         = "phase-update"
	NotificationCurrentDevice = "current-device-update"
	NotificationSerialNumber  = "serial-number-update"
	NotificationTargetIP      = "target-ip-update"
	NotificationMachineCode   = "machine-code-update"
	NotificationShowDialog    = "show-dialog"
	NotificationDialogClosed  = "dialog-closed"
	NotificationUploadCount   = "upload-count-update"
	NotificationServerStatus  = "server-status-update"
	NotificationRunFinished   = "run-finished"
)

type Notification struct {
	Method string
	Params json.RawMessage
}

type RequestObject struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ResponseObject struct {
	Result  any             `json:"result"`
	Error   *ErrorObject    `json:"error,omitempty"`
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
}

// ResponseErrorObject omits result so error replies carry only the error.
type ResponseErrorObject struct {
	Error   *ErrorObject    `json:"error"`
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
}

// notification payloads

type TestStatusParams struct {
	ButtonID string `json:"buttonId"`
	Status   string `json:"status"`
}

type PhaseParams struct {
	Phase string `json:"phase"`
}

type DialogParams struct {
	DialogID string   `json:"dialog_id"`
	Message  string   `json:"message"`
	Buttons  []string `json:"buttons"`
}

type DialogClosedParams struct {
	DialogID string `json:"dialog_id"`
	Choice   string `json:"choice"`
}

type RunFinishedParams struct {
	Serial  string   `json:"serial"`
	Defects []string `json:"defects,omitempty"`
	Pass    bool     `json:"pass"`
}

// request params

type DialogRespondParams struct {
	DialogID string `json:"dialog_id" validate:"required,uuid"`
	Choice   string `json:"choice" validate:"required"`
}

type RecordsRecentParams struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=500"`
}

type RecordGetParams struct {
	Serial string `json:"serial" validate:"required,serial"`
}

// responses

type StatusResponse struct {
	Device        DeviceResponse `json:"device"`
	Phase         string         `json:"phase"`
	Tool          string         `json:"tool"`
	TargetIP      string         `json:"targetIp"`
	MachineCode   string         `json:"machineCode"`
	Uptime        string         `json:"uptime,omitempty"`
	Density       int            `json:"density"`
	Uploads       int            `json:"uploads"`
	DroppedWrites uint64         `json:"droppedWrites"`
	EvictedReads  uint64         `json:"evictedReads"`
	ServerOK      bool           `json:"serverOk"`
}

type DeviceResponse struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Serial   string `json:"serial"`
	SocUID   string `json:"socUid"`
	WiFi     bool   `json:"wifi"`
	Detected bool   `json:"detected"`
}

type ResultsResponse struct {
	Results map[string]string `json:"results"`
	Defects []string          `json:"defects"`
}

type DialogsResponse struct {
	Dialogs []DialogParams `json:"dialogs"`
}

type RunResponse struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	ID         string    `json:"id"`
	Serial     string    `json:"serial"`
	Hardware   string    `json:"hardware"`
	Defects    []string  `json:"defects,omitempty"`
	Pass       bool      `json:"pass"`
}

type RecordsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"`
	Passed int           `json:"passed"`
}

type RecordResponse struct {
	Items      map[string]string `json:"items"`
	Serial     string            `json:"serial"`
	SocUID     string            `json:"socUid"`
	Hardware   string            `json:"hardware"`
	Runs       []RunResponse     `json:"runs"`
	WiFi       bool              `json:"wifi"`
	Pass       bool              `json:"pass"`
	Unuploaded bool              `json:"unuploaded"`
}

type UploadsResponse struct {
	Pending  []string `json:"pending"`
	ServerOK bool     `json:"serverOk"`
}

type SettingsResponse struct {
	BoardVersion  string `json:"boardVersion"`
	DesktopMode   string `json:"desktopMode"`
	TargetIP      string `json:"targetIp"`
	HostIP        string `json:"hostIp"`
	MachineNumber int    `json:"machineNumber"`
	StaticNetwork bool   `json:"staticNetwork"`
	PrinterOn     bool   `json:"printer"`
	UploadOn      bool   `json:"upload"`
}

type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}
