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

// Package methods implements the JSON-RPC handlers of the station API.
package methods

import (
	"errors"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/models/requests"
)

var ErrNotLocal = errors.New("method only allowed from localhost")

type Handler func(requests.RequestEnv) (any, error)

// Map is the method table served on /api.
var Map = map[string]Handler{
	models.MethodStatus:         HandleStatus,
	models.MethodResults:        HandleResults,
	models.MethodDialogsPending: HandleDialogsPending,
	models.MethodDialogsRespond: HandleDialogsRespond,
	models.MethodRecordsRecent:  HandleRecordsRecent,
	models.MethodRecordsGet:     HandleRecordGet,
	models.MethodUploads:        HandleUploads,
	models.MethodSettings:       HandleSettings,
	models.MethodSettingsReload: HandleSettingsReload,
	models.MethodVersion:        HandleVersion,
}
