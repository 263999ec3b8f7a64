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

package requests

import (
	"context"
	"encoding/json"

	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/ZaparooProject/factory-test/pkg/dialog"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/service/state"
)

// RequestEnv is everything a method handler may touch.
type RequestEnv struct {
	Context context.Context
	Config  *config.Instance
	State   *state.State
	Results *orchestrator.Results
	Defects *orchestrator.Defects
	Dialogs *dialog.Manager
	History database.HistoryDBI
	Records *records.Store
	Queue   *records.Queue
	// OnReload runs after settings.reload loads the file.
	OnReload func()
	ID       json.RawMessage
	Params   json.RawMessage
	IsLocal  bool
}
