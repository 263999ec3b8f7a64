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

package methods

import (
	"fmt"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/models/requests"
	"github.com/rs/zerolog/log"
)

func HandleSettings(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	vals := env.Config.Snapshot()
	return models.SettingsResponse{
		BoardVersion:  vals.Station.BoardVersion,
		DesktopMode:   env.Config.DesktopMode(),
		TargetIP:      vals.Network.TargetIP,
		HostIP:        vals.Network.HostIP,
		MachineNumber: vals.Station.MachineNumber,
		StaticNetwork: env.Config.StaticNetwork(),
		PrinterOn:     vals.Printer.Enabled,
		UploadOn:      vals.Upload.Enabled,
	}, nil
}

// HandleSettingsReload re-reads the config file. Only local clients may
// trigger it.
func HandleSettingsReload(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	if !env.IsLocal {
		return nil, ErrNotLocal
	}
	log.Info().Msg("reloading settings from disk")
	if err := env.Config.Load(); err != nil {
		return nil, fmt.Errorf("failed to reload settings: %w", err)
	}
	if env.OnReload != nil {
		env.OnReload()
	}
	return HandleSettings(env)
}
