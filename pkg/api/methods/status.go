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
	"runtime"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/models/requests"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/mackerelio/go-osstat/uptime"
	"github.com/rs/zerolog/log"
)

func HandleVersion(_ requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	log.Info().Msg("received version request")
	return models.VersionResponse{
		Version:  config.AppVersion,
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}, nil
}

// HandleStatus reports the station overview. Host uptime is best effort.
func HandleStatus(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	resp := env.State.Status()
	if up, err := uptime.Get(); err == nil {
		resp.Uptime = up.Truncate(time.Second).String()
	} else {
		log.Debug().Err(err).Msg("host uptime unavailable")
	}
	return resp, nil
}

func HandleResults(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	snap := env.Results.Snapshot()
	out := make(map[string]string, len(snap))
	for sub, st := range snap {
		out[string(sub)] = st.String()
	}
	return models.ResultsResponse{
		Results: out,
		Defects: env.Defects.Lines(),
	}, nil
}
