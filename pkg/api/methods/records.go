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
	"errors"
	"fmt"
	"sort"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/models/requests"
	"github.com/ZaparooProject/factory-test/pkg/api/validation"
	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/rs/zerolog/log"
)

const defaultRecentLimit = 25

var ErrRecordNotFound = errors.New("record not found")

func runResponses(runs []database.Run) []models.RunResponse {
	out := make([]models.RunResponse, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		out = append(out, models.RunResponse{
			StartedAt:  r.StartedAt,
			FinishedAt: r.FinishedAt,
			ID:         r.ID,
			Serial:     r.Serial,
			Hardware:   r.Hardware,
			Defects:    r.Defects,
			Pass:       r.Pass,
		})
	}
	return out
}

func HandleRecordsRecent(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.RecordsRecentParams
	if err := validation.UnmarshalOptional(env.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultRecentLimit
	}

	runs, err := env.History.RecentRuns(env.Context, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	stats, err := env.History.CountRuns(env.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	return models.RecordsResponse{
		Runs:   runResponses(runs),
		Total:  stats.Total,
		Passed: stats.Passed,
	}, nil
}

// HandleRecordGet merges the saved device record with every history run
// for that serial.
func HandleRecordGet(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	var params models.RecordGetParams
	if err := validation.ValidateAndUnmarshal(env.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	rec, err := env.Records.Load(params.Serial)
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	runs, err := env.History.RunsForSerial(env.Context, params.Serial)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if rec.DeviceInfo.Hardware == "" && len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, params.Serial)
	}

	items := make(map[string]string, len(rec.TestContent))
	for k, v := range rec.TestContent {
		items[string(k)] = v
	}
	log.Debug().Str("serial", params.Serial).Int("runs", len(runs)).Msg("record lookup")

	return models.RecordResponse{
		Items:      items,
		Serial:     rec.DeviceInfo.Serial,
		SocUID:     rec.DeviceInfo.SocUID,
		Hardware:   rec.DeviceInfo.Hardware,
		Runs:       runResponses(runs),
		WiFi:       rec.DeviceInfo.WiFiExist,
		Pass:       rec.DeviceInfo.TestPass,
		Unuploaded: rec.DeviceInfo.Unuploaded,
	}, nil
}

func HandleUploads(env requests.RequestEnv) (any, error) { //nolint:gocritic // single-use parameter in API handler
	pending, err := env.Queue.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list upload queue: %w", err)
	}
	sort.Strings(pending)
	return models.UploadsResponse{
		Pending:  pending,
		ServerOK: env.State.ServerOK(),
	}, nil
}
