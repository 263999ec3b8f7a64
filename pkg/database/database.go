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

package database

import (
	"context"
	"time"
)

// Run is one unit's pass through the fixture, as kept in the history DB.
type Run struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	ID         string    `json:"id"`
	Serial     string    `json:"serial"`
	Hardware   string    `json:"hardware"`
	Defects    []string  `json:"defects"`
	DBID       int64     `json:"-"`
	Pass       bool      `json:"pass"`
}

// RunStats are totals over the whole history.
type RunStats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}

// HistoryDBI is implemented by historydb and its mocks.
type HistoryDBI interface {
	AddRun(ctx context.Context, run *Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	RunsForSerial(ctx context.Context, serial string) ([]Run, error)
	CountRuns(ctx context.Context) (RunStats, error)
	Close() error
}
