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

package historydb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func sqlMigrateUp(db *sql.DB) error {
	if err := database.MigrateUp(db, migrationFiles, "migrations"); err != nil {
		return fmt.Errorf("failed to run history database migrations: %w", err)
	}
	return nil
}

func sqlAddRun(ctx context.Context, db *sql.DB, run *database.Run) error {
	stmt, err := db.PrepareContext(ctx, `
		insert into Runs(
			ID, Serial, Hardware, StartedAt, FinishedAt, Pass, Defects
		) values (?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare run insert statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql statement")
		}
	}()

	res, err := stmt.ExecContext(ctx,
		run.ID,
		run.Serial,
		run.Hardware,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
		run.Pass,
		strings.Join(run.Defects, "\n"),
	)
	if err != nil {
		return fmt.Errorf("failed to execute run insert: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.DBID = id
	}
	return nil
}

const runColumns = `DBID, ID, Serial, Hardware, StartedAt, FinishedAt, Pass, Defects`

func scanRuns(rows *sql.Rows) ([]database.Run, error) {
	list := make([]database.Run, 0, 25)
	for rows.Next() {
		var (
			r        database.Run
			started  int64
			finished int64
			defects  string
		)
		if err := rows.Scan(
			&r.DBID, &r.ID, &r.Serial, &r.Hardware,
			&started, &finished, &r.Pass, &defects,
		); err != nil {
			return list, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		if defects != "" {
			r.Defects = strings.Split(defects, "\n")
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return list, fmt.Errorf("error iterating run rows: %w", err)
	}
	return list, nil
}

func sqlRecentRuns(ctx context.Context, db *sql.DB, limit int) ([]database.Run, error) {
	rows, err := db.QueryContext(ctx,
		`select `+runColumns+` from Runs order by DBID desc limit ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close rows")
		}
	}()
	return scanRuns(rows)
}

func sqlRunsForSerial(ctx context.Context, db *sql.DB, serial string) ([]database.Run, error) {
	rows, err := db.QueryContext(ctx,
		`select `+runColumns+` from Runs where Serial = ? order by DBID desc;`, serial)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for serial: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close rows")
		}
	}()
	return scanRuns(rows)
}

func sqlCountRuns(ctx context.Context, db *sql.DB) (database.RunStats, error) {
	var (
		stats  database.RunStats
		passed sql.NullInt64
	)
	err := db.QueryRowContext(ctx,
		`select count(*), sum(Pass) from Runs;`,
	).Scan(&stats.Total, &passed)
	if err != nil {
		return stats, fmt.Errorf("failed to count runs: %w", err)
	}
	stats.Passed = int(passed.Int64)
	return stats, nil
}
