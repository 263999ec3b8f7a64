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

// Package historydb keeps an append-only sqlite log of every unit run on
// this station.
package historydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DBFile           = "history.db"
	sqliteConnParams = "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
)

var ErrNullSQL = errors.New("history database is not connected")

type HistoryDB struct {
	sql *sql.DB
}

// Open opens (creating and migrating if needed) the database in dir.
func Open(ctx context.Context, dir string) (*HistoryDB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}
	sqlInstance, err := sql.Open("sqlite3", filepath.Join(dir, DBFile)+sqliteConnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlInstance.PingContext(ctx); err != nil {
		_ = sqlInstance.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db := &HistoryDB{sql: sqlInstance}
	if err := db.MigrateUp(); err != nil {
		_ = sqlInstance.Close()
		return nil, err
	}
	return db, nil
}

// FromSQL wraps an existing connection without migrating it.
func FromSQL(db *sql.DB) *HistoryDB {
	return &HistoryDB{sql: db}
}

func (db *HistoryDB) MigrateUp() error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlMigrateUp(db.sql)
}

func (db *HistoryDB) AddRun(ctx context.Context, run *database.Run) error {
	if db.sql == nil {
		return ErrNullSQL
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return sqlAddRun(ctx, db.sql, run)
}

// RecentRuns returns up to limit runs, newest first.
func (db *HistoryDB) RecentRuns(ctx context.Context, limit int) ([]database.Run, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	if limit <= 0 {
		limit = 25
	}
	return sqlRecentRuns(ctx, db.sql, limit)
}

func (db *HistoryDB) RunsForSerial(ctx context.Context, serial string) ([]database.Run, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	return sqlRunsForSerial(ctx, db.sql, serial)
}

func (db *HistoryDB) CountRuns(ctx context.Context) (database.RunStats, error) {
	if db.sql == nil {
		return database.RunStats{}, ErrNullSQL
	}
	return sqlCountRuns(ctx, db.sql)
}

func (db *HistoryDB) Close() error {
	if db.sql == nil {
		return nil
	}
	if err := db.sql.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
