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

// Package helpers provides shared test doubles and API test clients.
//
//	db := helpers.NewMockHistoryDBI()
//	db.On("RecentRuns", mock.Anything, 25).Return([]database.Run{}, nil)
//	...
//	db.AssertExpectations(t)
package helpers

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/stretchr/testify/mock"
)

type MockHistoryDBI struct {
	mock.Mock
}

func NewMockHistoryDBI() *MockHistoryDBI {
	return &MockHistoryDBI{}
}

func (m *MockHistoryDBI) AddRun(ctx context.Context, run *database.Run) error {
	args := m.Called(ctx, run)
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock HistoryDBI add run failed: %w", err)
	}
	return nil
}

func (m *MockHistoryDBI) RecentRuns(ctx context.Context, limit int) ([]database.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]database.Run)
	if err := args.Error(1); err != nil {
		return runs, fmt.Errorf("mock HistoryDBI recent runs failed: %w", err)
	}
	return runs, nil
}

func (m *MockHistoryDBI) RunsForSerial(ctx context.Context, serial string) ([]database.Run, error) {
	args := m.Called(ctx, serial)
	runs, _ := args.Get(0).([]database.Run)
	if err := args.Error(1); err != nil {
		return runs, fmt.Errorf("mock HistoryDBI runs for serial failed: %w", err)
	}
	return runs, nil
}

func (m *MockHistoryDBI) CountRuns(ctx context.Context) (database.RunStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(database.RunStats)
	if err := args.Error(1); err != nil {
		return stats, fmt.Errorf("mock HistoryDBI count runs failed: %w", err)
	}
	return stats, nil
}

func (m *MockHistoryDBI) Close() error {
	args := m.Called()
	if err := args.Error(0); err != nil {
		return fmt.Errorf("mock HistoryDBI close failed: %w", err)
	}
	return nil
}
