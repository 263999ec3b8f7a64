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

package records

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte('a'), WeekCode(1))
	assert.Equal(t, byte('z'), WeekCode(26))
	assert.Equal(t, byte('A'), WeekCode(27))
	assert.Equal(t, byte('Z'), WeekCode(52))
	assert.Equal(t, byte('Z'), WeekCode(53))
}

func TestYearCode(t *testing.T) {
	t.Parallel()

	c, err := YearCode(2025)
	require.NoError(t, err)
	assert.Equal(t, byte('a'), c)

	c, err = YearCode(2026)
	require.NoError(t, err)
	assert.Equal(t, byte('b'), c)

	_, err = YearCode(2024)
	require.ErrorIs(t, err, ErrYearOutOfRange)
	_, err = YearCode(2051)
	require.ErrorIs(t, err, ErrYearOutOfRange)
}

func TestConfigCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte('d'), ConfigCode("NanoKVM-ATX-F"))
	assert.Equal(t, byte('e'), ConfigCode("NanoKVM-Desk-F"))
	assert.Equal(t, byte('e'), ConfigCode(""))
}

func TestNextSerial(t *testing.T) {
	t.Parallel()

	s, _ := newMemStore(t)
	// 2026-10-18 is in ISO week 42
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))

	serial, err := s.NextSerial("ATX-F", 3, clock)
	require.NoError(t, err)
	assert.Equal(t, "NdbP30000", serial)

	require.NoError(t, s.SetPass(serial, false))
	for range 10 {
		next, err := s.NextSerial("ATX-F", 3, clock)
		require.NoError(t, err)
		require.NoError(t, s.SetPass(next, false))
	}

	serial, err = s.NextSerial("ATX-F", 3, clock)
	require.NoError(t, err)
	assert.Equal(t, "NdbP3000B", serial)

	desk, err := s.NextSerial("Desk-F", 3, clock)
	require.NoError(t, err)
	assert.Equal(t, "NebP30000", desk)
}

func TestSerialPrefix_ISOYearBoundary(t *testing.T) {
	t.Parallel()

	// 2025-12-29 belongs to ISO week 1 of 2026
	p, err := SerialPrefix("Desk", 1, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "Neba1", p)
}
