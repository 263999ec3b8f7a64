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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Serial numbers look like NdaL10003:
//
//	N    product line
//	d/e  ATX or Desk variant
//	a    year, a=2025
//	L    ISO week, a-z for 1-26 and A-Z for 27-52
//	1    station machine number
//	0003 per-prefix count, upper-case hex
const (
	productCode = 'N'
	firstYear   = 2025
)

var ErrYearOutOfRange = errors.New("year has no serial code")

func ConfigCode(hardware string) byte {
	if strings.Contains(strings.ToUpper(hardware), "ATX") {
		return 'd'
	}
	return 'e'
}

func YearCode(year int) (byte, error) {
	if year < firstYear || year-firstYear > 25 {
		return 0, fmt.Errorf("%w: %d", ErrYearOutOfRange, year)
	}
	return byte('a' + year - firstYear), nil
}

// WeekCode maps an ISO week to its letter. Week 53 shares Z with week 52.
func WeekCode(week int) byte {
	switch {
	case week <= 1:
		return 'a'
	case week <= 26:
		return byte('a' + week - 1)
	case week <= 52:
		return byte('A' + week - 27)
	default:
		return 'Z'
	}
}

// SerialPrefix is everything before the hex counter.
func SerialPrefix(hardware string, machine int, now time.Time) (string, error) {
	year, week := now.ISOWeek()
	yc, err := YearCode(year)
	if err != nil {
		return "", err
	}
	return string([]byte{productCode, ConfigCode(hardware), yc, WeekCode(week)}) +
		strconv.Itoa(machine), nil
}

// NextSerial allocates the next serial for a unit of the given hardware
// type, counting the records already saved with the same prefix.
func (s *Store) NextSerial(hardware string, machine int, clock clockwork.Clock) (string, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	prefix, err := SerialPrefix(hardware, machine, clock.Now())
	if err != nil {
		return "", err
	}
	n, err := s.CountPrefix(prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04X", prefix, n), nil
}
