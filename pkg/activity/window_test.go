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

package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_SumOfLatestSamples(t *testing.T) {
	t.Parallel()

	w := NewWindow(10)
	var density int
	for _, n := range []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 5} {
		density = w.Push(n)
	}
	assert.Equal(t, 5, density)

	// evicts the oldest zero, so the five stays in view
	assert.Equal(t, 5, w.Push(0))
	assert.Equal(t, 10, w.Len())
}

func TestWindow_DecaysToZero(t *testing.T) {
	t.Parallel()

	w := NewWindow(4)
	for _, n := range []int{100, 200, 300, 400} {
		w.Push(n)
	}
	assert.Equal(t, 1000, w.Sum())

	for range 4 {
		w.Push(0)
	}
	assert.Equal(t, 0, w.Sum())
}

func TestWindow_Clear(t *testing.T) {
	t.Parallel()

	w := NewWindow(3)
	w.Push(7)
	w.Push(9)
	w.Clear()

	assert.Equal(t, 0, w.Sum())
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 3, w.Push(3))
}

func TestWindow_InvalidSizeUsesDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultSize, NewWindow(0).Size())
	assert.Equal(t, DefaultSize, NewWindow(-3).Size())
}

func TestWindow_NegativeSampleCountsAsZero(t *testing.T) {
	t.Parallel()

	w := NewWindow(2)
	w.Push(4)
	assert.Equal(t, 4, w.Push(-1))
}
