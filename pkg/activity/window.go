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

// Package activity tracks how much traffic the console link has carried
// recently. The sum of the window ("density") is a liveness proxy for the
// target behind the fixture, not a throughput figure.
package activity

import "github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"

// DefaultSize is the number of read polls the window spans. At a 100ms read
// deadline this covers roughly one second of link time.
const DefaultSize = 10

// Window is a fixed-size FIFO of per-poll byte counts.
type Window struct {
	samples []int
	size    int
	sum     int
	mu      syncutil.Mutex
}

// NewWindow returns a window holding at most size samples. Sizes below one
// fall back to DefaultSize.
func NewWindow(size int) *Window {
	if size < 1 {
		size = DefaultSize
	}
	return &Window{
		samples: make([]int, 0, size),
		size:    size,
	}
}

// Push appends one sample, evicting the oldest when full, and returns the
// new density.
func (w *Window) Push(n int) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n < 0 {
		n = 0
	}

	if len(w.samples) == w.size {
		w.sum -= w.samples[0]
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.size-1]
	}
	w.samples = append(w.samples, n)
	w.sum += n

	return w.sum
}

// Clear empties the window so a fresh connection starts with no history.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
	w.sum = 0
}

// Sum returns the current density.
func (w *Window) Sum() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sum
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

func (w *Window) Size() int {
	return w.size
}
