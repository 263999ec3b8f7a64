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

package transport

import "github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"

// ringQueue is a bounded FIFO of byte buffers. Pushing onto a full queue
// evicts the oldest buffer.
type ringQueue struct {
	items   [][]byte
	size    int
	evicted uint64
	mu      syncutil.Mutex
}

func newRingQueue(size int) *ringQueue {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &ringQueue{
		items: make([][]byte, 0, size),
		size:  size,
	}
}

// Push appends b and reports whether an older buffer was evicted.
func (q *ringQueue) Push(b []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	evicted := false
	if len(q.items) >= q.size {
		q.items[0] = nil
		q.items = q.items[1:]
		q.evicted++
		evicted = true
	}
	q.items = append(q.items, b)
	return evicted
}

// Pop removes and returns the oldest buffer, or nil when empty.
func (q *ringQueue) Pop() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return b
}

func (q *ringQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *ringQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = q.items[:0]
}

func (q *ringQueue) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}
