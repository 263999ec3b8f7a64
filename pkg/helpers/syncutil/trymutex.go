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

package syncutil

// TryMutex is a lock that can be attempted without blocking. It exists for
// owners that poll a shared resource and would rather skip a turn than wait.
type TryMutex struct {
	ch chan struct{}
}

func NewTryMutex() *TryMutex {
	return &TryMutex{ch: make(chan struct{}, 1)}
}

// TryLock acquires the lock if it is free and reports whether it did.
func (m *TryMutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *TryMutex) Lock() {
	m.ch <- struct{}{}
}

func (m *TryMutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("syncutil: unlock of unlocked TryMutex")
	}
}
