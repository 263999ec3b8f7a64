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

package orchestrator

import (
	"maps"
	"slices"
	"strings"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/notifications"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
)

// Results is the per-run subsystem status table. Each Set is published as a
// test status event.
type Results struct {
	ns      chan<- models.Notification
	status  map[Subsystem]Status
	tracked []Subsystem
	mu      syncutil.RWMutex
}

func NewResults(ns chan<- models.Notification) *Results {
	return &Results{
		ns:     ns,
		status: make(map[Subsystem]Status),
	}
}

func (r *Results) Set(s Subsystem, st Status) {
	r.mu.Lock()
	r.status[s] = st
	r.mu.Unlock()
	notifications.TestStatus(r.ns, string(s), st.String())
}

func (r *Results) Get(s Subsystem) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status[s]
}

// Track sets the subsystems that count towards AllSuccess for this run.
func (r *Results) Track(subs ...Subsystem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range subs {
		if !slices.Contains(r.tracked, s) {
			r.tracked = append(r.tracked, s)
		}
	}
}

// Reset clears the table for a new unit and publishes every subsystem as
// untested.
func (r *Results) Reset() {
	r.mu.Lock()
	clear(r.status)
	r.tracked = nil
	r.mu.Unlock()
	for _, s := range AllSubsystems {
		notifications.TestStatus(r.ns, string(s), Untested.String())
	}
}

func (r *Results) Snapshot() map[Subsystem]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.status)
}

// AllSuccess reports whether every tracked subsystem is either successful
// or hidden and no subsystem at all is failed or under repair. It is false
// when nothing is tracked.
func (r *Results) AllSuccess() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tracked) == 0 {
		return false
	}
	for _, st := range r.status {
		if st == Failed || st == Repairing {
			return false
		}
	}
	for _, s := range r.tracked {
		switch r.status[s] {
		case Success, Hidden:
		default:
			return false
		}
	}
	return true
}

// Defects accumulates human-readable failure lines for the defect label.
type Defects struct {
	lines []string
	mu    syncutil.Mutex
}

func (d *Defects) Add(line string) {
	if line == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, line)
}

func (d *Defects) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.lines)
}

func (d *Defects) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

func (d *Defects) String() string {
	return strings.Join(d.Lines(), "\n")
}

func (d *Defects) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = nil
}
