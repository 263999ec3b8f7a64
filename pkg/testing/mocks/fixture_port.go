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

package mocks

import (
	"errors"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
)

var ErrPortClosed = errors.New("port closed")

// FixturePort is a scripted serial port. Queued chunks are returned one per
// Read; with nothing queued Read sleeps briefly and returns zero bytes, like a
// real port hitting its read timeout.
type FixturePort struct {
	ReadErr    error
	WriteErr   error
	chunks     [][]byte
	writes     [][]byte
	dtr        []bool
	mu         syncutil.Mutex
	closed     bool
	closeCalls int
}

func NewFixturePort(chunks ...string) *FixturePort {
	p := &FixturePort{}
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}
	return p
}

// Feed queues more data for subsequent reads.
func (p *FixturePort) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, []byte(s))
}

// FailReads makes every following Read return err.
func (p *FixturePort) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadErr = err
}

// FailWrites makes every following Write return err.
func (p *FixturePort) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.WriteErr = err
}

func (p *FixturePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrPortClosed
	}
	if p.ReadErr != nil {
		err := p.ReadErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.chunks) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.chunks[0])
	if n < len(p.chunks[0]) {
		p.chunks[0] = p.chunks[0][n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	p.mu.Unlock()
	return n, nil
}

func (p *FixturePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	w := make([]byte, len(b))
	copy(w, b)
	p.writes = append(p.writes, w)
	return len(b), nil
}

func (p *FixturePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCalls++
	return nil
}

func (*FixturePort) SetReadTimeout(time.Duration) error {
	return nil
}

func (p *FixturePort) SetDTR(v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dtr = append(p.dtr, v)
	return nil
}

func (*FixturePort) SetRTS(bool) error {
	return nil
}

// Writes returns every buffer written so far, as strings.
func (p *FixturePort) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.writes))
	for _, w := range p.writes {
		out = append(out, string(w))
	}
	return out
}

func (p *FixturePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// DTRToggles returns the DTR levels set, in order.
func (p *FixturePort) DTRToggles() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.dtr...)
}
