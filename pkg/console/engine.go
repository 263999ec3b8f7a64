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

// Package console drives the target's serial console: it sends commands
// through the fixture link and waits for known text to come back.
package console

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Outcome is the result of waiting for console output. Values other than the
// sentinels below are the pattern that matched.
type Outcome string

const (
	Unmatched  Outcome = "UNMATCHED"
	NoData     Outcome = "NO-DATA"
	LowDensity Outcome = "LOW-DENSITY"
)

// Matched reports whether o is a pattern rather than a sentinel.
func (o Outcome) Matched() bool {
	return o != Unmatched && o != NoData && o != LowDensity && o != ""
}

const (
	DefaultPollInterval = 10 * time.Millisecond
	// DefaultTailSize bounds how much of the previous chunk is kept so a
	// prompt split across two reads still matches.
	DefaultTailSize = 64
)

// Link is the fixture side of the engine, satisfied by *transport.Manager.
type Link interface {
	Send(b []byte)
	Receive() []byte
	Density() int
}

type Options struct {
	Clock        clockwork.Clock
	PollInterval time.Duration
	TailSize     int
}

type Engine struct {
	link  Link
	clock clockwork.Clock
	poll  time.Duration
	tail  int
}

func New(link Link, opts Options) *Engine {
	e := &Engine{
		link:  link,
		clock: opts.Clock,
		poll:  opts.PollInterval,
		tail:  opts.TailSize,
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.poll <= 0 {
		e.poll = DefaultPollInterval
	}
	if e.tail <= 0 {
		e.tail = DefaultTailSize
	}
	return e
}

func (e *Engine) Send(s string) {
	e.link.Send([]byte(s))
}

// AwaitPattern polls the link until one of patterns appears, the timeout
// passes or ctx is done. With a non-zero minDensity the wait ends early with
// LowDensity as soon as the link goes quiet.
func (e *Engine) AwaitPattern(
	ctx context.Context,
	patterns []string,
	timeout time.Duration,
	minDensity int,
) Outcome {
	deadline := e.clock.Now().Add(timeout)
	seen := false
	prev := ""

	for {
		if ctx.Err() != nil {
			return Unmatched
		}

		if minDensity != 0 && e.link.Density() < minDensity {
			return LowDensity
		}

		if raw := e.link.Receive(); raw != nil {
			chunk := Clean(string(raw))
			if chunk != "" {
				seen = true
				hay := prev + chunk
				for _, p := range patterns {
					if strings.Contains(hay, p) {
						log.Debug().Str("pattern", p).Msg("console pattern matched")
						return Outcome(p)
					}
				}
				prev = lastN(chunk, e.tail)
			}
		}

		if !e.clock.Now().Before(deadline) {
			if !seen {
				return NoData
			}
			return Unmatched
		}

		select {
		case <-ctx.Done():
			return Unmatched
		case <-e.clock.After(e.poll):
		}
	}
}

// CommandAndWait sends cmd and reports whether expected came back in time.
func (e *Engine) CommandAndWait(ctx context.Context, cmd, expected string, timeout time.Duration) bool {
	e.Send(cmd)
	return e.AwaitPattern(ctx, []string{expected}, timeout, 0) == Outcome(expected)
}

// Capture sends cmd and collects cleaned output until settle passes with no
// new data. A console that keeps talking is cut off at maxWait, and a done
// ctx returns whatever has arrived so far.
func (e *Engine) Capture(ctx context.Context, cmd string, settle, maxWait time.Duration) string {
	e.Send(cmd)

	var sb strings.Builder
	now := e.clock.Now()
	deadline := now.Add(maxWait)
	quietUntil := now.Add(settle)
	for {
		if ctx.Err() != nil {
			break
		}
		if raw := e.link.Receive(); raw != nil {
			sb.Write(raw)
			quietUntil = e.clock.Now().Add(settle)
		}
		now = e.clock.Now()
		if !now.Before(quietUntil) || !now.Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
		case <-e.clock.After(e.poll):
		}
	}
	return Clean(sb.String())
}

// Flush discards everything queued on the link.
func (e *Engine) Flush() {
	for e.link.Receive() != nil {
	}
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b[()][0-9A-Za-z]|\x1b[@-Z\\-_]`)

// StripANSI removes terminal escape sequences.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

// Clean strips escapes and surrounding whitespace.
func Clean(s string) string {
	return strings.TrimSpace(StripANSI(s))
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
