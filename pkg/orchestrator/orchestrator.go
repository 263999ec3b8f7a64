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
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/dialog"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/remote"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	ChoiceNormal = "Normal"
	ChoiceDefect = "Abnormal, record defect"

	DefaultAttempts = 3
	DefaultTimeout  = 60 * time.Second
)

// ItemRecorder persists per-item verdicts for a unit.
type ItemRecorder interface {
	SetItem(serial string, item records.Item, status string) error
}

type Options struct {
	Runner   remote.Runner
	Asker    dialog.Asker
	Recorder ItemRecorder
	Results  *Results
	Defects  *Defects
	Clock    clockwork.Clock
	// Vars are extra placeholder values for task commands.
	Vars map[string]string
	// MinSpeeds is the fallback Mbps floor for throughput tasks that do
	// not set one.
	MinSpeeds map[Subsystem]float64
}

type Orchestrator struct {
	opts  Options
	items map[records.Item]string
	mu    syncutil.Mutex
}

func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Results == nil {
		opts.Results = NewResults(nil)
	}
	if opts.Defects == nil {
		opts.Defects = &Defects{}
	}
	return &Orchestrator{
		opts:  opts,
		items: make(map[records.Item]string),
	}
}

// Run executes every task of the plan in parallel and returns once all have
// finished. A failing task never cancels its siblings. The returned error is
// only ever ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, dev *Device, plan []Task) error {
	o.mu.Lock()
	clear(o.items)
	o.mu.Unlock()

	var g errgroup.Group
	for i := range plan {
		task := plan[i]
		o.opts.Results.Track(task.Subsystem)
		if !task.AppliesTo(dev) {
			log.Info().Str("subsystem", string(task.Subsystem)).Msg("task hidden for this unit")
			o.opts.Results.Set(task.Subsystem, Hidden)
			continue
		}
		g.Go(func() error {
			o.runTask(ctx, dev, &task)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("test run cancelled: %w", err)
	}
	return nil
}

func (o *Orchestrator) runTask(ctx context.Context, dev *Device, task *Task) {
	results := o.opts.Results
	attempts := task.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	if task.Kind == KindConfirm {
		attempts = 1
	}

	results.Set(task.Subsystem, Testing)
	for i := range attempts {
		if i > 0 {
			results.Set(task.Subsystem, Repairing)
			if task.RetryDelay > 0 {
				select {
				case <-ctx.Done():
				case <-o.opts.Clock.After(task.RetryDelay):
				}
			}
		}
		if ctx.Err() != nil {
			break
		}

		ok, detail := o.attempt(ctx, dev, task)
		if ok {
			log.Info().Str("subsystem", string(task.Subsystem)).Int("attempt", i+1).Msg("test passed")
			results.Set(task.Subsystem, Success)
			o.record(dev, task.Item, records.StatusNormal)
			return
		}
		log.Warn().
			Str("subsystem", string(task.Subsystem)).
			Int("attempt", i+1).
			Str("detail", detail).
			Msg("test attempt failed")
	}

	results.Set(task.Subsystem, Failed)
	defect := task.Defect
	if defect == "" {
		defect = string(task.Subsystem) + " test failed"
	}
	o.opts.Defects.Add(defect)
	o.record(dev, task.Item, records.StatusDamage)
}

func (o *Orchestrator) attempt(ctx context.Context, dev *Device, task *Task) (bool, string) {
	timeout := task.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	cmd := expand(task.Command, dev, o.opts.Vars)

	switch task.Kind {
	case KindScript:
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, out := remote.RunCheck(tctx, o.opts.Runner, cmd, task.Marker)
		return ok, lastLine(out)
	case KindConfirm:
		return o.confirm(ctx, dev, task, cmd)
	case KindThroughput:
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return o.throughput(tctx, task, cmd)
	default:
		return false, "unknown task kind " + string(task.Kind)
	}
}

func (o *Orchestrator) confirm(ctx context.Context, dev *Device, task *Task, cmd string) (bool, string) {
	if cmd != "" {
		if _, err := o.opts.Runner.Run(ctx, cmd); err != nil {
			return false, err.Error()
		}
	}
	if o.opts.Asker == nil {
		return false, "no operator attached"
	}
	msg := expand(task.Prompt, dev, o.opts.Vars)
	choice, err := o.opts.Asker.Ask(ctx, msg, ChoiceNormal, ChoiceDefect)
	if err != nil {
		return false, err.Error()
	}
	return choice == ChoiceNormal, choice
}

var numberRe = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)

// ErrNoSpeed is returned when a throughput command prints no number.
var ErrNoSpeed = errors.New("no speed in output")

// ParseSpeed reads the last number in a curl -w '%{speed_*}' output, in
// bytes per second, and returns megabits per second.
func ParseSpeed(out string) (float64, error) {
	nums := numberRe.FindAllString(out, -1)
	if len(nums) == 0 {
		return 0, ErrNoSpeed
	}
	bps, err := strconv.ParseFloat(nums[len(nums)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse speed: %w", err)
	}
	return bps * 8 / 1e6, nil
}

func (o *Orchestrator) throughput(ctx context.Context, task *Task, cmd string) (bool, string) {
	out, err := o.opts.Runner.Run(ctx, cmd)
	if err != nil {
		return false, err.Error()
	}
	mbps, err := ParseSpeed(out)
	if err != nil {
		return false, err.Error()
	}
	floor := task.MinMbps
	if floor == 0 {
		floor = o.opts.MinSpeeds[task.Subsystem]
	}
	detail := fmt.Sprintf("%.1f Mbps (min %.1f)", mbps, floor)
	return mbps >= floor, detail
}

// record writes a verdict for a record item. Several tasks may share one
// item; once any of them marks it Damage it stays Damage for the run.
func (o *Orchestrator) record(dev *Device, item records.Item, status string) {
	if item == "" || o.opts.Recorder == nil || dev.Serial == "" {
		return
	}
	o.mu.Lock()
	if o.items[item] == records.StatusDamage {
		o.mu.Unlock()
		return
	}
	o.items[item] = status
	err := o.opts.Recorder.SetItem(dev.Serial, item, status)
	o.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("item", string(item)).Msg("failed to record test item")
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
