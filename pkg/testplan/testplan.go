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

// Package testplan loads the list of per-subsystem tests run after bring-up.
package testplan

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const SchemaVersion = 1

//go:embed plan.yaml
var defaultPlan []byte

var ErrEmptyPlan = errors.New("test plan has no tasks")

type Plan struct {
	Tasks   []orchestrator.Task `yaml:"tasks"`
	Version int                 `yaml:"version"`
}

// Parse decodes and validates a YAML plan. Unknown keys are rejected so a
// typo in a field name does not silently drop a check.
func Parse(b []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPlan
		}
		return nil, fmt.Errorf("failed to parse test plan: %w", err)
	}
	if p.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported test plan version %d", p.Version)
	}
	if len(p.Tasks) == 0 {
		return nil, ErrEmptyPlan
	}

	seen := make([]orchestrator.Subsystem, 0, len(p.Tasks))
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		if slices.Contains(seen, t.Subsystem) {
			return nil, fmt.Errorf("task %d: duplicate subsystem %q", i, t.Subsystem)
		}
		seen = append(seen, t.Subsystem)
	}
	return &p, nil
}

// Default returns the embedded plan.
func Default() *Plan {
	p, err := Parse(defaultPlan)
	if err != nil {
		panic(fmt.Sprintf("embedded test plan is invalid: %v", err))
	}
	return p
}

// Load reads a plan from path, or returns the embedded plan when path is
// empty.
func Load(fs afero.Fs, path string) (*Plan, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test plan: %w", err)
	}
	p, err := Parse(b)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("tasks", len(p.Tasks)).Msg("loaded test plan")
	return p, nil
}

func (p *Plan) Subsystems() []orchestrator.Subsystem {
	subs := make([]orchestrator.Subsystem, 0, len(p.Tasks))
	for i := range p.Tasks {
		subs = append(subs, p.Tasks[i].Subsystem)
	}
	return subs
}
