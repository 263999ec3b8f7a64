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

// Package printer sends identity and defect labels to a CUPS printer.
package printer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/factory-test/pkg/helpers/command"
	"github.com/rs/zerolog/log"
)

type Label struct {
	Serial string
	Name   string
	WiFi   bool
}

type Printer interface {
	Available(ctx context.Context) bool
	PrintIdentity(ctx context.Context, label Label) error
	PrintDefects(ctx context.Context, serial string, defects []string) error
}

// LP prints plain-text labels through lp(1).
type LP struct {
	exec command.Executor
	name string
}

func NewLP(exec command.Executor, name string) *LP {
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	return &LP{exec: exec, name: name}
}

// Available asks lpstat whether the queue exists and is accepting jobs.
func (p *LP) Available(ctx context.Context) bool {
	out, err := p.exec.Output(ctx, "lpstat", "-p", p.name)
	if err != nil {
		log.Debug().Err(err).Str("printer", p.name).Msg("lpstat failed")
		return false
	}
	status := strings.ToLower(string(out))
	return strings.Contains(status, "printer "+strings.ToLower(p.name)) &&
		!strings.Contains(status, "disabled")
}

func (p *LP) PrintIdentity(ctx context.Context, label Label) error {
	return p.submit(ctx, label.Serial, RenderIdentity(label))
}

func (p *LP) PrintDefects(ctx context.Context, serial string, defects []string) error {
	return p.submit(ctx, serial+"-defects", RenderDefects(serial, defects))
}

func (p *LP) submit(ctx context.Context, title, body string) error {
	out, err := p.exec.RunWithInput(ctx, []byte(body), "lp", "-d", p.name, "-t", title)
	if err != nil {
		return fmt.Errorf("lp failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	log.Info().Str("printer", p.name).Str("job", strings.TrimSpace(string(out))).Msg("label sent")
	return nil
}

func RenderIdentity(label Label) string {
	var sb strings.Builder
	sb.WriteString(label.Name)
	sb.WriteString("\n")
	sb.WriteString("S/N: ")
	sb.WriteString(label.Serial)
	sb.WriteString("\n")
	if label.WiFi {
		sb.WriteString("WiFi: yes\n")
	} else {
		sb.WriteString("WiFi: no\n")
	}
	return sb.String()
}

func RenderDefects(serial string, defects []string) string {
	var sb strings.Builder
	sb.WriteString("DEFECT ")
	sb.WriteString(serial)
	sb.WriteString("\n")
	for i, d := range defects {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, d)
	}
	return sb.String()
}

// Disabled is used when no label printer is configured. It is always
// available and drops every job.
type Disabled struct{}

func (Disabled) Available(context.Context) bool { return true }

func (Disabled) PrintIdentity(_ context.Context, label Label) error {
	log.Info().Str("serial", label.Serial).Msg("printing disabled, identity label skipped")
	return nil
}

func (Disabled) PrintDefects(_ context.Context, serial string, _ []string) error {
	log.Info().Str("serial", serial).Msg("printing disabled, defect label skipped")
	return nil
}
