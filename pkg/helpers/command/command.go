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

// Package command wraps exec.Command so host tools such as lp can be mocked.
package command

import (
	"bytes"
	"context"
	"os/exec"
)

// Executor runs host commands.
type Executor interface {
	// Run executes a command and waits for it. A non-zero exit is an error.
	Run(ctx context.Context, name string, args ...string) error

	// Output runs a command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput runs a command with stdin fed from input and returns its
	// combined output.
	RunWithInput(ctx context.Context, input []byte, name string, args ...string) ([]byte, error)
}

type RealExecutor struct{}

//nolint:wrapcheck // exec errors already name the command
func (*RealExecutor) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

//nolint:wrapcheck // exec errors already name the command
func (*RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

//nolint:wrapcheck // exec errors already name the command
func (*RealExecutor) RunWithInput(
	ctx context.Context,
	input []byte,
	name string,
	args ...string,
) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)
	return cmd.CombinedOutput()
}
