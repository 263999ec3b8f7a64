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

// Package daemon keeps one station process per machine, since two would
// fight over the fixture's serial port.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
)

const PidFile = "factorytest.pid"

var (
	ErrAlreadyRunning = errors.New("another station process is already running")
	errLocked         = errors.New("pid file locked")
)

// Lock is a held PID file. On unix the file also carries an exclusive
// flock for as long as the process runs.
type Lock struct {
	file *os.File
	path string
}

// Acquire locks the PID file in dir and writes the current PID into it. A
// PID file left by a process that no longer exists is taken over.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create pid directory: %w", err)
	}
	l := &Lock{path: filepath.Join(dir, PidFile)}

	//nolint:gosec // path is under the station data dir
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}

	pid, err := l.Pid()
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable pid file")
	}

	if err := tryLock(f); err != nil {
		_ = f.Close()
		switch {
		case errors.Is(err, errLocked) && pid == os.Getpid():
			return l, nil
		case errors.Is(err, errLocked):
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		default:
			return nil, fmt.Errorf("failed to lock PID file: %w", err)
		}
	}

	l.file = f

	if pid != 0 && pid != os.Getpid() && alive(pid) {
		l.unlock()
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	if err := f.Truncate(0); err != nil {
		l.unlock()
		return nil, fmt.Errorf("failed to truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		l.unlock()
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	return l, nil
}

// Pid returns the PID recorded in the file, or 0 when there is none.
func (l *Lock) Pid() (int, error) {
	//nolint:gosec // path is under the station data dir
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}
	return pid, nil
}

func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	l.unlock()
	return nil
}

func (l *Lock) unlock() {
	if l.file == nil {
		return
	}
	if err := unlockFile(l.file); err != nil {
		log.Debug().Err(err).Msg("unlocking pid file")
	}
	_ = l.file.Close()
	l.file = nil
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
