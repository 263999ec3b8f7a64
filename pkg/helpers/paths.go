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

package helpers

import (
	"os"
	"path/filepath"

	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/adrg/xdg"
)

const (
	DataEnv = "FACTORYTEST_DATA"
	UserDir = "user"
	LogsDir = "logs"
)

// portableDir is set when everything should live under one directory: the
// FACTORYTEST_DATA env var, or a "user" directory next to the executable.
func portableDir() (string, bool) {
	if v := os.Getenv(DataEnv); v != "" {
		return v, true
	}
	if exe, err := os.Executable(); err == nil {
		userDir := filepath.Join(filepath.Dir(exe), UserDir)
		if info, err := os.Stat(userDir); err == nil && info.IsDir() {
			return userDir, true
		}
	}
	return "", false
}

func ConfigDir() string {
	if base, ok := portableDir(); ok {
		return filepath.Join(base, "config")
	}
	return filepath.Join(xdg.ConfigHome, config.AppName)
}

func DataDir() string {
	if base, ok := portableDir(); ok {
		return filepath.Join(base, "data")
	}
	return filepath.Join(xdg.DataHome, config.AppName)
}

func LogDir() string {
	if base, ok := portableDir(); ok {
		return filepath.Join(base, LogsDir)
	}
	return filepath.Join(xdg.DataHome, config.AppName, LogsDir)
}
