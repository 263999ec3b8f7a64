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

package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// readLastLines reads the last n lines from a file.
func readLastLines(filePath string, n int) (string, error) {
	//nolint:gosec // path is the station's own log file
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read log file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	start := 0
	if len(lines) > n {
		start = len(lines) - n
	}
	return strings.Join(lines[start:], "\n"), nil
}

type logLine struct {
	Level   string `json:"level"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// formatLogEntry colours a zerolog JSON line and shortens its timestamp.
// Lines that are not JSON pass through unchanged.
func formatLogEntry(line string, t *Theme) string {
	var entry logLine
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line
	}

	levelColors := map[string]string{
		"error": t.ErrorColorName,
		"warn":  t.WarningColorName,
		"info":  t.SuccessColorName,
		"debug": t.SecondaryColorName,
	}
	color, ok := levelColors[entry.Level]
	if !ok {
		color = t.TextColorName
	}

	timestamp := entry.Time
	if ts, err := time.Parse(time.RFC3339, entry.Time); err == nil {
		timestamp = ts.Format(time.TimeOnly)
	}

	msg := entry.Message
	if entry.Error != "" {
		msg += ": " + entry.Error
	}
	return fmt.Sprintf("[%s::b]%5s[-:-:-] %s %s", color, strings.ToUpper(entry.Level), timestamp, msg)
}

// formatLogContent formats every non-empty line, newest first.
func formatLogContent(content string, t *Theme) string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	formatted := make([]string, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		formatted = append(formatted, formatLogEntry(lines[i], t))
	}
	return strings.Join(formatted, "\n")
}
