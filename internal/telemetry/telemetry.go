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

// Package telemetry provides opt-in error reporting via Sentry. Station
// credentials and home directory names are stripped before sending.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/helpers"
	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	flushTimeout = 2 * time.Second
	redacted     = "<redacted>"
)

// DSN is set at build time. Reporting stays off in builds without one.
var DSN = ""

var (
	enabled      bool
	sentryWriter *sentryzerolog.Writer
	closeOnce    sync.Once
	secrets      []string

	homePathRe = regexp.MustCompile(`(?i)/home/[^/]+/`)
	rootPathRe = regexp.MustCompile(`(?i)/root/`)
)

type Options struct {
	Version       string
	BoardVersion  string
	Secrets       []string
	MachineNumber int
	Enabled       bool
}

// Init starts Sentry and tees error-level logs into it.
func Init(opts Options) error {
	if !opts.Enabled {
		log.Debug().Msg("error reporting disabled")
		return nil
	}
	if DSN == "" {
		log.Warn().Msg("error reporting enabled but this build has no DSN")
		return nil
	}

	secrets = secrets[:0]
	for _, s := range opts.Secrets {
		if s != "" {
			secrets = append(secrets, s)
		}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              DSN,
		Release:          "factorytest@" + opts.Version,
		Environment:      "station",
		AttachStacktrace: true,
		SendDefaultPII:   false,
		ServerName:       "",
		MaxBreadcrumbs:   0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return sanitizeEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("machine", strconv.Itoa(opts.MachineNumber))
		scope.SetTag("board", opts.BoardVersion)
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	sentryWriter, err = sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:          []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout:    flushTimeout,
		WithBreadcrumbs: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry zerolog writer: %w", err)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(
		helpers.LogWriter(),
		sentryWriter,
	)).With().Timestamp().Caller().Logger()

	enabled = true
	log.Info().Msg("error reporting enabled")
	return nil
}

// Close flushes and shuts down. Safe to call multiple times.
func Close() {
	if !enabled {
		return
	}
	closeOnce.Do(func() {
		_ = sentryWriter.Close()
		sentry.Flush(flushTimeout)
	})
}

func Flush() {
	if !enabled {
		return
	}
	sentry.Flush(flushTimeout)
}

func Enabled() bool {
	return enabled
}

func sanitizeEvent(event *sentry.Event) *sentry.Event {
	event.ServerName = ""
	event.User = sentry.User{}

	for i := range event.Exception {
		event.Exception[i].Value = sanitize(event.Exception[i].Value)
		if event.Exception[i].Stacktrace == nil {
			continue
		}
		for j := range event.Exception[i].Stacktrace.Frames {
			frame := &event.Exception[i].Stacktrace.Frames[j]
			frame.AbsPath = sanitize(frame.AbsPath)
			frame.Filename = sanitize(frame.Filename)
		}
	}

	event.Message = sanitize(event.Message)
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = sanitize(s)
		}
	}
	return event
}

func sanitize(s string) string {
	if s == "" {
		return s
	}
	s = homePathRe.ReplaceAllString(s, "/home/<user>/")
	s = rootPathRe.ReplaceAllString(s, "/<root>/")
	for _, secret := range secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}
