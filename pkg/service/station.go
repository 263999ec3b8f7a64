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

package service

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/bringup"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/database"
	"github.com/ZaparooProject/factory-test/pkg/helpers"
	"github.com/ZaparooProject/factory-test/pkg/helpers/command"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/printer"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/testplan"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// stationLoop tests units one after another until ctx is done. Settings
// and the test plan are read fresh for every unit.
func (s *Service) stationLoop(ctx context.Context) {
	for ctx.Err() == nil {
		runner := bringup.NewRunner(BringupConfig(s.Config), s.runnerDeps(s.loadPlan()))
		s.State.SetStation(runner)

		res, err := runner.Run(ctx)
		if err != nil {
			return
		}
		s.recordRun(ctx, res)
	}
}

func (s *Service) loadPlan() *testplan.Plan {
	fs := s.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	plan, err := testplan.Load(fs, s.Config.PlanFile())
	if err != nil {
		log.Error().Err(err).Msg("test plan unusable, falling back to built-in plan")
		return testplan.Default()
	}
	return plan
}

func (s *Service) runnerDeps(plan *testplan.Plan) bringup.Deps {
	clock := clockwork.NewRealClock()
	return bringup.Deps{
		Link:     s.Link,
		Remote:   s.remote,
		Asker:    s.Dialogs,
		Printer:  labelPrinter(s.Config),
		Store:    s.store,
		Uploader: s.uploader,
		Orchestrator: orchestrator.New(OrchestratorOptions(s.Config, orchestrator.Options{
			Runner:   s.remote,
			Asker:    s.Dialogs,
			Recorder: s.store,
			Results:  s.Results,
			Defects:  s.Defects,
			Clock:    clock,
		})),
		Results:       s.Results,
		Defects:       s.Defects,
		Clock:         clock,
		Notifications: s.State.Notifications,
		Plan:          plan.Tasks,
	}
}

func (s *Service) recordRun(ctx context.Context, res *bringup.Result) {
	log.Info().
		Str("serial", res.Serial).
		Bool("pass", res.Pass).
		Strs("defects", res.Defects).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("unit finished")

	run := &database.Run{
		ID:         uuid.New().String(),
		Serial:     res.Serial,
		Hardware:   res.Hardware,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Pass:       res.Pass,
		Defects:    res.Defects,
	}
	if err := s.history.AddRun(ctx, run); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("failed to add run to history")
	}
}

func labelPrinter(cfg *config.Instance) printer.Printer {
	pc := cfg.Printer()
	if !pc.Enabled {
		return printer.Disabled{}
	}
	return printer.NewLP(&command.RealExecutor{}, pc.Name)
}

// BringupConfig maps station settings onto the bring-up runner. Script
// paths follow the configured payload directory.
func BringupConfig(cfg *config.Instance) bringup.Config {
	bc := bringup.DefaultConfig()
	def := bc.RemoteDir

	cs := cfg.Console()
	bc.LoginPrompt = cs.LoginPrompt
	bc.ShellPrompt = cs.ShellPrompt
	bc.BootloaderPrompt = cs.BootloaderPrompt
	bc.PasswordPrompt = cs.PasswordPrompt
	bc.WelcomeBanner = cs.WelcomeBanner
	bc.Username = cs.Username
	bc.Password = cs.Password
	bc.UncertainTimeout = cs.UncertainTimeoutDuration()
	bc.BootingTimeout = cs.BootingTimeoutDuration()
	bc.CommandTimeout = cs.CommandTimeoutDuration()
	bc.PollInterval = cs.PollIntervalDuration()
	bc.BootingMinDensity = cs.BootingMinDensity
	bc.NoTargetThreshold = cs.NoTargetThreshold

	n := cfg.Network()
	bc.HostIP = n.HostIP
	bc.TargetIP = n.TargetIP
	bc.Interface = n.Interface
	bc.PingRetries = n.PingRetries
	bc.FileServerPort = n.FileServerPort
	bc.PrefixLen = n.PrefixLen
	bc.StaticIP = cfg.StaticNetwork()

	tc := cfg.Testing()
	bc.Payload = tc.Payload
	bc.RemoteDir = tc.RemoteDir
	bc.DownloadRetries = tc.DownloadRetries
	bc.DownloadPause = tc.RetryDelayDuration()
	rebase := func(p string) string {
		if rel, ok := strings.CutPrefix(p, def+"/"); ok {
			return path.Join(tc.RemoteDir, rel)
		}
		return p
	}
	bc.HardwareScript = rebase(bc.HardwareScript)
	bc.ClearScript = rebase(bc.ClearScript)
	bc.StorageScript = rebase(bc.StorageScript)

	bc.BoardVersion = cfg.BoardVersion()
	bc.MachineNumber = cfg.MachineNumber()
	return bc
}

// OrchestratorOptions adds the station's placeholder values and speed
// floors to base.
func OrchestratorOptions(cfg *config.Instance, base orchestrator.Options) orchestrator.Options {
	n := cfg.Network()
	tc := cfg.Testing()
	base.Vars = map[string]string{
		"host_ip":       n.HostIP,
		"file_port":     strconv.Itoa(n.FileServerPort),
		"remote_dir":    tc.RemoteDir,
		"ssid":          tc.WiFiSSID,
		"wifi_password": tc.WiFiPassword,
	}
	base.MinSpeeds = map[orchestrator.Subsystem]float64{
		orchestrator.EthernetUp:   float64(tc.EthUpSpeed),
		orchestrator.EthernetDown: float64(tc.EthDownSpeed),
		orchestrator.WiFiUp:       float64(tc.WiFiUpSpeed),
		orchestrator.WiFiDown:     float64(tc.WiFiDownSpeed),
	}
	return base
}

// MachineCode is the part of every serial this station issues this week:
// year code, week code and machine number. It is "?" while the host clock
// is unset.
func MachineCode(cfg *config.Instance, now time.Time) string {
	if !helpers.IsClockReliable(now) {
		return "?"
	}
	prefix, err := records.SerialPrefix("", cfg.MachineNumber(), now)
	if err != nil {
		return "?"
	}
	return prefix[2:]
}
