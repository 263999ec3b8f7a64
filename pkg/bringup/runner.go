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

package bringup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/notifications"
	"github.com/ZaparooProject/factory-test/pkg/console"
	"github.com/ZaparooProject/factory-test/pkg/dialog"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/printer"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/remote"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	ChoiceRetry      = "Retry"
	ChoiceDefect     = orchestrator.ChoiceDefect
	ChoiceYes        = "Yes"
	ChoiceNo         = "No"
	ChoiceUseLatest  = "Use latest"
	ChoiceKeep       = "Keep existing"
	ChoiceConnected  = "Printer connected"
	ChoiceUnplugged  = "Cables unplugged"
	ChoiceATX        = string(orchestrator.VariantATX)
	ChoiceDesk       = string(orchestrator.VariantDesk)
	defectConnection = "Connection check failed: USB-C serial soldering, 24P ribbon cable or eMMC firmware"
	defectEthernet   = "Ethernet link down: check the cable or PHY soldering"
	defectStorage    = "eMMC fault: check soldering"
	defectFinalize   = "Could not write the pass marker to the unit"
)

// Link is the fixture connection, satisfied by *transport.Manager.
type Link interface {
	console.Link
	ToolConnected() bool
}

// Remote runs commands on the target once its address is known.
type Remote interface {
	remote.Runner
	SetHost(host string)
}

type Enqueuer interface {
	Enqueue(serial string) error
}

type Deps struct {
	Link          Link
	Remote        Remote
	Asker         dialog.Asker
	Printer       printer.Printer
	Store         *records.Store
	Uploader      Enqueuer
	Orchestrator  *orchestrator.Orchestrator
	Results       *orchestrator.Results
	Defects       *orchestrator.Defects
	Clock         clockwork.Clock
	Notifications chan<- models.Notification
	Plan          []orchestrator.Task
}

// Result summarises one finished unit.
type Result struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Serial     string
	Hardware   string
	Defects    []string
	Pass       bool
}

// Runner takes one unit through bring-up, the test plan and finalization.
// A Runner is reusable; each Run starts from Unconnected.
type Runner struct {
	deps     Deps
	engine   *console.Engine
	started  time.Time
	device   orchestrator.Device
	cfg      Config
	phase    Phase
	noTarget int
	mu       syncutil.RWMutex
	pass     bool
	printed  bool
}

func NewRunner(cfg Config, deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Results == nil {
		deps.Results = orchestrator.NewResults(deps.Notifications)
	}
	if deps.Defects == nil {
		deps.Defects = &orchestrator.Defects{}
	}
	if deps.Printer == nil {
		deps.Printer = printer.Disabled{}
	}
	if deps.Orchestrator == nil {
		deps.Orchestrator = orchestrator.New(orchestrator.Options{
			Runner:   deps.Remote,
			Asker:    deps.Asker,
			Recorder: deps.Store,
			Results:  deps.Results,
			Defects:  deps.Defects,
			Clock:    deps.Clock,
		})
	}
	return &Runner{
		cfg:    cfg,
		deps:   deps,
		engine: console.New(deps.Link, console.Options{
			Clock:        deps.Clock,
			PollInterval: cfg.PollInterval,
		}),
	}
}

func (r *Runner) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

func (r *Runner) Device() orchestrator.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device
}

// Run drives one unit to Finished. It only returns an error when ctx is
// cancelled; device-side failures end up in the Result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	r.started = r.deps.Clock.Now()
	r.mu.Lock()
	r.phase = Unconnected
	r.mu.Unlock()
	r.resetUnit()
	notifications.Phase(r.deps.Notifications, Unconnected.String())

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("device run cancelled: %w", err)
		}
		if r.Phase() == Finished {
			return r.finish(ctx), nil
		}
		if r.Phase() != Unconnected && !r.deps.Link.ToolConnected() {
			log.Warn().Str("phase", r.Phase().String()).Msg("test fixture disconnected")
			r.enter(Transition(r.Phase(), Observation{Kind: ToolAbsent}))
			continue
		}

		obs := r.act(ctx)
		if r.Phase() != Unconnected && !r.deps.Link.ToolConnected() {
			log.Warn().Str("phase", r.Phase().String()).Msg("test fixture disconnected mid-step")
			obs = Observation{Kind: ToolAbsent}
		}
		r.enter(Transition(r.Phase(), obs))
		r.pause(ctx, r.cfg.LoopPause)
	}
}

func (r *Runner) enter(next Phase) {
	r.mu.Lock()
	prev := r.phase
	r.phase = next
	r.mu.Unlock()
	if prev == next {
		return
	}

	log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("bring-up phase changed")
	notifications.Phase(r.deps.Notifications, next.String())

	switch next {
	case Unconnected:
		r.resetUnit()
	case ConnectedNoTarget:
		if prev != Uncertain {
			r.noTarget = 0
		}
		if prev == Unconnected {
			r.deps.Results.Set(orchestrator.Connection, orchestrator.Testing)
		}
	default:
	}
}

func (r *Runner) resetUnit() {
	r.noTarget = 0
	r.pass = false
	r.printed = false
	r.mu.Lock()
	r.device = orchestrator.Device{}
	r.mu.Unlock()
	r.deps.Results.Reset()
	r.deps.Results.Track(orchestrator.BringupSubsystems...)
	r.deps.Defects.Reset()
	notifications.TargetIP(r.deps.Notifications, "-")
}

func (r *Runner) act(ctx context.Context) Observation {
	switch r.Phase() {
	case Unconnected:
		return r.waitFixture(ctx)
	case ConnectedNoTarget:
		return r.sampleTarget(ctx)
	case Uncertain:
		r.engine.Send("\n")
		return r.await(ctx, []string{r.cfg.LoginPrompt, r.cfg.ShellPrompt, r.cfg.BootloaderPrompt},
			r.cfg.UncertainTimeout, 0)
	case Bootloader:
		r.markBooting()
		r.engine.Send("boot\n")
		return Observation{Kind: StepDone}
	case Booting:
		r.markBooting()
		return r.await(ctx, []string{r.cfg.LoginPrompt}, r.cfg.BootingTimeout, r.cfg.BootingMinDensity)
	case BootedLogin:
		r.markBooting()
		return r.login(ctx)
	case LoggedIn:
		r.setOnce(orchestrator.Boot, orchestrator.Success)
		r.setOnce(orchestrator.HardwareID, orchestrator.Testing)
		return r.network(ctx)
	case DownloadFile:
		return r.download(ctx)
	case CheckingHardware:
		return r.identify(ctx)
	case CheckingStorage:
		return r.storage(ctx)
	case Printing:
		return r.printIdentity(ctx)
	case StartStep2:
		dev := r.Device()
		if err := r.deps.Orchestrator.Run(ctx, &dev, r.deps.Plan); err != nil {
			log.Warn().Err(err).Msg("test plan interrupted")
		}
		return Observation{Kind: StepDone}
	case StartStep3:
		return r.finalize(ctx)
	case Finished:
	}
	return Observation{}
}

func (r *Runner) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-r.deps.Clock.After(d):
		return true
	}
}

func (r *Runner) ask(ctx context.Context, msg string, options ...string) (string, bool) {
	if r.deps.Asker == nil {
		log.Warn().Str("message", msg).Msg("no operator attached, using first choice")
		return options[0], true
	}
	choice, err := r.deps.Asker.Ask(ctx, msg, options...)
	if err != nil {
		log.Warn().Err(err).Str("message", msg).Msg("operator dialog abandoned")
		return "", false
	}
	return choice, true
}

func (r *Runner) setOnce(s orchestrator.Subsystem, st orchestrator.Status) {
	if r.deps.Results.Get(s) != st {
		r.deps.Results.Set(s, st)
	}
}

func (r *Runner) markBooting() {
	r.setOnce(orchestrator.Connection, orchestrator.Success)
	r.setOnce(orchestrator.Boot, orchestrator.Testing)
}

func (r *Runner) waitFixture(ctx context.Context) Observation {
	if !r.deps.Link.ToolConnected() {
		if _, ok := r.ask(ctx, "Test fixture not connected. Plug the fixture into this computer.", ChoiceRetry); !ok {
			return Observation{}
		}
		return Observation{Kind: ToolAbsent}
	}
	if !r.pause(ctx, r.cfg.SettleDelay) {
		return Observation{}
	}
	r.engine.Flush()
	return Observation{Kind: ToolPresent}
}

func (r *Runner) sampleTarget(ctx context.Context) Observation {
	r.noTarget++
	if r.noTarget >= r.cfg.NoTargetThreshold {
		r.deps.Results.Set(orchestrator.Connection, orchestrator.Failed)
		choice, ok := r.ask(ctx,
			"No unit detected. Check the unit is connected to the test fixture.",
			ChoiceRetry, ChoiceDefect)
		if !ok {
			return Observation{}
		}
		if choice == ChoiceDefect {
			r.deps.Defects.Add(defectConnection)
			return Observation{Kind: Abort}
		}
		r.noTarget = 0
		r.deps.Results.Set(orchestrator.Connection, orchestrator.Testing)
	}
	density := r.deps.Link.Density()
	log.Debug().Int("density", density).Int("attempt", r.noTarget).Msg("sampled console activity")
	return Observation{Kind: DensitySample, Density: density}
}

func (r *Runner) await(ctx context.Context, patterns []string, timeout time.Duration, minDensity int) Observation {
	out := r.engine.AwaitPattern(ctx, patterns, timeout, minDensity)
	log.Debug().Str("outcome", string(out)).Msg("console wait finished")
	return Observation{Kind: PatternResult, Pattern: r.classify(out)}
}

func (r *Runner) classify(o console.Outcome) Prompt {
	switch string(o) {
	case r.cfg.LoginPrompt:
		return PromptLogin
	case r.cfg.ShellPrompt:
		return PromptShell
	case r.cfg.BootloaderPrompt:
		return PromptBootloader
	case string(console.Unmatched):
		return PromptUnmatched
	case string(console.NoData):
		return PromptNoData
	case string(console.LowDensity):
		return PromptLowDensity
	default:
		return PromptNone
	}
}

func (r *Runner) login(ctx context.Context) Observation {
	steps := []struct{ send, expect string }{
		{r.cfg.Username + "\n", r.cfg.PasswordPrompt},
		{r.cfg.Password + "\n", r.cfg.WelcomeBanner},
		{"\n", r.cfg.ShellPrompt},
	}
	for _, s := range steps {
		if !r.engine.CommandAndWait(ctx, s.send, s.expect, r.cfg.CommandTimeout) {
			log.Warn().Str("expected", s.expect).Msg("console login step timed out")
			return Observation{Kind: StepFailed}
		}
	}
	return Observation{Kind: StepDone}
}

func (r *Runner) shell(ctx context.Context, cmd string) bool {
	ok := r.engine.CommandAndWait(ctx, cmd+"\n", r.cfg.ShellPrompt, r.cfg.CommandTimeout)
	if !ok {
		log.Warn().Str("cmd", cmd).Msg("console command timed out")
	}
	return ok
}

func (r *Runner) configureIP() []string {
	c := r.cfg
	return []string{
		"pkill dhclient",
		"ip addr flush dev " + c.Interface,
		fmt.Sprintf("ip addr add %s/%d dev %s", c.TargetIP, c.PrefixLen, c.Interface),
		fmt.Sprintf("ip route add %s dev %s", c.HostIP, c.Interface),
	}
}

func (r *Runner) network(ctx context.Context) Observation {
	r.engine.CommandAndWait(ctx, "sudo systemctl start sshd.service\n", "#", 2*r.cfg.CommandTimeout)

	if r.cfg.StaticIP {
		for _, cmd := range r.configureIP() {
			r.shell(ctx, cmd)
		}
		ping := fmt.Sprintf("ping -c 1 %s\n", r.cfg.HostIP)
		retries := 0
		for !r.engine.CommandAndWait(ctx, ping, "1 received", r.cfg.PingTimeout) {
			if ctx.Err() != nil {
				return Observation{}
			}
			if !r.deps.Link.ToolConnected() {
				return Observation{Kind: ToolAbsent}
			}
			retries++
			if retries >= r.cfg.PingRetries {
				r.deps.Results.Set(orchestrator.HardwareID, orchestrator.Failed)
				choice, ok := r.ask(ctx, "Could not reach the unit over Ethernet. Test again?",
					ChoiceRetry, ChoiceDefect)
				if !ok {
					return Observation{}
				}
				if choice == ChoiceDefect {
					r.deps.Defects.Add(defectEthernet)
					return Observation{Kind: Abort}
				}
				retries = 0
			}
			r.deps.Results.Set(orchestrator.HardwareID, orchestrator.Repairing)
			r.engine.CommandAndWait(ctx, "\x03", r.cfg.ShellPrompt, r.cfg.CommandTimeout)
			for _, cmd := range r.configureIP()[1:] {
				r.shell(ctx, cmd)
			}
		}
	}

	r.deps.Remote.SetHost(r.cfg.TargetIP)
	r.mu.Lock()
	r.device.TargetIP = r.cfg.TargetIP
	r.mu.Unlock()
	r.setOnce(orchestrator.HardwareID, orchestrator.Testing)
	notifications.TargetIP(r.deps.Notifications, r.cfg.TargetIP)
	log.Info().Str("ip", r.cfg.TargetIP).Msg("target network is up")
	return Observation{Kind: StepDone}
}

func (r *Runner) exists(ctx context.Context, file string) bool {
	ok, _ := remote.RunCheck(ctx, r.deps.Remote, "ls "+file, path.Base(file))
	return ok
}

func (r *Runner) runQuiet(ctx context.Context, cmd string) {
	if _, err := r.deps.Remote.Run(ctx, cmd); err != nil {
		log.Warn().Err(err).Str("cmd", cmd).Msg("remote command failed")
	}
}

func (r *Runner) download(ctx context.Context) Observation {
	payload := r.cfg.Payload
	if r.exists(ctx, payload) {
		choice, ok := r.ask(ctx, "The unit already has a test payload. Use the latest payload instead?",
			ChoiceUseLatest, ChoiceKeep)
		if !ok {
			return Observation{}
		}
		if choice == ChoiceKeep {
			log.Info().Msg("keeping the payload already on the unit")
			return Observation{Kind: StepSkipped}
		}
	}

	r.runQuiet(ctx, "rm -rf "+r.cfg.RemoteDir)
	fetch := fmt.Sprintf("curl -s %q --output %s", r.cfg.downloadURL(), payload)
	for attempt := 1; ; attempt++ {
		if attempt > r.cfg.DownloadRetries {
			log.Error().Int("attempts", r.cfg.DownloadRetries).Msg("payload download failed")
			r.deps.Results.Set(orchestrator.HardwareID, orchestrator.Repairing)
			return Observation{Kind: StepFailed}
		}
		r.runQuiet(ctx, fetch)
		if r.exists(ctx, payload) {
			break
		}
		if !r.pause(ctx, r.cfg.DownloadPause) {
			return Observation{}
		}
	}

	r.runQuiet(ctx, fmt.Sprintf("tar -xf %s -C %s", payload, path.Dir(r.cfg.RemoteDir)))
	r.runQuiet(ctx, "chmod -R +x "+r.cfg.RemoteDir)
	return Observation{Kind: StepDone}
}

func (r *Runner) identify(ctx context.Context) Observation {
	out, err := r.deps.Remote.Run(ctx, r.cfg.HardwareScript)
	if err != nil && !errors.Is(err, remote.ErrExitStatus) {
		log.Error().Err(err).Msg("hardware detection failed")
		r.deps.Results.Set(orchestrator.HardwareID, orchestrator.Repairing)
		return Observation{Kind: StepFailed}
	}
	rep := ParseHardwareReport(out)

	if rep.Prompt != "" {
		choice, ok := r.ask(ctx, rep.Prompt, ChoiceYes, ChoiceNo)
		if !ok {
			return Observation{}
		}
		if choice == ChoiceYes {
			r.runQuiet(ctx, r.cfg.ClearScript)
		}
	}

	board := rep.BoardType
	if board == "" {
		board = unknownBoard
	}
	if NeedsRevision(board) {
		if board == unknownBoard {
			choice, ok := r.ask(ctx,
				"Could not detect the board type, possibly a loose panel cable. Select it manually:",
				ChoiceATX, ChoiceDesk)
			if !ok {
				return Observation{}
			}
			log.Info().Str("type", choice).Msg("board type chosen by operator")
			board = choice
		}
		board += "-" + r.cfg.BoardVersion
	}
	notifications.CurrentDevice(r.deps.Notifications, board)

	dev := r.Device()
	dev.Name = namePrefix + board
	dev.Hardware = fmt.Sprintf(hardwareFormat, board)
	dev.Variant = orchestrator.VariantOf(dev.Hardware)
	dev.SocID = rep.SocID
	dev.WiFi = rep.WiFi

	dev.Serial = rep.Serial
	if dev.Serial == "" {
		dev.Serial = r.legacySerial(ctx)
	}
	if dev.Serial == "" {
		dev.Serial, err = r.deps.Store.NextSerial(dev.Name, r.cfg.MachineNumber, r.deps.Clock)
		if err != nil {
			log.Error().Err(err).Msg("failed to allocate serial number")
			r.deps.Results.Set(orchestrator.HardwareID, orchestrator.Failed)
			return Observation{Kind: StepFailed}
		}
		log.Info().Str("serial", dev.Serial).Msg("allocated new serial number")
	}
	notifications.SerialNumber(r.deps.Notifications, dev.Serial)

	err = r.deps.Store.SetDeviceInfo(dev.Serial, func(d *records.DeviceInfo) {
		d.SocUID = dev.SocID
		d.Hardware = dev.Hardware
		d.WiFiExist = dev.WiFi
	})
	if err != nil {
		log.Error().Err(err).Str("serial", dev.Serial).Msg("failed to save device info")
	}

	r.mu.Lock()
	r.device = dev
	r.mu.Unlock()
	log.Info().
		Str("serial", dev.Serial).
		Str("hardware", dev.Hardware).
		Bool("wifi", dev.WiFi).
		Msg("unit identified")
	r.deps.Results.Set(orchestrator.HardwareID, orchestrator.Success)
	return Observation{Kind: StepDone}
}

// legacySerial reads the serial a previous run wrote on the unit, for
// units whose detection script predates the serial marker.
func (r *Runner) legacySerial(ctx context.Context) string {
	if r.cfg.SerialFile == "" {
		return ""
	}
	out := r.engine.Capture(ctx, "cat "+r.cfg.SerialFile+"\n", r.cfg.CaptureSettle, r.cfg.CommandTimeout)
	serial := ParseSerial(out)
	if serial != "" {
		log.Info().Str("serial", serial).Msg("reusing serial from earlier run")
	}
	return serial
}

func (r *Runner) storage(ctx context.Context) Observation {
	serial := r.Device().Serial
	r.setOnce(orchestrator.Storage, orchestrator.Testing)
	if ok, _ := remote.RunCheck(ctx, r.deps.Remote, r.cfg.StorageScript, r.cfg.StorageMarker); ok {
		r.deps.Results.Set(orchestrator.Storage, orchestrator.Success)
		r.setItem(serial, records.ItemEMMC, records.StatusNormal)
		return Observation{Kind: StepDone}
	}

	r.deps.Results.Set(orchestrator.Storage, orchestrator.Failed)
	choice, ok := r.ask(ctx, "eMMC test failed. Test again?", ChoiceRetry, ChoiceDefect)
	if !ok {
		return Observation{}
	}
	if choice == ChoiceDefect {
		r.setItem(serial, records.ItemEMMC, records.StatusDamage)
		r.deps.Defects.Add(defectStorage)
		return Observation{Kind: Abort}
	}
	r.deps.Results.Set(orchestrator.Storage, orchestrator.Repairing)
	return Observation{Kind: StepFailed}
}

func (r *Runner) setItem(serial string, item records.Item, status string) {
	if err := r.deps.Store.SetItem(serial, item, status); err != nil {
		log.Error().Err(err).Str("item", string(item)).Msg("failed to record test item")
	}
}

func (r *Runner) printIdentity(ctx context.Context) Observation {
	if !r.deps.Printer.Available(ctx) {
		if _, ok := r.ask(ctx,
			"Printer not connected or driver missing. A steady green light may mean it is charging; "+
				"hold the side button to power it on.", ChoiceConnected); !ok {
			return Observation{}
		}
		return Observation{Kind: StepFailed}
	}
	dev := r.Device()
	label := printer.Label{Serial: dev.Serial, Name: dev.Name, WiFi: dev.WiFi}
	if err := r.deps.Printer.PrintIdentity(ctx, label); err != nil {
		log.Error().Err(err).Msg("failed to print identity label")
	}
	return Observation{Kind: StepDone}
}

func (r *Runner) finalize(ctx context.Context) Observation {
	dev := r.Device()
	pass := r.deps.Results.AllSuccess()
	if pass {
		r.deps.Results.Set(orchestrator.Finalize, orchestrator.Testing)
		cmd := strings.ReplaceAll(r.cfg.FinalizeCommand, "{serial}", dev.Serial)
		marker := strings.ReplaceAll(r.cfg.FinalizeMarker, "{serial}", dev.Serial)
		if ok, _ := remote.RunCheck(ctx, r.deps.Remote, cmd, marker); ok {
			r.deps.Results.Set(orchestrator.Finalize, orchestrator.Success)
		} else {
			r.deps.Results.Set(orchestrator.Finalize, orchestrator.Failed)
			r.deps.Defects.Add(defectFinalize)
			pass = false
		}
	} else {
		r.deps.Results.Set(orchestrator.Finalize, orchestrator.Failed)
	}
	r.pass = pass

	if err := r.deps.Store.SetPass(dev.Serial, pass); err != nil {
		log.Error().Err(err).Msg("failed to save test result")
	}
	date := r.deps.Clock.Now().Format(time.DateTime)
	if err := r.deps.Store.AppendLog(dev.Serial, date, "test_pass", strconv.FormatBool(pass)); err != nil {
		log.Error().Err(err).Msg("failed to append test log")
	}
	if defects := r.deps.Defects.String(); defects != "" {
		if err := r.deps.Store.AppendLog(dev.Serial, date, "defects", defects); err != nil {
			log.Error().Err(err).Msg("failed to append test log")
		}
	}
	if r.deps.Uploader != nil {
		if err := r.deps.Uploader.Enqueue(dev.Serial); err != nil {
			log.Error().Err(err).Msg("failed to queue record for upload")
		}
	}
	if !pass {
		r.printDefects(ctx)
	}
	return Observation{Kind: StepDone}
}

func (r *Runner) printDefects(ctx context.Context) {
	if r.printed {
		return
	}
	r.printed = true
	serial := r.Device().Serial
	if serial == "" {
		serial = "unidentified"
	}
	lines := r.deps.Defects.Lines()
	if len(lines) == 0 {
		lines = []string{"test incomplete"}
	}
	if err := r.deps.Printer.PrintDefects(ctx, serial, lines); err != nil {
		log.Error().Err(err).Msg("failed to print defect label")
	}
}

func (r *Runner) finish(ctx context.Context) *Result {
	dev := r.Device()
	if !r.pass {
		r.printDefects(ctx)
	}

	msg := "Test complete. Unplug the cables."
	if !r.pass {
		msg = "Test found defects. Attach the defect label and unplug the cables."
	}
	r.ask(ctx, msg, ChoiceUnplugged)

	res := &Result{
		Serial:     dev.Serial,
		Hardware:   dev.Hardware,
		Pass:       r.pass,
		Defects:    r.deps.Defects.Lines(),
		StartedAt:  r.started,
		FinishedAt: r.deps.Clock.Now(),
	}
	notifications.RunFinished(r.deps.Notifications, models.RunFinishedParams{
		Serial:  res.Serial,
		Pass:    res.Pass,
		Defects: res.Defects,
	})
	log.Info().Str("serial", res.Serial).Bool("pass", res.Pass).Msg("unit finished")
	return res
}
