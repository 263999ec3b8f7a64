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
	"encoding/json"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/printer"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/remote"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shellPrompt = "\r\nroot@kvm:~# "

// fakeConsole is a unit on the fixture's serial line. Replies to a sent
// string are consumed in order with the last one repeating; anything
// without a rule gets a shell prompt. bootLog chunks are released one per
// Receive once the line has been drained.
type fakeConsole struct {
	replies map[string][]string
	inbox   []string
	bootLog []string
	sent    []string
	density int
	mu      syncutil.Mutex
	tool    bool
	drained bool
	// onSend runs ahead of every Send, outside the lock
	onSend  func(s string)
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{
		tool:    true,
		replies: make(map[string][]string),
	}
}

func (c *fakeConsole) on(sent string, replies ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies[sent] = replies
}

func (c *fakeConsole) Send(b []byte) {
	s := string(b)
	if c.onSend != nil {
		c.onSend(s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, s)
	rs, ok := c.replies[s]
	if !ok {
		c.inbox = append(c.inbox, shellPrompt)
		return
	}
	if len(rs) == 0 {
		return
	}
	if rs[0] != "" {
		c.inbox = append(c.inbox, rs[0])
	}
	if len(rs) > 1 {
		c.replies[s] = rs[1:]
	}
}

func (c *fakeConsole) Receive() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbox) > 0 {
		b := c.inbox[0]
		c.inbox = c.inbox[1:]
		return []byte(b)
	}
	if c.drained && len(c.bootLog) > 0 {
		b := c.bootLog[0]
		c.bootLog = c.bootLog[1:]
		return []byte(b)
	}
	c.drained = true
	return nil
}

func (c *fakeConsole) Density() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.density
}

func (c *fakeConsole) ToolConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

func (c *fakeConsole) setTool(present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tool = present
}

func (c *fakeConsole) sentAll() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeRemote struct {
	replies  map[string][]string
	fallback func(cmd string) string
	// before runs ahead of every command, outside the lock
	before   func(cmd string)
	host     string
	calls    []string
	mu       syncutil.Mutex
}

func (r *fakeRemote) on(cmd string, outs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[cmd] = outs
}

func (r *fakeRemote) SetHost(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host = host
}

func (r *fakeRemote) Run(_ context.Context, cmd string) (string, error) {
	if r.before != nil {
		r.before(cmd)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	outs, ok := r.replies[cmd]
	if !ok || len(outs) == 0 {
		if r.fallback != nil {
			return r.fallback(cmd), nil
		}
		return "", nil
	}
	out := outs[0]
	if len(outs) > 1 {
		r.replies[cmd] = outs[1:]
	}
	if out == "!err" {
		return "", remote.ErrExitStatus
	}
	return out, nil
}

func (r *fakeRemote) ran(cmd string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == cmd {
			n++
		}
	}
	return n
}

type rule struct {
	then     func()
	contains string
	answer   string
}

type fakeOperator struct {
	rules []rule
	asked []string
	mu    syncutil.Mutex
}

func (o *fakeOperator) Ask(_ context.Context, msg string, options ...string) (string, error) {
	o.mu.Lock()
	o.asked = append(o.asked, msg)
	var match *rule
	for i := range o.rules {
		if strings.Contains(msg, o.rules[i].contains) {
			match = &o.rules[i]
			break
		}
	}
	o.mu.Unlock()
	if match == nil {
		return options[0], nil
	}
	if match.then != nil {
		match.then()
	}
	return match.answer, nil
}

func (o *fakeOperator) questions() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.asked...)
}

type fakePrinter struct {
	identities []printer.Label
	defects    []string
	mu         syncutil.Mutex
	missing    bool
}

func (p *fakePrinter) Available(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.missing
}

func (p *fakePrinter) PrintIdentity(_ context.Context, label printer.Label) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities = append(p.identities, label)
	return nil
}

func (p *fakePrinter) PrintDefects(_ context.Context, serial string, defects []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defects = append(p.defects, serial+": "+strings.Join(defects, "; "))
	return nil
}

type fakeQueue struct {
	serials []string
	mu      syncutil.Mutex
}

func (q *fakeQueue) Enqueue(serial string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.serials = append(q.serials, serial)
	return nil
}

type rig struct {
	console  *fakeConsole
	remote   *fakeRemote
	operator *fakeOperator
	printer  *fakePrinter
	queue    *fakeQueue
	store    *records.Store
	results  *orchestrator.Results
	defects  *orchestrator.Defects
	ns       chan models.Notification
	cfg      Config
	plan     []orchestrator.Task
}

const (
	hwScript    = "/root/NanoKVM_Pro_Testing/test_sh/01_test_hardware.sh"
	emmcScript  = "/root/NanoKVM_Pro_Testing/test_sh/03_test_emmc.sh"
	fetchCmd    = `curl -s "http://172.168.100.1:8080/download" --output /root/test.tar`
	finalizeCmd = "mkdir -p /etc/test-kvm && echo NdbP3000A > /etc/test-kvm/serial && cat /etc/test-kvm/serial"
)

// newRig sets up a unit sitting at its login prompt that passes everything.
func newRig(t *testing.T) *rig {
	t.Helper()
	store, err := records.NewStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)

	r := &rig{
		console:  newFakeConsole(),
		remote:   &fakeRemote{replies: make(map[string][]string)},
		operator: &fakeOperator{},
		printer:  &fakePrinter{},
		queue:    &fakeQueue{},
		store:    store,
		ns:       make(chan models.Notification, 4096),
		defects:  &orchestrator.Defects{},
	}
	r.results = orchestrator.NewResults(r.ns)

	r.console.on("\n", "\r\nnanokvm login: ", shellPrompt)
	r.console.on("root\n", "Password: ")
	r.console.on("sipeed\n", "\r\nWelcome to NanoKVM Pro\r\n")
	r.console.on("ping -c 1 172.168.100.1\n", "1 packets transmitted, 1 received, 0% packet loss"+shellPrompt)

	r.remote.on("ls /root/test.tar", "!err", "/root/test.tar")
	r.remote.on(hwScript, sampleReport)
	r.remote.on(emmcScript, "eMMC test passed")
	r.remote.on("/opt/usb.sh", "USB test passed")
	r.remote.on(finalizeCmd, "NdbP3000A\n")

	r.plan = []orchestrator.Task{{
		Subsystem: orchestrator.USB, Kind: orchestrator.KindScript,
		Command: "/opt/usb.sh", Marker: "USB test passed", Item: records.ItemUSB, Attempts: 1,
	}}

	cfg := DefaultConfig()
	cfg.UncertainTimeout = 30 * time.Millisecond
	cfg.BootingTimeout = 300 * time.Millisecond
	cfg.CommandTimeout = 100 * time.Millisecond
	cfg.PingTimeout = 100 * time.Millisecond
	cfg.SettleDelay = time.Millisecond
	cfg.LoopPause = time.Millisecond
	cfg.DownloadPause = time.Millisecond
	cfg.NoTargetThreshold = 3
	cfg.PingRetries = 2
	r.cfg = cfg
	return r
}

func (r *rig) run(t *testing.T) *Result {
	t.Helper()
	runner := NewRunner(r.cfg, Deps{
		Link:          r.console,
		Remote:        r.remote,
		Asker:         r.operator,
		Printer:       r.printer,
		Store:         r.store,
		Uploader:      r.queue,
		Results:       r.results,
		Defects:       r.defects,
		Notifications: r.ns,
		Plan:          r.plan,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := runner.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, Finished, runner.Phase())
	return res
}

func TestRunner_PassingUnit(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	res := r.run(t)

	assert.True(t, res.Pass, "defects: %v", res.Defects)
	assert.Equal(t, "NdbP3000A", res.Serial)
	assert.Equal(t, "NanoKVM_Pro (ATX-B) ", res.Hardware)
	assert.Empty(t, res.Defects)

	assert.Equal(t, "172.168.100.2", r.remote.host)
	assert.Equal(t, 1, r.remote.ran(fetchCmd))
	assert.Equal(t, 1, r.remote.ran("/root/NanoKVM_Pro_Testing/test_sh/02_rm_tested.sh"))
	assert.Equal(t, 1, r.remote.ran(finalizeCmd))

	sent := r.console.sentAll()
	assert.Contains(t, sent, "ip addr add 172.168.100.2/24 dev eth0\n")
	assert.Contains(t, sent, "sipeed\n")

	rec, err := r.store.Load("NdbP3000A")
	require.NoError(t, err)
	assert.True(t, rec.DeviceInfo.TestPass)
	assert.True(t, rec.DeviceInfo.WiFiExist)
	assert.Equal(t, "4a1f09c2e7", rec.DeviceInfo.SocUID)
	assert.Equal(t, records.StatusNormal, rec.TestContent[records.ItemEMMC])
	assert.Equal(t, records.StatusNormal, rec.TestContent[records.ItemUSB])

	assert.Equal(t, []string{"NdbP3000A"}, r.queue.serials)
	require.Len(t, r.printer.identities, 1)
	assert.Equal(t, printer.Label{Serial: "NdbP3000A", Name: "NanoKVM-ATX-B", WiFi: true}, r.printer.identities[0])
	assert.Empty(t, r.printer.defects)

	qs := r.operator.questions()
	require.NotEmpty(t, qs)
	assert.Equal(t, "Test complete. Unplug the cables.", qs[len(qs)-1])

	for _, s := range []orchestrator.Subsystem{
		orchestrator.Connection, orchestrator.Boot, orchestrator.HardwareID,
		orchestrator.Storage, orchestrator.USB, orchestrator.Finalize,
	} {
		assert.Equal(t, orchestrator.Success, r.results.Get(s), s)
	}
}

func TestRunner_NoTargetRecordsDefect(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.console.on("\n")
	r.operator.rules = []rule{{contains: "No unit detected", answer: ChoiceDefect}}

	res := r.run(t)
	assert.False(t, res.Pass)
	assert.Equal(t, []string{defectConnection}, res.Defects)
	assert.Empty(t, res.Serial)
	assert.Equal(t, []string{"unidentified: " + defectConnection}, r.printer.defects)
	assert.Equal(t, orchestrator.Failed, r.results.Get(orchestrator.Connection))
	assert.Empty(t, r.remote.calls)

	qs := r.operator.questions()
	assert.Equal(t, "Test found defects. Attach the defect label and unplug the cables.", qs[len(qs)-1])
}

func TestRunner_NoTargetRetryResetsCounter(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	// Silent for the first threshold, then the unit answers.
	r.console.on("\n", "", "", "", "\r\nnanokvm login: ", shellPrompt)
	r.operator.rules = []rule{{contains: "No unit detected", answer: ChoiceRetry}}

	res := r.run(t)
	assert.True(t, res.Pass)
	asked := 0
	for _, q := range r.operator.questions() {
		if strings.Contains(q, "No unit detected") {
			asked++
		}
	}
	assert.Equal(t, 1, asked)
}

func TestRunner_BootingUnit(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.console.density = 20
	r.console.bootLog = []string{"[    1.2] mmc0: new HS200 MMC card\r\n", "\r\nnanokvm login: "}
	r.console.on("\n", shellPrompt)

	res := r.run(t)
	assert.True(t, res.Pass)
	assert.Equal(t, "root\n", r.console.sentAll()[0], "booting units are not poked")
}

func TestRunner_BootloaderIsBooted(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.console.on("\n", "\r\nAXERA-UBOOT=> ", "\r\nnanokvm login: ", shellPrompt)
	r.console.on("boot\n", "")

	res := r.run(t)
	assert.True(t, res.Pass)
	assert.Contains(t, r.console.sentAll(), "boot\n")
}

func TestRunner_StorageDefectAborts(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.remote.on(emmcScript, "eMMC test failed: read error")
	r.operator.rules = []rule{{contains: "eMMC test failed", answer: ChoiceDefect}}

	res := r.run(t)
	assert.False(t, res.Pass)
	assert.Equal(t, []string{defectStorage}, res.Defects)

	rec, err := r.store.Load("NdbP3000A")
	require.NoError(t, err)
	assert.Equal(t, records.StatusDamage, rec.TestContent[records.ItemEMMC])
	assert.Empty(t, r.printer.identities)
	assert.Equal(t, []string{"NdbP3000A: " + defectStorage}, r.printer.defects)
	assert.Zero(t, r.remote.ran("/opt/usb.sh"))
}

func TestRunner_UnknownBoardAsksOperator(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.remote.on(hwScript, "当前板卡的类型为：Unknown\n")
	r.remote.fallback = func(cmd string) string {
		// Echo the serial back for the pass marker write.
		if _, rest, ok := strings.Cut(cmd, "echo "); ok {
			serial, _, _ := strings.Cut(rest, " ")
			return serial + "\n"
		}
		return ""
	}
	r.operator.rules = []rule{{contains: "board type", answer: ChoiceDesk}}

	res := r.run(t)
	assert.True(t, res.Pass, "defects: %v", res.Defects)
	assert.Equal(t, "NanoKVM_Pro (Desk-B) ", res.Hardware)
	assert.True(t, strings.HasPrefix(res.Serial, "Ne"), res.Serial)
	assert.Len(t, res.Serial, 9)
	assert.Equal(t, orchestrator.Success, r.results.Get(orchestrator.HardwareID))

	rec, err := r.store.Load(res.Serial)
	require.NoError(t, err)
	assert.False(t, rec.DeviceInfo.WiFiExist)
	assert.Equal(t, "NanoKVM_Pro (Desk-B) ", rec.DeviceInfo.Hardware)
}

func TestRunner_ReusesSerialFromEarlierRun(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.remote.on(hwScript, "当前板卡的类型为：ATX-B\nSOC ID: 4a1f09c2e7\n")
	r.console.on("cat /etc/test-kvm/serial\n", "cat /etc/test-kvm/serial\r\nNdbP3000A\r\n"+shellPrompt)

	res := r.run(t)
	assert.True(t, res.Pass, "defects: %v", res.Defects)
	assert.Equal(t, "NdbP3000A", res.Serial)
	assert.Contains(t, r.console.sentAll(), "cat /etc/test-kvm/serial\n")
}

func TestRunner_KeepExistingPayload(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.remote.on("ls /root/test.tar", "/root/test.tar")
	r.operator.rules = []rule{{contains: "already has a test payload", answer: ChoiceKeep}}

	res := r.run(t)
	assert.True(t, res.Pass)
	assert.Zero(t, r.remote.ran(fetchCmd))
	assert.Zero(t, r.remote.ran("rm -rf /root/NanoKVM_Pro_Testing"))
}

func TestRunner_FixtureMissing(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.console.setTool(false)
	r.operator.rules = []rule{{
		contains: "fixture not connected",
		answer:   ChoiceRetry,
		then:     func() { r.console.setTool(true) },
	}}

	res := r.run(t)
	assert.True(t, res.Pass)
	assert.Contains(t, r.operator.questions()[0], "fixture not connected")
}

// drain returns the phase and status notifications published so far, one
// "phase:<name>" or "<subsystem>=<status>" string each.
func (r *rig) drain(t *testing.T) []string {
	t.Helper()
	var out []string
	for {
		select {
		case n := <-r.ns:
			switch n.Method {
			case models.NotificationPhase:
				var p models.PhaseParams
				require.NoError(t, json.Unmarshal(n.Params, &p))
				out = append(out, "phase:"+p.Phase)
			case models.NotificationTestStatus:
				var p models.TestStatusParams
				require.NoError(t, json.Unmarshal(n.Params, &p))
				out = append(out, p.ButtonID+"="+p.Status)
			}
		default:
			return out
		}
	}
}

func TestRunner_ToolLostMidRunStartsOver(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	var dropped atomic.Bool
	r.remote.before = func(cmd string) {
		if cmd == hwScript && dropped.CompareAndSwap(false, true) {
			r.defects.Add("stale defect")
			r.console.setTool(false)
		}
	}
	r.operator.rules = []rule{{
		contains: "fixture not connected",
		answer:   ChoiceRetry,
		then:     func() { r.console.setTool(true) },
	}}

	res := r.run(t)
	assert.True(t, res.Pass, "defects: %v", res.Defects)
	assert.Empty(t, res.Defects)
	assert.Equal(t, "NdbP3000A", res.Serial)
	assert.Equal(t, 2, r.remote.ran(hwScript))

	events := r.drain(t)
	idx := slices.Index(events, "phase:"+CheckingHardware.String())
	require.NotEqual(t, -1, idx, events)

	var phases []string
	for _, e := range events[idx+1:] {
		if strings.HasPrefix(e, "phase:") {
			phases = append(phases, e)
		}
	}
	require.NotEmpty(t, phases)
	assert.Equal(t, "phase:"+Unconnected.String(), phases[0], "disconnect wins over the step result")
	assert.Equal(t, "phase:"+Finished.String(), phases[len(phases)-1])

	reset := slices.Index(events[idx+1:], "phase:"+Unconnected.String()) + idx + 1
	after := events[reset+1:]
	for _, s := range orchestrator.AllSubsystems {
		assert.Contains(t, after, string(s)+"=untested", "results reset for %s", s)
	}
	assert.NotContains(t, events[idx+1:reset], "phase:"+CheckingStorage.String())
}

func TestRunner_FailedPlanSkipsFinalize(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.remote.on("/opt/usb.sh", "USB device not found")
	r.plan[0].Defect = "USB port dead"

	res := r.run(t)
	assert.False(t, res.Pass)
	assert.Equal(t, []string{"USB port dead"}, res.Defects)
	assert.Zero(t, r.remote.ran(finalizeCmd))
	assert.Equal(t, orchestrator.Failed, r.results.Get(orchestrator.Finalize))

	rec, err := r.store.Load("NdbP3000A")
	require.NoError(t, err)
	assert.False(t, rec.DeviceInfo.TestPass)
	assert.Equal(t, records.StatusDamage, rec.TestContent[records.ItemUSB])
	assert.Equal(t, []string{"NdbP3000A"}, r.queue.serials)
	assert.Equal(t, []string{"NdbP3000A: USB port dead"}, r.printer.defects)
}

func TestRunner_EthernetDefect(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.console.on("ping -c 1 172.168.100.1\n", "1 packets transmitted, 0 received"+shellPrompt)
	r.operator.rules = []rule{{contains: "over Ethernet", answer: ChoiceDefect}}

	res := r.run(t)
	assert.False(t, res.Pass)
	assert.Equal(t, []string{defectEthernet}, res.Defects)
	assert.Contains(t, r.console.sentAll(), "\x03")
	assert.Empty(t, r.remote.host)
}

func TestRunner_ToolLostDuringPingIsNotEthernetDefect(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	// The first ping fails and the fixture goes with it; after reconnecting
	// the unit answers.
	r.console.on("ping -c 1 172.168.100.1\n",
		"1 packets transmitted, 0 received"+shellPrompt,
		"1 packets transmitted, 1 received, 0% packet loss"+shellPrompt)
	var dropped atomic.Bool
	r.console.onSend = func(s string) {
		if strings.HasPrefix(s, "ping ") && dropped.CompareAndSwap(false, true) {
			r.console.setTool(false)
		}
	}
	r.operator.rules = []rule{{
		contains: "fixture not connected",
		answer:   ChoiceRetry,
		then:     func() { r.console.setTool(true) },
	}}

	res := r.run(t)
	assert.True(t, res.Pass, "defects: %v", res.Defects)
	assert.NotContains(t, res.Defects, defectEthernet)
	for _, q := range r.operator.questions() {
		assert.NotContains(t, q, "over Ethernet")
	}
	assert.NotContains(t, r.console.sentAll(), "\x03")
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	r.console.setTool(false)
	runner := NewRunner(r.cfg, Deps{
		Link: r.console, Remote: r.remote, Store: r.store, Notifications: r.ns,
		Asker: &blockingAsker{},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

type blockingAsker struct{}

func (blockingAsker) Ask(ctx context.Context, _ string, _ ...string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}
