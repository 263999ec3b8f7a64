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

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/remote"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	replies map[string][]string
	calls   map[string]int
	mu      syncutil.Mutex
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		replies: make(map[string][]string),
		calls:   make(map[string]int),
	}
}

// on queues successive outputs for cmd; the last one repeats. An output of
// "!err" makes the call fail.
func (r *scriptedRunner) on(cmd string, outs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[cmd] = outs
}

func (r *scriptedRunner) Run(_ context.Context, cmd string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.calls[cmd]
	r.calls[cmd]++
	outs, ok := r.replies[cmd]
	if !ok || len(outs) == 0 {
		return "", remote.ErrExitStatus
	}
	out := outs[min(n, len(outs)-1)]
	if out == "!err" {
		return "", remote.ErrExitStatus
	}
	return out, nil
}

func (r *scriptedRunner) count(cmd string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[cmd]
}

type fixedAsker struct {
	err     error
	answer  string
	prompts []string
	mu      syncutil.Mutex
}

func (a *fixedAsker) Ask(_ context.Context, msg string, _ ...string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prompts = append(a.prompts, msg)
	return a.answer, a.err
}

type memRecorder struct {
	items map[records.Item]string
	mu    syncutil.Mutex
}

func (m *memRecorder) SetItem(_ string, item records.Item, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[records.Item]string)
	}
	m.items[item] = status
	return nil
}

func (m *memRecorder) get(item records.Item) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[item]
}

type fixture struct {
	runner   *scriptedRunner
	asker    *fixedAsker
	recorder *memRecorder
	results  *Results
	defects  *Defects
	ns       chan models.Notification
	orch     *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		runner:   newScriptedRunner(),
		asker:    &fixedAsker{answer: ChoiceNormal},
		recorder: &memRecorder{},
		defects:  &Defects{},
		ns:       make(chan models.Notification, 512),
	}
	f.results = NewResults(f.ns)
	f.orch = New(Options{
		Runner:    f.runner,
		Asker:     f.asker,
		Recorder:  f.recorder,
		Results:   f.results,
		Defects:   f.defects,
		Clock:     clockwork.NewFakeClock(),
		Vars:      map[string]string{"host_ip": "172.168.100.2"},
		MinSpeeds: map[Subsystem]float64{EthernetUp: 100},
	})
	return f
}

func (f *fixture) statuses(s Subsystem) []string {
	var seen []string
	for {
		select {
		case n := <-f.ns:
			var p models.TestStatusParams
			if err := json.Unmarshal(n.Params, &p); err == nil && p.ButtonID == string(s) {
				seen = append(seen, p.Status)
			}
		default:
			return seen
		}
	}
}

func atxDevice() *Device {
	return &Device{
		Serial:   "NdbP30000",
		Hardware: "NanoKVM_Pro (ATX-B) ",
		TargetIP: "172.168.100.1",
		Variant:  VariantATX,
		WiFi:     true,
	}
}

func TestRun_ScriptPasses(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.runner.on("usb.sh", "checking...\nUSB test passed\n")

	plan := []Task{{
		Subsystem: USB, Kind: KindScript, Command: "usb.sh",
		Marker: "USB test passed", Item: records.ItemUSB,
	}}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))

	assert.Equal(t, Success, f.results.Get(USB))
	assert.Equal(t, records.StatusNormal, f.recorder.get(records.ItemUSB))
	assert.Zero(t, f.defects.Len())
	assert.Equal(t, []string{"testing", "success"}, f.statuses(USB))
	assert.True(t, f.results.AllSuccess())
}

func TestRun_RetriesThenFails(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.runner.on("uart.sh", "no loopback")

	plan := []Task{{
		Subsystem: UART, Kind: KindScript, Command: "uart.sh", Marker: "UART OK",
		Attempts: 3, Defect: "UART loopback failed", Item: records.ItemUART,
	}}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))

	assert.Equal(t, 3, f.runner.count("uart.sh"))
	assert.Equal(t, Failed, f.results.Get(UART))
	assert.Equal(t, []string{"UART loopback failed"}, f.defects.Lines())
	assert.Equal(t, records.StatusDamage, f.recorder.get(records.ItemUART))
	assert.Equal(t,
		[]string{"testing", "repairing", "repairing", "failed"},
		f.statuses(UART))
	assert.False(t, f.results.AllSuccess())
}

func TestRun_RunnerErrorIsFailedAttempt(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.runner.on("gpio.sh", "!err", "GPIO OK")

	plan := []Task{{Subsystem: GPIO, Kind: KindScript, Command: "gpio.sh", Marker: "GPIO OK"}}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))

	assert.Equal(t, 2, f.runner.count("gpio.sh"))
	assert.Equal(t, Success, f.results.Get(GPIO))
}

func TestRun_FailureDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.runner.on("bad.sh", "nope")
	f.runner.on("good.sh", "PASS")

	plan := []Task{
		{Subsystem: Power, Kind: KindScript, Command: "bad.sh", Marker: "PASS", Attempts: 1},
		{Subsystem: StorageCard, Kind: KindScript, Command: "good.sh", Marker: "PASS"},
	}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))

	assert.Equal(t, Failed, f.results.Get(Power))
	assert.Equal(t, Success, f.results.Get(StorageCard))
	assert.Equal(t, []string{"power test failed"}, f.defects.Lines())
}

func TestRun_HidesMissingFeatures(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.runner.on("touch.sh", "PASS")

	dev := atxDevice()
	dev.WiFi = false
	plan := []Task{
		{Subsystem: Knob, Kind: KindConfirm, Prompt: "Turn the knob", Variants: []Variant{VariantDesk}},
		{Subsystem: WiFiConnect, Kind: KindScript, Command: "wifi.sh", Marker: "OK", RequiresWiFi: true},
		{Subsystem: Touch, Kind: KindScript, Command: "touch.sh", Marker: "PASS"},
	}
	require.NoError(t, f.orch.Run(context.Background(), dev, plan))

	assert.Equal(t, Hidden, f.results.Get(Knob))
	assert.Equal(t, Hidden, f.results.Get(WiFiConnect))
	assert.Zero(t, f.runner.count("wifi.sh"))
	assert.Empty(t, f.asker.prompts)
	assert.True(t, f.results.AllSuccess())
}

func TestRun_ConfirmTask(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.runner.on("show-panel", "")
	plan := []Task{{
		Subsystem: Panel, Kind: KindConfirm, Command: "show-panel",
		Prompt: "Is the {hardware} panel lit?", Item: records.ItemScreen,
	}}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))
	assert.Equal(t, Success, f.results.Get(Panel))
	assert.Equal(t, []string{"Is the NanoKVM_Pro (ATX-B)  panel lit?"}, f.asker.prompts)
	assert.Equal(t, 1, f.runner.count("show-panel"))

	f = newFixture()
	f.asker.answer = ChoiceDefect
	plan[0].Command = ""
	plan[0].Attempts = 5
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))
	assert.Equal(t, Failed, f.results.Get(Panel))
	assert.Len(t, f.asker.prompts, 1, "confirm tasks ask once")
	assert.Equal(t, records.StatusDamage, f.recorder.get(records.ItemScreen))
}

func TestRun_Throughput(t *testing.T) {
	t.Parallel()
	f := newFixture()
	cmd := "curl -w '%{speed_download}' http://{host_ip}:8080/download"
	expanded := "curl -w '%{speed_download}' http://172.168.100.2:8080/download"
	// 10 MB/s = 80 Mbps, then 15 MB/s = 120 Mbps.
	f.runner.on(expanded, "10000000.000", "15000000.000")

	plan := []Task{{Subsystem: EthernetUp, Kind: KindThroughput, Command: cmd, Item: records.ItemEth}}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))

	assert.Equal(t, 2, f.runner.count(expanded))
	assert.Equal(t, Success, f.results.Get(EthernetUp))
}

func TestRun_SharedItemStaysDamaged(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.runner.on("down.sh", "slow")

	// Goroutine order is not fixed; Damage wins either way.
	plan := []Task{
		{Subsystem: EthernetDown, Kind: KindScript, Command: "down.sh", Marker: "FAST", Attempts: 1, Item: records.ItemEth},
		{Subsystem: DisplayIO, Kind: KindConfirm, Prompt: "ok?", Item: records.ItemEth},
	}
	require.NoError(t, f.orch.Run(context.Background(), atxDevice(), plan))
	assert.Equal(t, records.StatusDamage, f.recorder.get(records.ItemEth))
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.asker.err = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plan := []Task{{Subsystem: Touch, Kind: KindConfirm, Prompt: "touch"}}
	err := f.orch.Run(ctx, atxDevice(), plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Failed, f.results.Get(Touch))
}

func TestParseSpeed(t *testing.T) {
	t.Parallel()
	mbps, err := ParseSpeed("  % Total ...\n12500000.000")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, mbps, 0.001)

	_, err = ParseSpeed("")
	require.ErrorIs(t, err, ErrNoSpeed)
}
