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

package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/activity"
	"github.com/ZaparooProject/factory-test/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type portSequence struct {
	ports []*mocks.FixturePort
	opens atomic.Int32
}

func (s *portSequence) factory(_ string, _ *serial.Mode) (Port, error) {
	i := int(s.opens.Add(1)) - 1
	if i >= len(s.ports) {
		return nil, errors.New("no more ports")
	}
	return s.ports[i], nil
}

func fastOptions(seq *portSequence) Options {
	return Options{
		Scanner:      func() (string, error) { return "/dev/ttyFAKE0", nil },
		PortFactory:  seq.factory,
		ScanInterval: time.Millisecond,
		LoopYield:    time.Millisecond,
	}
}

func startManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m := NewManager(opts)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m
}

func TestManager_ReceivesInboundData(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort("U-Boot 2020.04\r\n", "login: ")
	m := startManager(t, fastOptions(&portSequence{ports: []*mocks.FixturePort{port}}))

	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)

	var got []string
	require.Eventually(t, func() bool {
		if b := m.Receive(); b != nil {
			got = append(got, string(b))
		}
		return len(got) == 2
	}, time.Second, time.Millisecond)

	assert.Equal(t, []string{"U-Boot 2020.04\r\n", "login: "}, got)
}

func TestManager_DensityReflectsTraffic(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort("0123456789")
	opts := fastOptions(&portSequence{ports: []*mocks.FixturePort{port}})
	opts.Window = activity.NewWindow(50)
	m := startManager(t, opts)

	require.Eventually(t, func() bool { return m.Density() == 10 }, time.Second, time.Millisecond)
	assert.Equal(t, ToolPresentDeviceLive, m.Status())

	// silent reads push the sample out of the window
	require.Eventually(t, func() bool { return m.Density() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, ToolPresentDeviceUnknown, m.Status())
}

func TestManager_WritesOutboundInOrder(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort()
	m := startManager(t, fastOptions(&portSequence{ports: []*mocks.FixturePort{port}}))
	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)

	m.SendString("root\n")
	m.SendString("sipeed\n")
	m.Send([]byte{0x03})

	require.Eventually(t, func() bool { return len(port.Writes()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"root\n", "sipeed\n", "\x03"}, port.Writes())
}

func TestManager_SendWithoutLinkIsDropped(t *testing.T) {
	t.Parallel()

	m := NewManager(Options{
		Scanner: func() (string, error) { return "", ErrFixtureNotFound },
	})
	m.SendString("lost\n")
	assert.Empty(t, m.outbound)
	assert.Nil(t, m.Receive())
}

func TestManager_BrokenPipeReconnects(t *testing.T) {
	t.Parallel()

	first := mocks.NewFixturePort()
	second := mocks.NewFixturePort("back\n")
	seq := &portSequence{ports: []*mocks.FixturePort{first, second}}
	m := startManager(t, fastOptions(seq))

	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)
	first.FailReads(fmt.Errorf("read /dev/ttyACM0: %w", syscall.EPIPE))

	require.Eventually(t, first.IsClosed, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return seq.opens.Load() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return string(m.Receive()) == "back\n" }, time.Second, time.Millisecond)
	assert.True(t, m.ToolConnected())
}

func TestManager_TransientErrorKeepsPort(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort()
	seq := &portSequence{ports: []*mocks.FixturePort{port}}
	m := startManager(t, fastOptions(seq))
	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)

	port.FailWrites(errors.New("resource temporarily unavailable"))
	m.SendString("x")
	time.Sleep(20 * time.Millisecond)

	assert.False(t, port.IsClosed())
	assert.Equal(t, int32(1), seq.opens.Load())
}

func TestManager_TransientReadErrorDecaysDensity(t *testing.T) {
	t.Parallel()

	// Enough queued traffic that the window never sees a silent read before
	// the error starts.
	chunks := make([]string, 500)
	for i := range chunks {
		chunks[i] = "x"
	}
	port := mocks.NewFixturePort(chunks...)
	seq := &portSequence{ports: []*mocks.FixturePort{port}}
	opts := fastOptions(seq)
	opts.Window = activity.NewWindow(20)
	m := startManager(t, opts)

	require.Eventually(t, func() bool { return m.Density() > 0 }, time.Second, time.Millisecond)
	port.FailReads(errors.New("resource temporarily unavailable"))

	require.Eventually(t, func() bool { return m.Density() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, ToolPresentDeviceUnknown, m.Status())
	assert.False(t, port.IsClosed())
	assert.Equal(t, int32(1), seq.opens.Load())
}

func TestManager_CountsEvictedReads(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort("a", "b", "c", "d", "e")
	opts := fastOptions(&portSequence{ports: []*mocks.FixturePort{port}})
	opts.QueueSize = 2
	m := startManager(t, opts)

	require.Eventually(t, func() bool { return m.Evicted() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, "d", string(m.Receive()))
	assert.Equal(t, "e", string(m.Receive()))
	assert.Zero(t, m.Dropped())
}

func TestManager_OpenFailuresMarkToolAbsent(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort()
	var found atomic.Bool
	found.Store(true)
	seq := &portSequence{ports: []*mocks.FixturePort{port}}
	opts := fastOptions(seq)
	opts.OpenFailureLimit = 3
	opts.Scanner = func() (string, error) {
		if found.Load() {
			return "/dev/ttyFAKE0", nil
		}
		return "", ErrFixtureNotFound
	}
	m := startManager(t, opts)
	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)

	found.Store(false)
	port.FailReads(fmt.Errorf("wrapped: %w", syscall.ENODEV))

	require.Eventually(t, func() bool { return !m.ToolConnected() }, time.Second, time.Millisecond)
	assert.Equal(t, ToolAbsent, m.Status())
	assert.Equal(t, 0, m.Density())
}

func TestManager_TogglesModemLines(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort()
	m := startManager(t, fastOptions(&portSequence{ports: []*mocks.FixturePort{port}}))
	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(port.DTRToggles()) >= 4 }, time.Second, time.Millisecond)

	levels := port.DTRToggles()
	for i := 1; i < len(levels); i++ {
		assert.NotEqual(t, levels[i-1], levels[i])
	}
}

func TestManager_StopReleasesPort(t *testing.T) {
	t.Parallel()

	port := mocks.NewFixturePort()
	m := NewManager(fastOptions(&portSequence{ports: []*mocks.FixturePort{port}}))
	require.NoError(t, m.Start(context.Background()))
	require.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
	require.Eventually(t, m.ToolConnected, time.Second, time.Millisecond)

	m.Stop()
	assert.True(t, port.IsClosed())
}

func TestIsDisconnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "broken pipe", err: fmt.Errorf("write: %w", syscall.EPIPE), want: true},
		{name: "permission", err: fmt.Errorf("open: %w", syscall.EACCES), want: true},
		{name: "device removed", err: syscall.ENODEV, want: true},
		{name: "io error", err: syscall.EIO, want: true},
		{name: "timeout", err: syscall.EAGAIN, want: false},
		{name: "text broken pipe", err: errors.New("Broken pipe (os error 32)"), want: true},
		{name: "other", err: errors.New("framing error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsDisconnect(tt.err))
		})
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "tool-absent", ToolAbsent.String())
	assert.Equal(t, "tool-present", ToolPresentDeviceUnknown.String())
	assert.Equal(t, "device-live", ToolPresentDeviceLive.String())
}
