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

// Package transport owns the serial link to the test fixture. A single loop
// goroutine holds the port, reconnects when it disappears, and moves bytes
// between the port and a pair of bounded queues.
package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/activity"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

const (
	DefaultVID              = "1a86"
	DefaultPID              = "55d3"
	DefaultBaudRate         = 115200
	DefaultReadTimeout      = 100 * time.Millisecond
	DefaultScanInterval     = 500 * time.Millisecond
	DefaultLoopYield        = 10 * time.Millisecond
	DefaultOpenFailureLimit = 20
	DefaultQueueSize        = 100
	DefaultReadBufferSize   = 1024
)

// Status summarises what the transport currently knows about the link.
type Status int

const (
	ToolAbsent Status = iota
	ToolPresentDeviceUnknown
	ToolPresentDeviceLive
)

func (s Status) String() string {
	switch s {
	case ToolAbsent:
		return "tool-absent"
	case ToolPresentDeviceUnknown:
		return "tool-present"
	case ToolPresentDeviceLive:
		return "device-live"
	default:
		return "unknown"
	}
}

type Options struct {
	Scanner          Scanner
	PortFactory      PortFactory
	Window           *activity.Window
	BaudRate         int
	ReadTimeout      time.Duration
	ScanInterval     time.Duration
	LoopYield        time.Duration
	OpenFailureLimit int
	QueueSize        int
	ReadBufferSize   int
	// DisableModemToggle stops the per-iteration DTR/RTS toggle.
	DisableModemToggle bool
}

func (o *Options) withDefaults() {
	if o.Scanner == nil {
		o.Scanner = USBScanner(DefaultVID, DefaultPID)
	}
	if o.PortFactory == nil {
		o.PortFactory = DefaultPortFactory
	}
	if o.Window == nil {
		o.Window = activity.NewWindow(activity.DefaultSize)
	}
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.ScanInterval <= 0 {
		o.ScanInterval = DefaultScanInterval
	}
	if o.LoopYield <= 0 {
		o.LoopYield = DefaultLoopYield
	}
	if o.OpenFailureLimit <= 0 {
		o.OpenFailureLimit = DefaultOpenFailureLimit
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
}

// Manager is the only owner of the fixture port.
type Manager struct {
	port     Port
	portMu   *syncutil.TryMutex
	window   *activity.Window
	inbound  *ringQueue
	outbound chan []byte
	cancel   context.CancelFunc
	done     chan struct{}
	opts     Options
	failures int
	dropped  atomic.Uint64
	tool     atomic.Bool
	linked   atomic.Bool
	modem    bool
}

func NewManager(opts Options) *Manager {
	opts.withDefaults()
	return &Manager{
		opts:     opts,
		portMu:   syncutil.NewTryMutex(),
		window:   opts.Window,
		inbound:  newRingQueue(opts.QueueSize),
		outbound: make(chan []byte, opts.QueueSize),
	}
}

var ErrAlreadyStarted = errors.New("transport already started")

// Start launches the owner loop. It runs until ctx is cancelled or Stop is
// called.
func (m *Manager) Start(ctx context.Context) error {
	if m.done != nil {
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.loop(loopCtx)
	return nil
}

// Stop cancels the loop and waits for it to release the port.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Send queues b for the fixture. It never blocks: with no link or a full
// queue the buffer is dropped.
func (m *Manager) Send(b []byte) {
	if !m.linked.Load() {
		log.Debug().Int("len", len(b)).Msg("no fixture link, dropping outbound data")
		return
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	select {
	case m.outbound <- buf:
	default:
		m.dropped.Add(1)
		log.Warn().Int("len", len(b)).Msg("outbound queue full, dropping data")
	}
}

func (m *Manager) SendString(s string) {
	m.Send([]byte(s))
}

// Receive returns the oldest unread buffer, or nil if there is none.
func (m *Manager) Receive() []byte {
	return m.inbound.Pop()
}

// Drain discards every pending inbound buffer.
func (m *Manager) Drain() {
	m.inbound.Clear()
}

func (m *Manager) ToolConnected() bool {
	return m.tool.Load()
}

func (m *Manager) Density() int {
	return m.window.Sum()
}

func (m *Manager) Status() Status {
	switch {
	case !m.tool.Load():
		return ToolAbsent
	case m.window.Sum() > 0:
		return ToolPresentDeviceLive
	default:
		return ToolPresentDeviceUnknown
	}
}

// Dropped is the number of outbound buffers discarded on a full queue.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

// Evicted is the number of inbound buffers lost because nobody read them
// before the queue filled.
func (m *Manager) Evicted() uint64 {
	return m.inbound.Evicted()
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)
	defer m.closePort()

	buf := make([]byte, m.opts.ReadBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}

		if !m.linked.Load() {
			if !m.connect() {
				sleep(ctx, m.opts.ScanInterval)
				continue
			}
		}

		m.service(buf)
		sleep(ctx, m.opts.LoopYield)
	}
}

func (m *Manager) connect() bool {
	path, err := m.opts.Scanner()
	if err == nil {
		var port Port
		port, err = m.opts.PortFactory(path, SerialMode(m.opts.BaudRate))
		if err == nil {
			if terr := port.SetReadTimeout(m.opts.ReadTimeout); terr != nil {
				log.Warn().Err(terr).Msg("failed to set read timeout")
			}
			m.portMu.Lock()
			m.port = port
			m.portMu.Unlock()
			m.failures = 0
			m.linked.Store(true)
			if !m.tool.Swap(true) {
				log.Info().Str("path", path).Msg("test fixture connected")
			}
			return true
		}
	}

	m.window.Clear()
	if m.failures < m.opts.OpenFailureLimit {
		m.failures++
		log.Debug().Err(err).Int("failures", m.failures).Msg("fixture open failed")
	}
	if m.failures >= m.opts.OpenFailureLimit && m.tool.Swap(false) {
		log.Warn().Msg("test fixture not detected")
	}
	return false
}

// service does one write, one read and one modem toggle.
func (m *Manager) service(buf []byte) {
	if !m.portMu.TryLock() {
		return
	}

	drop := false
	select {
	case out := <-m.outbound:
		if _, err := m.port.Write(out); err != nil {
			log.Error().Err(err).Msg("fixture write failed")
			drop = IsDisconnect(err)
		}
	default:
	}

	if !drop {
		n, err := m.port.Read(buf)
		switch {
		case err != nil:
			log.Debug().Err(err).Msg("fixture read failed")
			drop = IsDisconnect(err)
			if !drop {
				m.window.Push(0)
			}
		case n > 0:
			m.window.Push(n)
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if m.inbound.Push(chunk) {
				log.Debug().Msg("inbound queue full, evicted oldest buffer")
			}
		default:
			m.window.Push(0)
		}
	}

	if !drop && !m.opts.DisableModemToggle {
		if err := m.port.SetDTR(m.modem); err != nil {
			drop = IsDisconnect(err)
		}
		if err := m.port.SetRTS(m.modem); err != nil {
			drop = drop || IsDisconnect(err)
		}
		m.modem = !m.modem
	}
	m.portMu.Unlock()

	if drop {
		log.Warn().Msg("fixture link lost")
		m.closePort()
	}
}

func (m *Manager) closePort() {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if m.port != nil {
		if err := m.port.Close(); err != nil {
			log.Debug().Err(err).Msg("error closing fixture port")
		}
		m.port = nil
	}
	m.linked.Store(false)
	m.window.Clear()

	for {
		select {
		case <-m.outbound:
		default:
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
