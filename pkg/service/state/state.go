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

package state

import (
	"context"
	"encoding/json"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/notifications"
	"github.com/ZaparooProject/factory-test/pkg/bringup"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/transport"
	"github.com/rs/zerolog/log"
)

const notificationBuffer = 500

// Station is the live view of the bring-up runner.
type Station interface {
	Phase() bringup.Phase
	Device() orchestrator.Device
}

// Link is the live view of the fixture transport.
type Link interface {
	Status() transport.Status
	Density() int
	Dropped() uint64
	Evicted() uint64
}

// State holds the runtime state of the station service.
//
// LOCKING RULES: mu protects all mutable fields. Never send on the
// notification channel while holding it.
type State struct {
	ctx           context.Context
	station       Station
	link          Link
	ctxCancelFunc context.CancelFunc
	Notifications chan<- models.Notification
	bootUUID      string
	machineCode   string
	uploads       int
	mu            syncutil.RWMutex
	serverOK      bool
	stopService   bool
}

func NewState(bootUUID string) (state *State, notificationCh <-chan models.Notification) {
	ns := make(chan models.Notification, notificationBuffer)
	ctx, ctxCancelFunc := context.WithCancel(context.Background())
	return &State{
		Notifications: ns,
		ctx:           ctx,
		ctxCancelFunc: ctxCancelFunc,
		bootUUID:      bootUUID,
	}, ns
}

func (s *State) GetContext() context.Context {
	return s.ctx
}

func (s *State) BootUUID() string {
	return s.bootUUID
}

func (s *State) StopService() {
	s.mu.Lock()
	s.stopService = true
	s.mu.Unlock()
	s.ctxCancelFunc()
}

func (s *State) ShouldStopService() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopService
}

func (s *State) SetStation(st Station) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.station = st
}

func (s *State) SetLink(l Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link = l
}

func (s *State) SetMachineCode(code string) {
	s.mu.Lock()
	s.machineCode = code
	s.mu.Unlock()
	notifications.MachineCode(s.Notifications, code)
}

func (s *State) MachineCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machineCode
}

func (s *State) Uploads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploads
}

func (s *State) ServerOK() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverOK
}

// Observe folds a broadcast notification into the mirrored fields.
func (s *State) Observe(n models.Notification) {
	switch n.Method {
	case models.NotificationUploadCount:
		var count int
		if err := json.Unmarshal(n.Params, &count); err != nil {
			log.Debug().Err(err).Msg("bad upload count notification")
			return
		}
		s.mu.Lock()
		s.uploads = count
		s.mu.Unlock()
	case models.NotificationServerStatus:
		var status string
		if err := json.Unmarshal(n.Params, &status); err != nil {
			log.Debug().Err(err).Msg("bad server status notification")
			return
		}
		s.mu.Lock()
		s.serverOK = status == notifications.ServerOnline
		s.mu.Unlock()
	}
}

// Follow calls Observe for every notification until ch closes.
func (s *State) Follow(ch <-chan models.Notification) {
	for n := range ch {
		s.Observe(n)
	}
}

// Status assembles the station overview served to operator clients.
func (s *State) Status() models.StatusResponse {
	s.mu.RLock()
	station := s.station
	link := s.link
	resp := models.StatusResponse{
		MachineCode: s.machineCode,
		Uploads:     s.uploads,
		ServerOK:    s.serverOK,
		Phase:       bringup.Unconnected.String(),
		Tool:        transport.ToolAbsent.String(),
		TargetIP:    "-",
	}
	s.mu.RUnlock()

	if link != nil {
		resp.Tool = link.Status().String()
		resp.Density = link.Density()
		resp.DroppedWrites = link.Dropped()
		resp.EvictedReads = link.Evicted()
	}
	if station != nil {
		resp.Phase = station.Phase().String()
		dev := station.Device()
		if dev.TargetIP != "" {
			resp.TargetIP = dev.TargetIP
		}
		resp.Device = models.DeviceResponse{
			Name:     dev.Name,
			Type:     dev.Hardware,
			Serial:   dev.Serial,
			SocUID:   dev.SocID,
			WiFi:     dev.WiFi,
			Detected: dev.Hardware != "",
		}
	}
	return resp
}
