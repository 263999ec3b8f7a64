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

// Package discovery advertises the station's API over mDNS so line
// dashboards and the operator app find stations by machine number.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/helpers"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	ServiceType      = "_factorytest._tcp"
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

var skipInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg", "usb",
}

func filterInterfaces(ifaces []net.Interface, exclude string) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		switch {
		case iface.Flags&net.FlagUp == 0,
			iface.Flags&net.FlagLoopback != 0,
			iface.Flags&net.FlagMulticast == 0,
			exclude != "" && iface.Name == exclude,
			isSkipped(iface.Name):
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isSkipped(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range skipInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Service owns the zeroconf registration.
type Service struct {
	server       *zeroconf.Server
	cfg          *config.Instance
	cancelFunc   context.CancelFunc
	listIfaces   func() ([]net.Interface, error)
	instanceName string
	// fixtureIface is the host NIC cabled to the unit under test.
	fixtureIface string
	stopped      bool
	mu           syncutil.Mutex
}

func New(cfg *config.Instance) *Service {
	return &Service{
		cfg:        cfg,
		listIfaces: net.Interfaces,
	}
}

// Start registers the service. If no interface is ready yet it keeps
// retrying in the background for a while instead of failing.
func (s *Service) Start() error {
	if !s.cfg.DiscoveryEnabled() {
		log.Info().Msg("mDNS discovery disabled by configuration")
		return nil
	}

	s.instanceName = s.resolveInstanceName()
	if name, err := helpers.HostInterface(context.Background(), s.cfg.Network().HostIP); err == nil {
		s.fixtureIface = name
	}
	if s.tryRegister() {
		return nil
	}

	log.Info().
		Dur("retryInterval", retryInterval).
		Msg("mDNS registration failed, retrying in background")

	ctx, cancel := context.WithTimeout(context.Background(), maxRetryDuration)
	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()

	go s.retryLoop(ctx)
	return nil
}

func (s *Service) txtRecords() []string {
	return []string{
		"machine=" + strconv.Itoa(s.cfg.MachineNumber()),
		"board=" + s.cfg.BoardVersion(),
		"version=" + config.AppVersion,
	}
}

func (s *Service) tryRegister() bool {
	all, err := s.listIfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return false
	}
	ifaces := filterInterfaces(all, s.fixtureIface)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces for mDNS")
		return false
	}

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}

	port := s.cfg.APIPort()
	server, err := zeroconf.Register(s.instanceName, ServiceType, "local.", port, s.txtRecords(), ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS registration attempt failed")
		return false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		server.Shutdown()
		return false
	}
	s.server = server
	s.mu.Unlock()

	log.Info().
		Str("instance", s.instanceName).
		Int("port", port).
		Strs("interfaces", names).
		Msg("mDNS advertising started")
	return true
}

func (s *Service) retryLoop(ctx context.Context) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.tryRegister() {
				return
			}
		case <-ctx.Done():
			log.Warn().Msg("mDNS registration retry timed out")
			return
		}
	}
}

// Stop sends goodbye packets. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
}

func (s *Service) InstanceName() string {
	return s.instanceName
}

// resolveInstanceName prefers the configured name, then
// "<hostname>-station-<n>".
func (s *Service) resolveInstanceName() string {
	if name := s.cfg.DiscoveryInstanceName(); name != "" {
		return name
	}
	station := fmt.Sprintf("station-%d", s.cfg.MachineNumber())
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return config.AppName + "-" + station
	}
	return hostname + "-" + station
}
