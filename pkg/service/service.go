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
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/activity"
	"github.com/ZaparooProject/factory-test/pkg/api"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/database/historydb"
	"github.com/ZaparooProject/factory-test/pkg/dialog"
	"github.com/ZaparooProject/factory-test/pkg/fileserver"
	"github.com/ZaparooProject/factory-test/pkg/helpers"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/ZaparooProject/factory-test/pkg/remote"
	"github.com/ZaparooProject/factory-test/pkg/service/broker"
	"github.com/ZaparooProject/factory-test/pkg/service/discovery"
	"github.com/ZaparooProject/factory-test/pkg/service/publishers"
	"github.com/ZaparooProject/factory-test/pkg/service/state"
	"github.com/ZaparooProject/factory-test/pkg/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const subscriberBuffer = 100

// Options override the station's external dependencies, mostly for tests.
type Options struct {
	Fs          afero.Fs
	PortFactory transport.PortFactory
	Scanner     transport.Scanner
	DataDir     string
}

// Service is a running station. The fields are shared with in-process
// front ends like the TUI.
type Service struct {
	Config  *config.Instance
	State   *state.State
	Broker  *broker.Broker
	Dialogs *dialog.Manager
	Results *orchestrator.Results
	Defects *orchestrator.Defects
	Link    *transport.Manager

	history    *historydb.HistoryDB
	queue      *records.Queue
	store      *records.Store
	uploader   *records.Uploader
	discovery  *discovery.Service
	publishers []*publishers.MQTTPublisher
	remote     *remote.SSHRunner
	fs         afero.Fs
	done       chan struct{}
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopErr    error
}

// Start brings up every station component. Only local resource failures
// (directories, databases) are returned; network-facing parts that fail
// are logged and the station keeps testing.
func Start(cfg *config.Instance, opts Options) (*Service, error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.DataDir == "" {
		opts.DataDir = helpers.DataDir()
	}

	bootUUID := uuid.New().String()
	log.Info().Msgf("boot session UUID: %s", bootUUID)

	st, ns := state.NewState(bootUUID)
	ctx := st.GetContext()

	svc := &Service{
		Config:  cfg,
		State:   st,
		Broker:  broker.NewBroker(ctx, ns),
		Dialogs: dialog.NewManager(st.Notifications),
		Results: orchestrator.NewResults(st.Notifications),
		Defects: &orchestrator.Defects{},
		fs:      opts.Fs,
		done:    make(chan struct{}),
	}
	svc.Broker.Start()

	fail := func(err error) (*Service, error) {
		st.StopService()
		svc.wg.Wait()
		if cerr := svc.closeStores(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing stores after failed start")
		}
		return nil, err
	}

	log.Info().Msg("opening databases")
	var err error
	svc.history, err = historydb.Open(ctx, opts.DataDir)
	if err != nil {
		return fail(fmt.Errorf("failed to open history database: %w", err))
	}
	svc.queue, err = records.OpenQueue(filepath.Join(opts.DataDir, config.QueueDbFile))
	if err != nil {
		return fail(err)
	}
	svc.store, err = records.NewStore(opts.Fs, filepath.Join(opts.DataDir, config.RecordsDir))
	if err != nil {
		return fail(err)
	}
	payloadDir := filepath.Join(opts.DataDir, config.PayloadDir)
	if err := opts.Fs.MkdirAll(payloadDir, 0o750); err != nil {
		return fail(fmt.Errorf("failed to create payload dir: %w", err))
	}

	svc.remote = remote.NewSSHRunner(sshOptions(cfg))

	stateFeed, _ := svc.Broker.Subscribe(subscriberBuffer, false)
	svc.goRun(func() { st.Follow(stateFeed) })

	preflight(ctx, cfg)
	st.SetMachineCode(MachineCode(cfg, time.Now()))

	upl := cfg.Upload()
	svc.uploader = records.NewUploader(svc.store, svc.queue, st.Notifications, records.UploaderOptions{
		BaseURL:      upl.URL,
		Token:        upl.Token,
		ResultPasswd: upl.ResultPassword,
		IdleInterval: upl.IntervalDuration(),
	})
	if upl.Enabled {
		log.Info().Msg("starting record uploader")
		svc.goRun(func() { svc.uploader.Run(ctx) })
	}

	log.Info().Msg("starting fixture transport")
	svc.Link = transport.NewManager(transportOptions(cfg, opts))
	if err := svc.Link.Start(ctx); err != nil {
		return fail(fmt.Errorf("failed to start transport: %w", err))
	}
	st.SetLink(svc.Link)

	log.Info().Msg("starting file server")
	files := fileserver.New(opts.Fs, payloadDir)
	svc.goRun(func() {
		if err := files.Serve(ctx, fileServerAddr(cfg)); err != nil {
			log.Error().Err(err).Msg("file server stopped")
		}
	})

	log.Info().Msg("starting API service")
	apiFeed, _ := svc.Broker.Subscribe(subscriberBuffer, false)
	apiOpts := &api.Options{
		Config:        cfg,
		State:         st,
		Results:       svc.Results,
		Defects:       svc.Defects,
		Dialogs:       svc.Dialogs,
		History:       svc.history,
		Records:       svc.store,
		Queue:         svc.queue,
		OnReload:      func() { svc.reloaded() },
		Notifications: apiFeed,
		Snapshot:      svc.Broker.Snapshot,
	}
	svc.goRun(func() {
		if err := api.Start(ctx, apiOpts); err != nil {
			log.Error().Err(err).Msg("api server stopped")
		}
	})

	log.Info().Msg("starting publishers")
	svc.publishers = publishers.StartMQTT(cfg, svc.Broker)

	log.Info().Msg("starting mDNS discovery service")
	svc.discovery = discovery.New(cfg)
	if err := svc.discovery.Start(); err != nil {
		log.Error().Err(err).Msg("mDNS discovery failed to start (continuing without discovery)")
	}

	svc.goRun(func() {
		if err := cfg.Watch(ctx, svc.reloaded); err != nil {
			log.Warn().Err(err).Msg("config file watch unavailable")
		}
	})

	log.Info().Msg("starting station loop")
	svc.goRun(func() { svc.stationLoop(ctx) })

	go func() {
		<-ctx.Done()
		svc.shutdown()
		close(svc.done)
	}()

	log.Info().Msg("station fully initialized")
	return svc, nil
}

func (s *Service) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Done is closed after shutdown completes.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Stop cancels every component and waits for them to exit.
func (s *Service) Stop() error {
	s.State.StopService()
	<-s.done
	return s.stopErr
}

func (s *Service) shutdown() {
	s.stopOnce.Do(func() {
		log.Info().Msg("service context cancelled, running cleanup")
		s.discovery.Stop()
		for _, p := range s.publishers {
			p.Stop()
		}
		s.Link.Stop()
		s.wg.Wait()
		s.Broker.Stop()
		if err := s.remote.Close(); err != nil {
			log.Debug().Err(err).Msg("closing ssh session")
		}
		s.stopErr = s.closeStores()
		log.Info().Msg("service stopped")
	})
}

func (s *Service) closeStores() error {
	var errs []error
	if s.queue != nil {
		errs = append(errs, s.queue.Close())
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	return errors.Join(errs...)
}

// reloaded applies settings that take effect immediately. Everything
// else is read again when the next unit starts.
func (s *Service) reloaded() {
	log.Info().Str("path", s.Config.Path()).Msg("config reloaded")
	helpers.SetLogLevel(s.Config.DebugLogging())
	s.State.SetMachineCode(MachineCode(s.Config, time.Now()))
	s.remote.Configure(sshOptions(s.Config))
}

func preflight(ctx context.Context, cfg *config.Instance) {
	if !helpers.IsClockReliable(time.Now()) {
		log.Error().Time("now", time.Now()).Msg("host clock is not set, serial numbers cannot be issued")
	}
	if !cfg.StaticNetwork() {
		return
	}
	hostIP := cfg.Network().HostIP
	iface, err := helpers.HostInterface(ctx, hostIP)
	if err != nil {
		log.Warn().Err(err).Msg("fixture network not configured on this computer")
		return
	}
	log.Info().Str("interface", iface).Str("ip", hostIP).Msg("fixture network ready")
}

func transportOptions(cfg *config.Instance, opts Options) transport.Options {
	tc := cfg.Transport()
	scanner := opts.Scanner
	if scanner == nil {
		scanner = transport.USBScanner(tc.VID, tc.PID)
	}
	return transport.Options{
		Scanner:          scanner,
		PortFactory:      opts.PortFactory,
		Window:           activity.NewWindow(tc.WindowSize),
		BaudRate:         tc.Baud,
		ReadTimeout:      tc.ReadTimeoutDuration(),
		ScanInterval:     tc.ScanIntervalDuration(),
		OpenFailureLimit: tc.OpenFailureLimit,
		QueueSize:        tc.QueueSize,
	}
}

func fileServerAddr(cfg *config.Instance) string {
	n := cfg.Network()
	if n.FileServerListen != "" {
		return n.FileServerListen
	}
	return net.JoinHostPort("", strconv.Itoa(n.FileServerPort))
}

func sshOptions(cfg *config.Instance) remote.Options {
	n := cfg.Network()
	return remote.Options{
		User:     n.SSHUser,
		Password: n.SSHPassword,
		Port:     n.SSHPort,
	}
}
