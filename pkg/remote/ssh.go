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

// Package remote runs test scripts on the target over SSH once its Ethernet
// link is up.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoHost     = errors.New("no target host set")
	ErrExitStatus = errors.New("remote command failed")
	ErrRetargeted = errors.New("target changed while connecting")
)

// Runner executes a shell command on the target and returns its combined
// output. A non-zero exit is an error wrapping ErrExitStatus, with the
// output still returned.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
}

type Options struct {
	Host        string
	User        string
	Password    string
	Port        int
	DialTimeout time.Duration
}

// SSHRunner keeps one client per target. Dials happen outside mu so a
// stalled handshake never blocks Host, SetHost or Close.
type SSHRunner struct {
	client *ssh.Client
	dials  singleflight.Group
	opts   Options
	gen    uint64
	mu     syncutil.Mutex
}

func NewSSHRunner(opts Options) *SSHRunner {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &SSHRunner{opts: opts}
}

// SetHost points the runner at a new address, dropping any open connection.
func (r *SSHRunner) SetHost(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if host == r.opts.Host {
		return
	}
	_ = r.closeLocked()
	r.gen++
	r.opts.Host = host
}

// Configure replaces the credentials and port, keeping the current host.
// An open connection is dropped when anything changed.
func (r *SSHRunner) Configure(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opts.Host = r.opts.Host
	if opts.Port == 0 {
		opts.Port = r.opts.Port
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = r.opts.DialTimeout
	}
	if opts == r.opts {
		return
	}
	if err := r.closeLocked(); err != nil {
		log.Debug().Err(err).Msg("dropping ssh connection after reconfigure")
	}
	r.gen++
	r.opts = opts
}

func (r *SSHRunner) Host() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.Host
}

func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	return r.closeLocked()
}

func (r *SSHRunner) closeLocked() error {
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	if err != nil {
		return fmt.Errorf("failed to close ssh client: %w", err)
	}
	return nil
}

func (r *SSHRunner) connect(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	if r.client != nil {
		c := r.client
		r.mu.Unlock()
		return c, nil
	}
	opts, gen := r.opts, r.gen
	r.mu.Unlock()

	if opts.Host == "" {
		return nil, ErrNoHost
	}

	key := strconv.FormatUint(gen, 10)
	v, err, _ := r.dials.Do(key, func() (any, error) {
		return dial(ctx, opts)
	})
	if err != nil {
		return nil, err
	}
	client, ok := v.(*ssh.Client)
	if !ok {
		return nil, fmt.Errorf("unexpected dial result %T", v)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.gen != gen:
		_ = client.Close()
		return nil, ErrRetargeted
	case r.client == nil:
		r.client = client
	case r.client != client:
		// another waiter on the same dial already stored it
		return r.client, nil
	}
	return client, nil
}

// dial connects and completes the handshake within opts.DialTimeout,
// giving up early when ctx ends.
func dial(ctx context.Context, opts Options) (*ssh.Client, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	cfg := &ssh.ClientConfig{
		User: opts.User,
		Auth: []ssh.AuthMethod{ssh.Password(opts.Password)},
		// every freshly flashed unit generates its own host key
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // factory LAN
		Timeout:         opts.DialTimeout,
	}

	dialer := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Now().Add(opts.DialTimeout)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set handshake deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if !stop() {
		if err == nil {
			_ = sshConn.Close()
		}
		return nil, fmt.Errorf("ssh handshake with %s interrupted: %w", addr, ctx.Err())
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = sshConn.Close()
		return nil, fmt.Errorf("failed to clear handshake deadline: %w", err)
	}

	log.Debug().Str("addr", addr).Msg("ssh connected")
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (r *SSHRunner) drop(client *ssh.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == client {
		_ = r.closeLocked()
	}
}

func (r *SSHRunner) Run(ctx context.Context, cmd string) (string, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return "", err
	}

	session, err := client.NewSession()
	if err != nil {
		r.drop(client)
		return "", fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	log.Debug().Str("cmd", cmd).Msg("running remote command")
	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		<-done
		return out.String(), fmt.Errorf("remote command interrupted: %w", ctx.Err())
	case err = <-done:
	}

	output := out.String()
	if err == nil {
		return output, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return output, fmt.Errorf("%w: %q exited %d", ErrExitStatus, cmd, exitErr.ExitStatus())
	}
	r.drop(client)
	return output, fmt.Errorf("ssh command %q failed: %w", cmd, err)
}

// RunCheck runs cmd and reports whether marker appears in its output.
// Runner errors count as a miss.
func RunCheck(ctx context.Context, r Runner, cmd, marker string) (bool, string) {
	out, err := r.Run(ctx, cmd)
	if err != nil {
		log.Warn().Err(err).Str("cmd", cmd).Msg("remote check failed")
		return false, out
	}
	return strings.Contains(out, marker), out
}
