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

// Package dialog routes operator questions from test tasks to whichever UI is
// attached and blocks the asking task until one of them answers.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/notifications"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownDialog = errors.New("unknown dialog")
	ErrInvalidChoice = errors.New("choice is not one of the dialog buttons")
	ErrNoOptions     = errors.New("dialog needs at least one option")
)

// Asker is what test code depends on.
type Asker interface {
	Ask(ctx context.Context, message string, options ...string) (string, error)
}

type request struct {
	answer  chan string
	message string
	options []string
	id      uuid.UUID
}

type Manager struct {
	ns      chan<- models.Notification
	pending map[uuid.UUID]*request
	order   []uuid.UUID
	mu      syncutil.Mutex
}

func NewManager(ns chan<- models.Notification) *Manager {
	return &Manager{
		ns:      ns,
		pending: make(map[uuid.UUID]*request),
	}
}

// Ask publishes a dialog and waits for a response or ctx cancellation.
func (m *Manager) Ask(ctx context.Context, message string, options ...string) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	req := &request{
		id:      uuid.New(),
		message: message,
		options: options,
		answer:  make(chan string, 1),
	}

	m.mu.Lock()
	m.pending[req.id] = req
	m.order = append(m.order, req.id)
	m.mu.Unlock()

	log.Info().Str("id", req.id.String()).Str("message", message).
		Strs("options", options).Msg("waiting for operator")
	notifications.ShowDialog(m.ns, toParams(req))

	select {
	case choice := <-req.answer:
		return choice, nil
	case <-ctx.Done():
		m.remove(req.id)
		notifications.DialogClosed(m.ns, req.id.String(), "")
		return "", fmt.Errorf("dialog cancelled: %w", ctx.Err())
	}
}

// Respond answers an open dialog. The first valid response wins.
func (m *Manager) Respond(id, choice string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownDialog, id)
	}

	m.mu.Lock()
	req, ok := m.pending[parsed]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownDialog, id)
	}
	if !slices.Contains(req.options, choice) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}
	m.removeLocked(parsed)
	m.mu.Unlock()

	log.Info().Str("id", id).Str("choice", choice).Msg("operator answered")
	req.answer <- choice
	notifications.DialogClosed(m.ns, id, choice)
	return nil
}

// Pending lists open dialogs, oldest first.
func (m *Manager) Pending() []models.DialogParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.DialogParams, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, toParams(m.pending[id]))
	}
	return out
}

func (m *Manager) remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *Manager) removeLocked(id uuid.UUID) {
	delete(m.pending, id)
	m.order = slices.DeleteFunc(m.order, func(o uuid.UUID) bool { return o == id })
}

func toParams(req *request) models.DialogParams {
	return models.DialogParams{
		DialogID: req.id.String(),
		Message:  req.message,
		Buttons:  req.options,
	}
}
