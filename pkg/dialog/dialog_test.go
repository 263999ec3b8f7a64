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

package dialog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForDialog(t *testing.T, ns <-chan models.Notification) models.DialogParams {
	t.Helper()
	select {
	case n := <-ns:
		require.Equal(t, models.NotificationShowDialog, n.Method)
		var p models.DialogParams
		require.NoError(t, json.Unmarshal(n.Params, &p))
		return p
	case <-time.After(time.Second):
		t.Fatal("no dialog published")
		return models.DialogParams{}
	}
}

func TestAskRespond(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 10)
	m := NewManager(ns)

	result := make(chan string, 1)
	go func() {
		choice, err := m.Ask(context.Background(), "Printer not connected", "Retry")
		assert.NoError(t, err)
		result <- choice
	}()

	p := waitForDialog(t, ns)
	assert.Equal(t, "Printer not connected", p.Message)
	require.Len(t, m.Pending(), 1)

	require.NoError(t, m.Respond(p.DialogID, "Retry"))
	assert.Equal(t, "Retry", <-result)
	assert.Empty(t, m.Pending())
}

func TestRespond_InvalidChoice(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 10)
	m := NewManager(ns)

	go func() {
		_, _ = m.Ask(context.Background(), "Is the screen normal?", "Normal", "Defect")
	}()
	p := waitForDialog(t, ns)

	err := m.Respond(p.DialogID, "Maybe")
	require.ErrorIs(t, err, ErrInvalidChoice)
	assert.Len(t, m.Pending(), 1)

	require.NoError(t, m.Respond(p.DialogID, "Defect"))
	require.ErrorIs(t, m.Respond(p.DialogID, "Normal"), ErrUnknownDialog)
}

func TestRespond_UnknownID(t *testing.T) {
	t.Parallel()

	m := NewManager(nil)
	require.ErrorIs(t, m.Respond("not-a-uuid", "x"), ErrUnknownDialog)
	require.ErrorIs(t, m.Respond("9b2c1f3e-4f6a-4d3b-8a8e-1c2d3e4f5a6b", "x"), ErrUnknownDialog)
}

func TestAsk_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	ns := make(chan models.Notification, 10)
	m := NewManager(ns)

	done := make(chan error, 1)
	go func() {
		_, err := m.Ask(ctx, "waiting", "OK")
		done <- err
	}()
	waitForDialog(t, ns)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, m.Pending())
}

func TestAsk_NoOptions(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil).Ask(context.Background(), "empty")
	require.ErrorIs(t, err, ErrNoOptions)
}

func TestPending_Order(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 10)
	m := NewManager(ns)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _, _ = m.Ask(ctx, "first", "OK") }()
	waitForDialog(t, ns)
	go func() { _, _ = m.Ask(ctx, "second", "OK") }()
	waitForDialog(t, ns)

	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "first", pending[0].Message)
	assert.Equal(t, "second", pending[1].Message)
}
