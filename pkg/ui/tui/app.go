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

// Package tui is the operator console: a live result table, the unit
// header, an event log and modal dialogs for operator questions.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	PageMain      = "main"
	PageLog       = "log"
	dialogPrefix  = "dialog-"
	feedBuffer    = 200
	logTailLines  = 200
	headerHeight  = 5
	resultsWidth  = 40
	eventsMinimum = 30
)

// Feed is the notification source, satisfied by the service broker.
type Feed interface {
	Subscribe(bufferSize int, replay bool) (<-chan models.Notification, int)
	Unsubscribe(id int)
}

// Responder answers operator dialogs, satisfied by *dialog.Manager.
type Responder interface {
	Respond(id, choice string) error
	Pending() []models.DialogParams
}

type Options struct {
	Feed    Feed
	Dialogs Responder
	Theme   string
	LogPath string
}

type App struct {
	app     *tview.Application
	pages   *tview.Pages
	header  *tview.TextView
	results *tview.Table
	events  *tview.TextView
	logView *tview.TextView
	model   *Model
	opts    Options
	dialogs []string
}

func New(opts Options) *App {
	if !SetCurrentTheme(opts.Theme) {
		SetCurrentTheme(config.ThemeDark)
	}

	a := &App{
		app:   tview.NewApplication(),
		pages: tview.NewPages(),
		model: NewModel(nil),
		opts:  opts,
	}
	a.buildMain()
	a.buildLogPage()
	a.pages.SwitchToPage(PageMain)
	a.app.SetRoot(a.pages, true)
	a.app.SetInputCapture(a.handleKey)
	a.render()
	return a
}

func (a *App) buildMain() {
	a.header = tview.NewTextView().SetDynamicColors(true)
	a.header.SetBorder(true).SetTitle(" NanoKVM factory test v" + config.AppVersion + " ")

	a.results = tview.NewTable().SetBorders(false).SetSelectable(false, false)
	a.results.SetBorder(true).SetTitle(" Results ")

	a.events = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	a.events.SetBorder(true).SetTitle(" Events ")
	a.events.SetChangedFunc(func() { a.events.ScrollToEnd() })

	help := tview.NewTextView().SetDynamicColors(true).
		SetText(" [::b]L[::-] log  [::b]Q[::-] quit")

	body := tview.NewFlex().
		AddItem(a.results, resultsWidth, 0, false).
		AddItem(a.events, eventsMinimum, 1, false)

	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, headerHeight, 0, false).
		AddItem(body, 0, 1, false).
		AddItem(help, 1, 0, false)
	a.pages.AddPage(PageMain, main, true, true)
}

func (a *App) buildLogPage() {
	a.logView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	a.logView.SetBorder(true).SetTitle(" Log (newest first, Esc to close) ")
	a.logView.SetDoneFunc(func(tcell.Key) { a.pages.SwitchToPage(PageMain) })
	a.pages.AddPage(PageLog, a.logView, true, false)
}

func (a *App) showLog() {
	if a.opts.LogPath == "" {
		return
	}
	content, err := readLastLines(a.opts.LogPath, logTailLines)
	if err != nil {
		a.logView.SetText("Error reading log file:\n" + err.Error())
	} else {
		a.logView.SetText(formatLogContent(content, CurrentTheme()))
	}
	a.logView.ScrollToBeginning()
	a.pages.SwitchToPage(PageLog)
	a.app.SetFocus(a.logView)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if len(a.dialogs) > 0 {
		return event
	}
	if front, _ := a.pages.GetFrontPage(); front != PageMain {
		return event
	}
	switch event.Rune() {
	case 'q', 'Q':
		a.app.Stop()
		return nil
	case 'l', 'L':
		a.showLog()
		return nil
	}
	return event
}

// apply must run on the tview event loop.
func (a *App) apply(n models.Notification) {
	a.model.Apply(n)
	switch n.Method {
	case models.NotificationShowDialog:
		if p, ok := decode[models.DialogParams](n); ok {
			a.showDialog(p)
		}
	case models.NotificationDialogClosed:
		if p, ok := decode[models.DialogClosedParams](n); ok {
			a.closeDialog(p.DialogID)
		}
	}
	a.render()
}

func (a *App) render() {
	t := CurrentTheme()
	a.header.SetText(a.model.Header(t))

	a.results.Clear()
	for row, s := range a.model.Rows() {
		status := a.model.Status[s]
		a.results.SetCell(row, 0, tview.NewTableCell(string(s)).SetExpansion(1))
		a.results.SetCell(row, 1, tview.NewTableCell(strings.ToUpper(status)).
			SetTextColor(t.StatusColor(status)).
			SetAlign(tview.AlignRight))
	}

	a.events.SetText(strings.Join(a.model.Events, "\n"))
}

func (a *App) showDialog(p models.DialogParams) {
	page := dialogPrefix + p.DialogID
	if a.pages.HasPage(page) {
		return
	}
	modal := tview.NewModal().
		SetText(p.Message).
		AddButtons(p.Buttons).
		SetDoneFunc(func(_ int, label string) {
			if label == "" {
				return
			}
			a.answer(p.DialogID, label)
		})
	a.dialogs = append(a.dialogs, p.DialogID)
	a.pages.AddPage(page, modal, true, true)
	a.app.SetFocus(modal)
}

func (a *App) answer(id, choice string) {
	if err := a.opts.Dialogs.Respond(id, choice); err != nil {
		log.Warn().Err(err).Str("dialog_id", id).Msg("tui: dialog answer rejected")
		a.closeDialog(id)
	}
}

func (a *App) closeDialog(id string) {
	page := dialogPrefix + id
	if !a.pages.HasPage(page) {
		return
	}
	a.pages.RemovePage(page)
	for i, d := range a.dialogs {
		if d == id {
			a.dialogs = append(a.dialogs[:i], a.dialogs[i+1:]...)
			break
		}
	}
	if n := len(a.dialogs); n > 0 {
		a.pages.ShowPage(dialogPrefix + a.dialogs[n-1])
		if _, p := a.pages.GetFrontPage(); p != nil {
			a.app.SetFocus(p)
		}
	}
}

// Run shows the console until the operator quits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	feed, id := a.opts.Feed.Subscribe(feedBuffer, true)
	defer a.opts.Feed.Unsubscribe(id)

	for _, p := range a.opts.Dialogs.Pending() {
		a.showDialog(p)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				a.app.Stop()
				return
			case n, ok := <-feed:
				if !ok {
					a.app.Stop()
					return
				}
				a.app.QueueUpdateDraw(func() { a.apply(n) })
			}
		}
	}()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("tui failed: %w", err)
	}
	return nil
}
