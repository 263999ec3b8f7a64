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

package tui

import (
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/ZaparooProject/factory-test/pkg/orchestrator"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type Theme struct {
	Name                     string
	TextColorName            string
	SecondaryColorName       string
	AccentColorName          string
	SuccessColorName         string
	WarningColorName         string
	ErrorColorName           string
	PrimitiveBackgroundColor tcell.Color
	ContrastBackgroundColor  tcell.Color
	BorderColor              tcell.Color
	TitleColor               tcell.Color
	PrimaryTextColor         tcell.Color
	SecondaryTextColor       tcell.Color
	InverseTextColor         tcell.Color
	SuccessColor             tcell.Color
	WarningColor             tcell.Color
	ErrorColor               tcell.Color
	MutedColor               tcell.Color
}

var ThemeDark = Theme{
	Name: config.ThemeDark,

	PrimitiveBackgroundColor: tcell.ColorBlack,
	ContrastBackgroundColor:  tcell.ColorDarkSlateGray,
	BorderColor:              tcell.ColorLightYellow,
	TitleColor:               tcell.ColorWhite,
	PrimaryTextColor:         tcell.ColorWhite,
	SecondaryTextColor:       tcell.ColorGray,
	InverseTextColor:         tcell.ColorBlack,

	TextColorName:      "white",
	SecondaryColorName: "gray",
	AccentColorName:    "yellow",

	SuccessColor:     tcell.ColorGreen,
	SuccessColorName: "green",
	WarningColor:     tcell.ColorYellow,
	WarningColorName: "yellow",
	ErrorColor:       tcell.ColorRed,
	ErrorColorName:   "red",
	MutedColor:       tcell.ColorGray,
}

var ThemeLight = Theme{
	Name: config.ThemeLight,

	PrimitiveBackgroundColor: tcell.ColorWhite,
	ContrastBackgroundColor:  tcell.ColorLightGray,
	BorderColor:              tcell.ColorNavy,
	TitleColor:               tcell.ColorBlack,
	PrimaryTextColor:         tcell.ColorBlack,
	SecondaryTextColor:       tcell.ColorDimGray,
	InverseTextColor:         tcell.ColorWhite,

	TextColorName:      "black",
	SecondaryColorName: "dimgray",
	AccentColorName:    "navy",

	SuccessColor:     tcell.ColorDarkGreen,
	SuccessColorName: "darkgreen",
	WarningColor:     tcell.ColorDarkOrange,
	WarningColorName: "darkorange",
	ErrorColor:       tcell.ColorDarkRed,
	ErrorColorName:   "darkred",
	MutedColor:       tcell.ColorDarkGray,
}

var AvailableThemes = map[string]*Theme{
	ThemeDark.Name:  &ThemeDark,
	ThemeLight.Name: &ThemeLight,
}

var (
	themeMu      syncutil.RWMutex
	currentTheme = &ThemeDark
)

func CurrentTheme() *Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

// SetCurrentTheme switches theme by name. Unknown names keep the current
// theme and return false.
func SetCurrentTheme(name string) bool {
	theme, ok := AvailableThemes[name]
	if !ok {
		return false
	}
	themeMu.Lock()
	currentTheme = theme
	themeMu.Unlock()
	ApplyTheme(theme)
	return true
}

func ApplyTheme(theme *Theme) {
	tview.Styles.PrimitiveBackgroundColor = theme.PrimitiveBackgroundColor
	tview.Styles.ContrastBackgroundColor = theme.ContrastBackgroundColor
	tview.Styles.MoreContrastBackgroundColor = theme.ContrastBackgroundColor
	tview.Styles.BorderColor = theme.BorderColor
	tview.Styles.TitleColor = theme.TitleColor
	tview.Styles.GraphicsColor = theme.BorderColor
	tview.Styles.PrimaryTextColor = theme.PrimaryTextColor
	tview.Styles.SecondaryTextColor = theme.SecondaryTextColor
	tview.Styles.TertiaryTextColor = theme.SecondaryTextColor
	tview.Styles.InverseTextColor = theme.InverseTextColor
	tview.Styles.ContrastSecondaryTextColor = theme.SecondaryTextColor
}

// StatusColor picks the cell colour for a subsystem status name.
func (t *Theme) StatusColor(status string) tcell.Color {
	switch status {
	case orchestrator.Success.String():
		return t.SuccessColor
	case orchestrator.Failed.String():
		return t.ErrorColor
	case orchestrator.Testing.String(), orchestrator.Repairing.String():
		return t.WarningColor
	case orchestrator.Hidden.String():
		return t.MutedColor
	default:
		return t.PrimaryTextColor
	}
}
