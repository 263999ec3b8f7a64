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

package bringup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTransition_Table(t *testing.T) {
	t.Parallel()
	pat := func(p Prompt) Observation { return Observation{Kind: PatternResult, Pattern: p} }
	done := Observation{Kind: StepDone}
	failed := Observation{Kind: StepFailed}
	skipped := Observation{Kind: StepSkipped}

	tests := []struct {
		name string
		from Phase
		obs  Observation
		want Phase
	}{
		{"tool found", Unconnected, Observation{Kind: ToolPresent}, ConnectedNoTarget},
		{"quiet target", ConnectedNoTarget, Observation{Kind: DensitySample}, Uncertain},
		{"chatty target", ConnectedNoTarget, Observation{Kind: DensitySample, Density: 3}, Booting},
		{"uncertain login", Uncertain, pat(PromptLogin), BootedLogin},
		{"uncertain shell", Uncertain, pat(PromptShell), LoggedIn},
		{"uncertain uboot", Uncertain, pat(PromptBootloader), Bootloader},
		{"uncertain unmatched", Uncertain, pat(PromptUnmatched), Booting},
		{"uncertain no data", Uncertain, pat(PromptNoData), ConnectedNoTarget},
		{"uncertain low density", Uncertain, pat(PromptLowDensity), ConnectedNoTarget},
		{"uboot booted", Bootloader, done, ConnectedNoTarget},
		{"booting login", Booting, pat(PromptLogin), BootedLogin},
		{"booting still", Booting, pat(PromptUnmatched), Booting},
		{"booting quiet", Booting, pat(PromptLowDensity), ConnectedNoTarget},
		{"booting no data", Booting, pat(PromptNoData), ConnectedNoTarget},
		{"booting shell is other", Booting, pat(PromptShell), ConnectedNoTarget},
		{"login ok", BootedLogin, done, LoggedIn},
		{"login failed", BootedLogin, failed, ConnectedNoTarget},
		{"network up", LoggedIn, done, DownloadFile},
		{"network skip", LoggedIn, skipped, CheckingHardware},
		{"download ok", DownloadFile, done, CheckingHardware},
		{"download kept", DownloadFile, skipped, CheckingHardware},
		{"download failed", DownloadFile, failed, LoggedIn},
		{"hardware ok", CheckingHardware, done, CheckingStorage},
		{"hardware retry", CheckingHardware, failed, CheckingHardware},
		{"storage ok", CheckingStorage, done, Printing},
		{"storage retry", CheckingStorage, failed, CheckingStorage},
		{"printed", Printing, done, StartStep2},
		{"printer missing", Printing, failed, Printing},
		{"step2 done", StartStep2, done, StartStep3},
		{"step3 done", StartStep3, done, Finished},
		{"unplugged", CheckingStorage, Observation{Kind: ToolAbsent}, Unconnected},
		{"abort", LoggedIn, Observation{Kind: Abort}, Finished},
		{"finished absorbs unplug", Finished, Observation{Kind: ToolAbsent}, Finished},
		{"nothing observed", Booting, Observation{}, Booting},
		{"stray done", Uncertain, done, Uncertain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Transition(tt.from, tt.obs))
		})
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "connected-no-target", ConnectedNoTarget.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "phase(99)", Phase(99).String())
}

func TestPropertyTransitionTotal(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		from := Phase(rapid.IntRange(int(Unconnected), int(Finished)).Draw(t, "phase"))
		obs := Observation{
			Kind:    ObservationKind(rapid.IntRange(int(ObserveNothing), int(Abort)).Draw(t, "kind")),
			Pattern: Prompt(rapid.IntRange(int(PromptNone), int(PromptLowDensity)).Draw(t, "pattern")),
			Density: rapid.IntRange(0, 100).Draw(t, "density"),
		}
		next := Transition(from, obs)

		if next < Unconnected || next > Finished {
			t.Fatalf("transition left the phase set: %v", next)
		}
		if from == Finished && next != Finished {
			t.Fatalf("left the terminal phase for %+v", obs)
		}
		if from != Finished && obs.Kind == ToolAbsent && next != Unconnected {
			t.Fatalf("unplug from %v went to %v", from, next)
		}
		if from != Finished && obs.Kind == Abort && next != Finished {
			t.Fatalf("abort from %v went to %v", from, next)
		}
		if obs.Kind == ObserveNothing && next != from {
			t.Fatalf("empty observation moved %v to %v", from, next)
		}
	})
}
