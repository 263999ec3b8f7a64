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

// Package bringup drives a unit from power-on to a logged-in, identified
// target over the fixture's serial console, then hands it to the
// orchestrator and finalizes the record.
package bringup

import "fmt"

type Phase int

const (
	Unconnected Phase = iota
	ConnectedNoTarget
	Uncertain
	Bootloader
	Booting
	BootedLogin
	LoggedIn
	DownloadFile
	CheckingHardware
	CheckingStorage
	Printing
	StartStep2
	StartStep3
	Finished
)

var phaseNames = [...]string{
	"unconnected",
	"connected-no-target",
	"uncertain",
	"bootloader",
	"booting",
	"booted-login",
	"logged-in",
	"download-file",
	"checking-hardware",
	"checking-storage",
	"printing",
	"start-step2",
	"start-step3",
	"finished",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type ObservationKind int

const (
	ObserveNothing ObservationKind = iota
	ToolAbsent
	ToolPresent
	DensitySample
	PatternResult
	StepDone
	StepFailed
	StepSkipped
	Abort
)

// Prompt classifies what the console showed during a pattern wait.
type Prompt int

const (
	PromptNone Prompt = iota
	PromptLogin
	PromptShell
	PromptBootloader
	PromptUnmatched
	PromptNoData
	PromptLowDensity
)

type Observation struct {
	Kind    ObservationKind
	Pattern Prompt
	Density int
}

// Transition is the bring-up state table. It is total: any pair not listed
// leaves the phase unchanged, and Finished is absorbing.
func Transition(p Phase, o Observation) Phase {
	if p == Finished {
		return Finished
	}
	switch o.Kind {
	case ToolAbsent:
		return Unconnected
	case Abort:
		return Finished
	default:
	}

	switch p {
	case Unconnected:
		if o.Kind == ToolPresent {
			return ConnectedNoTarget
		}
	case ConnectedNoTarget:
		if o.Kind == DensitySample {
			if o.Density > 0 {
				return Booting
			}
			return Uncertain
		}
	case Uncertain:
		if o.Kind == PatternResult {
			switch o.Pattern {
			case PromptLogin:
				return BootedLogin
			case PromptShell:
				return LoggedIn
			case PromptBootloader:
				return Bootloader
			case PromptUnmatched:
				return Booting
			default:
				return ConnectedNoTarget
			}
		}
	case Bootloader:
		if o.Kind == StepDone {
			return ConnectedNoTarget
		}
	case Booting:
		if o.Kind == PatternResult {
			switch o.Pattern {
			case PromptLogin:
				return BootedLogin
			case PromptUnmatched:
				return Booting
			default:
				return ConnectedNoTarget
			}
		}
	case BootedLogin:
		switch o.Kind {
		case StepDone:
			return LoggedIn
		case StepFailed:
			return ConnectedNoTarget
		default:
		}
	case LoggedIn:
		switch o.Kind {
		case StepDone:
			return DownloadFile
		case StepSkipped:
			return CheckingHardware
		default:
		}
	case DownloadFile:
		switch o.Kind {
		case StepDone, StepSkipped:
			return CheckingHardware
		case StepFailed:
			return LoggedIn
		default:
		}
	case CheckingHardware:
		if o.Kind == StepDone {
			return CheckingStorage
		}
	case CheckingStorage:
		if o.Kind == StepDone {
			return Printing
		}
	case Printing:
		if o.Kind == StepDone {
			return StartStep2
		}
	case StartStep2:
		if o.Kind == StepDone {
			return StartStep3
		}
	case StartStep3:
		if o.Kind == StepDone {
			return Finished
		}
	case Finished:
	}
	return p
}
