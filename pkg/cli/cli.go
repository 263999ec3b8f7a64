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

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/factory-test/internal/telemetry"
	"github.com/ZaparooProject/factory-test/pkg/api/client"
	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/config"
	"github.com/ZaparooProject/factory-test/pkg/helpers"
	"github.com/ZaparooProject/factory-test/pkg/records"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

type Flags struct {
	API     *string
	Export  *string
	Version *bool
	Reload  *bool
}

// SetupFlags defines the common flags on fs. Add any custom flags before
// calling Pre.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		API: fs.String(
			"api",
			"",
			"send method and params to the running station and print the response",
		),
		Export: fs.String(
			"export",
			"",
			"write every stored unit record to a CSV file and exit",
		),
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		Reload: fs.Bool(
			"reload",
			false,
			"ask the running station to reload its settings",
		),
	}
}

// Pre parses args and handles flags that need no setup. It reports true
// when the program should exit.
func (f *Flags) Pre(fs *flag.FlagSet, args []string, out io.Writer) (bool, error) {
	if err := fs.Parse(args); err != nil {
		return true, fmt.Errorf("failed to parse flags: %w", err)
	}
	if *f.Version {
		_, _ = fmt.Fprintf(out, "%s v%s\n", config.AppName, config.AppVersion)
		return true, nil
	}
	return false, nil
}

// Post handles flags that need config and logging. It reports true when
// the program should exit.
func (f *Flags) Post(ctx context.Context, cfg *config.Instance, dataDir string, out io.Writer) (bool, error) {
	switch {
	case *f.Export != "":
		n, err := exportRecords(dataDir, *f.Export)
		if err != nil {
			return true, err
		}
		_, _ = fmt.Fprintf(out, "exported %d records to %s\n", n, *f.Export)
		return true, nil
	case *f.API != "":
		method, params, _ := strings.Cut(*f.API, ":")
		resp, err := client.LocalClient(ctx, cfg, method, params)
		if err != nil {
			log.Error().Err(err).Msg("error calling API")
			return true, fmt.Errorf("error calling API: %w", err)
		}
		_, _ = fmt.Fprintln(out, resp)
		return true, nil
	case *f.Reload:
		if _, err := client.LocalClient(ctx, cfg, models.MethodSettingsReload, ""); err != nil {
			log.Error().Err(err).Msg("error reloading settings")
			return true, fmt.Errorf("error reloading settings: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func exportRecords(dataDir, path string) (int, error) {
	store, err := records.NewStore(afero.NewOsFs(), filepath.Join(dataDir, config.RecordsDir))
	if err != nil {
		return 0, err
	}
	//nolint:gosec // operator-supplied output path
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	n, err := store.ExportCSV(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", path, cerr)
	}
	return n, err
}

// Setup initializes logging, the user config and error reporting.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaults config.Values, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.InitLogging(helpers.LogDir(), writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(), defaults)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	helpers.SetLogLevel(cfg.DebugLogging())

	if err := telemetry.Init(TelemetryOptions(cfg)); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}
	return cfg, nil
}

// TelemetryOptions lists every configured credential as a secret so none
// of them leave the station in an error report.
func TelemetryOptions(cfg *config.Instance) telemetry.Options {
	var secrets []string
	for _, s := range []string{
		cfg.Console().Password,
		cfg.Network().SSHPassword,
		cfg.Testing().WiFiPassword,
		cfg.Upload().Token,
		cfg.Upload().ResultPassword,
	} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return telemetry.Options{
		Enabled:       cfg.ErrorReporting(),
		Version:       config.AppVersion,
		BoardVersion:  cfg.BoardVersion(),
		MachineNumber: cfg.MachineNumber(),
		Secrets:       secrets,
	}
}
