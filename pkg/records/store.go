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

package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ZaparooProject/factory-test/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const SaveDir = "save"

var (
	ErrUnknownItem = errors.New("unknown test item")
	ErrNoSerial    = errors.New("record has no serial")
)

// Store reads and writes records under <root>/save/<serial>.json.
type Store struct {
	fs   afero.Fs
	root string
	mu   syncutil.Mutex
}

func NewStore(fs afero.Fs, root string) (*Store, error) {
	if err := fs.MkdirAll(filepath.Join(root, SaveDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create records dir: %w", err)
	}
	return &Store{fs: fs, root: root}, nil
}

func (s *Store) path(serial string) string {
	return filepath.Join(s.root, SaveDir, serial+".json")
}

// Load returns the stored record, or a fresh one if none exists.
func (s *Store) Load(serial string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(serial)
}

func (s *Store) loadLocked(serial string) (*Record, error) {
	if serial == "" {
		return nil, ErrNoSerial
	}
	data, err := afero.ReadFile(s.fs, s.path(serial))
	if errors.Is(err, fs.ErrNotExist) {
		return NewRecord(serial), nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", serial, err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", serial, err)
	}
	r.normalise()
	return &r, nil
}

func (s *Store) saveLocked(r *Record) error {
	if r.DeviceInfo.Serial == "" {
		return ErrNoSerial
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path(r.DeviceInfo.Serial), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record %s: %w", r.DeviceInfo.Serial, err)
	}
	return nil
}

// Update loads, mutates and saves a record in one locked step.
func (s *Store) Update(serial string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.loadLocked(serial)
	if err != nil {
		return err
	}
	fn(r)
	return s.saveLocked(r)
}

func (s *Store) Save(r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(r)
}

func (s *Store) SetItem(serial string, item Item, status string) error {
	if !ValidItem(string(item)) {
		return fmt.Errorf("%w: %s", ErrUnknownItem, item)
	}
	return s.Update(serial, func(r *Record) {
		r.TestContent[item] = status
	})
}

func (s *Store) SetDeviceInfo(serial string, fn func(*DeviceInfo)) error {
	return s.Update(serial, func(r *Record) {
		fn(&r.DeviceInfo)
		r.DeviceInfo.Serial = serial
	})
}

func (s *Store) SetPass(serial string, pass bool) error {
	return s.Update(serial, func(r *Record) {
		r.SetPass(pass)
	})
}

// AppendLog sets one field of the test_log entry for date. The key
// "test_pass" sets the entry's pass flag.
func (s *Store) AppendLog(serial, date, key, value string) error {
	return s.Update(serial, func(r *Record) {
		e := r.TestLog[date]
		if e.Fields == nil {
			e.Fields = make(map[string]string)
		}
		if key == "test_pass" {
			e.TestPass = value == "true"
		} else {
			e.Fields[key] = value
		}
		r.TestLog[date] = e
	})
}

// List returns every stored serial, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, filepath.Join(s.root, SaveDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	serials := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		serials = append(serials, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(serials)
	return serials, nil
}

// CountPrefix counts stored records whose serial starts with prefix.
func (s *Store) CountPrefix(prefix string) (int, error) {
	serials, err := s.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, serial := range serials {
		if strings.HasPrefix(serial, prefix) {
			n++
		}
	}
	return n, nil
}

// All loads every stored record. Unreadable files are logged and skipped.
func (s *Store) All() ([]*Record, error) {
	serials, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(serials))
	for _, serial := range serials {
		r, err := s.Load(serial)
		if err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("skipping unreadable record")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
