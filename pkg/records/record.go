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

// Package records keeps one JSON file per tested unit and moves finished
// records to the cloud test database.
package records

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Item is a test_content key. The set is fixed by the cloud schema.
type Item string

const (
	ItemApp     Item = "app"
	ItemATX     Item = "atx"
	ItemEMMC    Item = "emmc"
	ItemEth     Item = "eth"
	ItemLT6911  Item = "lt6911"
	ItemLT86102 Item = "lt86102"
	ItemRotary  Item = "rotary"
	ItemScreen  Item = "screen"
	ItemSDCard  Item = "sdcard"
	ItemTouch   Item = "touch"
	ItemUART    Item = "uart"
	ItemUSB     Item = "usb"
	ItemWiFi    Item = "wifi"
	ItemWS2812  Item = "ws2812"
)

// AllItems in cloud schema order.
var AllItems = []Item{
	ItemApp, ItemATX, ItemEMMC, ItemEth, ItemLT6911, ItemLT86102, ItemRotary,
	ItemScreen, ItemSDCard, ItemTouch, ItemUART, ItemUSB, ItemWiFi, ItemWS2812,
}

const (
	StatusNotStarted = "Not started"
	StatusNormal     = "Normal"
	StatusDamage     = "Damage"
)

func ValidItem(s string) bool {
	return slices.Contains(AllItems, Item(s))
}

type DeviceInfo struct {
	Serial     string `json:"serial"`
	SocUID     string `json:"soc_uid"`  //nolint:tagliatelle // cloud schema
	Hardware   string `json:"hardware"`
	WiFiExist  bool   `json:"wifi_exist"` //nolint:tagliatelle // cloud schema
	TestPass   bool   `json:"test_pass"`  //nolint:tagliatelle // cloud schema
	Unuploaded bool   `json:"unuploaded"`
}

// LogEntry is one dated test_log entry: a pass flag plus free-form fields,
// flattened into a single JSON object.
type LogEntry struct {
	Fields   map[string]string
	TestPass bool
}

func (e LogEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["test_pass"] = e.TestPass
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return b, nil
}

func (e *LogEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal log entry: %w", err)
	}
	e.Fields = make(map[string]string, len(raw))
	for k, v := range raw {
		if k == "test_pass" {
			pass, ok := v.(bool)
			if !ok {
				return fmt.Errorf("test_pass is %T, want bool", v)
			}
			e.TestPass = pass
			continue
		}
		switch tv := v.(type) {
		case string:
			e.Fields[k] = tv
		case bool:
			e.Fields[k] = strconv.FormatBool(tv)
		case float64:
			e.Fields[k] = strconv.FormatFloat(tv, 'f', -1, 64)
		default:
			e.Fields[k] = fmt.Sprint(tv)
		}
	}
	return nil
}

type Record struct {
	TestContent map[Item]string     `json:"test_content"` //nolint:tagliatelle // cloud schema
	TestLog     map[string]LogEntry `json:"test_log"`     //nolint:tagliatelle // cloud schema
	DeviceInfo  DeviceInfo          `json:"device_info"`  //nolint:tagliatelle // cloud schema
}

// NewRecord returns a record with every item not started.
func NewRecord(serial string) *Record {
	r := &Record{
		DeviceInfo:  DeviceInfo{Serial: serial},
		TestContent: make(map[Item]string, len(AllItems)),
		TestLog:     make(map[string]LogEntry),
	}
	for _, it := range AllItems {
		r.TestContent[it] = StatusNotStarted
	}
	return r
}

// SetPass records the overall result. A pass marks every item Normal.
func (r *Record) SetPass(pass bool) {
	r.DeviceInfo.TestPass = pass
	if pass {
		for _, it := range AllItems {
			r.TestContent[it] = StatusNormal
		}
	}
}

// Damaged lists items recorded as Damage, in schema order.
func (r *Record) Damaged() []Item {
	var out []Item
	for _, it := range AllItems {
		if r.TestContent[it] == StatusDamage {
			out = append(out, it)
		}
	}
	return out
}

func (r *Record) normalise() {
	if r.TestContent == nil {
		r.TestContent = make(map[Item]string, len(AllItems))
	}
	for _, it := range AllItems {
		if r.TestContent[it] == "" {
			r.TestContent[it] = StatusNotStarted
		}
	}
	if r.TestLog == nil {
		r.TestLog = make(map[string]LogEntry)
	}
}
