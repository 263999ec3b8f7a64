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
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

type csvRow struct {
	Serial     string `csv:"serial"`
	SocUID     string `csv:"soc_uid"`
	Hardware   string `csv:"hardware"`
	App        string `csv:"app"`
	ATX        string `csv:"atx"`
	EMMC       string `csv:"emmc"`
	Eth        string `csv:"eth"`
	LT6911     string `csv:"lt6911"`
	LT86102    string `csv:"lt86102"`
	Rotary     string `csv:"rotary"`
	Screen     string `csv:"screen"`
	SDCard     string `csv:"sdcard"`
	Touch      string `csv:"touch"`
	UART       string `csv:"uart"`
	USB        string `csv:"usb"`
	WiFi       string `csv:"wifi"`
	WS2812     string `csv:"ws2812"`
	WiFiExist  bool   `csv:"wifi_exist"`
	TestPass   bool   `csv:"test_pass"`
	Unuploaded bool   `csv:"unuploaded"`
}

func toRow(r *Record) csvRow {
	c := r.TestContent
	return csvRow{
		Serial:     r.DeviceInfo.Serial,
		SocUID:     r.DeviceInfo.SocUID,
		Hardware:   r.DeviceInfo.Hardware,
		WiFiExist:  r.DeviceInfo.WiFiExist,
		TestPass:   r.DeviceInfo.TestPass,
		Unuploaded: r.DeviceInfo.Unuploaded,
		App:        c[ItemApp],
		ATX:        c[ItemATX],
		EMMC:       c[ItemEMMC],
		Eth:        c[ItemEth],
		LT6911:     c[ItemLT6911],
		LT86102:    c[ItemLT86102],
		Rotary:     c[ItemRotary],
		Screen:     c[ItemScreen],
		SDCard:     c[ItemSDCard],
		Touch:      c[ItemTouch],
		UART:       c[ItemUART],
		USB:        c[ItemUSB],
		WiFi:       c[ItemWiFi],
		WS2812:     c[ItemWS2812],
	}
}

// ExportCSV writes every stored record as one CSV row.
func (s *Store) ExportCSV(w io.Writer) (int, error) {
	recs, err := s.All()
	if err != nil {
		return 0, err
	}
	rows := make([]csvRow, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, toRow(r))
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return 0, fmt.Errorf("failed to write csv: %w", err)
	}
	return len(rows), nil
}
