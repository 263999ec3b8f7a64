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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZaparooProject/factory-test/pkg/api/models"
	"github.com/ZaparooProject/factory-test/pkg/api/notifications"
	"github.com/ZaparooProject/factory-test/pkg/shared/httpclient"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultUploadURL = "https://maixvision.sipeed.com/api/v1/nanokvm"
	itemsPath        = "/test-items"
	resultPath       = "/test-result"

	// the result endpoint answers -4 when the serial was already marked
	codeAlreadyRecorded = -4
)

var ErrUploadRejected = errors.New("upload rejected")

type UploaderOptions struct {
	Client       *http.Client
	Clock        clockwork.Clock
	BaseURL      string
	Token        string
	ResultPasswd string
	// BusyInterval is the pause between uploads while the queue is not
	// empty; IdleInterval the pause when it is.
	BusyInterval time.Duration
	IdleInterval time.Duration
}

// Uploader drains the Queue, posting each record to the cloud.
type Uploader struct {
	store *Store
	queue *Queue
	ns    chan<- models.Notification
	opts  UploaderOptions
}

func NewUploader(store *Store, queue *Queue, ns chan<- models.Notification, opts UploaderOptions) *Uploader {
	if opts.Client == nil {
		opts.Client = httpclient.NewClient(opts.Token, httpclient.DefaultTimeout)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultUploadURL
	}
	if opts.BusyInterval <= 0 {
		opts.BusyInterval = time.Second
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 10 * time.Second
	}
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	return &Uploader{store: store, queue: queue, ns: ns, opts: opts}
}

// Enqueue marks a saved record as waiting for upload.
func (u *Uploader) Enqueue(serial string) error {
	err := u.store.SetDeviceInfo(serial, func(d *DeviceInfo) { d.Unuploaded = true })
	if err != nil {
		return err
	}
	if err := u.queue.Push(serial, u.opts.Clock.Now()); err != nil {
		return err
	}
	u.publishCount()
	return nil
}

func (u *Uploader) publishCount() int {
	n, err := u.queue.Len()
	if err != nil {
		log.Error().Err(err).Msg("counting upload queue")
		return 0
	}
	notifications.UploadCount(u.ns, n)
	return n
}

// Run uploads queued records until ctx is done.
func (u *Uploader) Run(ctx context.Context) {
	for {
		wait := u.opts.IdleInterval
		if u.publishCount() > 0 {
			wait = u.opts.BusyInterval
			u.Step(ctx)
		}

		select {
		case <-ctx.Done():
			return
		case <-u.opts.Clock.After(wait):
		}
	}
}

// Step uploads the oldest queued record once.
func (u *Uploader) Step(ctx context.Context) {
	serial, err := u.queue.Oldest()
	if errors.Is(err, ErrQueueEmpty) {
		return
	} else if err != nil {
		log.Error().Err(err).Msg("reading upload queue")
		return
	}

	err = u.Upload(ctx, serial)
	if err != nil {
		log.Warn().Err(err).Str("serial", serial).Msg("upload failed")
		notifications.ServerStatus(u.ns, false)
		return
	}

	if err := u.queue.Remove(serial); err != nil {
		log.Error().Err(err).Msg("removing uploaded serial")
		return
	}
	if err := u.store.SetDeviceInfo(serial, func(d *DeviceInfo) { d.Unuploaded = false }); err != nil {
		log.Error().Err(err).Msg("clearing unuploaded flag")
	}
	log.Info().Str("serial", serial).Msg("record uploaded")
	notifications.ServerStatus(u.ns, true)
	u.publishCount()
}

type apiReply struct {
	Msg  string `json:"msg"`
	Code int    `json:"code"`
}

// Upload posts one record: its items always, and a pass result when the unit
// passed.
func (u *Uploader) Upload(ctx context.Context, serial string) error {
	r, err := u.store.Load(serial)
	if err != nil {
		return err
	}

	body := map[string]string{
		"uid":      r.DeviceInfo.SocUID,
		"serial":   r.DeviceInfo.Serial,
		"hardware": r.DeviceInfo.Hardware,
	}
	for _, it := range AllItems {
		body[string(it)] = r.TestContent[it]
	}

	itemsErr := u.post(ctx, itemsPath, body, nil, 0)
	if !r.DeviceInfo.TestPass {
		return itemsErr
	}

	resultErr := u.post(ctx, resultPath, map[string]string{
		"serial": serial,
		"status": "pass",
	}, map[string]string{"passwd": u.opts.ResultPasswd}, codeAlreadyRecorded)
	return errors.Join(itemsErr, resultErr)
}

func (u *Uploader) post(
	ctx context.Context,
	path string,
	payload any,
	headers map[string]string,
	alsoOK int,
) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.opts.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := u.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post %s: %w", path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close response body")
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", path, err)
	}
	var reply apiReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("bad %s response (HTTP %d): %w", path, resp.StatusCode, err)
	}
	if reply.Code == 0 || (alsoOK != 0 && reply.Code == alsoOK) {
		return nil
	}
	return fmt.Errorf("%w: %s code=%d msg=%s", ErrUploadRejected, path, reply.Code, reply.Msg)
}
