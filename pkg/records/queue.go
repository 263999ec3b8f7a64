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
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketPending = "pending"

// Queue is the durable list of serials still waiting to be uploaded.
type Queue struct {
	bdb *bolt.DB
}

func OpenQueue(path string) (*Queue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open upload queue: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketPending))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init upload queue: %w", err)
	}
	return &Queue{bdb: db}, nil
}

func (q *Queue) Close() error {
	if err := q.bdb.Close(); err != nil {
		return fmt.Errorf("failed to close upload queue: %w", err)
	}
	return nil
}

// Push queues serial. Re-queuing keeps the original position.
func (q *Queue) Push(serial string, at time.Time) error {
	err := q.bdb.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketPending))
		if b.Get([]byte(serial)) != nil {
			return nil
		}
		ts, err := at.UTC().MarshalText()
		if err != nil {
			return fmt.Errorf("failed to encode time: %w", err)
		}
		return b.Put([]byte(serial), ts)
	})
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", serial, err)
	}
	return nil
}

func (q *Queue) Remove(serial string) error {
	err := q.bdb.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPending)).Delete([]byte(serial))
	})
	if err != nil {
		return fmt.Errorf("failed to dequeue %s: %w", serial, err)
	}
	return nil
}

type pendingEntry struct {
	at     time.Time
	serial string
}

// List returns queued serials, oldest first.
func (q *Queue) List() ([]string, error) {
	var entries []pendingEntry
	err := q.bdb.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPending)).ForEach(func(k, v []byte) error {
			var at time.Time
			if err := at.UnmarshalText(v); err != nil {
				return fmt.Errorf("bad timestamp for %s: %w", k, err)
			}
			entries = append(entries, pendingEntry{serial: string(k), at: at})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read upload queue: %w", err)
	}

	slices.SortStableFunc(entries, func(a, b pendingEntry) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.serial, b.serial)
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.serial
	}
	return out, nil
}

var ErrQueueEmpty = errors.New("upload queue empty")

// Oldest returns the next serial to upload.
func (q *Queue) Oldest() (string, error) {
	list, err := q.List()
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", ErrQueueEmpty
	}
	return list[0], nil
}

func (q *Queue) Len() (int, error) {
	n := 0
	err := q.bdb.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketPending)).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count upload queue: %w", err)
	}
	return n, nil
}
