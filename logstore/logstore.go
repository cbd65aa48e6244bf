// Copyright 2023 The themiscyra Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logstore persists a replica log in a bbolt database. A view
// change replaces the whole log at once, so adoption runs as a single
// write transaction and readers either see the old log or the new one.
package logstore

import (
	"encoding/binary"
	"fmt"
	"os"

	humanize "github.com/dustin/go-humanize"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/viewchange"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

var logBucket = []byte("log")

// BoltStore implements viewchange.Storage on top of a bbolt database.
// Entries are keyed by their big-endian opNum so a cursor walks the log
// in operation order.
type BoltStore struct {
	lg *zap.Logger
	db *bolt.DB
}

var _ viewchange.Storage = (*BoltStore)(nil)

// Open opens or creates the database at path.
func Open(lg *zap.Logger, path string) (*BoltStore, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("logstore: open %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(logBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("logstore: create bucket: %w", err)
	}

	if fi, serr := os.Stat(path); serr == nil {
		lg.Info(
			"opened log store",
			zap.String("path", path),
			zap.String("size", humanize.Bytes(uint64(fi.Size()))),
		)
	}
	return &BoltStore{lg: lg, db: db}, nil
}

// CurrentLog implements the viewchange.Storage interface.
func (s *BoltStore) CurrentLog() ([]pb.Entry, error) {
	var ents []pb.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(logBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e pb.Entry
			if err := e.Unmarshal(v); err != nil {
				return fmt.Errorf("logstore: entry %d: %w", bytesToOpNum(k), err)
			}
			ents = append(ents, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ents, nil
}

// AdoptLog implements the viewchange.Storage interface. The old log is
// dropped and ents written in one transaction.
func (s *BoltStore) AdoptLog(ents []pb.Entry) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(logBucket); err != nil {
			return err
		}
		b, err := tx.CreateBucket(logBucket)
		if err != nil {
			return err
		}
		return putEntries(b, ents)
	})
	if err != nil {
		return fmt.Errorf("logstore: adopt log: %w", err)
	}
	s.lg.Info("adopted log", zap.Int("entries", len(ents)))
	return nil
}

// Append extends the log with ents. Operations accepted during normal
// operation reach the store through here.
func (s *BoltStore) Append(ents []pb.Entry) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putEntries(tx.Bucket(logBucket), ents)
	})
	if err != nil {
		return fmt.Errorf("logstore: append: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putEntries(b *bolt.Bucket, ents []pb.Entry) error {
	for i := range ents {
		data, err := ents[i].Marshal()
		if err != nil {
			return err
		}
		if err := b.Put(opNumToBytes(ents[i].OpNum), data); err != nil {
			return err
		}
	}
	return nil
}

func opNumToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func bytesToOpNum(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
