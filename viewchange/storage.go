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

package viewchange

import (
	"sync"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// Storage is the durable-log collaborator a replica reads its history
// from and writes adopted logs to. Implementations must retain entries
// across restarts; the replica persists through AdoptLog before it
// announces a new log to the cluster.
//
// The replica treats the log as opaque and ordered. It never appends
// through this interface; growing the log is the normal-operation
// pipeline's business, outside this package.
type Storage interface {
	// CurrentLog returns the entire durable log.
	CurrentLog() ([]pb.Entry, error)
	// AdoptLog atomically replaces the durable log with ents.
	AdoptLog(ents []pb.Entry) error
}

// MemoryStorage implements the Storage interface backed by an in-memory
// slice.
type MemoryStorage struct {
	// Protects access to all fields. Most methods of MemoryStorage are
	// run on the replica goroutine, but Append may be run elsewhere.
	sync.Mutex

	ents []pb.Entry
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// CurrentLog implements the Storage interface.
func (ms *MemoryStorage) CurrentLog() ([]pb.Entry, error) {
	ms.Lock()
	defer ms.Unlock()
	ents := make([]pb.Entry, len(ms.ents))
	copy(ents, ms.ents)
	return ents, nil
}

// AdoptLog implements the Storage interface.
func (ms *MemoryStorage) AdoptLog(ents []pb.Entry) error {
	ms.Lock()
	defer ms.Unlock()
	ms.ents = append([]pb.Entry(nil), ents...)
	return nil
}

// Append extends the log with ents. Used by applications (and tests) to
// model operations accepted during normal operation.
func (ms *MemoryStorage) Append(ents []pb.Entry) error {
	ms.Lock()
	defer ms.Unlock()
	ms.ents = append(ms.ents, ents...)
	return nil
}
