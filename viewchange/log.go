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
	"fmt"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// opLog is a replica's ordered, append-only view of operations. The
// protocol only ever compares logs by how far they have advanced and
// swaps them wholesale when a view change completes.
type opLog struct {
	ents []pb.Entry
}

// newOpLog recovers the in-memory log from storage. Storage errors at
// this point mean the replica cannot know its own history, which is not
// recoverable by the protocol.
func newOpLog(storage Storage) *opLog {
	if storage == nil {
		panic("storage must not be nil")
	}
	ents, err := storage.CurrentLog()
	if err != nil {
		panic(err)
	}
	return &opLog{ents: ents}
}

func (l *opLog) length() int { return len(l.ents) }

// lastOpNum returns the op-number of the newest operation, or 0 for an
// empty log.
func (l *opLog) lastOpNum() uint64 {
	if len(l.ents) == 0 {
		return 0
	}
	return l.ents[len(l.ents)-1].OpNum
}

// entries returns a copy of the log suitable for shipping in a message.
func (l *opLog) entries() []pb.Entry {
	if len(l.ents) == 0 {
		return nil
	}
	ents := make([]pb.Entry, len(l.ents))
	copy(ents, l.ents)
	return ents
}

// restore replaces the log with ents, the outcome of a completed view
// change.
func (l *opLog) restore(ents []pb.Entry) {
	l.ents = append([]pb.Entry(nil), ents...)
}

func (l *opLog) String() string {
	return fmt.Sprintf("log [len: %d, lastOpNum: %d]", l.length(), l.lastOpNum())
}

// mostAdvanced selects the log to carry into the next view from the
// DoViewChange messages of a quorum: the longest log wins, and equal
// lengths are broken by the lowest sender so that every replica makes the
// same choice. The quorum intersects any majority that accepted an
// operation in an earlier view, so the longest log is guaranteed to
// contain every operation the cluster may have committed.
func mostAdvanced(ms []pb.Message) []pb.Entry {
	if len(ms) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(ms); i++ {
		switch {
		case len(ms[i].Entries) > len(ms[best].Entries):
			best = i
		case len(ms[i].Entries) == len(ms[best].Entries) && ms[i].From < ms[best].From:
			best = i
		}
	}
	return ms[best].Entries
}
