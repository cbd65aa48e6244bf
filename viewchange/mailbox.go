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
	"sort"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// slotKey identifies one ballot box: the messages of a single round of a
// single view.
type slotKey struct {
	view  uint64
	round pb.Round
}

// mailbox collects the protocol messages a replica has received, one slot
// per (view, round), keyed by sender within a slot. Keying by sender is
// what turns retransmissions and duplicates into overwrites instead of
// double-counted votes.
type mailbox struct {
	slots map[slotKey]map[uint64]pb.Message
}

func newMailbox() *mailbox {
	return &mailbox{slots: make(map[slotKey]map[uint64]pb.Message)}
}

// record stores m, overwriting any previous message from the same sender
// in the same (view, round). It reports whether such a message existed.
func (mb *mailbox) record(m pb.Message) bool {
	k := slotKey{view: m.View, round: m.Round}
	slot, ok := mb.slots[k]
	if !ok {
		slot = make(map[uint64]pb.Message)
		mb.slots[k] = slot
	}
	_, dup := slot[m.From]
	slot[m.From] = m
	return dup
}

// sizeOf returns the number of distinct senders recorded for (view, round).
func (mb *mailbox) sizeOf(view uint64, round pb.Round) int {
	return len(mb.slots[slotKey{view: view, round: round}])
}

// messagesOf returns the recorded messages for (view, round) ordered by
// sender.
func (mb *mailbox) messagesOf(view uint64, round pb.Round) []pb.Message {
	slot := mb.slots[slotKey{view: view, round: round}]
	if len(slot) == 0 {
		return nil
	}
	ms := make([]pb.Message, 0, len(slot))
	for _, m := range slot {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].From < ms[j].From })
	return ms
}

// messageFrom returns the message recorded for (view, round) from one
// specific sender.
func (mb *mailbox) messageFrom(view uint64, round pb.Round, from uint64) (pb.Message, bool) {
	m, ok := mb.slots[slotKey{view: view, round: round}][from]
	return m, ok
}

// compact drops every slot below view. Messages for lower views can never
// influence the replica again; a higher view supersedes all work pending
// for the views before it.
func (mb *mailbox) compact(view uint64) {
	for k := range mb.slots {
		if k.view < view {
			delete(mb.slots, k)
		}
	}
}
