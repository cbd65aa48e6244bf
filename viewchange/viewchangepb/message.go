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

// Package viewchangepb holds the wire types replicas exchange while
// changing views. The types are kept in their own package so that the
// transport can depend on the message layout without importing the
// state machine.
package viewchangepb

import (
	proto "github.com/gogo/protobuf/proto"
)

// Round is the phase of a view change a message belongs to. The values
// are part of the wire format and must not be renumbered.
type Round int32

const (
	RoundStartViewChange Round = 0
	RoundDoViewChange    Round = 1
	RoundStartView       Round = 2
)

var Round_name = map[int32]string{
	0: "StartViewChange",
	1: "DoViewChange",
	2: "StartView",
}

var Round_value = map[string]int32{
	"StartViewChange": 0,
	"DoViewChange":    1,
	"StartView":       2,
}

func (x Round) String() string {
	return proto.EnumName(Round_name, int32(x))
}

// Entry is one operation record in a replica log. OpNum is the 1-based
// position of the operation; Data is opaque to the view-change protocol.
type Entry struct {
	OpNum uint64 `protobuf:"varint,1,opt,name=opNum" json:"opNum"`
	Data  []byte `protobuf:"bytes,2,opt,name=data" json:"data,omitempty"`
}

func (e *Entry) Reset()         { *e = Entry{} }
func (e *Entry) String() string { return proto.CompactTextString(e) }
func (*Entry) ProtoMessage()    {}

// Message is the single protocol message type. It asserts that From is in
// Round of View; Entries carries From's log and is meaningful only for
// DoViewChange and StartView. To is routing metadata consumed by the
// transport and carries no protocol meaning.
type Message struct {
	View    uint64  `protobuf:"varint,1,opt,name=view" json:"view"`
	Round   Round   `protobuf:"varint,2,opt,name=round,enum=viewchangepb.Round" json:"round"`
	From    uint64  `protobuf:"varint,3,opt,name=from" json:"from"`
	Entries []Entry `protobuf:"bytes,4,rep,name=entries" json:"entries,omitempty"`
	To      uint64  `protobuf:"varint,5,opt,name=to" json:"to"`
}

func (m *Message) Reset()         { *m = Message{} }
func (m *Message) String() string { return proto.CompactTextString(m) }
func (*Message) ProtoMessage()    {}

func init() {
	proto.RegisterEnum("viewchangepb.Round", Round_name, Round_value)
	proto.RegisterType((*Entry)(nil), "viewchangepb.Entry")
	proto.RegisterType((*Message)(nil), "viewchangepb.Message")
}
