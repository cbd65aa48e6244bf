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

package viewchangepb

import (
	"errors"
	"io"
)

// The codec below is the protobuf binary wire format, written out by hand
// so the message layout stays reviewable next to the struct definitions.
// The methods satisfy the proto.Marshaler and proto.Unmarshaler
// interfaces, so proto.Marshal and proto.Unmarshal delegate here.

var (
	ErrInvalidLength = errors.New("viewchangepb: invalid length")
	ErrIntOverflow   = errors.New("viewchangepb: integer overflow")
)

func (e *Entry) Size() (n int) {
	n = 1 + sizeOfVarint(e.OpNum)
	n += 1 + sizeOfVarint(uint64(len(e.Data))) + len(e.Data)
	return n
}

func (e *Entry) Marshal() ([]byte, error) {
	b := make([]byte, 0, e.Size())
	b = appendVarint(b, uint64(1<<3|0))
	b = appendVarint(b, e.OpNum)
	b = appendVarint(b, uint64(2<<3|2))
	b = appendVarint(b, uint64(len(e.Data)))
	b = append(b, e.Data...)
	return b, nil
}

func (e *Entry) Unmarshal(data []byte) error {
	i := 0
	for i < len(data) {
		key, n := readVarint(data[i:])
		if n <= 0 {
			return unmarshalErr(n)
		}
		i += n
		switch fieldNum := key >> 3; fieldNum {
		case 1:
			v, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			e.OpNum = v
		case 2:
			l, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			if l > uint64(len(data)-i) {
				return io.ErrUnexpectedEOF
			}
			e.Data = append(e.Data[:0], data[i:i+int(l)]...)
			i += int(l)
		default:
			n, err := skipField(data[i:], int(key&7))
			if err != nil {
				return err
			}
			i += n
		}
	}
	return nil
}

func (m *Message) Size() (n int) {
	n = 1 + sizeOfVarint(m.View)
	n += 1 + sizeOfVarint(uint64(m.Round))
	n += 1 + sizeOfVarint(m.From)
	for i := range m.Entries {
		es := m.Entries[i].Size()
		n += 1 + sizeOfVarint(uint64(es)) + es
	}
	n += 1 + sizeOfVarint(m.To)
	return n
}

func (m *Message) Marshal() ([]byte, error) {
	b := make([]byte, 0, m.Size())
	b = appendVarint(b, uint64(1<<3|0))
	b = appendVarint(b, m.View)
	b = appendVarint(b, uint64(2<<3|0))
	b = appendVarint(b, uint64(m.Round))
	b = appendVarint(b, uint64(3<<3|0))
	b = appendVarint(b, m.From)
	for i := range m.Entries {
		eb, err := m.Entries[i].Marshal()
		if err != nil {
			return nil, err
		}
		b = appendVarint(b, uint64(4<<3|2))
		b = appendVarint(b, uint64(len(eb)))
		b = append(b, eb...)
	}
	b = appendVarint(b, uint64(5<<3|0))
	b = appendVarint(b, m.To)
	return b, nil
}

func (m *Message) Unmarshal(data []byte) error {
	i := 0
	for i < len(data) {
		key, n := readVarint(data[i:])
		if n <= 0 {
			return unmarshalErr(n)
		}
		i += n
		switch fieldNum := key >> 3; fieldNum {
		case 1:
			v, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			m.View = v
		case 2:
			v, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			m.Round = Round(v)
		case 3:
			v, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			m.From = v
		case 4:
			l, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			if l > uint64(len(data)-i) {
				return io.ErrUnexpectedEOF
			}
			var e Entry
			if err := e.Unmarshal(data[i : i+int(l)]); err != nil {
				return err
			}
			m.Entries = append(m.Entries, e)
			i += int(l)
		case 5:
			v, n := readVarint(data[i:])
			if n <= 0 {
				return unmarshalErr(n)
			}
			i += n
			m.To = v
		default:
			n, err := skipField(data[i:], int(key&7))
			if err != nil {
				return err
			}
			i += n
		}
	}
	return nil
}

func appendVarint(b []byte, v uint64) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}
	return append(b, byte(v))
}

func sizeOfVarint(v uint64) (n int) {
	for {
		n++
		v >>= 7
		if v == 0 {
			return n
		}
	}
}

// readVarint decodes a varint from b, returning the value and the number
// of bytes consumed. It returns 0 on truncated input and -1 on a varint
// longer than 64 bits.
func readVarint(b []byte) (uint64, int) {
	var v uint64
	var shift uint
	for n := 0; n < len(b); n++ {
		if n > 9 {
			return 0, -1
		}
		c := b[n]
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, n + 1
		}
		shift += 7
	}
	return 0, 0
}

func skipField(b []byte, wireType int) (int, error) {
	switch wireType {
	case 0:
		_, n := readVarint(b)
		if n <= 0 {
			return 0, unmarshalErr(n)
		}
		return n, nil
	case 1:
		if len(b) < 8 {
			return 0, io.ErrUnexpectedEOF
		}
		return 8, nil
	case 2:
		l, n := readVarint(b)
		if n <= 0 {
			return 0, unmarshalErr(n)
		}
		if l > uint64(len(b)-n) {
			return 0, io.ErrUnexpectedEOF
		}
		return n + int(l), nil
	case 5:
		if len(b) < 4 {
			return 0, io.ErrUnexpectedEOF
		}
		return 4, nil
	default:
		return 0, ErrInvalidLength
	}
}

func unmarshalErr(n int) error {
	if n < 0 {
		return ErrIntOverflow
	}
	return io.ErrUnexpectedEOF
}
