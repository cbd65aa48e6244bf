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

package viewchangetest

import (
	"testing"
	"time"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

func TestNetworkDrop(t *testing.T) {
	// drop around 10% messages
	sent := 1000
	droprate := 0.1
	nt := newClusterNetwork(0, 1)
	nt.drop(0, 1, droprate)
	for i := 0; i < sent; i++ {
		nt.send(pb.Message{From: 0, To: 1})
	}

	c := nt.recvFrom(1)

	received := 0
	done := false
	for !done {
		select {
		case <-c:
			received++
		default:
			done = true
		}
	}

	drop := sent - received
	if drop > int((droprate+0.1)*float64(sent)) || drop < int((droprate-0.1)*float64(sent)) {
		t.Errorf("drop = %d, want around %.2f", drop, droprate*float64(sent))
	}
}

func TestNetworkDelay(t *testing.T) {
	sent := 1000
	delay := time.Millisecond
	delayrate := 0.1
	nt := newClusterNetwork(0, 1)

	nt.delay(0, 1, delay, delayrate)
	var total time.Duration
	for i := 0; i < sent; i++ {
		s := time.Now()
		nt.send(pb.Message{From: 0, To: 1})
		total += time.Since(s)
	}

	w := time.Duration(float64(sent)*delayrate/2) * delay
	// there is some overhead in the send call since it generates
	// random numbers.
	if total < w {
		t.Errorf("total = %v, want > %v", total, w)
	}
}

func TestNetworkDisconnect(t *testing.T) {
	nt := newClusterNetwork(0, 1)
	nt.disconnect(1)
	for i := 0; i < 10; i++ {
		nt.send(pb.Message{From: 0, To: 1})
	}
	if nt.recvFrom(1) != nil {
		t.Errorf("recvFrom(1) != nil after disconnect")
	}

	nt.connect(1)
	nt.send(pb.Message{From: 0, To: 1})
	select {
	case <-nt.recvFrom(1):
	default:
		t.Errorf("cannot receive after reconnect")
	}

	// messages sent while disconnected must not be delivered late.
	received := 0
	done := false
	for !done {
		select {
		case <-nt.recvFrom(1):
			received++
		default:
			done = true
		}
	}
	if received != 0 {
		t.Errorf("received = %d stale messages after reconnect, want 0", received)
	}
}
