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
	"context"
	"errors"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// ErrStopped is returned by Node methods after Stop has been invoked.
var ErrStopped = errors.New("viewchange: stopped")

// SoftState provides state that is useful for reacting to view and role
// changes. It is volatile and does not need to be persisted.
type SoftState struct {
	View    uint64
	Primary uint64
	Role    RoleType
}

func (a *SoftState) equal(b *SoftState) bool {
	return a.View == b.View && a.Primary == b.Primary && a.Role == b.Role
}

// Ready encapsulates messages that are expected to be sent to other
// replicas, and the replica state the application may want to observe.
// All fields in Ready are read-only.
type Ready struct {
	// The current volatile state of the replica.
	// SoftState will be nil if there is no update.
	*SoftState

	// Messages specifies outbound messages to be sent. Delivery is
	// fire-and-forget: the transport may drop them and must not retry
	// on the protocol's behalf.
	Messages []pb.Message
}

func (rd Ready) containsUpdates() bool {
	return rd.SoftState != nil || len(rd.Messages) > 0
}

// Node is a canonical wrapper around the replica state machine: it owns
// the replica on a single goroutine and turns method calls into events,
// so the caller never needs a lock.
type Node interface {
	// Tick increments internal elapsed time, driving the suspicion
	// timeout. Applications call it on a steady wall-clock interval.
	Tick()
	// Suspect reports that the local failure detector considers the
	// primary of view dead.
	Suspect(ctx context.Context, view uint64) error
	// Step advances the state machine using the given message.
	Step(ctx context.Context, m pb.Message) error
	// Ready returns a channel that delivers pending outbound messages
	// and state updates. Advance must be called after the returned
	// Ready has been handled.
	Ready() <-chan Ready
	// Advance notifies the Node that the application has sent (or
	// chosen to drop) the messages in the last Ready.
	Advance()
	// Status returns the current status of the replica.
	Status() Status
	// Stop performs any necessary termination of the Node.
	Stop()
}

// StartNode returns a new Node with the given configuration and starts
// its event loop.
func StartNode(c *Config) Node {
	r := newReplica(c)
	n := newNode()
	go n.run(r)
	return &n
}

type node struct {
	recvc    chan pb.Message
	suspectc chan uint64
	readyc   chan Ready
	advancec chan struct{}
	tickc    chan struct{}
	done     chan struct{}
	stop     chan struct{}
	status   chan chan Status
}

func newNode() node {
	return node{
		recvc:    make(chan pb.Message),
		suspectc: make(chan uint64),
		readyc:   make(chan Ready),
		advancec: make(chan struct{}),
		tickc:    make(chan struct{}),
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		status:   make(chan chan Status),
	}
}

func (n *node) run(r *replica) {
	var readyc chan Ready
	var advancec chan struct{}
	var rd Ready

	prevSoftSt := r.softState()

	for {
		if advancec != nil {
			readyc = nil
		} else {
			rd = newReady(r, prevSoftSt)
			if rd.containsUpdates() {
				readyc = n.readyc
			} else {
				readyc = nil
			}
		}

		select {
		case m := <-n.recvc:
			// Stale and duplicate classifications are already counted
			// by the replica; there is no caller to hand them to here.
			r.Step(m)
		case view := <-n.suspectc:
			r.suspect(view)
		case <-n.tickc:
			r.tickSuspicion()
		case readyc <- rd:
			if rd.SoftState != nil {
				prevSoftSt = rd.SoftState
			}
			r.msgs = nil
			advancec = n.advancec
		case <-advancec:
			advancec = nil
		case c := <-n.status:
			c <- getStatus(r)
		case <-n.stop:
			close(n.done)
			return
		}
	}
}

func newReady(r *replica, prevSoftSt *SoftState) Ready {
	rd := Ready{Messages: r.msgs}
	if softSt := r.softState(); !softSt.equal(prevSoftSt) {
		rd.SoftState = softSt
	}
	return rd
}

func (n *node) Tick() {
	select {
	case n.tickc <- struct{}{}:
	case <-n.done:
	}
}

func (n *node) Suspect(ctx context.Context, view uint64) error {
	select {
	case n.suspectc <- view:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
}

func (n *node) Step(ctx context.Context, m pb.Message) error {
	select {
	case n.recvc <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
}

func (n *node) Ready() <-chan Ready { return n.readyc }

func (n *node) Advance() {
	select {
	case n.advancec <- struct{}{}:
	case <-n.done:
	}
}

func (n *node) Status() Status {
	c := make(chan Status)
	select {
	case n.status <- c:
		return <-c
	case <-n.done:
		return Status{}
	}
}

func (n *node) Stop() {
	select {
	case n.stop <- struct{}{}:
		// Not already stopped, so trigger it.
	case <-n.done:
		// Node has already been stopped - no need to do anything.
		return
	}
	// Block until the stop has been acknowledged by run().
	<-n.done
}
