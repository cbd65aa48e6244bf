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
	"errors"
	"fmt"
	"math/rand"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// RoleType is the position of a replica within the view change of its
// current view.
type RoleType uint64

const (
	// RoleBackup marks a replica that is not the candidate of the
	// current view: it votes, forwards its log to the candidate, and
	// adopts the log the candidate announces.
	RoleBackup RoleType = iota
	// RoleCandidate marks the replica the current view elects. It
	// collects DoViewChange messages and announces the chosen log.
	RoleCandidate
)

var rolemap = [...]string{
	"RoleBackup",
	"RoleCandidate",
}

func (rt RoleType) String() string { return rolemap[uint64(rt)] }

var (
	// ErrStaleMessage is returned by Step when a message carries a view
	// lower than the replica's. The message is discarded; stale traffic
	// is expected on a fair-loss network and is not a failure.
	ErrStaleMessage = errors.New("viewchange: stale message")

	// ErrDuplicateVote is returned by Step when a sender's message for a
	// (view, round) it already voted in arrives again. The mailbox
	// overwrites the previous copy so the vote is never counted twice.
	ErrDuplicateVote = errors.New("viewchange: duplicate vote")

	// ErrViewRegression is returned when a caller asks the replica to
	// move to a lower view. Views only ever increase; a regression is a
	// contract violation by the caller and is rejected.
	ErrViewRegression = errors.New("viewchange: view regression")
)

// Config holds the parameters to start a replica.
type Config struct {
	// ID is the identity of the local replica within the cluster. Must
	// be in [0, ClusterSize).
	ID uint64
	// ClusterSize is the fixed number of replicas n. The cluster
	// tolerates floor((n-1)/2) simultaneous crashes.
	ClusterSize int
	// ElectionTick is the number of Node.Tick invocations that must pass
	// without protocol progress before the node suspects the primary.
	// The effective timeout is randomized in [ElectionTick, 2*ElectionTick)
	// to keep replicas from suspecting in lockstep.
	ElectionTick int
	// Storage is the durable log collaborator. The replica recovers its
	// log from Storage on start and persists every adopted log before
	// announcing it.
	Storage Storage
	// Logger is the logger the replica writes to. Defaults to the
	// package logger.
	Logger Logger
}

func (c *Config) validate() error {
	if c.ClusterSize <= 0 {
		return errors.New("viewchange: cluster size must be greater than 0")
	}
	if c.ID >= uint64(c.ClusterSize) {
		return fmt.Errorf("viewchange: id %d outside cluster of %d replicas", c.ID, c.ClusterSize)
	}
	if c.Storage == nil {
		return errors.New("viewchange: storage must not be nil")
	}
	if c.ElectionTick <= 0 {
		return errors.New("viewchange: election tick must be greater than 0")
	}
	if c.Logger == nil {
		c.Logger = getLogger()
	}
	return nil
}

// replica is the view-change state machine of one cluster member. It is
// not safe for concurrent use; the Node wrapper (or a test harness)
// serializes every event, so each transition runs atomically with respect
// to the others.
type replica struct {
	id uint64

	view  uint64
	round pb.Round
	role  RoleType

	n int

	log     *opLog
	mbox    *mailbox
	storage Storage

	// msgs is the outbox: messages scheduled for fire-and-forget
	// delivery, drained by the layer that owns the transport.
	msgs []pb.Message

	step stepFunc

	// elapsed counts ticks since the last protocol progress. Once it
	// exceeds the randomized suspicion timeout the replica assumes the
	// change it is waiting on will never finish.
	elapsed          int
	suspicionTimeout int
	rand             *rand.Rand

	logger Logger

	// anomaly counts, surfaced through Status for observability.
	staleMessages   uint64
	duplicateVotes  uint64
	viewRegressions uint64
}

func newReplica(c *Config) *replica {
	if err := c.validate(); err != nil {
		panic(err.Error())
	}
	r := &replica{
		id:               c.ID,
		n:                c.ClusterSize,
		log:              newOpLog(c.Storage),
		mbox:             newMailbox(),
		storage:          c.Storage,
		suspicionTimeout: c.ElectionTick,
		logger:           c.Logger,
	}
	r.rand = rand.New(rand.NewSource(int64(c.ID)))
	r.advanceView(0)
	r.logger.Infof("viewchange: newReplica %x [cluster: %d, view: %d, log: %d entries]",
		r.id, r.n, r.view, r.log.length())
	return r
}

// primary returns the replica leading the current view.
func (r *replica) primary() uint64 { return primaryFor(r.view, r.n) }

func (r *replica) softState() *SoftState {
	return &SoftState{View: r.view, Primary: r.primary(), Role: r.role}
}

func (r *replica) becomeCandidate() {
	r.step = stepCandidate
	r.role = RoleCandidate
	r.logger.Infof("viewchange: %x became candidate for view %d", r.id, r.view)
}

func (r *replica) becomeBackup() {
	r.step = stepBackup
	r.role = RoleBackup
	r.logger.Infof("viewchange: %x became backup of view %d [primary: %x]", r.id, r.view, r.primary())
}

// advanceView moves the replica to view and resets it to the
// StartViewChange-ready state with the role the new view assigns. A view
// lower than the current one is rejected: views are strictly monotone and
// a regression attempt is a bug in the caller, not a protocol event.
func (r *replica) advanceView(view uint64) bool {
	if view < r.view {
		r.viewRegressions++
		r.logger.Errorf("viewchange: %x rejected view regression [current: %d, proposed: %d]", r.id, r.view, view)
		return false
	}
	r.view = view
	r.round = pb.RoundStartViewChange
	r.elapsed = 0
	r.mbox.compact(view)
	if r.primary() == r.id {
		r.becomeCandidate()
	} else {
		r.becomeBackup()
	}
	return true
}

// send schedules m for delivery by appending it to the outbox. Sending
// never blocks, never retries and expects no acknowledgment; loss is
// repaired by suspicion timeouts, not by this state machine.
func (r *replica) send(m pb.Message) {
	m.From = r.id
	r.msgs = append(r.msgs, m)
}

// bcast sends m to every other replica in the cluster.
func (r *replica) bcast(m pb.Message) {
	for i := uint64(0); i < uint64(r.n); i++ {
		if i == r.id {
			continue
		}
		m.To = i
		r.send(m)
	}
}

// suspect reacts to the local failure detector declaring the primary of
// view dead. A suspicion for an old view is ignored; one for the current
// view (re)enters StartViewChange unless the replica has already
// progressed past that round; one for a higher view jumps there first.
func (r *replica) suspect(view uint64) error {
	switch {
	case view < r.view:
		r.staleMessages++
		r.logger.Debugf("viewchange: %x [view: %d] ignored a stale suspicion of view %d", r.id, r.view, view)
		return ErrStaleMessage
	case view > r.view:
		r.advanceView(view)
	default:
		if r.round != pb.RoundStartViewChange {
			// Mid-change; rounds never regress within a view. The
			// detector escalates by suspecting the next view instead.
			r.logger.Debugf("viewchange: %x [view: %d, round: %s] ignored a suspicion while changing views",
				r.id, r.view, r.round)
			return nil
		}
	}
	r.enterStartViewChange()
	r.stepAll()
	return nil
}

// enterStartViewChange begins (or retransmits) this replica's vote to
// abandon the primary of the current view. The broadcast carries no log;
// this round only measures how many replicas are willing to move.
func (r *replica) enterStartViewChange() {
	r.logger.Infof("viewchange: %x is starting a view change for view %d", r.id, r.view)
	m := pb.Message{View: r.view, Round: pb.RoundStartViewChange, From: r.id}
	r.bcast(m)
	// The local vote counts toward the quorum without a round trip.
	r.mbox.record(m)
}

// Step advances the state machine with an inbound message. The view gate
// runs first: lower views are dropped, higher views drag the replica into
// a new change. The message is then recorded and every transition the
// recording enables is applied. Step never blocks and no inbound message
// is ever fatal; the returned error only classifies anomalies for the
// caller's accounting.
func (r *replica) Step(m pb.Message) error {
	if m.From >= uint64(r.n) {
		r.logger.Warningf("viewchange: %x ignored a %s message from unknown replica %x", r.id, m.Round, m.From)
		return nil
	}
	switch {
	case m.View > r.view:
		r.logger.Infof("viewchange: %x [view: %d] received a %s message with higher view from %x [view: %d]",
			r.id, r.view, m.Round, m.From, m.View)
		r.advanceView(m.View)
		r.enterStartViewChange()
	case m.View < r.view:
		r.staleMessages++
		r.logger.Debugf("viewchange: %x [view: %d] ignored a %s message with lower view from %x [view: %d]",
			r.id, r.view, m.Round, m.From, m.View)
		return ErrStaleMessage
	}
	var err error
	if r.mbox.record(m) {
		r.duplicateVotes++
		r.logger.Debugf("viewchange: %x overwrote a duplicate %s vote from %x for view %d",
			r.id, m.Round, m.From, m.View)
		err = ErrDuplicateVote
	}
	r.stepAll()
	return err
}

// stepAll applies enabled transitions until none is left. A single event
// can carry a replica through several rounds: the vote completing the
// StartViewChange quorum may find DoViewChange messages already waiting
// in the mailbox.
func (r *replica) stepAll() {
	for r.step(r) {
	}
}

// A stepFunc tries to advance the replica by one round and reports
// whether it did.
type stepFunc func(r *replica) bool

func stepCandidate(r *replica) bool {
	switch r.round {
	case pb.RoundStartViewChange:
		if !hasQuorum(r.mbox.sizeOf(r.view, pb.RoundStartViewChange), r.n) {
			return false
		}
		// The candidate does not broadcast here: the backups reaching
		// the same quorum will address their DoViewChange to it.
		r.round = pb.RoundDoViewChange
		r.elapsed = 0
		r.logger.Infof("viewchange: %x has a StartViewChange quorum, collecting logs for view %d", r.id, r.view)
		return true
	case pb.RoundDoViewChange:
		if !hasQuorum(r.mbox.sizeOf(r.view, pb.RoundDoViewChange), r.n) {
			return false
		}
		r.completeViewChange()
		return true
	}
	return false
}

func stepBackup(r *replica) bool {
	switch r.round {
	case pb.RoundStartViewChange:
		if !hasQuorum(r.mbox.sizeOf(r.view, pb.RoundStartViewChange), r.n) {
			return false
		}
		r.round = pb.RoundDoViewChange
		r.elapsed = 0
		r.send(pb.Message{To: r.primary(), View: r.view, Round: pb.RoundDoViewChange, Entries: r.log.entries()})
		r.logger.Infof("viewchange: %x sent DoViewChange to %x for view %d [log: %d entries]",
			r.id, r.primary(), r.view, r.log.length())
		return true
	case pb.RoundDoViewChange:
		// Only the view's primary may announce StartView; one message
		// from it suffices because it speaks for a quorum it already
		// collected.
		m, ok := r.mbox.messageFrom(r.view, pb.RoundStartView, r.primary())
		if !ok {
			return false
		}
		r.finishViewChange(m)
		return true
	}
	return false
}

// completeViewChange finishes the change on the candidate: it adopts the
// most advanced log among the DoViewChange quorum, announces it with
// StartView, and moves to the next view. This is the only point where a
// new primary's log becomes authoritative.
func (r *replica) completeViewChange() {
	ms := r.mbox.messagesOf(r.view, pb.RoundDoViewChange)
	ents := mostAdvanced(ms)
	r.adopt(ents)
	r.logger.Infof("viewchange: %x completed the change for view %d [quorum: %d, adopted: %d entries]",
		r.id, r.view, len(ms), len(ents))
	r.bcast(pb.Message{View: r.view, Round: pb.RoundStartView, Entries: ents})
	r.advanceView(r.view + 1)
}

// finishViewChange finishes the change on a backup with the log carried
// by the primary's StartView message.
func (r *replica) finishViewChange(m pb.Message) {
	r.adopt(m.Entries)
	r.logger.Infof("viewchange: %x adopted the log of view %d from %x [%d entries]",
		r.id, r.view, m.From, len(m.Entries))
	r.advanceView(r.view + 1)
}

// adopt persists ents and installs them as the local log. Adoption must
// be durable before the outcome of the view change is visible to anyone
// else; a replica that cannot persist cannot keep its promises to the
// quorum, so a storage failure here is not survivable.
func (r *replica) adopt(ents []pb.Entry) {
	if err := r.storage.AdoptLog(ents); err != nil {
		r.logger.Panicf("viewchange: %x failed to persist the adopted log for view %d (%v)", r.id, r.view, err)
	}
	r.log.restore(ents)
}

// tickSuspicion is run on every Node.Tick. When the randomized timeout
// expires without progress the replica suspects its current view if it
// is still waiting to start, or the next view if a change is underway
// and presumably led by a candidate that also died.
func (r *replica) tickSuspicion() {
	r.elapsed++
	if r.isSuspicionTimeout() {
		r.elapsed = 0
		view := r.view
		if r.round != pb.RoundStartViewChange {
			view = r.view + 1
		}
		r.suspect(view)
	}
}

// isSuspicionTimeout returns true if r.elapsed is greater than the
// randomized suspicion timeout in (suspiciontimeout, 2 * suspiciontimeout - 1).
// Otherwise, it returns false.
func (r *replica) isSuspicionTimeout() bool {
	d := r.elapsed - r.suspicionTimeout
	if d < 0 {
		return false
	}
	return d > r.rand.Int()%r.suspicionTimeout
}
