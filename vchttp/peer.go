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

package vchttp

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/pkg/types"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// Peer is the representative of a remote replica.
type Peer interface {
	// send sends the message to the remote peer. The function is
	// non-blocking and has no promise that the message will be received
	// by the remote. When it fails to send message out, it will report
	// the status to underlying replica.
	send(m pb.Message)
	// update updates the urls of remote peer.
	update(urls types.URLs)
	// activeSince returns the time that the connection with the
	// peer becomes active.
	activeSince() time.Time
	// stop performs any necessary finalization and terminates the peer
	// elegantly.
	stop()
}

type peer struct {
	lg *zap.Logger

	localID types.ID
	// id of the remote peer
	id types.ID

	status *peerStatus
	picker *urlPicker

	pipeline *pipeline

	mu     sync.Mutex
	paused bool
}

func startPeer(t *Transport, urls types.URLs, peerID types.ID) *peer {
	t.Logger.Info("starting remote peer", zap.String("remote-peer-id", peerID.String()))
	defer t.Logger.Info("started remote peer", zap.String("remote-peer-id", peerID.String()))

	status := newPeerStatus(t.Logger, t.ID, peerID)
	picker := newURLPicker(urls)
	p := &peer{
		lg:      t.Logger,
		localID: t.ID,
		id:      peerID,
		status:  status,
		picker:  picker,
		pipeline: &pipeline{
			peerID: peerID,
			tr:     t,
			picker: picker,
			status: status,
			errorc: t.ErrorC,
		},
	}
	p.pipeline.start()
	return p
}

func (p *peer) send(m pb.Message) {
	p.mu.Lock()
	paused := p.paused
	p.mu.Unlock()
	if paused {
		return
	}

	select {
	case p.pipeline.msgc <- m:
	default:
		p.lg.Warn(
			"dropped view-change message since sending buffer is full (overloaded network)",
			zap.String("message-type", m.Round.String()),
			zap.String("local-replica-id", p.localID.String()),
			zap.String("from", types.ID(m.From).String()),
			zap.String("remote-peer-id", p.id.String()),
			zap.Bool("remote-peer-active", p.status.isActive()),
		)
		sentFailures.WithLabelValues(p.id.String()).Inc()
	}
}

func (p *peer) update(urls types.URLs) {
	p.picker.update(urls)
}

func (p *peer) activeSince() time.Time { return p.status.activeSince() }

func (p *peer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *peer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *peer) stop() {
	p.lg.Info("stopping remote peer", zap.String("remote-peer-id", p.id.String()))
	defer p.lg.Info("stopped remote peer", zap.String("remote-peer-id", p.id.String()))
	p.pipeline.stop()
}
