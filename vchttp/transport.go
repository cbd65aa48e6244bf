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

// Package vchttp moves view-change messages between replicas over
// HTTP. Every message is POSTed on its own request; view changes are
// rare and small enough that pipelined requests beat the bookkeeping
// of a streaming channel.
package vchttp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/xiang90/probing"
	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/pkg/transport"
	"github.com/cezarad/themiscyra/pkg/types"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// Replica is the protocol state machine messages are handed to.
type Replica interface {
	Process(ctx context.Context, m pb.Message) error
}

type Transporter interface {
	// Start starts the given Transporter.
	// Start MUST be called before calling other functions in the interface.
	Start() error
	// Handler returns the HTTP handler of the transporter.
	// A transporter HTTP handler handles the HTTP requests
	// from remote peers.
	// The handler MUST be used to handle PeerPrefix(/viewchange)
	// endpoint.
	Handler() http.Handler
	// Send sends out the given messages to the remote peers.
	// Each message has a To field, which is an id that maps
	// to an existing peer in the transport.
	// If the id cannot be found in the transport, the message
	// will be ignored.
	Send(m []pb.Message)
	// AddPeer adds a peer with given peer urls into the transport.
	// It is the caller's responsibility to ensure the urls are all valid,
	// or it panics.
	// Peer urls are used to connect to the remote peer.
	AddPeer(id types.ID, urls []string)
	// RemovePeer removes the peer with given id.
	RemovePeer(id types.ID)
	// RemoveAllPeers removes all the existing peers in the transport.
	RemoveAllPeers()
	// UpdatePeer updates the peer urls of the peer with the given id.
	// It is the caller's responsibility to ensure the urls are all valid,
	// or it panics.
	UpdatePeer(id types.ID, urls []string)
	// ActiveSince returns the time that the connection with the peer
	// of the given id becomes active.
	// If the connection is active since peer was added, it returns the adding time.
	// If the connection is currently inactive, it returns zero time.
	ActiveSince(id types.ID) time.Time
	// Stop closes the connections and stops the transporter.
	Stop()
}

// Transport implements Transporter interface. It sends view-change
// messages to peers and hands received ones to the local replica.
// User needs to call Start before calling other functions, and call
// Stop when the Transport is no longer used.
type Transport struct {
	Logger *zap.Logger

	DialTimeout time.Duration // maximum duration before timing out dial of the request
	TLSInfo     transport.TLSInfo

	ID        types.ID // local replica ID
	ClusterID types.ID // cluster ID for request validation
	Replica   Replica
	// ErrorC reports detected critical errors, e.g. the remote cluster
	// told us this replica is not part of it. When an error is received
	// from ErrorC, user should stop the replica and the Transport.
	ErrorC chan error

	pipelineRt http.RoundTripper // roundTripper used by pipelines

	mu    sync.RWMutex // protect the peer map
	peers map[types.ID]Peer

	prober probing.Prober
}

func (t *Transport) Start() error {
	if t.Logger == nil {
		t.Logger = zap.NewNop()
	}
	var err error
	t.pipelineRt, err = transport.NewTransport(t.TLSInfo, t.DialTimeout)
	if err != nil {
		return err
	}
	t.peers = make(map[types.ID]Peer)
	t.prober = probing.NewProber(t.pipelineRt)
	return nil
}

func (t *Transport) Handler() http.Handler {
	h := newPipelineHandler(t, t.Replica, t.ClusterID)
	mux := http.NewServeMux()
	mux.Handle(PeerPrefix, h)
	mux.Handle(ProbingPrefix, probing.NewHandler())
	return mux
}

func (t *Transport) Get(id types.ID) Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peers[id]
}

func (t *Transport) Send(msgs []pb.Message) {
	for _, m := range msgs {
		// Replica IDs start at 0, so every To value is a real target.
		to := types.ID(m.To)

		t.mu.RLock()
		p, ok := t.peers[to]
		t.mu.RUnlock()

		if ok {
			p.send(m)
			continue
		}

		t.Logger.Debug(
			"ignored message send request; unknown remote peer target",
			zap.String("type", m.Round.String()),
			zap.String("unknown-target-peer-id", to.String()),
		)
	}
}

func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peers {
		p.stop()
	}
	if t.prober != nil {
		t.prober.RemoveAll()
	}
	if tr, ok := t.pipelineRt.(*transport.CancelableTransport); ok {
		tr.Cancel()
		tr.CloseIdleConnections()
	}
	t.peers = nil
}

func (t *Transport) AddPeer(id types.ID, us []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers == nil {
		panic("transport stopped")
	}
	if _, ok := t.peers[id]; ok {
		return
	}
	urls, err := types.NewURLs(us)
	if err != nil {
		t.Logger.Panic("failed NewURLs", zap.Strings("urls", us), zap.Error(err))
	}
	t.peers[id] = startPeer(t, urls, id)
	addPeerToProber(t.Logger, t.prober, id.String(), us)

	t.Logger.Info(
		"added remote peer",
		zap.String("local-replica-id", t.ID.String()),
		zap.String("remote-peer-id", id.String()),
		zap.Strings("remote-peer-urls", us),
	)
}

func (t *Transport) RemovePeer(id types.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removePeer(id)
}

func (t *Transport) RemoveAllPeers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.peers {
		t.removePeer(id)
	}
}

// the caller of this function must have the peers mutex.
func (t *Transport) removePeer(id types.ID) {
	if peer, ok := t.peers[id]; ok {
		peer.stop()
	} else {
		t.Logger.Panic("unexpected removal of unknown remote peer", zap.String("remote-peer-id", id.String()))
	}
	delete(t.peers, id)
	t.prober.Remove(id.String())

	t.Logger.Info(
		"removed remote peer",
		zap.String("local-replica-id", t.ID.String()),
		zap.String("removed-remote-peer-id", id.String()),
	)
}

func (t *Transport) UpdatePeer(id types.ID, us []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.peers[id]; !ok {
		return
	}
	urls, err := types.NewURLs(us)
	if err != nil {
		t.Logger.Panic("failed NewURLs", zap.Strings("urls", us), zap.Error(err))
	}
	t.peers[id].update(urls)

	t.prober.Remove(id.String())
	addPeerToProber(t.Logger, t.prober, id.String(), us)

	t.Logger.Info(
		"updated remote peer",
		zap.String("local-replica-id", t.ID.String()),
		zap.String("updated-remote-peer-id", id.String()),
		zap.Strings("updated-remote-peer-urls", us),
	)
}

func (t *Transport) ActiveSince(id types.ID) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.peers[id]; ok {
		return p.activeSince()
	}
	return time.Time{}
}

type Pausable interface {
	Pause()
	Resume()
}

// Pause suspends all peers, for testing.
func (t *Transport) Pause() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.peers {
		p.(Pausable).Pause()
	}
}

// Resume reenables all peers, for testing.
func (t *Transport) Resume() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.peers {
		p.(Pausable).Resume()
	}
}
