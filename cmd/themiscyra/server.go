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

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/logstore"
	"github.com/cezarad/themiscyra/pkg/fileutil"
	"github.com/cezarad/themiscyra/pkg/logutil"
	"github.com/cezarad/themiscyra/pkg/transport"
	"github.com/cezarad/themiscyra/pkg/types"
	"github.com/cezarad/themiscyra/vchttp"
	"github.com/cezarad/themiscyra/viewchange"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

const (
	// peer connections are short POSTs; a stuck one holds a pipeline
	// slot, so time it out.
	peerConnReadTimeout  = 5 * time.Second
	peerConnWriteTimeout = 5 * time.Second

	peerDialTimeout = time.Second
)

// replicaServer wires one viewchange.Node to its durable log, the HTTP
// peer transport and the admin endpoints.
type replicaServer struct {
	lg  *zap.Logger
	cfg *config

	node  viewchange.Node
	store *logstore.BoltStore
	tr    *vchttp.Transport

	clock clockwork.Clock

	peerLn   net.Listener
	adminLns []net.Listener

	errc  chan error
	stopc chan struct{}
	donec chan struct{}
}

func startReplicaServer(lg *zap.Logger, cfg *config) (*replicaServer, error) {
	if err := fileutil.TouchDirAll(lg, cfg.DataDir); err != nil {
		return nil, fmt.Errorf("cannot access data directory: %w", err)
	}
	store, err := logstore.Open(lg, filepath.Join(cfg.DataDir, "log.db"))
	if err != nil {
		return nil, err
	}

	node := viewchange.StartNode(&viewchange.Config{
		ID:           cfg.ID,
		ClusterSize:  cfg.clusterSize(),
		ElectionTick: cfg.ElectionTicks,
		Storage:      store,
		Logger:       logutil.NewReplicaLoggerZap(lg.Named("viewchange")),
	})

	s := &replicaServer{
		lg:    lg,
		cfg:   cfg,
		node:  node,
		store: store,
		clock: clockwork.NewRealClock(),
		errc:  make(chan error, 1),
		stopc: make(chan struct{}),
		donec: make(chan struct{}),
	}

	s.tr = &vchttp.Transport{
		Logger:      lg,
		DialTimeout: peerDialTimeout,
		TLSInfo:     cfg.peerTLSInfo(),
		ID:          types.ID(cfg.ID),
		ClusterID:   types.ID(cfg.ClusterID),
		Replica:     s,
		ErrorC:      make(chan error),
	}
	if err := s.tr.Start(); err != nil {
		node.Stop()
		store.Close()
		return nil, err
	}
	for i, u := range cfg.peers {
		if uint64(i) == cfg.ID {
			continue
		}
		s.tr.AddPeer(types.ID(i), []string{u.String()})
	}

	if err := s.servePeers(); err != nil {
		s.shutdown()
		return nil, err
	}
	if err := s.serveAdmin(); err != nil {
		s.shutdown()
		return nil, err
	}

	go s.run()

	selfPeerURL := cfg.selfPeerURL()
	lg.Info(
		"started replica",
		zap.Uint64("replica-id", cfg.ID),
		zap.Int("cluster-size", cfg.clusterSize()),
		zap.String("peer-url", selfPeerURL.String()),
		zap.String("admin-urls", cfg.ListenAdminURLs.String()),
	)
	return s, nil
}

// Process implements vchttp.Replica by stepping inbound messages into
// the protocol node.
func (s *replicaServer) Process(ctx context.Context, m pb.Message) error {
	return s.node.Step(ctx, m)
}

// Err reports a failure that stopped the replica.
func (s *replicaServer) Err() <-chan error { return s.errc }

func (s *replicaServer) servePeers() error {
	u := s.cfg.selfPeerURL()
	tlsinfo := s.cfg.peerTLSInfo()
	sopts := &transport.SocketOpts{ReusePort: s.cfg.SocketReusePort}
	ln, err := transport.NewTimeoutListenerWithSocketOpts(
		u.Host, u.Scheme, &tlsinfo, peerConnReadTimeout, peerConnWriteTimeout, sopts)
	if err != nil {
		return fmt.Errorf("cannot listen on peer URL %s: %w", u.String(), err)
	}
	s.peerLn = ln

	srv := &http.Server{Handler: s.tr.Handler()}
	go func() {
		s.lg.Info("serving peer traffic", zap.String("address", u.String()))
		err := srv.Serve(ln)
		select {
		case <-s.stopc:
		default:
			s.reportCriticalError(fmt.Errorf("peer server on %s: %w", u.String(), err))
		}
	}()
	return nil
}

func (s *replicaServer) serveAdmin() error {
	h := newAdminHandler(s.lg, s.node, s.donec)
	for _, u := range s.cfg.ListenAdminURLs {
		var tlscfg *tls.Config
		if u.Scheme == "https" {
			tlsinfo := s.cfg.peerTLSInfo()
			cfg, err := tlsinfo.ServerConfig()
			if err != nil {
				return fmt.Errorf("cannot build TLS config for admin URL %s: %w", u.String(), err)
			}
			tlscfg = cfg
		}
		ln, err := net.Listen("tcp", u.Host)
		if err != nil {
			return fmt.Errorf("cannot listen on admin URL %s: %w", u.String(), err)
		}
		kln, err := transport.NewKeepAliveListener(ln, u.Scheme, tlscfg)
		if err != nil {
			ln.Close()
			return fmt.Errorf("cannot listen on admin URL %s: %w", u.String(), err)
		}
		s.adminLns = append(s.adminLns, kln)

		srv := &http.Server{Handler: h}
		go func(u url.URL, ln net.Listener) {
			s.lg.Info("serving admin endpoints", zap.String("address", u.String()))
			err := srv.Serve(ln)
			select {
			case <-s.stopc:
			default:
				s.reportCriticalError(fmt.Errorf("admin server on %s: %w", u.String(), err))
			}
		}(u, kln)
	}
	return nil
}

// run drives the protocol node: ticks feed the suspicion timer and
// Ready batches are handed to the transport.
func (s *replicaServer) run() {
	defer close(s.donec)

	ticker := s.clock.NewTicker(time.Duration(s.cfg.TickMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			s.node.Tick()
		case rd := <-s.node.Ready():
			if rd.SoftState != nil {
				s.lg.Info(
					"view state changed",
					zap.Uint64("view", rd.SoftState.View),
					zap.Uint64("primary", rd.SoftState.Primary),
					zap.String("role", rd.SoftState.Role.String()),
				)
			}
			s.tr.Send(rd.Messages)
			s.node.Advance()
		case err := <-s.tr.ErrorC:
			s.lg.Warn("peer transport reported a critical error", zap.Error(err))
			s.reportCriticalError(err)
			return
		case <-s.stopc:
			return
		}
	}
}

func (s *replicaServer) reportCriticalError(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

// Stop halts the event loop, then tears the server down.
func (s *replicaServer) Stop() {
	select {
	case <-s.stopc:
		return
	default:
	}
	close(s.stopc)
	<-s.donec
	s.shutdown()
	s.lg.Info("stopped replica", zap.Uint64("replica-id", s.cfg.ID))
}

func (s *replicaServer) shutdown() {
	if s.peerLn != nil {
		s.peerLn.Close()
	}
	for _, ln := range s.adminLns {
		ln.Close()
	}
	s.node.Stop()
	s.tr.Stop()
	if err := s.store.Close(); err != nil {
		s.lg.Warn("failed to close log store", zap.Error(err))
	}
}
