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
	"context"
	"errors"
	"io"
	"net/http"
	"path"

	"go.uber.org/zap"

	pioutil "github.com/cezarad/themiscyra/pkg/ioutil"
	"github.com/cezarad/themiscyra/pkg/types"
	"github.com/cezarad/themiscyra/viewchange"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

const (
	// connReadLimitByte limits the number of bytes a single read can
	// read out. 64KB keeps single reads well under the peer read
	// timeout; DoViewChange and StartView messages that carry a whole
	// replica log inline are read out in several buffered reads.
	connReadLimitByte = 64 * 1024
)

var (
	PeerPrefix    = "/viewchange"
	ProbingPrefix = path.Join(PeerPrefix, "probing")
)

type pipelineHandler struct {
	lg      *zap.Logger
	localID types.ID
	tr      *Transport
	r       Replica
	cid     types.ID
}

// newPipelineHandler returns a handler for handling view-change
// messages from pipeline for view-change transport layer.
//
// The handler reads out the message from request body,
// and forwards it to the given replica state machine for processing.
func newPipelineHandler(t *Transport, r Replica, cid types.ID) http.Handler {
	h := &pipelineHandler{
		lg:      t.Logger,
		localID: t.ID,
		tr:      t,
		r:       r,
		cid:     cid,
	}
	if h.lg == nil {
		h.lg = zap.NewNop()
	}
	return h
}

func (h *pipelineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("X-Themiscyra-Cluster-ID", h.cid.String())

	if err := checkClusterCompatibilityFromHeader(h.lg, h.localID, r.Header, h.cid); err != nil {
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
		return
	}

	limitedr := pioutil.NewLimitedBufferReader(r.Body, connReadLimitByte)
	b, err := io.ReadAll(limitedr)
	if err != nil {
		h.lg.Warn(
			"failed to read view-change message",
			zap.String("local-replica-id", h.localID.String()),
			zap.Error(err),
		)
		http.Error(w, "error reading view-change message", http.StatusBadRequest)
		recvFailures.WithLabelValues(r.RemoteAddr).Inc()
		return
	}

	var m pb.Message
	if err := m.Unmarshal(b); err != nil {
		h.lg.Warn(
			"failed to unmarshal view-change message",
			zap.String("local-replica-id", h.localID.String()),
			zap.Error(err),
		)
		http.Error(w, "error unmarshaling view-change message", http.StatusBadRequest)
		recvFailures.WithLabelValues(r.RemoteAddr).Inc()
		return
	}

	if from := types.ID(m.From); from != h.localID && h.tr.Get(from) == nil {
		h.lg.Warn(
			"rejected view-change message from unknown sender",
			zap.String("local-replica-id", h.localID.String()),
			zap.String("sender-id", from.String()),
		)
		http.Error(w, errPeerUnknown.Error(), http.StatusForbidden)
		return
	}

	receivedBytes.WithLabelValues(types.ID(m.From).String()).Add(float64(len(b)))

	if err := h.r.Process(context.TODO(), m); err != nil {
		switch {
		// Stale and duplicate classifications mean the message arrived
		// and was accounted for; they are not delivery failures.
		case errors.Is(err, viewchange.ErrStaleMessage):
		case errors.Is(err, viewchange.ErrDuplicateVote):
		default:
			h.lg.Warn(
				"failed to process view-change message",
				zap.String("local-replica-id", h.localID.String()),
				zap.Error(err),
			)
			http.Error(w, "error processing view-change message", http.StatusInternalServerError)
			recvFailures.WithLabelValues(r.RemoteAddr).Inc()
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// checkClusterCompatibilityFromHeader checks the cluster compatibility of
// the local replica from the given header.
// It checks whether the version of local replica is compatible with
// the versions in the header, and whether the cluster ID of local replica
// matches the one in the header.
func checkClusterCompatibilityFromHeader(lg *zap.Logger, localID types.ID, header http.Header, cid types.ID) error {
	remoteName := header.Get("X-Server-From")

	remoteServer := serverVersion(header)
	remoteVs := ""
	if remoteServer != nil {
		remoteVs = remoteServer.String()
	}

	remoteMinClusterVer := minClusterVersion(header)
	remoteMinClusterVs := ""
	if remoteMinClusterVer != nil {
		remoteMinClusterVs = remoteMinClusterVer.String()
	}

	localServer, localMinCluster, err := checkVersionCompatibility(remoteName, remoteServer, remoteMinClusterVer)
	localVs := ""
	if localServer != nil {
		localVs = localServer.String()
	}
	localMinClusterVs := ""
	if localMinCluster != nil {
		localMinClusterVs = localMinCluster.String()
	}

	if err != nil {
		lg.Warn(
			"failed to check version compatibility",
			zap.String("local-replica-id", localID.String()),
			zap.String("local-replica-cluster-id", cid.String()),
			zap.String("local-replica-server-version", localVs),
			zap.String("local-replica-server-minimum-cluster-version", localMinClusterVs),
			zap.String("remote-peer-server-name", remoteName),
			zap.String("remote-peer-server-version", remoteVs),
			zap.String("remote-peer-server-minimum-cluster-version", remoteMinClusterVs),
			zap.Error(err),
		)
		return errIncompatibleVersion
	}
	if gcid := header.Get("X-Themiscyra-Cluster-ID"); gcid != cid.String() {
		lg.Warn(
			"request cluster ID mismatch",
			zap.String("local-replica-id", localID.String()),
			zap.String("local-replica-cluster-id", cid.String()),
			zap.String("remote-peer-server-name", remoteName),
			zap.String("remote-peer-server-version", remoteVs),
			zap.String("remote-peer-server-minimum-cluster-version", remoteMinClusterVs),
			zap.String("remote-peer-cluster-id", gcid),
		)
		return errClusterIDMismatch
	}
	return nil
}
