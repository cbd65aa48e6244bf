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
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cezarad/themiscyra/pkg/types"
	"github.com/cezarad/themiscyra/version"
	"github.com/cezarad/themiscyra/viewchange"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

type errReader struct{}

func (errReader) Read(p []byte) (int, error) { return 0, errors.New("some error") }

func mustMessageBody(t *testing.T, m pb.Message) io.Reader {
	t.Helper()
	b, err := m.Marshal()
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestServeViewChangePrefix(t *testing.T) {
	good := pb.Message{Round: pb.RoundStartViewChange, View: 5, From: 1, To: 0}

	testCases := []struct {
		name      string
		method    string
		body      io.Reader
		replica   Replica
		clusterID string
		header    map[string]string

		wcode int
	}{
		{
			name:      "bad method",
			method:    "GET",
			body:      &bytes.Reader{},
			replica:   &fakeReplica{},
			clusterID: "1",
			wcode:     http.StatusMethodNotAllowed,
		},
		{
			name:      "bad method",
			method:    "PUT",
			body:      &bytes.Reader{},
			replica:   &fakeReplica{},
			clusterID: "1",
			wcode:     http.StatusMethodNotAllowed,
		},
		{
			name:      "bad method",
			method:    "DELETE",
			body:      &bytes.Reader{},
			replica:   &fakeReplica{},
			clusterID: "1",
			wcode:     http.StatusMethodNotAllowed,
		},
		{
			name:      "body error",
			method:    "POST",
			body:      errReader{},
			replica:   &fakeReplica{},
			clusterID: "1",
			wcode:     http.StatusBadRequest,
		},
		{
			name:      "unmarshal error",
			method:    "POST",
			body:      bytes.NewReader([]byte{0x33}),
			replica:   &fakeReplica{},
			clusterID: "1",
			wcode:     http.StatusBadRequest,
		},
		{
			name:      "wrong cluster ID",
			method:    "POST",
			body:      &bytes.Reader{},
			replica:   &fakeReplica{},
			clusterID: "2",
			wcode:     http.StatusPreconditionFailed,
		},
		{
			name:      "remote version too low",
			method:    "POST",
			body:      &bytes.Reader{},
			replica:   &fakeReplica{},
			clusterID: "1",
			header:    map[string]string{"X-Server-Version": "0.0.1"},
			wcode:     http.StatusPreconditionFailed,
		},
		{
			name:      "local version too low",
			method:    "POST",
			body:      &bytes.Reader{},
			replica:   &fakeReplica{},
			clusterID: "1",
			header:    map[string]string{"X-Min-Cluster-Version": "99.0.0"},
			wcode:     http.StatusPreconditionFailed,
		},
		{
			name:      "unknown sender",
			method:    "POST",
			body:      mustMessageBody(t, pb.Message{Round: pb.RoundStartViewChange, View: 5, From: 5, To: 0}),
			replica:   &fakeReplica{},
			clusterID: "1",
			wcode:     http.StatusForbidden,
		},
		{
			name:      "good message",
			method:    "POST",
			body:      mustMessageBody(t, good),
			replica:   &fakeReplica{recvc: make(chan pb.Message, 1)},
			clusterID: "1",
			wcode:     http.StatusNoContent,
		},
		{
			name:      "stale message is not a delivery failure",
			method:    "POST",
			body:      mustMessageBody(t, good),
			replica:   &fakeReplica{err: viewchange.ErrStaleMessage},
			clusterID: "1",
			wcode:     http.StatusNoContent,
		},
		{
			name:      "duplicate vote is not a delivery failure",
			method:    "POST",
			body:      mustMessageBody(t, good),
			replica:   &fakeReplica{err: viewchange.ErrDuplicateVote},
			clusterID: "1",
			wcode:     http.StatusNoContent,
		},
		{
			name:      "replica processing error",
			method:    "POST",
			body:      mustMessageBody(t, good),
			replica:   &fakeReplica{err: errors.New("blah")},
			clusterID: "1",
			wcode:     http.StatusInternalServerError,
		},
	}
	for i, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Transport{
				Logger: zaptest.NewLogger(t),
				ID:     types.ID(0),
				peers:  map[types.ID]Peer{types.ID(1): &fakePeer{}},
			}
			req := httptest.NewRequest(tt.method, "http://localhost:7420"+PeerPrefix, tt.body)
			req.Header.Set("X-Server-From", "1")
			req.Header.Set("X-Server-Version", version.Version)
			req.Header.Set("X-Min-Cluster-Version", version.MinClusterVersion)
			req.Header.Set("X-Themiscyra-Cluster-ID", tt.clusterID)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}

			rw := httptest.NewRecorder()
			h := newPipelineHandler(tr, tt.replica, types.ID(1))
			h.ServeHTTP(rw, req)
			assert.Equalf(t, tt.wcode, rw.Code, "#%d: got code %d, want %d", i, rw.Code, tt.wcode)
			if tt.wcode != http.StatusMethodNotAllowed {
				assert.Equal(t, "1", rw.Header().Get("X-Themiscyra-Cluster-ID"))
			}
		})
	}
}

// TestServeViewChangePrefixDelivery checks that an accepted message reaches
// the replica untouched.
func TestServeViewChangePrefixDelivery(t *testing.T) {
	m := pb.Message{
		Round: pb.RoundDoViewChange,
		View:  7,
		From:  1,
		To:    0,
		Entries: []pb.Entry{
			{OpNum: 1, Data: []byte("create")},
			{OpNum: 2, Data: []byte("delete")},
		},
	}
	r := &fakeReplica{recvc: make(chan pb.Message, 1)}
	tr := &Transport{
		Logger: zaptest.NewLogger(t),
		ID:     types.ID(0),
		peers:  map[types.ID]Peer{types.ID(1): &fakePeer{}},
	}
	h := newPipelineHandler(tr, r, types.ID(1))

	req := httptest.NewRequest("POST", "http://localhost:7420"+PeerPrefix, mustMessageBody(t, m))
	req.Header.Set("X-Server-From", "1")
	req.Header.Set("X-Themiscyra-Cluster-ID", "1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	require.Equal(t, http.StatusNoContent, rw.Code)
	select {
	case got := <-r.recvc:
		assert.Equal(t, m, got)
	default:
		t.Fatal("replica did not receive the message")
	}
}

// TestServeViewChangePrefixSelf checks that a message carrying the local
// replica ID as sender is accepted without a peer lookup. It covers the
// loopback delivery a node does when it counts its own vote.
func TestServeViewChangePrefixSelf(t *testing.T) {
	r := &fakeReplica{recvc: make(chan pb.Message, 1)}
	tr := &Transport{
		Logger: zaptest.NewLogger(t),
		ID:     types.ID(0),
		peers:  map[types.ID]Peer{},
	}
	h := newPipelineHandler(tr, r, types.ID(1))

	req := httptest.NewRequest("POST", "http://localhost:7420"+PeerPrefix,
		mustMessageBody(t, pb.Message{Round: pb.RoundStartViewChange, View: 3, From: 0, To: 0}))
	req.Header.Set("X-Server-From", "0")
	req.Header.Set("X-Themiscyra-Cluster-ID", "1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	assert.Equal(t, http.StatusNoContent, rw.Code)
}
