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
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cezarad/themiscyra/pkg/types"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

func mustNewURLPicker(t *testing.T, us []string) *urlPicker {
	urls, err := types.NewURLs(us)
	require.NoError(t, err)
	return newURLPicker(urls)
}

type fakeReplica struct {
	recvc chan pb.Message
	err   error
}

func (r *fakeReplica) Process(ctx context.Context, m pb.Message) error {
	select {
	case r.recvc <- m:
	default:
	}
	return r.err
}

type fakePeer struct {
	msgs     []pb.Message
	peerURLs types.URLs
	paused   bool
}

func (pr *fakePeer) send(m pb.Message)      { pr.msgs = append(pr.msgs, m) }
func (pr *fakePeer) update(urls types.URLs) { pr.peerURLs = urls }
func (pr *fakePeer) activeSince() time.Time { return time.Time{} }
func (pr *fakePeer) stop()                  {}
func (pr *fakePeer) Pause()                 { pr.paused = true }
func (pr *fakePeer) Resume()                { pr.paused = false }

type respRoundTripper struct {
	mu   sync.Mutex
	reqc chan *http.Request

	code   int
	header http.Header
	err    error
}

func newRespRoundTripper(code int, err error) *respRoundTripper {
	return &respRoundTripper{code: code, err: err, reqc: make(chan *http.Request, 1024)}
}

func (t *respRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case t.reqc <- req:
	default:
	}
	return &http.Response{StatusCode: t.code, Header: t.header, Body: &nopReadCloser{}}, t.err
}

type roundTripperRecorder struct {
	reqc chan *http.Request
}

func newRoundTripperRecorder() *roundTripperRecorder {
	return &roundTripperRecorder{reqc: make(chan *http.Request, 1024)}
}

func (t *roundTripperRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case t.reqc <- req:
	default:
	}
	return &http.Response{StatusCode: http.StatusNoContent, Body: &nopReadCloser{}}, nil
}

type roundTripperBlocker struct {
	unblockc chan struct{}
}

func newRoundTripperBlocker() *roundTripperBlocker {
	return &roundTripperBlocker{unblockc: make(chan struct{})}
}

func (t *roundTripperBlocker) unblock() { close(t.unblockc) }

func (t *roundTripperBlocker) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.unblockc:
		return &http.Response{StatusCode: http.StatusNoContent, Body: &nopReadCloser{}}, nil
	case <-req.Context().Done():
		return nil, errors.New("request canceled")
	}
}

type nopReadCloser struct{}

func (n *nopReadCloser) Read(p []byte) (int, error) { return 0, io.EOF }
func (n *nopReadCloser) Close() error               { return nil }

// waitRequests reads n requests off the channel, failing the test if they
// do not all arrive within a second each.
func waitRequests(t *testing.T, reqc <-chan *http.Request, n int) []*http.Request {
	t.Helper()
	reqs := make([]*http.Request, 0, n)
	for i := 0; i < n; i++ {
		select {
		case req := <-reqc:
			reqs = append(reqs, req)
		case <-time.After(time.Second):
			t.Fatalf("#%d: waiting for request timed out", i)
		}
	}
	return reqs
}

func TestCheckPostResponse(t *testing.T) {
	lg := zaptest.NewLogger(t)
	u, err := url.Parse("http://10.0.0.1:7420/viewchange")
	require.NoError(t, err)
	req := &http.Request{URL: u, Header: make(http.Header)}
	tests := []struct {
		code int
		body string
		werr error
	}{
		{http.StatusNoContent, "", nil},
		{http.StatusForbidden, "", errPeerUnknown},
		{http.StatusPreconditionFailed, errClusterIDMismatch.Error() + "\n", errClusterIDMismatch},
		{http.StatusPreconditionFailed, errIncompatibleVersion.Error() + "\n", errIncompatibleVersion},
	}
	for i, tt := range tests {
		resp := &http.Response{StatusCode: tt.code, Header: make(http.Header)}
		err := checkPostResponse(lg, resp, []byte(tt.body), req, types.ID(1))
		if err != tt.werr {
			t.Errorf("#%d: err = %v, want %v", i, err, tt.werr)
		}
	}

	resp := &http.Response{StatusCode: http.StatusInternalServerError, Header: make(http.Header)}
	if err := checkPostResponse(lg, resp, nil, req, types.ID(1)); err == nil {
		t.Errorf("unexpected status accepted")
	}
}

func TestCompareMajorMinorVersion(t *testing.T) {
	tests := []struct {
		va, vb *semver.Version
		w      int
	}{
		// equal to
		{
			semver.Must(semver.NewVersion("0.1.1")),
			semver.Must(semver.NewVersion("0.1.9")),
			0,
		},
		// smaller than
		{
			semver.Must(semver.NewVersion("0.1.0")),
			semver.Must(semver.NewVersion("0.2.0")),
			-1,
		},
		// bigger than
		{
			semver.Must(semver.NewVersion("0.2.0-alpha")),
			semver.Must(semver.NewVersion("0.1.0")),
			1,
		},
	}
	for i, tt := range tests {
		if g := compareMajorMinorVersion(tt.va, tt.vb); g != tt.w {
			t.Errorf("#%d: compare = %d, want %d", i, g, tt.w)
		}
	}
}

func TestServerVersionDefaults(t *testing.T) {
	h := make(http.Header)
	assert.Equal(t, "0.1.0", serverVersion(h).String())
	assert.Equal(t, "0.1.0", minClusterVersion(h).String())

	h.Set("X-Server-Version", "0.9.3")
	assert.Equal(t, "0.9.3", serverVersion(h).String())
}

func TestURLPickerPick(t *testing.T) {
	picker := mustNewURLPicker(t, []string{"http://127.0.0.1:2380", "http://127.0.0.2:2380"})

	u := picker.pick()
	// stable until told otherwise
	assert.Equal(t, u, picker.pick())

	picker.unreachable(u)
	next := picker.pick()
	assert.NotEqual(t, u, next)

	// unreachable report for a url that is not picked is a no-op
	picker.unreachable(u)
	assert.Equal(t, next, picker.pick())
}

func TestURLPickerUpdate(t *testing.T) {
	picker := mustNewURLPicker(t, []string{"http://127.0.0.1:2380", "http://127.0.0.2:2380"})
	picker.unreachable(picker.pick())

	picker.update(types.MustNewURLs([]string{"http://10.0.0.1:2380"}))
	picked := picker.pick()
	assert.Equal(t, "http://10.0.0.1:2380", picked.String())
}
