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
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cezarad/themiscyra/version"
	"github.com/cezarad/themiscyra/viewchange"
)

type fakeNode struct {
	st        viewchange.Status
	err       error
	suspected []uint64
}

func (n *fakeNode) Status() viewchange.Status { return n.st }

func (n *fakeNode) Suspect(ctx context.Context, view uint64) error {
	n.suspected = append(n.suspected, view)
	return n.err
}

func testAdminHandler(t *testing.T, n protocolNode, donec <-chan struct{}) http.Handler {
	t.Helper()
	if donec == nil {
		donec = make(chan struct{})
	}
	return newAdminHandler(zaptest.NewLogger(t), n, donec)
}

func TestAdminStatus(t *testing.T) {
	n := &fakeNode{st: viewchange.Status{ID: 1, View: 5, Primary: 0, Role: viewchange.RoleBackup}}
	h := testAdminHandler(t, n, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathStatus, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(5), got["view"])
	assert.Equal(t, "RoleBackup", got["role"])
}

func TestAdminStatusMethodNotAllowed(t *testing.T) {
	h := testAdminHandler(t, &fakeNode{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, pathStatus, nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminSuspect(t *testing.T) {
	n := &fakeNode{}
	h := testAdminHandler(t, n, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, pathSuspect+"?view=7", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"view":7}`, rec.Body.String())
	assert.Equal(t, []uint64{7}, n.suspected)
}

func TestAdminSuspectDefaultsToCurrentView(t *testing.T) {
	n := &fakeNode{st: viewchange.Status{View: 3}}
	h := testAdminHandler(t, n, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, pathSuspect, nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []uint64{3}, n.suspected)
}

func TestAdminSuspectBadView(t *testing.T) {
	n := &fakeNode{}
	h := testAdminHandler(t, n, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, pathSuspect+"?view=abc", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, n.suspected)
}

func TestAdminSuspectNodeError(t *testing.T) {
	n := &fakeNode{err: viewchange.ErrStopped}
	h := testAdminHandler(t, n, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, pathSuspect+"?view=1", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminSuspectMethodNotAllowed(t *testing.T) {
	h := testAdminHandler(t, &fakeNode{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathSuspect, nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminHealth(t *testing.T) {
	donec := make(chan struct{})
	h := testAdminHandler(t, &fakeNode{}, donec)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathHealth, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"health":true}`, rec.Body.String())

	// the event loop exiting flips the endpoint to unhealthy.
	close(donec)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathHealth, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminVersion(t *testing.T) {
	h := testAdminHandler(t, &fakeNode{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pathVersion, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var vs version.Versions
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vs))
	assert.Equal(t, version.Version, vs.Server)
	assert.Equal(t, version.Cluster(version.Version), vs.Cluster)
}

func TestAdminMetrics(t *testing.T) {
	h := testAdminHandler(t, &fakeNode{}, nil)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + pathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}
