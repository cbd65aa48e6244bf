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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/pkg/types"
	"github.com/cezarad/themiscyra/version"
)

var (
	errClusterIDMismatch   = errors.New("cluster ID mismatch")
	errPeerUnknown         = errors.New("peer is not in the cluster")
	errIncompatibleVersion = errors.New("incompatible version")
)

// createPostRequest creates a HTTP POST request that sends view-change
// message.
func createPostRequest(lg *zap.Logger, u url.URL, path string, body io.Reader, ct string, from, cid types.ID) *http.Request {
	uu := u
	uu.Path = path
	req, err := http.NewRequest("POST", uu.String(), body)
	if err != nil {
		lg.Panic("unexpected new request error", zap.Error(err))
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Server-From", from.String())
	req.Header.Set("X-Server-Version", version.Version)
	req.Header.Set("X-Min-Cluster-Version", version.MinClusterVersion)
	req.Header.Set("X-Themiscyra-Cluster-ID", cid.String())
	return req
}

// checkPostResponse checks the response of the HTTP POST request that sends
// view-change message.
func checkPostResponse(lg *zap.Logger, resp *http.Response, body []byte, req *http.Request, to types.ID) error {
	switch resp.StatusCode {
	case http.StatusPreconditionFailed:
		switch strings.TrimSuffix(string(body), "\n") {
		case errIncompatibleVersion.Error():
			lg.Error(
				"request sent was ignored by peer",
				zap.String("remote-peer-id", to.String()),
			)
			return errIncompatibleVersion

		case errClusterIDMismatch.Error():
			lg.Error(
				"request sent was ignored due to cluster ID mismatch",
				zap.String("remote-peer-id", to.String()),
				zap.String("remote-peer-cluster-id", resp.Header.Get("X-Themiscyra-Cluster-ID")),
				zap.String("local-replica-cluster-id", req.Header.Get("X-Themiscyra-Cluster-ID")),
			)
			return errClusterIDMismatch

		default:
			return fmt.Errorf("unhandled error %q when precondition failed", string(body))
		}

	case http.StatusForbidden:
		return errPeerUnknown

	case http.StatusNoContent:
		return nil

	default:
		return fmt.Errorf("unexpected http status %s while posting to %q", http.StatusText(resp.StatusCode), req.URL.String())
	}
}

// reportCriticalError reports the given error through sending it into
// the given error channel.
// If the error channel is filled up when sending error, it drops the error
// because the fact that error has happened is reported, which is
// good enough.
func reportCriticalError(err error, errc chan<- error) {
	select {
	case errc <- err:
	default:
	}
}

// compareMajorMinorVersion returns an integer comparing two versions based on
// their major and minor version. The result will be 0 if a==b, -1 if a < b,
// and 1 if a > b.
func compareMajorMinorVersion(a, b *semver.Version) int {
	na := &semver.Version{Major: a.Major, Minor: a.Minor}
	nb := &semver.Version{Major: b.Major, Minor: b.Minor}
	switch {
	case na.LessThan(*nb):
		return -1
	case nb.LessThan(*na):
		return 1
	default:
		return 0
	}
}

// serverVersion returns the server version from the given header.
func serverVersion(h http.Header) *semver.Version {
	verStr := h.Get("X-Server-Version")
	// backward compatibility with replicas that do not set the header
	if verStr == "" {
		verStr = version.MinClusterVersion
	}
	return semver.Must(semver.NewVersion(verStr))
}

// minClusterVersion returns the min cluster version from the given header.
func minClusterVersion(h http.Header) *semver.Version {
	verStr := h.Get("X-Min-Cluster-Version")
	if verStr == "" {
		verStr = version.MinClusterVersion
	}
	return semver.Must(semver.NewVersion(verStr))
}

// checkVersionCompatibility checks whether the given version is compatible
// with the local version.
func checkVersionCompatibility(name string, server, minCluster *semver.Version) (
	localServer *semver.Version,
	localMinCluster *semver.Version,
	err error,
) {
	localServer = semver.Must(semver.NewVersion(version.Version))
	localMinCluster = semver.Must(semver.NewVersion(version.MinClusterVersion))
	if compareMajorMinorVersion(server, localMinCluster) == -1 {
		return localServer, localMinCluster, fmt.Errorf("remote version is too low: remote[%s]=%s, local=%s", name, server, localServer)
	}
	if compareMajorMinorVersion(minCluster, localServer) == 1 {
		return localServer, localMinCluster, fmt.Errorf("local version is too low: remote[%s]=%s, local=%s", name, server, localServer)
	}
	return localServer, localMinCluster, nil
}
