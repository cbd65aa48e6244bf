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

// Package version declares the release version and the oldest peer
// version this binary keeps wire compatibility with.
package version

import (
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
)

var (
	// MinClusterVersion is the min cluster version this binary is
	// compatible with.
	MinClusterVersion = "0.1.0"
	Version           = "0.1.0"

	// GitSHA is set during build with
	// -ldflags "-X github.com/cezarad/themiscyra/version.GitSHA=...".
	GitSHA = "Not provided"
)

// Versions is the JSON body served on the version endpoint.
type Versions struct {
	Server  string `json:"themiscyraserver"`
	Cluster string `json:"themiscyracluster"`
}

// Cluster only keeps the major.minor.
func Cluster(v string) string {
	vs := strings.Split(v, ".")
	if len(vs) <= 2 {
		return v
	}
	return fmt.Sprintf("%s.%s", vs[0], vs[1])
}

// Semver returns the parsed release version, or nil if Version does
// not parse.
func Semver() *semver.Version {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return nil
	}
	return v
}
