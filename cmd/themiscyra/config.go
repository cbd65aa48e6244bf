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
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/cezarad/themiscyra/pkg/transport"
	"github.com/cezarad/themiscyra/pkg/types"
)

const (
	// DefaultInitialCluster runs a three replica cluster on localhost.
	DefaultInitialCluster  = "http://127.0.0.1:7420,http://127.0.0.1:7421,http://127.0.0.1:7422"
	DefaultListenAdminURLs = "http://127.0.0.1:7480"
	DefaultDataDir         = "themiscyra-data"
	DefaultClusterID       = 0x6c7
	DefaultTickMs          = 100
	DefaultElectionTicks   = 10
)

// config holds the arguments for running a single replica. Fields are
// populated from flags or from a YAML file; json tags double as the
// YAML keys.
type config struct {
	// ID is the index of this replica within InitialCluster.
	ID uint64 `json:"id"`
	// InitialCluster is the comma separated peer URL of every replica,
	// ordered by replica ID. Its length fixes the cluster size n.
	InitialCluster string `json:"initial-cluster"`
	// ClusterID guards against cross-cluster message delivery; every
	// peer request carries it and mismatches are rejected.
	ClusterID uint64 `json:"cluster-id"`
	DataDir   string `json:"data-dir"`

	ListenAdminURLs types.URLs `json:"listen-admin-urls"`

	// TickMs is the suspicion tick interval. ElectionTicks is the
	// number of ticks without protocol progress before this replica
	// suspects the primary.
	TickMs        uint `json:"tick-ms"`
	ElectionTicks int  `json:"election-ticks"`

	// SocketReusePort sets SO_REUSEPORT on the peer listener so a
	// restarted replica can bind while old connections drain.
	SocketReusePort bool `json:"socket-reuse-port"`

	PeerSecurity securityConfig `json:"peer-transport-security"`

	// peers is InitialCluster parsed and validated, ordered by replica
	// ID. Set by validate.
	peers []url.URL
}

type securityConfig struct {
	CertFile      string `json:"cert-file"`
	KeyFile       string `json:"key-file"`
	TrustedCAFile string `json:"trusted-ca-file"`
}

// newConfig creates a config populated with default values.
func newConfig() *config {
	return &config{
		InitialCluster:  DefaultInitialCluster,
		ClusterID:       DefaultClusterID,
		DataDir:         DefaultDataDir,
		ListenAdminURLs: types.MustNewURLs([]string{DefaultListenAdminURLs}),
		TickMs:          DefaultTickMs,
		ElectionTicks:   DefaultElectionTicks,
	}
}

// configFromFile loads a YAML config file on top of the defaults and
// validates the result.
func configFromFile(path string) (*config, error) {
	cfg := newConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the configuration and derives the ordered peer list.
// InitialCluster is parsed URL by URL instead of through types.NewURLs
// because NewURLs sorts its result and the replica ID is positional.
func (cfg *config) validate() error {
	parts := strings.Split(cfg.InitialCluster, ",")
	peers := make([]url.URL, len(parts))
	for i, in := range parts {
		us, err := types.NewURLs([]string{strings.TrimSpace(in)})
		if err != nil {
			return fmt.Errorf("invalid initial-cluster URL %q: %w", in, err)
		}
		peers[i] = us[0]
	}
	if cfg.ID >= uint64(len(peers)) {
		return fmt.Errorf("id %d outside cluster of %d replicas", cfg.ID, len(peers))
	}
	if len(cfg.ListenAdminURLs) == 0 {
		return errors.New("at least one listen-admin-url is required")
	}
	if cfg.TickMs == 0 {
		return errors.New("tick-ms must be greater than 0")
	}
	if cfg.ElectionTicks <= 0 {
		return errors.New("election-ticks must be greater than 0")
	}
	if cfg.DataDir == "" {
		return errors.New("data-dir must not be empty")
	}
	cfg.peers = peers
	return nil
}

func (cfg *config) clusterSize() int { return len(cfg.peers) }

// selfPeerURL is the URL this replica binds its peer server to.
func (cfg *config) selfPeerURL() url.URL { return cfg.peers[cfg.ID] }

func (cfg *config) peerTLSInfo() transport.TLSInfo {
	return transport.TLSInfo{
		CertFile:      cfg.PeerSecurity.CertFile,
		KeyFile:       cfg.PeerSecurity.KeyFile,
		TrustedCAFile: cfg.PeerSecurity.TrustedCAFile,
	}
}
