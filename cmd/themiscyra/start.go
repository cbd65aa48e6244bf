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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/pkg/flags"
	"github.com/cezarad/themiscyra/pkg/logutil"
	"github.com/cezarad/themiscyra/pkg/types"
)

var (
	startConfig     = newConfig()
	startConfigFile string
	adminURLsFlag   = flags.NewURLsValue(DefaultListenAdminURLs)
)

func newStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts a themiscyra replica",
		RunE:  startCommandFunc,
	}
	fs := cmd.Flags()
	fs.StringVar(&startConfigFile, "config-file", "", "path of a YAML configuration file; other flags are ignored when set")
	fs.Uint64Var(&startConfig.ID, "id", startConfig.ID, "index of this replica in --initial-cluster")
	fs.StringVar(&startConfig.InitialCluster, "initial-cluster", startConfig.InitialCluster, "comma separated peer URLs of the whole cluster, ordered by replica ID")
	fs.Uint64Var(&startConfig.ClusterID, "cluster-id", startConfig.ClusterID, "cluster identity every peer request is validated against")
	fs.StringVar(&startConfig.DataDir, "data-dir", startConfig.DataDir, "directory the durable log is kept under")
	fs.Var(adminURLsFlag, "listen-admin-urls", "comma separated URLs to serve /status, /metrics, /suspect, /health and /version on")
	fs.UintVar(&startConfig.TickMs, "tick-ms", startConfig.TickMs, "suspicion tick interval in milliseconds")
	fs.IntVar(&startConfig.ElectionTicks, "election-ticks", startConfig.ElectionTicks, "ticks without protocol progress before the primary is suspected")
	fs.BoolVar(&startConfig.SocketReusePort, "socket-reuse-port", false, "set SO_REUSEPORT on the peer listener")
	fs.StringVar(&startConfig.PeerSecurity.CertFile, "peer-cert-file", "", "path to the peer TLS cert file")
	fs.StringVar(&startConfig.PeerSecurity.KeyFile, "peer-key-file", "", "path to the peer TLS key file")
	fs.StringVar(&startConfig.PeerSecurity.TrustedCAFile, "peer-trusted-ca-file", "", "path to the peer TLS trusted CA file")
	return cmd
}

func startCommandFunc(cmd *cobra.Command, args []string) error {
	cfg := startConfig
	if startConfigFile != "" {
		fileCfg, err := configFromFile(startConfigFile)
		if err != nil {
			return err
		}
		cfg = fileCfg
	} else {
		cfg.ListenAdminURLs = types.URLs(*adminURLsFlag)
		if err := cfg.validate(); err != nil {
			return err
		}
	}

	lg, err := logutil.DefaultZapLoggerConfig.Build()
	if err != nil {
		return err
	}
	defer lg.Sync()

	s, err := startReplicaServer(lg, cfg)
	if err != nil {
		return err
	}
	defer s.Stop()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		lg.Info("received signal; shutting down", zap.String("signal", sig.String()))
		return nil
	case err := <-s.Err():
		lg.Error("replica failed", zap.Error(err))
		return err
	}
}
