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
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cezarad/themiscyra/version"
	"github.com/cezarad/themiscyra/viewchange"
)

const (
	pathMetrics = "/metrics"
	pathHealth  = "/health"
	pathStatus  = "/status"
	pathSuspect = "/suspect"
	pathVersion = "/version"
)

// protocolNode is the part of viewchange.Node the admin endpoints read
// and poke.
type protocolNode interface {
	Status() viewchange.Status
	Suspect(ctx context.Context, view uint64) error
}

// newAdminHandler serves the operator endpoints. donec reports the
// replica event loop exiting, which flips /health to unhealthy.
func newAdminHandler(lg *zap.Logger, n protocolNode, donec <-chan struct{}) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pathMetrics, promhttp.Handler())
	mux.Handle(pathHealth, newHealthHandler(func() health {
		select {
		case <-donec:
			return health{Health: false, Errors: []string{"replica event loop stopped"}}
		default:
			return health{Health: true}
		}
	}))
	mux.Handle(pathStatus, newStatusHandler(n))
	mux.Handle(pathSuspect, newSuspectHandler(lg, n))
	mux.HandleFunc(pathVersion, serveVersion)
	return mux
}

// health defines the replica health status.
type health struct {
	Health bool     `json:"health"`
	Errors []string `json:"errors,omitempty"`
}

// newHealthHandler handles '/health' requests.
func newHealthHandler(hfunc func() health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h := hfunc()
		d, _ := json.Marshal(h)
		if !h.Health {
			http.Error(w, string(d), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(d)
	}
}

// newStatusHandler handles '/status' requests with a JSON snapshot of
// the protocol state.
func newStatusHandler(n protocolNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		b, err := json.Marshal(n.Status())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	}
}

// newSuspectHandler handles 'POST /suspect?view=N': it declares the
// primary of view N suspected, defaulting to the current view. The
// suspicion is handed to the replica asynchronously; a stale view is a
// protocol no-op, so the endpoint always answers 202 once the hand-off
// succeeded.
func newSuspectHandler(lg *zap.Logger, n protocolNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		view := n.Status().View
		if v := r.URL.Query().Get("view"); v != "" {
			pv, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid view %q", v), http.StatusBadRequest)
				return
			}
			view = pv
		}
		if err := n.Suspect(r.Context(), view); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		lg.Info("suspicion triggered through admin endpoint", zap.Uint64("view", view))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"view":%d}`, view)
	}
}

// serveVersion handles '/version' requests.
func serveVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	vs := version.Versions{
		Server:  version.Version,
		Cluster: version.Cluster(version.Version),
	}
	b, err := json.Marshal(&vs)
	if err != nil {
		panic(fmt.Sprintf("cannot marshal versions to json (%v)", err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
