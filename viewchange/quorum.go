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

package viewchange

// faultTolerance returns f, the maximum number of simultaneous crash
// faults a cluster of n replicas tolerates.
func faultTolerance(n int) int { return (n - 1) / 2 }

// hasQuorum reports whether count messages from distinct replicas form a
// majority in a cluster of n, i.e. count > f. Any two such majorities
// intersect in at least one replica, which is what makes the log carried
// across views safe.
func hasQuorum(count, n int) bool { return count > faultTolerance(n) }

// primaryFor maps a view to the replica leading it. Every replica
// evaluates the same pure mapping, so the cluster agrees on the candidate
// for any view without coordination.
func primaryFor(view uint64, n int) uint64 { return view % uint64(n) }
