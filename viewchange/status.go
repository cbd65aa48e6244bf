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

import (
	"fmt"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// Status contains information about this replica and its view of the
// cluster at one instant.
type Status struct {
	ID uint64

	View    uint64
	Round   pb.Round
	Role    RoleType
	Primary uint64

	LogLength int
	LastOpNum uint64

	StaleMessages   uint64
	DuplicateVotes  uint64
	ViewRegressions uint64
}

// getStatus gets a copy of the current replica status.
func getStatus(r *replica) Status {
	return Status{
		ID:              r.id,
		View:            r.view,
		Round:           r.round,
		Role:            r.role,
		Primary:         r.primary(),
		LogLength:       r.log.length(),
		LastOpNum:       r.log.lastOpNum(),
		StaleMessages:   r.staleMessages,
		DuplicateVotes:  r.duplicateVotes,
		ViewRegressions: r.viewRegressions,
	}
}

// MarshalJSON translates the replica status into JSON.
func (s Status) MarshalJSON() ([]byte, error) {
	j := fmt.Sprintf(`{"id":"%x","view":%d,"round":%q,"role":%q,"primary":"%x","logLength":%d,"lastOpNum":%d,"staleMessages":%d,"duplicateVotes":%d,"viewRegressions":%d}`,
		s.ID, s.View, s.Round, s.Role, s.Primary, s.LogLength, s.LastOpNum, s.StaleMessages, s.DuplicateVotes, s.ViewRegressions)
	return []byte(j), nil
}

func (s Status) String() string {
	b, err := s.MarshalJSON()
	if err != nil {
		getLogger().Panicf("unexpected error: %v", err)
	}
	return string(b)
}
