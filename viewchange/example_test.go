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
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

func sendMessages(msgs []pb.Message) {}
func updateView(st *SoftState)       {}

func ExampleNode() {
	n := StartNode(&Config{
		ID:           0,
		ClusterSize:  3,
		ElectionTick: 10,
		Storage:      NewMemoryStorage(),
	})

	// ticks and inbound messages reach n from other goroutines

	for {
		rd := <-n.Ready()
		if rd.SoftState != nil {
			updateView(rd.SoftState)
		}
		sendMessages(rd.Messages)
		n.Advance()
	}
}
