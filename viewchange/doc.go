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

/*
Package viewchange implements the view-change subprotocol of the
viewstamped replication algorithm.

A cluster of n replicas is organized into numbered views. Each view has
one primary, chosen by identity arithmetic (view mod n), and the view
number only ever increases. When the primary of the current view is
suspected to have failed, the remaining replicas run a view change to
agree on a successor and on the operation log it starts from. The change
runs in three rounds:

  1. StartViewChange: a replica that suspects the primary broadcasts its
     willingness to abandon the view. A quorum of more than floor((n-1)/2)
     such votes commits the cluster to the change.
  2. DoViewChange: each backup that saw the quorum sends its local log to
     the candidate primary of the view.
  3. StartView: the candidate collects a quorum of logs, adopts the most
     advanced one, and announces it. Every replica then moves to the next
     view.

Because any two quorums intersect, the adopted log is at least as
advanced as any log a majority ever agreed on, so acknowledged operations
survive the change.

The primary object in this package is a Node. Start one with a Config
describing the local replica:

	storage := viewchange.NewMemoryStorage()
	c := &viewchange.Config{
		ID:           0x01,
		ClusterSize:  3,
		ElectionTick: 10,
		Storage:      storage,
	}
	n := viewchange.StartNode(c)

Now that you are holding onto a Node you have a few responsibilities:

First, you must push messages that you receive from other replicas into
the Node with n.Step():

	func recvMessage(ctx context.Context, m viewchangepb.Message) {
		n.Step(ctx, m)
	}

Second, you must send pending messages to their destinations by reading
the channel returned by n.Ready(). Delivery is fire-and-forget: the
network may lose, reorder or duplicate messages and the protocol stays
correct, so the transport must never block or retry on the Node's
behalf. Call n.Advance() once a Ready has been handled.

And finally you must service timeouts with Tick(). Time inside the
package is an abstract tick; calling Tick() on a steady wall-clock
interval drives the suspicion timeout that starts (and, when a change
stalls on a dead candidate, restarts) view changes. A failure detector
of your own can also report suspicions directly through n.Suspect().

The total state machine handling loop will look something like this:

	for {
		select {
		case <-ticker.C:
			n.Tick()
		case rd := <-n.Ready():
			if rd.SoftState != nil {
				process(rd.SoftState)
			}
			send(rd.Messages)
			n.Advance()
		case <-done:
			return
		}
	}

Messages carrying a view lower than the replica's are discarded, and a
message carrying a higher view drags the replica into that view's change
before it is processed. Within a view each replica votes at most once
per round; retransmissions overwrite the recorded vote instead of being
counted again. Log adoption goes through the Storage interface and is
durable before the replica announces or acknowledges the outcome.

This package implements the view change only. Normal-operation request
processing, the recovery of crashed replicas and cluster membership
changes are the application's concern.
*/
package viewchange
