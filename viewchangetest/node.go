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

package viewchangetest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cezarad/themiscyra/viewchange"
	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

type node struct {
	viewchange.Node
	id          uint64
	clusterSize int
	iface       iface
	stopc       chan struct{}
	pausec      chan bool

	// stable
	storage *viewchange.MemoryStorage

	mu   sync.Mutex // guards soft
	soft viewchange.SoftState
}

func startNode(id uint64, clusterSize int, iface iface) *node {
	st := viewchange.NewMemoryStorage()
	c := &viewchange.Config{
		ID:           id,
		ClusterSize:  clusterSize,
		ElectionTick: 10,
		Storage:      st,
	}
	vn := viewchange.StartNode(c)
	n := &node{
		Node:        vn,
		id:          id,
		clusterSize: clusterSize,
		storage:     st,
		iface:       iface,
		pausec:      make(chan bool),
	}
	n.start()
	return n
}

func (n *node) start() {
	n.stopc = make(chan struct{})
	ticker := time.NewTicker(5 * time.Millisecond).C

	go func() {
		for {
			select {
			case <-ticker:
				n.Tick()
			case rd := <-n.Ready():
				if rd.SoftState != nil {
					n.mu.Lock()
					n.soft = *rd.SoftState
					n.mu.Unlock()
				}
				// TODO: make send async, more like real world...
				for _, m := range rd.Messages {
					n.iface.send(m)
				}
				n.Advance()
			case m := <-n.iface.recv():
				go n.Step(context.TODO(), m)
			case <-n.stopc:
				n.Stop()
				log.Printf("viewchange.%d: stop", n.id)
				n.Node = nil
				close(n.stopc)
				return
			case p := <-n.pausec:
				recvms := make([]pb.Message, 0)
				for p {
					select {
					case m := <-n.iface.recv():
						recvms = append(recvms, m)
					case p = <-n.pausec:
					}
				}
				// step all pending messages
				for _, m := range recvms {
					n.Step(context.TODO(), m)
				}
			}
		}
	}()
}

// stop stops the node. stop a stopped node might panic.
// All in memory state of node is discarded.
// All stable MUST be unchanged.
func (n *node) stop() {
	n.iface.disconnect()
	n.stopc <- struct{}{}
	// wait for the shutdown
	<-n.stopc
}

// restart restarts the node. restart a started node
// blocks and might affect the future stop operation.
func (n *node) restart() {
	// wait for the shutdown
	<-n.stopc
	c := &viewchange.Config{
		ID:           n.id,
		ClusterSize:  n.clusterSize,
		ElectionTick: 10,
		Storage:      n.storage,
	}
	n.Node = viewchange.StartNode(c)
	n.start()
	n.iface.connect()
}

// pause pauses the node.
// The paused node buffers the received messages and replies
// all of them when it resumes.
func (n *node) pause() {
	n.pausec <- true
}

// resume resumes the paused node.
func (n *node) resume() {
	n.pausec <- false
}

// softState returns the last state the node published through Ready.
// It stays readable after the node stops.
func (n *node) softState() viewchange.SoftState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.soft
}
