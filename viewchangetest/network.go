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

// Package viewchangetest provides functional tests for the viewchange
// package using a simulated fair-loss network.
package viewchangetest

import (
	"math/rand"
	"sync"
	"time"

	pb "github.com/cezarad/themiscyra/viewchange/viewchangepb"
)

// a network interface
type iface interface {
	send(m pb.Message)
	recv() chan pb.Message
	disconnect()
	connect()
}

// a network
type clusterNetwork struct {
	mu           sync.Mutex
	rand         *rand.Rand
	disconnected map[uint64]bool
	dropmap      map[conn]float64
	delaymap     map[conn]delay
	recvQueues   map[uint64]chan pb.Message
}

type conn struct {
	from, to uint64
}

type delay struct {
	d    time.Duration
	rate float64
}

func newClusterNetwork(nodes ...uint64) *clusterNetwork {
	cn := &clusterNetwork{
		rand:         rand.New(rand.NewSource(1)),
		recvQueues:   make(map[uint64]chan pb.Message),
		dropmap:      make(map[conn]float64),
		delaymap:     make(map[conn]delay),
		disconnected: make(map[uint64]bool),
	}

	for _, n := range nodes {
		cn.recvQueues[n] = make(chan pb.Message, 1024)
	}
	return cn
}

func (cn *clusterNetwork) nodeNetwork(id uint64) iface {
	return &nodeNetwork{id: id, clusterNetwork: cn}
}

func (cn *clusterNetwork) send(m pb.Message) {
	cn.mu.Lock()
	to := cn.recvQueues[m.To]
	if cn.disconnected[m.To] {
		to = nil
	}
	drop := cn.dropmap[conn{m.From, m.To}]
	dl := cn.delaymap[conn{m.From, m.To}]
	dropped := drop != 0 && cn.rand.Float64() < drop
	var delayed time.Duration
	if dl.d != 0 && cn.rand.Float64() < dl.rate {
		delayed = time.Duration(cn.rand.Int63n(int64(dl.d)))
	}
	cn.mu.Unlock()

	if to == nil || dropped {
		return
	}
	// TODO: shall we delay without blocking the send call?
	if delayed != 0 {
		time.Sleep(delayed)
	}

	// use marshal/unmarshal to copy message to avoid data race.
	b, err := m.Marshal()
	if err != nil {
		panic(err)
	}

	var cm pb.Message
	if err := cm.Unmarshal(b); err != nil {
		panic(err)
	}

	select {
	case to <- cm:
	default:
		// drop messages when the receiver queue is full.
	}
}

func (cn *clusterNetwork) recvFrom(from uint64) chan pb.Message {
	cn.mu.Lock()
	fromc := cn.recvQueues[from]
	if cn.disconnected[from] {
		fromc = nil
	}
	cn.mu.Unlock()

	return fromc
}

func (cn *clusterNetwork) drop(from, to uint64, rate float64) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.dropmap[conn{from, to}] = rate
}

func (cn *clusterNetwork) delay(from, to uint64, d time.Duration, rate float64) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.delaymap[conn{from, to}] = delay{d, rate}
}

func (cn *clusterNetwork) disconnect(id uint64) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.disconnected[id] = true
}

func (cn *clusterNetwork) connect(id uint64) {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	cn.disconnected[id] = false
}

type nodeNetwork struct {
	id uint64
	*clusterNetwork
}

func (nt *nodeNetwork) connect() {
	nt.clusterNetwork.connect(nt.id)
}

func (nt *nodeNetwork) disconnect() {
	nt.clusterNetwork.disconnect(nt.id)
}

func (nt *nodeNetwork) send(m pb.Message) {
	nt.clusterNetwork.send(m)
}

func (nt *nodeNetwork) recv() chan pb.Message {
	return nt.recvFrom(nt.id)
}
