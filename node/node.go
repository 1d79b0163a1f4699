// This file is part of ppn-node, a peer-to-peer node runtime in Golang.
// Copyright (C) 2019-2022 Bernd Fix  >Y<
//
// ppn-node is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// ppn-node is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package node is the node coordinator: it owns every other package in
// this tree (transport hubs, NAT traversal, the session manager, the
// replicated-database and feature-service surfaces, and the plug-in
// features configured for this run) and wires them together for one
// running node, through named hook methods and channel-driven event
// pumps.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ppn/addr"
	"ppn/config"
	"ppn/featuresvc"
	"ppn/hub"
	"ppn/keymat"
	"ppn/link"
	"ppn/natt"
	"ppn/netenum"
	"ppn/peer"
	"ppn/rdb"
	"ppn/session"
	"ppn/transport"
)

// ErrAlreadyStarted is returned by Start on a node that is already running.
var ErrAlreadyStarted = errors.New("node: already started")

// ErrNodeStopped is the error every join waiter still pending at Stop
// time is resolved with. It is the session package's sentinel so a
// worker's own Stop translation and the coordinator's waiter flush report
// the same failure.
var ErrNodeStopped = session.ErrNodeStopped

// Node is the coordinator: the single object a deployment constructs,
// configures, and starts/stops. Every field below is rebuilt fresh by
// Start, so a Stop followed by another Start reinitializes the whole
// runtime rather than resuming stale state.
type Node struct {
	mu      sync.Mutex
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	identity    *peer.Peer
	featureSvc  *featuresvc.Service
	rdbInstance *rdb.Instance
	sessions    *session.Manager

	connectorPort *transport.Connector
	acceptorPort  *transport.Acceptor
	connectors    *hub.Hub[transport.ConnectorDownstream]
	acceptors     *hub.Hub[transport.AcceptorDownstream]

	netEnum *netenum.Enumerator

	nattMgr      *natt.Manager
	nattMu       sync.Mutex
	nattMappings map[addr.Address]*natt.Mapping

	declMu   sync.Mutex
	declared map[addr.Address]int

	nodeFeatures []namedFeature
}

// New creates an unconfigured, unstarted node.
func New() *Node {
	return &Node{}
}

// ID returns the node's own peer id, valid only once Start has succeeded.
func (n *Node) ID() link.Id { return n.identity.ID() }

// FeatureService exposes the node's feature-facing API, e.g. for an
// embedder that wants to listen on featuresvc events directly.
func (n *Node) FeatureService() *featuresvc.Service { return n.featureSvc }

// Started reports whether the node is currently running.
func (n *Node) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// Start configures and runs the node from conf: instantiate features,
// derive the node's identity, build the session/rdb/transport machinery,
// start the connector and acceptor hubs, bring up NAT traversal and the
// net enumerator, then start the feature service and every node-role
// feature.
//
// The transport hubs bind their listeners/dialers synchronously inside
// Start (hub.Hub.Start populates every configured address immediately),
// so the node is marked started before the acceptors hub starts rather
// than after: the first acceptor "started" events the hub reports during
// its own Start call must already see a running node, or their NAT
// mapping attempts would be gated off.
func (n *Node) Start(ctx context.Context, conf *config.Tree) error {
	n.mu.Lock()
	if n.started {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.mu.Unlock()

	n.ctx, n.cancel = context.WithCancel(ctx)

	n.featureSvc = featuresvc.New()
	n.featureSvc.JoinFunc = n.join
	n.featureSvc.ConnectFunc = n.connect
	n.featureSvc.DeclareFunc = n.localAddressDeclare
	n.featureSvc.UndeclareFunc = n.localAddressUndeclare

	n.declared = make(map[addr.Address]int)
	n.nattMappings = make(map[addr.Address]*natt.Mapping)
	n.nodeFeatures = nil
	n.rdbInstance = nil

	if err := n.instantiateFeatures(conf.GetChild("features")); err != nil {
		n.cancel()
		return err
	}

	key, err := keymat.ParseKey(conf.GetChild("key"))
	if err != nil {
		n.cancel()
		return fmt.Errorf("node: unable to derive node key: %w", err)
	}
	n.identity = peer.New(key)
	local := link.NewLocal(n.identity.ID())

	if n.rdbInstance == nil {
		n.rdbInstance = rdb.NewInstance(nil)
	}

	n.connectorPort = transport.NewConnector()
	n.acceptorPort = transport.NewAcceptor()
	n.sessions = session.NewManager(n.connectorPort, local,
		n.featureSvc.NewCSession, n.featureSvc.NewASession, n.rdbInstance.AddRemote)

	n.netEnum = netenum.New(0)
	neProvider := func() *netenum.Enumerator { return n.netEnum }

	n.connectors = hub.New[transport.ConnectorDownstream]()
	n.acceptors = hub.New[transport.AcceptorDownstream]()

	n.wg.Add(2)
	go n.pumpConnectorHub()
	go n.pumpAcceptorEvents()

	if err := n.connectors.Start(n.ctx, n.connectorPort, connectorAddressFixer,
		transport.MakeConnectorDownstream, conf.GetChild("connect"), neProvider); err != nil {
		n.cancel()
		return fmt.Errorf("node: unable to start connectors: %w", err)
	}

	n.nattMgr = natt.NewManager("ppn-node")

	n.mu.Lock()
	n.started = true
	n.mu.Unlock()

	if err := n.acceptors.Start(n.ctx, n.acceptorPort, acceptorAddressFixer,
		transport.MakeAcceptorDownstream, conf.GetChild("accept"), neProvider); err != nil {
		n.mu.Lock()
		n.started = false
		n.mu.Unlock()
		n.cancel()
		return fmt.Errorf("node: unable to start acceptors: %w", err)
	}

	n.netEnum.Start(n.ctx)
	n.featureSvc.Start()

	for _, f := range n.nodeFeatures {
		if err := f.feat.Start(n.ctx, n.featureSvc); err != nil {
			return fmt.Errorf("node: unable to initialize feature %q: %w", f.name, err)
		}
	}

	return nil
}

// Stop tears the node down: clear the started flag, tear down every NAT
// mapping, clear in-progress connections and join
// waiters, stop the feature service and every node-role feature, stop the
// acceptor/connector hubs and net enumerator, then cancel the node's
// context and wait for every pump/worker goroutine to exit. Calling Stop
// on a node that is not running is a no-op.
func (n *Node) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	n.mu.Unlock()

	n.nattMu.Lock()
	mappings := n.nattMappings
	n.nattMappings = make(map[addr.Address]*natt.Mapping)
	n.nattMu.Unlock()
	for _, m := range mappings {
		m.Stop()
	}
	if n.nattMgr != nil {
		n.nattMgr.Close()
	}

	n.sessions.Shutdown(ErrNodeStopped)
	n.featureSvc.Stop()

	for _, f := range n.nodeFeatures {
		f.feat.Stop()
	}

	n.acceptors.Stop()
	n.connectors.Stop()
	n.netEnum.Stop()

	n.cancel()
	n.wg.Wait()
}
