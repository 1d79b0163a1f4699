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

package node

// pumpConnectorHub fans the connector hub's low-level add/delete events
// out to the feature service as connectorStarted/connectorStopped. It
// also relays net enumerator scan failures as feature-service failures.
func (n *Node) pumpConnectorHub() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case a, ok := <-n.connectors.LoAdded():
			if !ok {
				return
			}
			n.featureSvc.ConnectorStarted(a)
		case a, ok := <-n.connectors.LoDeleted():
			if !ok {
				return
			}
			n.featureSvc.ConnectorStopped(a)
		case err, ok := <-n.netEnum.Failed():
			if !ok {
				return
			}
			n.featureSvc.Failed(err)
		}
	}
}

// pumpAcceptorEvents fans the acceptor hub's and acceptor port's events
// out to the feature service, NAT traversal, and the session manager.
// The hub-level LoAdded/LoDeleted events are drained but otherwise
// unused here; NAT-mapping start/stop is driven exclusively off the
// acceptor port's own started/stopped signal, the same source already
// used for declare/undeclare and AcceptorStarted/AcceptorStopped, so
// both concerns observe one consistent event ordering for a given
// address: a freshly bound address is declared and offered a NAT
// mapping; a torn-down address is undeclared and has its mapping
// stopped; every accepted channel spawns an inbound session worker.
func (n *Node) pumpAcceptorEvents() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return

		case _, ok := <-n.acceptors.LoAdded():
			if !ok {
				return
			}

		case _, ok := <-n.acceptors.LoDeleted():
			if !ok {
				return
			}

		case pair, ok := <-n.acceptorPort.Started():
			if !ok {
				return
			}
			n.localAddressDeclare(pair.External)
			n.startNattMapping(pair.Bind)
			n.featureSvc.AcceptorStarted(pair.Bind, pair.External)

		case pair, ok := <-n.acceptorPort.Stopped():
			if !ok {
				return
			}
			n.localAddressUndeclare(pair.External)
			n.stopNattMapping(pair.Bind)
			n.featureSvc.AcceptorStopped(pair.Bind, pair.External)

		case fe, ok := <-n.acceptorPort.Failed():
			if !ok {
				return
			}
			n.featureSvc.AcceptorFailed(fe.Bind, fe.Bind, fe.Err)

		case ch, ok := <-n.acceptorPort.Accepted():
			if !ok {
				return
			}
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.sessions.ASessionWorker(n.ctx, ch)
			}()
		}
	}
}
