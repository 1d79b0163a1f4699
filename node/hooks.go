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

import (
	"context"

	"ppn/addr"
	"ppn/link"
	"ppn/natt"

	"github.com/bfix/gospel/logger"
)

// join implements the feature service's JoinFunc hook: register interest
// in the connection's outcome *before* spawning the worker that will
// resolve it, then spawn the worker and wait. Registering first closes
// the race a combined register-and-spawn call would leave open between a
// caller checking "is a connection to a already in progress" and a worker
// finishing before the caller had a chance to start waiting on it.
func (n *Node) join(ctx context.Context, id link.Id, a addr.Address) (link.Remote, error) {
	waiter := n.sessions.RegisterWaiter(a)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sessions.CSessionWorker(n.ctx, id, a)
	}()

	select {
	case r := <-waiter:
		return r.Remote, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect implements the feature service's ConnectFunc hook: a
// fire-and-forget connection attempt with no caller waiting on its
// outcome.
func (n *Node) connect(id link.Id, a addr.Address) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.sessions.CSessionWorker(n.ctx, id, a)
	}()
}

// localAddressDeclare records one more reason a is externally reachable:
// only the transition from zero to one reference actually notifies the
// feature service, so an address
// declared by both a listener and an established NAT mapping is reported
// once and stays declared until every reference is gone.
func (n *Node) localAddressDeclare(a addr.Address) {
	n.declMu.Lock()
	n.declared[a]++
	first := n.declared[a] == 1
	n.declMu.Unlock()

	if first {
		n.featureSvc.NoteDeclared(a)
	}
}

// localAddressUndeclare drops one reference to a; only the transition to
// zero references notifies the feature service.
func (n *Node) localAddressUndeclare(a addr.Address) {
	n.declMu.Lock()
	count, ok := n.declared[a]
	if !ok {
		n.declMu.Unlock()
		return
	}
	count--
	last := count <= 0
	if last {
		delete(n.declared, a)
	} else {
		n.declared[a] = count
	}
	n.declMu.Unlock()

	if last {
		n.featureSvc.NoteUndeclared(a)
	}
}

// isTCPScheme reports whether a is a scheme NAT traversal makes sense
// for: local/inproc endpoints have no router to map a port through.
func isTCPScheme(scheme string) bool {
	switch scheme {
	case addr.SchemeTCP, addr.SchemeTCP4, addr.SchemeTCP6:
		return true
	default:
		return false
	}
}

// startNattMapping attempts a UPnP/NAT-PMP mapping for a freshly bound
// local listen address. Only attempted for TCP addresses, and only while
// the node is running: a mapping started after Stop has begun would
// outlive the bookkeeping that is supposed to tear it down.
func (n *Node) startNattMapping(a addr.Address) {
	if !isTCPScheme(a.Scheme()) {
		return
	}
	if !n.Started() || n.nattMgr == nil {
		return
	}

	n.nattMu.Lock()
	if _, exists := n.nattMappings[a]; exists {
		n.nattMu.Unlock()
		return
	}
	mapping := natt.NewMapping(n.nattMgr, a, natt.ProtocolTCP, n.localAddressDeclare, n.localAddressUndeclare)
	n.nattMappings[a] = mapping
	n.nattMu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := mapping.Start(); err != nil {
			logger.Printf(logger.INFO, "[node] no NAT mapping for %s: %s", a, err.Error())
		}
	}()
}

// stopNattMapping tears down a's NAT mapping (if any) once its
// underlying listener goes away.
func (n *Node) stopNattMapping(a addr.Address) {
	n.nattMu.Lock()
	m, ok := n.nattMappings[a]
	delete(n.nattMappings, a)
	n.nattMu.Unlock()

	if ok {
		m.Stop()
	}
}
