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

package transport

import (
	"sync"

	"ppn/addr"

	"github.com/bfix/gospel/logger"
)

// AddrPair names the requested ("bind") and actually usable ("external")
// form of an address. Our downstream implementations never resolve a
// wildcard port to a concrete one, so the two are always equal here; the
// pair is kept distinct to match what a real production acceptor would
// report after an OS-assigned port becomes known.
type AddrPair struct {
	Bind     addr.Address
	External addr.Address
}

// FailedEvent reports an address that could not be turned into a live
// listener.
type FailedEvent struct {
	Bind addr.Address
	Err  error
}

// Acceptor is the high-level port a hub.Hub[AcceptorDownstream] adds/
// removes live listeners to/from. It fans every listener's accepted
// channels into one stream and reports start/stop/failure per address.
type Acceptor struct {
	mu  sync.Mutex
	los map[addr.Address]AcceptorDownstream

	startedCh  chan AddrPair
	stoppedCh  chan AddrPair
	failedCh   chan FailedEvent
	acceptedCh chan Channel
}

// NewAcceptor creates an empty high-level acceptor port.
func NewAcceptor() *Acceptor {
	return &Acceptor{
		los:        make(map[addr.Address]AcceptorDownstream),
		startedCh:  make(chan AddrPair, 8),
		stoppedCh:  make(chan AddrPair, 8),
		failedCh:   make(chan FailedEvent, 8),
		acceptedCh: make(chan Channel, 8),
	}
}

// Started reports addresses as they begin listening.
func (p *Acceptor) Started() <-chan AddrPair { return p.startedCh }

// Stopped reports addresses as they stop listening.
func (p *Acceptor) Stopped() <-chan AddrPair { return p.stoppedCh }

// Failed reports addresses that could not be bound.
func (p *Acceptor) Failed() <-chan FailedEvent { return p.failedCh }

// Accepted fans in every live listener's inbound channels.
func (p *Acceptor) Accepted() <-chan Channel { return p.acceptedCh }

// Add starts relaying lo's accepted channels and announces it as started.
func (p *Acceptor) Add(lo AcceptorDownstream) {
	p.mu.Lock()
	p.los[lo.Address()] = lo
	p.mu.Unlock()

	go func() {
		for ch := range lo.Accept() {
			p.acceptedCh <- ch
		}
	}()

	pair := AddrPair{Bind: lo.Address(), External: lo.Address()}
	logger.Printf(logger.INFO, "[transport] listening on %s", lo.Address())
	p.startedCh <- pair
}

// Del stops lo and announces it as stopped.
func (p *Acceptor) Del(lo AcceptorDownstream) {
	p.mu.Lock()
	delete(p.los, lo.Address())
	p.mu.Unlock()

	pair := AddrPair{Bind: lo.Address(), External: lo.Address()}
	if err := lo.Close(); err != nil {
		p.failedCh <- FailedEvent{Bind: lo.Address(), Err: err}
		return
	}
	p.stoppedCh <- pair
}
