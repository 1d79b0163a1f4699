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
	"context"
	"fmt"

	"ppn/addr"
	"ppn/hub"
)

// Downstream is a single low-level instance bound to one address: either
// a listener (AcceptorDownstream) or a dialer (ConnectorDownstream). It
// satisfies hub.Endpoint so it can live inside a hub.Hub.
type Downstream interface {
	hub.Endpoint
	Address() addr.Address
	Close() error
}

// AcceptorDownstream listens for inbound channels on its bound address.
type AcceptorDownstream interface {
	Downstream
	Accept() <-chan Channel
}

// ConnectorDownstream dials outbound channels to a given address.
type ConnectorDownstream interface {
	Downstream
	Dial(ctx context.Context, a addr.Address) (Channel, error)
}

// baseDownstream implements the hub.Endpoint involved-changed bookkeeping
// shared by every concrete downstream kind.
type baseDownstream struct {
	addr addr.Address
	cb   func(bool)
}

func (b *baseDownstream) Address() addr.Address { return b.addr }

func (b *baseDownstream) InvolvedChanged(cb func(bool)) { b.cb = cb }

func (b *baseDownstream) notifyUninvolved() {
	if b.cb != nil {
		b.cb(false)
	}
}

// MakeAcceptorDownstream instantiates the concrete low-level listener for
// a's scheme (tcp4/tcp6/tcp/local/inproc).
func MakeAcceptorDownstream(a addr.Address) (AcceptorDownstream, error) {
	switch a.Scheme() {
	case addr.SchemeTCP4, addr.SchemeTCP6, addr.SchemeTCP:
		return newTCPAcceptor(a)
	case addr.SchemeLocal:
		return newLocalAcceptor(a)
	case addr.SchemeInproc:
		return newInprocAcceptor(a)
	default:
		return nil, fmt.Errorf("unknown address scheme: %s", a.Scheme())
	}
}

// MakeConnectorDownstream instantiates the concrete low-level dialer for
// a's scheme (tcp4/tcp6/tcp/local/inproc).
func MakeConnectorDownstream(a addr.Address) (ConnectorDownstream, error) {
	switch a.Scheme() {
	case addr.SchemeTCP4, addr.SchemeTCP6, addr.SchemeTCP:
		return newTCPConnector(a)
	case addr.SchemeLocal:
		return newLocalConnector(a)
	case addr.SchemeInproc:
		return newInprocConnector(a)
	default:
		return nil, fmt.Errorf("unknown address scheme: %s", a.Scheme())
	}
}
