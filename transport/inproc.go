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
	"errors"
	"net"
	"sync"

	"ppn/addr"
)

// inprocRegistry connects same-process acceptors and connectors by name:
// same process, no socket at all.
var inprocRegistry = struct {
	mu        sync.Mutex
	listeners map[string]chan net.Conn
}{listeners: make(map[string]chan net.Conn)}

// ErrInprocNoListener is returned when dialing a name with no registered
// acceptor.
var ErrInprocNoListener = errors.New("no inproc listener registered for that name")

type inprocAcceptor struct {
	baseDownstream
	name     string
	conns    chan net.Conn
	acceptCh chan Channel
	done     chan struct{}
}

func newInprocAcceptor(a addr.Address) (AcceptorDownstream, error) {
	name := a.Rest()
	conns := make(chan net.Conn, 8)

	inprocRegistry.mu.Lock()
	inprocRegistry.listeners[name] = conns
	inprocRegistry.mu.Unlock()

	i := &inprocAcceptor{
		baseDownstream: baseDownstream{addr: a},
		name:           name,
		conns:          conns,
		acceptCh:       make(chan Channel, 8),
		done:           make(chan struct{}),
	}
	go i.run()
	return i, nil
}

func (i *inprocAcceptor) run() {
	for {
		select {
		case conn, ok := <-i.conns:
			if !ok {
				close(i.acceptCh)
				i.notifyUninvolved()
				return
			}
			i.acceptCh <- newConnChannel(conn, i.addr)
		case <-i.done:
			close(i.acceptCh)
			return
		}
	}
}

func (i *inprocAcceptor) Accept() <-chan Channel { return i.acceptCh }

func (i *inprocAcceptor) Close() error {
	inprocRegistry.mu.Lock()
	delete(inprocRegistry.listeners, i.name)
	inprocRegistry.mu.Unlock()
	close(i.done)
	return nil
}

type inprocConnector struct {
	baseDownstream
}

func newInprocConnector(a addr.Address) (ConnectorDownstream, error) {
	return &inprocConnector{baseDownstream: baseDownstream{addr: a}}, nil
}

func (c *inprocConnector) Dial(ctx context.Context, a addr.Address) (Channel, error) {
	name := a.Rest()
	inprocRegistry.mu.Lock()
	conns, ok := inprocRegistry.listeners[name]
	inprocRegistry.mu.Unlock()
	if !ok {
		return nil, ErrInprocNoListener
	}

	client, server := net.Pipe()
	select {
	case conns <- server:
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}
	return newConnChannel(client, a), nil
}

func (c *inprocConnector) Close() error { c.notifyUninvolved(); return nil }
