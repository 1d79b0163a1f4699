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
	"net"

	"ppn/addr"

	"github.com/bfix/gospel/logger"
)

func tcpNetwork(scheme string) string {
	switch scheme {
	case addr.SchemeTCP4:
		return "tcp4"
	case addr.SchemeTCP6:
		return "tcp6"
	default:
		return "tcp"
	}
}

type tcpAcceptor struct {
	baseDownstream
	ln       net.Listener
	acceptCh chan Channel
}

func newTCPAcceptor(a addr.Address) (AcceptorDownstream, error) {
	ln, err := net.Listen(tcpNetwork(a.Scheme()), a.Rest())
	if err != nil {
		return nil, err
	}
	t := &tcpAcceptor{
		baseDownstream: baseDownstream{addr: a},
		ln:             ln,
		acceptCh:       make(chan Channel, 8),
	}
	go t.run()
	return t, nil
}

func (t *tcpAcceptor) run() {
	for {
		conn, err := t.ln.Accept()
		if err != nil {
			close(t.acceptCh)
			t.notifyUninvolved()
			return
		}
		remote := addr.NewAddress(t.addr.Scheme(), conn.RemoteAddr().String())
		logger.Printf(logger.DBG, "[transport] accepted %s", remote)
		t.acceptCh <- newConnChannel(conn, remote)
	}
}

func (t *tcpAcceptor) Accept() <-chan Channel { return t.acceptCh }
func (t *tcpAcceptor) Close() error           { return t.ln.Close() }

type tcpConnector struct {
	baseDownstream
}

func newTCPConnector(a addr.Address) (ConnectorDownstream, error) {
	return &tcpConnector{baseDownstream: baseDownstream{addr: a}}, nil
}

func (t *tcpConnector) Dial(ctx context.Context, a addr.Address) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, tcpNetwork(a.Scheme()), a.Rest())
	if err != nil {
		return nil, err
	}
	return newConnChannel(conn, a), nil
}

func (t *tcpConnector) Close() error { t.notifyUninvolved(); return nil }
