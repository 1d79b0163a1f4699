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
	"os"
	"path/filepath"

	"ppn/addr"
)

type localAcceptor struct {
	baseDownstream
	ln       net.Listener
	acceptCh chan Channel
}

func newLocalAcceptor(a addr.Address) (AcceptorDownstream, error) {
	path := socketPath(a.Rest())
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	l := &localAcceptor{
		baseDownstream: baseDownstream{addr: a},
		ln:             ln,
		acceptCh:       make(chan Channel, 8),
	}
	go l.run()
	return l, nil
}

func (l *localAcceptor) run() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			close(l.acceptCh)
			l.notifyUninvolved()
			return
		}
		l.acceptCh <- newConnChannel(conn, l.addr)
	}
}

func (l *localAcceptor) Accept() <-chan Channel { return l.acceptCh }

func (l *localAcceptor) Close() error {
	err := l.ln.Close()
	_ = os.Remove(socketPath(l.addr.Rest()))
	return err
}

type localConnector struct {
	baseDownstream
}

func newLocalConnector(a addr.Address) (ConnectorDownstream, error) {
	return &localConnector{baseDownstream: baseDownstream{addr: a}}, nil
}

func (c *localConnector) Dial(ctx context.Context, a addr.Address) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath(a.Rest()))
	if err != nil {
		return nil, err
	}
	return newConnChannel(conn, a), nil
}

func (c *localConnector) Close() error { c.notifyUninvolved(); return nil }

// socketPath places relative socket names under the OS temp directory,
// matching the "dci-ppn-node-<random>.sock" names the node coordinator
// generates for %auto% local addresses.
func socketPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(os.TempDir(), name)
}
