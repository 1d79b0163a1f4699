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
	"testing"
	"time"

	"ppn/addr"
)

func TestTCPRoundTrip(t *testing.T) {
	bind := addr.NewAddress(addr.SchemeTCP4, "127.0.0.1:0")
	lo, err := newTCPAcceptor(bind)
	if err != nil {
		t.Fatalf("newTCPAcceptor: %v", err)
	}
	defer lo.Close()

	// ":0" resolves to an OS-assigned ephemeral port only visible on the
	// listener itself, not on the originally requested bind address.
	listener := lo.(*tcpAcceptor)
	target := addr.NewAddress(addr.SchemeTCP4, listener.ln.Addr().String())

	connector, err := newTCPConnector(target)
	if err != nil {
		t.Fatalf("newTCPConnector: %v", err)
	}
	defer connector.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clientCh, err := connector.Dial(ctx, target)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientCh.Close()

	var serverCh Channel
	select {
	case serverCh = <-lo.Accept():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted channel")
	}
	defer serverCh.Close()

	if err := clientCh.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := serverCh.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", got)
	}
}

func TestInprocRoundTrip(t *testing.T) {
	bind := addr.NewAddress(addr.SchemeInproc, "test-channel")
	lo, err := newInprocAcceptor(bind)
	if err != nil {
		t.Fatalf("newInprocAcceptor: %v", err)
	}
	defer lo.Close()

	connector, err := newInprocConnector(bind)
	if err != nil {
		t.Fatalf("newInprocConnector: %v", err)
	}
	defer connector.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clientCh, err := connector.Dial(ctx, bind)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientCh.Close()

	var serverCh Channel
	select {
	case serverCh = <-lo.Accept():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted channel")
	}
	defer serverCh.Close()

	// net.Pipe is unbuffered: Send only returns once the peer reads, so it
	// runs on its own goroutine.
	sendErr := make(chan error, 1)
	go func() { sendErr <- serverCh.Send([]byte("world")) }()
	got, err := clientCh.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "world" {
		t.Fatalf("expected %q, got %q", "world", got)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestInprocDialWithoutListener(t *testing.T) {
	connector, _ := newInprocConnector(addr.NewAddress(addr.SchemeInproc, "x"))
	_, err := connector.Dial(context.Background(), addr.NewAddress(addr.SchemeInproc, "no-such-name"))
	if err != ErrInprocNoListener {
		t.Fatalf("expected ErrInprocNoListener, got %v", err)
	}
}

func TestConnectorRoutesByScheme(t *testing.T) {
	c := NewConnector()
	tcpLo, _ := newTCPConnector(addr.NewAddress(addr.SchemeTCP4, ""))
	c.Add(tcpLo)

	if _, err := c.Connect(context.Background(), addr.NewAddress(addr.SchemeLocal, "nope")); err == nil {
		t.Fatal("expected an error for a scheme with no registered connector")
	}

	c.Del(tcpLo)
	if _, err := c.Connect(context.Background(), addr.NewAddress(addr.SchemeTCP4, "127.0.0.1:1")); err == nil {
		t.Fatal("expected an error after the connector was removed")
	}
}
