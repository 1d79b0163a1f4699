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

// Package transport provides the reduced capability surface the node
// coordinator needs from the transport layer: a duplex byte Channel
// established between two joined peers, and Acceptor/Connector downstream
// endpoints that produce such channels for a given address. Framing
// beyond simple length-prefixing, encryption, and concrete production
// transports are explicitly out of scope for the node runtime itself;
// these are minimal, real (not mocked) implementations over net.Conn and
// net.Pipe, enough to exercise the hub/session/node wiring end to end.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"ppn/addr"
)

// Channel is a duplex byte-stream between two joined peers, framed as
// 4-byte-length-prefixed messages.
type Channel interface {
	Send(b []byte) error
	Recv() ([]byte, error)
	Close() error
	RemoteAddress() addr.Address
}

// ErrChannelClosed is returned by Send once the channel is closed. Recv
// returns the underlying connection's read error instead.
var ErrChannelClosed = errors.New("channel closed")

// ErrFrameTooLarge guards against a corrupt or hostile length prefix.
var ErrFrameTooLarge = errors.New("frame too large")

const maxFrameSize = 16 << 20

// connChannel adapts a net.Conn into a Channel with length-prefixed framing.
type connChannel struct {
	conn   net.Conn
	remote addr.Address
	r      *bufio.Reader
	mu     sync.Mutex
	closed bool
}

func newConnChannel(conn net.Conn, remote addr.Address) *connChannel {
	return &connChannel{conn: conn, remote: remote, r: bufio.NewReader(conn)}
}

func (c *connChannel) Send(b []byte) error {
	if len(b) > maxFrameSize {
		return ErrFrameTooLarge
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := c.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(b)
	return err
}

func (c *connChannel) Recv() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *connChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *connChannel) RemoteAddress() addr.Address { return c.remote }
