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

// Package link implements the identity handshake a session performs over
// a raw transport.Channel once it is connected or accepted, turning it
// into a Remote with a confirmed peer Id. The concrete authentication and
// encryption scheme is a pluggable external concern; this package defines
// the shape (Local/Remote/Id) a real link layer must satisfy and provides
// a minimal, working implementation: a plaintext id exchange, sufficient
// to drive the session/rdb/featuresvc wiring above it.
package link

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"

	"ppn/transport"
)

// Id identifies a peer across sessions.
type Id string

// ErrLinkClosed is returned by operations on a Remote after Close.
var ErrLinkClosed = errors.New("link: remote closed")

// Remote is a joined peer.
type Remote interface {
	// ID returns the peer id confirmed during the handshake.
	ID() Id
	// Closed fires once, when Close is called; the peer closing its end
	// of the channel does not fire it.
	Closed() <-chan struct{}
	// Close tears down the underlying channel.
	Close() error
}

// remote is the minimal Remote backed by a transport.Channel.
type remote struct {
	id   Id
	ch   transport.Channel
	once sync.Once
	done chan struct{}
}

func newRemote(id Id, ch transport.Channel) *remote {
	return &remote{id: id, ch: ch, done: make(chan struct{})}
}

func (r *remote) ID() Id                  { return r.id }
func (r *remote) Closed() <-chan struct{} { return r.done }
func (r *remote) Close() error {
	err := r.ch.Close()
	r.once.Do(func() { close(r.done) })
	return err
}

// Local is the link endpoint that turns a freshly connected/accepted
// transport.Channel into a Remote.
type Local struct {
	id Id
}

// NewLocal creates a link endpoint that identifies itself with id (derived
// from the node's keymat.NodeKey by the node coordinator).
func NewLocal(id Id) *Local {
	return &Local{id: id}
}

// JoinByConnect completes the handshake from the dialing side: it sends
// our id first, then reads the peer's.
func (l *Local) JoinByConnect(ctx context.Context, ch transport.Channel) (Remote, error) {
	if err := ch.Send([]byte(l.id)); err != nil {
		return nil, err
	}
	peerID, err := readID(ch)
	if err != nil {
		return nil, err
	}
	return newRemote(peerID, ch), nil
}

// JoinByAccept completes the handshake from the accepting side: it reads
// the peer's id first, then replies with our own.
func (l *Local) JoinByAccept(ctx context.Context, ch transport.Channel) (Remote, error) {
	peerID, err := readID(ch)
	if err != nil {
		return nil, err
	}
	if err := ch.Send([]byte(l.id)); err != nil {
		return nil, err
	}
	return newRemote(peerID, ch), nil
}

func readID(ch transport.Channel) (Id, error) {
	b, err := ch.Recv()
	if err != nil {
		return "", err
	}
	return Id(b), nil
}

// RandomID returns a fresh random peer id, used by tests and by the
// discovery feature as the provisional id of an outbound connection attempt
// before the real id is confirmed during the handshake.
func RandomID(n int, rd func([]byte) (int, error)) (Id, error) {
	buf := make([]byte, n)
	if _, err := rd(buf); err != nil {
		return "", err
	}
	return Id(hex.EncodeToString(buf)), nil
}
