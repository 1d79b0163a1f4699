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

// Package session runs the two worker shapes that turn a raw transport
// channel into a joined, identified remote peer: an outbound ("connect")
// worker driven by a requested address, and an inbound ("accept") worker
// driven by a freshly accepted channel. Both report their lifecycle
// through event callbacks a feature-service subscriber supplies, and both
// feed a joined Remote to the replicated-database feature and to any
// caller waiting on a join for the same address.
package session

import (
	"context"
	"errors"
	"sync"

	"ppn/addr"
	"ppn/link"
	"ppn/transport"

	"github.com/bfix/gospel/logger"
)

// ErrNodeStopped is the failure every worker and pending join waiter
// reports when the node shuts down underneath it: a deliberate stop is a
// single clean "node stopped" failure, never a raw cancellation error.
var ErrNodeStopped = errors.New("node stopped")

// stopErr translates a context cancellation into ErrNodeStopped and leaves
// every other error untouched.
func stopErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrNodeStopped
	}
	return err
}

// CSessionEvents are the lifecycle callbacks for an outbound connection
// attempt. Any field left nil is simply not invoked.
type CSessionEvents struct {
	// Connected fires once the transport-level connect succeeds.
	Connected func()
	// IDSpecified fires if the joined remote's id differs from the id the
	// caller originally requested the connection under.
	IDSpecified func(id link.Id)
	// Joined fires once the link handshake completes.
	Joined func(r link.Remote)
	// Failed fires if connect or handshake fails; terminal.
	Failed func(err error)
	// Closed fires exactly once, whether or not the session ever joined.
	Closed func()
}

// ASessionEvents are the lifecycle callbacks for an inbound session.
type ASessionEvents struct {
	IDSpecified func(id link.Id)
	Joined      func(r link.Remote)
	Failed      func(err error)
	Closed      func()
}

// JoinResult is delivered to a caller waiting on Manager.AwaitJoin for an
// address another worker is already connecting to.
type JoinResult struct {
	Remote link.Remote
	Err    error
}

// Manager runs session workers. It owns the duplicate-suppression set of
// addresses with a connect attempt in flight and the per-address list of
// join waiters those attempts resolve.
type Manager struct {
	connector *transport.Connector
	local     *link.Local

	newCSession func(id link.Id, a addr.Address, events *CSessionEvents)
	newASession func(a addr.Address, events *ASessionEvents)
	addRemote   func(id link.Id, r link.Remote)

	mu                    sync.Mutex
	connectionsInProgress map[addr.Address]struct{}
	joinWaiters           map[addr.Address][]chan JoinResult
}

// NewManager creates a session manager. connector dials outbound
// addresses; local performs the link handshake; newCSession/newASession
// notify the feature service of a fresh session; addRemote records a
// joined peer in the replicated database.
func NewManager(
	connector *transport.Connector,
	local *link.Local,
	newCSession func(id link.Id, a addr.Address, events *CSessionEvents),
	newASession func(a addr.Address, events *ASessionEvents),
	addRemote func(id link.Id, r link.Remote),
) *Manager {
	return &Manager{
		connector:             connector,
		local:                 local,
		newCSession:           newCSession,
		newASession:           newASession,
		addRemote:             addRemote,
		connectionsInProgress: make(map[addr.Address]struct{}),
		joinWaiters:           make(map[addr.Address][]chan JoinResult),
	}
}

// RegisterWaiter appends a fresh join waiter for a and returns it.
// Splitting registration from the wait lets a caller register before
// spawning the worker that will eventually resolve it, closing the race a
// combined register-and-wait call would leave open.
func (m *Manager) RegisterWaiter(a addr.Address) <-chan JoinResult {
	ch := make(chan JoinResult, 1)
	m.mu.Lock()
	m.joinWaiters[a] = append(m.joinWaiters[a], ch)
	m.mu.Unlock()
	return ch
}

// AwaitJoin registers interest in whatever connection attempt is
// currently in progress for a. The caller must already know a connect
// worker for a exists; AwaitJoin does not itself start one.
func (m *Manager) AwaitJoin(ctx context.Context, a addr.Address) (link.Remote, error) {
	ch := m.RegisterWaiter(a)
	select {
	case r := <-ch:
		return r.Remote, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown resolves every pending join waiter with err and clears the
// in-progress set. It does not cancel running workers; the node
// coordinator cancels its context separately so in-flight connect/join
// calls unwind on their own.
func (m *Manager) Shutdown(err error) {
	m.mu.Lock()
	waiters := m.joinWaiters
	m.joinWaiters = make(map[addr.Address][]chan JoinResult)
	m.connectionsInProgress = make(map[addr.Address]struct{})
	m.mu.Unlock()

	for _, ws := range waiters {
		for _, w := range ws {
			w <- JoinResult{Err: err}
		}
	}
}

// flushJoinWaiters resolves every waiter registered for a, with either a
// joined remote or the failure that ended the attempt.
func (m *Manager) flushJoinWaiters(a addr.Address, r link.Remote, err error) {
	m.mu.Lock()
	waiters := m.joinWaiters[a]
	delete(m.joinWaiters, a)
	m.mu.Unlock()

	for _, w := range waiters {
		w <- JoinResult{Remote: r, Err: err}
	}
}

// CSessionWorker runs an outbound connection attempt to a under the
// provisional id. It returns once
// the session is joined, failed, or the connection was already in
// progress (in which case it returns immediately, doing nothing; callers
// that need the result should have already called AwaitJoin for a).
func (m *Manager) CSessionWorker(ctx context.Context, id link.Id, a addr.Address) {
	m.mu.Lock()
	if _, dup := m.connectionsInProgress[a]; dup {
		m.mu.Unlock()
		return
	}
	m.connectionsInProgress[a] = struct{}{}
	m.mu.Unlock()

	var closeOnce sync.Once
	events := &CSessionEvents{}
	closed := func() {
		if events.Closed != nil {
			closeOnce.Do(events.Closed)
		}
	}

	// exit guard: if the session is still held at return (any failure
	// path), drop the in-progress entry and emit Closed. The success path
	// releases the session instead, deferring Closed to the remote's own
	// close so a live peer does not look torn down.
	held := true
	defer func() {
		if !held {
			return
		}
		m.mu.Lock()
		delete(m.connectionsInProgress, a)
		m.mu.Unlock()
		closed()
	}()

	if m.newCSession != nil {
		m.newCSession(id, a, events)
	}

	ch, err := m.connector.Connect(ctx, a)
	if err != nil {
		err = stopErr(err)
		logger.Printf(logger.WARN, "[session] connect to %s failed: %s", a, err.Error())
		m.flushJoinWaiters(a, nil, err)
		if events.Failed != nil {
			events.Failed(err)
		}
		return
	}
	m.mu.Lock()
	delete(m.connectionsInProgress, a)
	m.mu.Unlock()
	if events.Connected != nil {
		events.Connected()
	}

	r, err := m.local.JoinByConnect(ctx, ch)
	if err != nil {
		err = stopErr(err)
		logger.Printf(logger.WARN, "[session] join (connect) to %s failed: %s", a, err.Error())
		m.flushJoinWaiters(a, nil, err)
		if events.Failed != nil {
			events.Failed(err)
		}
		return
	}

	id2 := r.ID()
	if id2 != id && events.IDSpecified != nil {
		events.IDSpecified(id2)
	}

	if events.Joined != nil {
		events.Joined(r)
	}
	m.flushJoinWaiters(a, r, nil)
	if m.addRemote != nil {
		m.addRemote(id2, r)
	}

	// session released: Closed now follows the remote's lifetime, not the
	// worker's return.
	held = false
	go func() {
		<-r.Closed()
		closed()
	}()
}

// ASessionWorker runs an inbound session over a freshly accepted channel.
func (m *Manager) ASessionWorker(ctx context.Context, ch transport.Channel) {
	var closeOnce sync.Once
	events := &ASessionEvents{}
	closed := func() {
		if events.Closed != nil {
			closeOnce.Do(events.Closed)
		}
	}

	held := true
	defer func() {
		if held {
			closed()
		}
	}()

	if m.newASession != nil {
		m.newASession(ch.RemoteAddress(), events)
	}

	r, err := m.local.JoinByAccept(ctx, ch)
	if err != nil {
		err = stopErr(err)
		logger.Printf(logger.WARN, "[session] join (accept) from %s failed: %s", ch.RemoteAddress(), err.Error())
		if events.Failed != nil {
			events.Failed(err)
		}
		return
	}

	if events.IDSpecified != nil {
		events.IDSpecified(r.ID())
	}
	if events.Joined != nil {
		events.Joined(r)
	}
	if m.addRemote != nil {
		m.addRemote(r.ID(), r)
	}

	held = false
	go func() {
		<-r.Closed()
		closed()
	}()
}
