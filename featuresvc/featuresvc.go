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

// Package featuresvc is the surface the node coordinator exposes to
// plug-in features: an inbound half features call into (started, join,
// connect, fireDiscovered, getDeclared, declare, undeclare,
// registerAgentProvider, getAgent) and an outbound half that fans node
// lifecycle signals out to every registered feature listener
// (connector/acceptor started/stopped/failed, declared/undeclared,
// discovered, new session). The inbound half does not implement
// connecting, declaring, or session bookkeeping itself; those actions
// are supplied by the node coordinator as hook functions, so the service
// stays a pure call-and-event boundary between the two.
package featuresvc

import (
	"context"
	"errors"
	"sync"

	"ppn/addr"
	"ppn/link"
	"ppn/session"

	"github.com/bfix/gospel/logger"
)

// Event kinds fanned out to registered Listeners: transport endpoints
// coming and going, address declarations, discovered peers, and the
// lifecycle of individual sessions.
const (
	EvConnectorStarted = iota
	EvConnectorStopped
	EvAcceptorStarted
	EvAcceptorStopped
	EvAcceptorFailed
	EvDeclared
	EvUndeclared
	EvDiscovered
	EvSessionNew
	EvSessionJoined
	EvSessionFailed
	EvSessionClosed
	EvFailed
)

// Event is the single fanned-out event shape; fields not relevant to Kind
// are left zero.
type Event struct {
	Kind     int
	Bind     addr.Address
	External addr.Address
	ID       link.Id
	Err      error
}

// Listener receives Events matching its Kinds filter (empty = all kinds).
type Listener struct {
	ch    chan *Event
	kinds map[int]bool
}

// NewListener creates a listener delivering to ch, restricted to kinds if
// any are given.
func NewListener(ch chan *Event, kinds ...int) *Listener {
	l := &Listener{ch: ch}
	if len(kinds) > 0 {
		l.kinds = make(map[int]bool, len(kinds))
		for _, k := range kinds {
			l.kinds[k] = true
		}
	}
	return l
}

func (l *Listener) accepts(kind int) bool {
	if len(l.kinds) == 0 {
		return true
	}
	return l.kinds[kind]
}

// AgentProvider supplies named agent interfaces on demand.
type AgentProvider interface {
	GetAgent(ilid string) (interface{}, error)
}

// ErrNoAgent is returned by GetAgent when no provider is registered for
// the requested id.
var ErrNoAgent = errors.New("no agent registered for requested id")

// ErrNotStarted is returned by Join before Start has run or while no join
// hook is set. Connect reports no error; in that state it does nothing.
var ErrNotStarted = errors.New("feature service not started")

// Service is the node's feature-facing API.
type Service struct {
	mu        sync.Mutex
	started   bool
	listeners []*Listener
	declared  map[addr.Address]struct{}
	agents    map[string]AgentProvider

	// Hooks supplied by the node coordinator; see package doc.
	JoinFunc      func(ctx context.Context, id link.Id, a addr.Address) (link.Remote, error)
	ConnectFunc   func(id link.Id, a addr.Address)
	DeclareFunc   func(a addr.Address)
	UndeclareFunc func(a addr.Address)
}

// New creates an unstarted feature service.
func New() *Service {
	return &Service{
		declared: make(map[addr.Address]struct{}),
		agents:   make(map[string]AgentProvider),
	}
}

// Listen registers l to receive future events.
func (s *Service) Listen(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Unlisten removes l.
func (s *Service) Unlisten(l *Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.listeners {
		if x == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Service) emit(ev *Event) {
	s.mu.Lock()
	listeners := make([]*Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		if !l.accepts(ev.Kind) {
			continue
		}
		select {
		case l.ch <- ev:
		default:
			logger.Printf(logger.WARN, "[featuresvc] listener channel full, dropping event kind %d", ev.Kind)
		}
	}
}

// Start marks the service started; Join/Connect refuse to act before it.
func (s *Service) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
}

// Stop marks the service stopped.
func (s *Service) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// Started reports whether the service has been started.
func (s *Service) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Join asks the node coordinator to run (or await) a connection to a
// under id and blocks until joined or failed.
func (s *Service) Join(ctx context.Context, id link.Id, a addr.Address) (link.Remote, error) {
	if !s.Started() {
		return nil, ErrNotStarted
	}
	if s.JoinFunc == nil {
		return nil, ErrNotStarted
	}
	return s.JoinFunc(ctx, id, a)
}

// Connect starts a fire-and-forget connection attempt.
func (s *Service) Connect(id link.Id, a addr.Address) {
	if !s.Started() || s.ConnectFunc == nil {
		return
	}
	s.ConnectFunc(id, a)
}

// FireDiscovered announces a peer some feature learned about, immediately
// re-emitting it as a Discovered event for every subscriber.
func (s *Service) FireDiscovered(id link.Id, a addr.Address) {
	s.emit(&Event{Kind: EvDiscovered, ID: id, Bind: a})
}

// GetDeclared returns the node's currently declared local addresses.
func (s *Service) GetDeclared() []addr.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]addr.Address, 0, len(s.declared))
	for a := range s.declared {
		out = append(out, a)
	}
	return out
}

// Declare asks the node to declare a as locally reachable. The
// idempotency/emission logic lives with the node coordinator, which is
// the one source of truth for the declared set; DeclareFunc reaches it.
func (s *Service) Declare(a addr.Address) {
	if s.DeclareFunc != nil {
		s.DeclareFunc(a)
	}
}

// Undeclare asks the node to withdraw a previously declared address.
func (s *Service) Undeclare(a addr.Address) {
	if s.UndeclareFunc != nil {
		s.UndeclareFunc(a)
	}
}

// NoteDeclared/NoteUndeclared are called by the node coordinator's
// localAddressDeclare/Undeclare once it has decided the address set
// actually changed, keeping GetDeclared and the Declared/Undeclared
// events consistent with that source of truth.
func (s *Service) NoteDeclared(a addr.Address) {
	s.mu.Lock()
	s.declared[a] = struct{}{}
	s.mu.Unlock()
	s.emit(&Event{Kind: EvDeclared, External: a})
}

func (s *Service) NoteUndeclared(a addr.Address) {
	s.mu.Lock()
	delete(s.declared, a)
	s.mu.Unlock()
	s.emit(&Event{Kind: EvUndeclared, External: a})
}

// RegisterAgentProvider installs the provider answering GetAgent calls
// for ilid. A nil provider unregisters ilid.
func (s *Service) RegisterAgentProvider(ilid string, provider AgentProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if provider == nil {
		delete(s.agents, ilid)
		return
	}
	s.agents[ilid] = provider
}

// GetAgent resolves ilid through its registered provider.
func (s *Service) GetAgent(ilid string) (interface{}, error) {
	s.mu.Lock()
	p, ok := s.agents[ilid]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoAgent
	}
	return p.GetAgent(ilid)
}

// ConnectorStarted/Stopped are called by the node coordinator as the
// connector hub's endpoints come and go.
func (s *Service) ConnectorStarted(a addr.Address) { s.emit(&Event{Kind: EvConnectorStarted, Bind: a}) }
func (s *Service) ConnectorStopped(a addr.Address) { s.emit(&Event{Kind: EvConnectorStopped, Bind: a}) }

// AcceptorStarted/Stopped/Failed are called by the node coordinator as
// listeners come up, go away, or fail to bind.
func (s *Service) AcceptorStarted(bind, external addr.Address) {
	s.emit(&Event{Kind: EvAcceptorStarted, Bind: bind, External: external})
}

func (s *Service) AcceptorStopped(bind, external addr.Address) {
	s.emit(&Event{Kind: EvAcceptorStopped, Bind: bind, External: external})
}

func (s *Service) AcceptorFailed(bind, external addr.Address, err error) {
	s.emit(&Event{Kind: EvAcceptorFailed, Bind: bind, External: external, Err: err})
}

// Failed reports a node-level failure not attributable to a single
// address, e.g. a net enumerator scan error.
func (s *Service) Failed(err error) {
	s.emit(&Event{Kind: EvFailed, Err: err})
}

// NewCSession announces a fresh outbound ("connect") session: it emits a
// SessionNew event immediately and wires the session's lifecycle signals
// to further events, giving feature listeners visibility into the session
// without exposing the mutable session object itself.
func (s *Service) NewCSession(id link.Id, a addr.Address, events *session.CSessionEvents) {
	s.emit(&Event{Kind: EvSessionNew, ID: id, Bind: a})
	events.Joined = func(r link.Remote) {
		s.emit(&Event{Kind: EvSessionJoined, ID: r.ID(), Bind: a})
	}
	events.Failed = func(err error) {
		s.emit(&Event{Kind: EvSessionFailed, ID: id, Bind: a, Err: err})
	}
	events.Closed = func() {
		s.emit(&Event{Kind: EvSessionClosed, ID: id, Bind: a})
	}
}

// NewASession announces a fresh inbound ("accept") session; a is the
// accepted channel's remote address.
func (s *Service) NewASession(a addr.Address, events *session.ASessionEvents) {
	s.emit(&Event{Kind: EvSessionNew, Bind: a})
	events.Joined = func(r link.Remote) {
		s.emit(&Event{Kind: EvSessionJoined, ID: r.ID(), Bind: a})
	}
	events.Failed = func(err error) {
		s.emit(&Event{Kind: EvSessionFailed, Bind: a, Err: err})
	}
	events.Closed = func() {
		s.emit(&Event{Kind: EvSessionClosed, Bind: a})
	}
}
