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

package featuresvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"ppn/addr"
	"ppn/link"
	"ppn/session"
)

// fakeRemote is a minimal link.Remote test double.
type fakeRemote struct {
	id   link.Id
	done chan struct{}
}

func (f *fakeRemote) ID() link.Id             { return f.id }
func (f *fakeRemote) Closed() <-chan struct{} { return f.done }
func (f *fakeRemote) Close() error            { close(f.done); return nil }

func TestJoinFailsBeforeStart(t *testing.T) {
	s := New()
	s.JoinFunc = func(ctx context.Context, id link.Id, a addr.Address) (link.Remote, error) {
		t.Fatal("JoinFunc should not run before Start")
		return nil, nil
	}
	if _, err := s.Join(context.Background(), link.Id("x"), addr.NewAddress(addr.SchemeTCP4, "h:1")); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestDeclareUndeclareEmitsFilteredEvents(t *testing.T) {
	s := New()
	s.Start()

	ch := make(chan *Event, 4)
	s.Listen(NewListener(ch, EvDeclared, EvUndeclared))

	a := addr.NewAddress(addr.SchemeTCP4, "203.0.113.1:4001")
	s.NoteDeclared(a)
	s.NoteUndeclared(a)

	ev := <-ch
	if ev.Kind != EvDeclared || ev.External != a {
		t.Fatalf("unexpected first event: %+v", ev)
	}
	ev = <-ch
	if ev.Kind != EvUndeclared || ev.External != a {
		t.Fatalf("unexpected second event: %+v", ev)
	}

	declared := s.GetDeclared()
	if len(declared) != 0 {
		t.Fatalf("expected no declared addresses after undeclare, got %v", declared)
	}
}

func TestListenerFilterExcludesOtherKinds(t *testing.T) {
	s := New()
	ch := make(chan *Event, 4)
	s.Listen(NewListener(ch, EvAcceptorStarted))

	s.emit(&Event{Kind: EvAcceptorStopped})
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event delivered: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterAndGetAgent(t *testing.T) {
	s := New()
	s.RegisterAgentProvider("svc.x", providerFunc(func(ilid string) (interface{}, error) {
		return "agent-for-" + ilid, nil
	}))
	got, err := s.GetAgent("svc.x")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got != "agent-for-svc.x" {
		t.Fatalf("unexpected agent: %v", got)
	}

	s.RegisterAgentProvider("svc.x", nil)
	if _, err := s.GetAgent("svc.x"); !errors.Is(err, ErrNoAgent) {
		t.Fatalf("expected ErrNoAgent after unregister, got %v", err)
	}
}

type providerFunc func(ilid string) (interface{}, error)

func (f providerFunc) GetAgent(ilid string) (interface{}, error) { return f(ilid) }

func TestNewCSessionWiresJoinedEvent(t *testing.T) {
	s := New()
	ch := make(chan *Event, 4)
	s.Listen(NewListener(ch))

	events := &session.CSessionEvents{}
	a := addr.NewAddress(addr.SchemeTCP4, "198.51.100.1:1")
	s.NewCSession(link.Id("provisional"), a, events)

	first := <-ch
	if first.Kind != EvSessionNew {
		t.Fatalf("expected EvSessionNew, got %+v", first)
	}

	events.Joined(&fakeRemote{id: link.Id("real-id"), done: make(chan struct{})})
	second := <-ch
	if second.Kind != EvSessionJoined || second.ID != link.Id("real-id") {
		t.Fatalf("unexpected joined event: %+v", second)
	}
}
