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

package netenum

import (
	"context"
	"testing"
	"time"

	"ppn/addr"
)

func TestUpdateResultEmitsDelBeforeAdd(t *testing.T) {
	e := New(time.Hour)
	ctx := context.Background()
	sub := e.Subscribe()

	a1 := addr.NetAddress{Scope: addr.IP4 | addr.Lan, Value: "192.168.1.5"}
	a2 := addr.NetAddress{Scope: addr.IP4 | addr.Lan, Value: "192.168.1.6"}

	e.updateResult(ctx, map[addr.NetAddress]struct{}{a1: {}})
	select {
	case got := <-sub.Add():
		if got != a1 {
			t.Fatalf("expected %v, got %v", a1, got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial add")
	}

	var order []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2; i++ {
			select {
			case a := <-sub.Del():
				order = append(order, "del:"+a.Value)
			case a := <-sub.Add():
				order = append(order, "add:"+a.Value)
			case <-time.After(time.Second):
				return
			}
		}
	}()

	e.updateResult(ctx, map[addr.NetAddress]struct{}{a2: {}})
	<-done

	if len(order) != 2 || order[0] != "del:192.168.1.5" || order[1] != "add:192.168.1.6" {
		t.Fatalf("expected [del:a1 add:a2] order, got %v", order)
	}
}

func TestUpdateResultNoChangeEmitsNothing(t *testing.T) {
	e := New(time.Hour)
	ctx := context.Background()
	sub := e.Subscribe()
	a1 := addr.NetAddress{Scope: addr.IP4 | addr.Lan, Value: "10.0.0.1"}

	e.updateResult(ctx, map[addr.NetAddress]struct{}{a1: {}})
	<-sub.Add()

	e.updateResult(ctx, map[addr.NetAddress]struct{}{a1: {}})
	select {
	case a := <-sub.Add():
		t.Fatalf("unexpected add event for unchanged address: %v", a)
	case a := <-sub.Del():
		t.Fatalf("unexpected del event for unchanged address: %v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestEveryRegisteredConsumerObservesEveryEvent pins down the multicast
// contract: two consumers sharing one enumerator (the acceptor and
// connector hubs in a running node) must each see every add and del, not
// split one event stream between them.
func TestEveryRegisteredConsumerObservesEveryEvent(t *testing.T) {
	e := New(time.Hour)
	ctx := context.Background()
	s1 := e.Subscribe()
	s2 := e.Subscribe()

	a1 := addr.NetAddress{Scope: addr.IP4 | addr.Lan, Value: "192.168.1.5"}
	e.updateResult(ctx, map[addr.NetAddress]struct{}{a1: {}})

	for i, sub := range []*Subscription{s1, s2} {
		select {
		case got := <-sub.Add():
			if got != a1 {
				t.Fatalf("subscriber %d got %v, want %v", i+1, got, a1)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never observed the add", i+1)
		}
	}

	e.updateResult(ctx, map[addr.NetAddress]struct{}{})
	for i, sub := range []*Subscription{s1, s2} {
		select {
		case got := <-sub.Del():
			if got != a1 {
				t.Fatalf("subscriber %d got del %v, want %v", i+1, got, a1)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never observed the del", i+1)
		}
	}
}

func TestSubscribeReplaysCurrentResult(t *testing.T) {
	e := New(time.Hour)
	ctx := context.Background()
	a1 := addr.NetAddress{Scope: addr.IP4 | addr.Lan, Value: "10.0.0.1"}
	e.updateResult(ctx, map[addr.NetAddress]struct{}{a1: {}})

	// a late subscriber still learns every live address.
	late := e.Subscribe()
	select {
	case got := <-late.Add():
		if got != a1 {
			t.Fatalf("expected replayed %v, got %v", a1, got)
		}
	case <-time.After(time.Second):
		t.Fatal("late subscriber never received the replayed address")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := New(time.Hour)
	ctx := context.Background()
	sub := e.Subscribe()
	e.Unsubscribe(sub)

	a1 := addr.NetAddress{Scope: addr.IP4 | addr.Lan, Value: "10.0.0.2"}
	e.updateResult(ctx, map[addr.NetAddress]struct{}{a1: {}})
	select {
	case a := <-sub.Add():
		t.Fatalf("unexpected delivery after Unsubscribe: %v", a)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := New(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.Stop()
}
