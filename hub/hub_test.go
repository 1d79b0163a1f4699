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

package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ppn/addr"
	"ppn/config"
	"ppn/netenum"
)

type fakeLo struct {
	addr addr.Address
	cb   func(bool)
}

func (f *fakeLo) InvolvedChanged(cb func(bool)) { f.cb = cb }

type fakeHi struct {
	added   []addr.Address
	removed []addr.Address
}

func (f *fakeHi) Add(lo *fakeLo) { f.added = append(f.added, lo.addr) }
func (f *fakeHi) Del(lo *fakeLo) { f.removed = append(f.removed, lo.addr) }

func noEnumerator() *netenum.Enumerator { return nil }

func disabledAutoConf() *config.Tree {
	conf := config.NewTree("")
	conf.PutValue("inproc", "false")
	conf.PutValue("local", "false")
	conf.PutValue("ip4", "false")
	conf.PutValue("ip6", "false")
	return conf
}

func TestCustomAddressRefCounting(t *testing.T) {
	conf := disabledAutoConf()
	conf.PutValue("custom", "tcp4://192.0.2.1:9000")
	conf.PutValue("custom", "tcp4://192.0.2.1:9000")

	h := New[*fakeLo]()
	hi := &fakeHi{}
	maker := func(a addr.Address) (*fakeLo, error) { return &fakeLo{addr: a}, nil }
	identity := func(a addr.Address) addr.Address { return a }

	if err := h.Start(context.Background(), hi, identity, maker, conf, noEnumerator); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if len(hi.added) != 1 {
		t.Fatalf("expected a single instance for a duplicated custom address, got %d", len(hi.added))
	}

	h.Stop()
	if len(hi.removed) != 1 {
		t.Fatalf("expected the single instance to be removed once on Stop, got %d", len(hi.removed))
	}
}

func TestBadBooleanValueRejected(t *testing.T) {
	// Get returns the first child for a key, so start from a fresh tree
	// rather than layering "maybe" over disabledAutoConf's "false".
	conf := config.NewTree("")
	conf.PutValue("inproc", "maybe")
	conf.PutValue("local", "false")
	conf.PutValue("ip4", "false")
	conf.PutValue("ip6", "false")

	h := New[*fakeLo]()
	hi := &fakeHi{}
	maker := func(a addr.Address) (*fakeLo, error) { return &fakeLo{addr: a}, nil }
	identity := func(a addr.Address) addr.Address { return a }

	if err := h.Start(context.Background(), hi, identity, maker, conf, noEnumerator); err == nil {
		t.Fatal("expected an error for an unparseable boolean value")
	}
}

func TestBadCustomAddressRejected(t *testing.T) {
	conf := disabledAutoConf()
	conf.PutValue("custom", "not a url")

	h := New[*fakeLo]()
	hi := &fakeHi{}
	maker := func(a addr.Address) (*fakeLo, error) { return &fakeLo{addr: a}, nil }
	identity := func(a addr.Address) addr.Address { return a }

	if err := h.Start(context.Background(), hi, identity, maker, conf, noEnumerator); err == nil {
		t.Fatal("expected an error for a malformed custom address")
	}
}

func TestAutoExpandsPlaceholder(t *testing.T) {
	conf := config.NewTree("")
	conf.PutValue("inproc", "true")
	conf.PutValue("local", "false")
	conf.PutValue("ip4", "false")
	conf.PutValue("ip6", "false")

	h := New[*fakeLo]()
	hi := &fakeHi{}
	maker := func(a addr.Address) (*fakeLo, error) { return &fakeLo{addr: a}, nil }
	fixer := func(a addr.Address) addr.Address { return a.ExpandAuto("generated") }

	if err := h.Start(context.Background(), hi, fixer, maker, conf, noEnumerator); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(hi.added) != 1 || hi.added[0] != "inproc://generated" {
		t.Fatalf("expected inproc://generated, got %v", hi.added)
	}

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
}

func TestDelLoRefCounting(t *testing.T) {
	conf := disabledAutoConf()
	h := New[*fakeLo]()
	hi := &fakeHi{}
	maker := func(a addr.Address) (*fakeLo, error) { return &fakeLo{addr: a}, nil }
	identity := func(a addr.Address) addr.Address { return a }

	if err := h.Start(context.Background(), hi, identity, maker, conf, noEnumerator); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a := addr.Address("tcp4://192.0.2.9:7000")
	if err := h.addLo(a); err != nil {
		t.Fatalf("addLo: %v", err)
	}
	if err := h.addLo(a); err != nil {
		t.Fatalf("addLo: %v", err)
	}
	if len(hi.added) != 1 {
		t.Fatalf("expected one Add call for a refcounted address, got %d", len(hi.added))
	}

	h.delLo(a)
	if len(hi.removed) != 0 {
		t.Fatal("address should still be live after one of two delLo calls")
	}
	h.delLo(a)
	if len(hi.removed) != 1 {
		t.Fatal("address should be torn down after the matching number of delLo calls")
	}
}

// TestConcurrentAddLoBuildsOnce exercises two concurrent addLo calls for
// the same not-yet-live address: only one of them must invoke loMaker,
// and both must observe the same outcome.
func TestConcurrentAddLoBuildsOnce(t *testing.T) {
	conf := disabledAutoConf()
	h := New[*fakeLo]()
	hi := &fakeHi{}
	identity := func(a addr.Address) addr.Address { return a }

	var calls int32
	release := make(chan struct{})
	maker := func(a addr.Address) (*fakeLo, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &fakeLo{addr: a}, nil
	}

	if err := h.Start(context.Background(), hi, identity, maker, conf, noEnumerator); err != nil {
		t.Fatalf("Start: %v", err)
	}

	a := addr.Address("tcp4://192.0.2.9:7000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	started := make(chan struct{}, 2)
	for n := 0; n < 2; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			errs[n] = h.addLo(a)
		}()
	}
	<-started
	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected loMaker to run exactly once for two concurrent addLo calls, got %d", n)
	}
	if errs[0] != nil || errs[1] != nil {
		t.Fatalf("expected both addLo calls to succeed, got %v / %v", errs[0], errs[1])
	}
	if len(hi.added) != 1 {
		t.Fatalf("expected a single Add call, got %d", len(hi.added))
	}
}
