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

// Package netenum watches the host's network interfaces and reports the
// current set of usable local addresses as add/del events: a full re-scan
// is diffed against the previous result and only the delta is emitted,
// deletions before additions. Events are multicast: every Subscription
// observes every event, so independent consumers (the acceptor and
// connector hubs) each see the complete address history.
package netenum

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"ppn/addr"

	"github.com/bfix/gospel/logger"
)

// DefaultPollInterval is how often the host's interfaces are re-read.
// The stdlib has no portable interface-change notification, so changes
// are detected by polling and diffing.
const DefaultPollInterval = 2 * time.Second

// subBuffer bounds a subscription's unread backlog; a subscriber that is
// being torn down stops draining, and the enumerator must not wedge on it.
const subBuffer = 64

// Subscription is one consumer's view of the enumerator's events. Each
// subscription receives every add/del independently of all others.
type Subscription struct {
	addCh chan addr.NetAddress
	delCh chan addr.NetAddress
}

// Add reports addresses newly seen on the host.
func (s *Subscription) Add() <-chan addr.NetAddress { return s.addCh }

// Del reports addresses no longer seen on the host.
func (s *Subscription) Del() <-chan addr.NetAddress { return s.delCh }

// Enumerator tracks the host's currently usable local addresses.
type Enumerator struct {
	pollInterval time.Duration

	failedCh chan error

	mu     sync.Mutex
	result map[addr.NetAddress]struct{}
	subs   []*Subscription

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Enumerator that rescans every pollInterval (or
// DefaultPollInterval if pollInterval is non-positive).
func New(pollInterval time.Duration) *Enumerator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Enumerator{
		pollInterval: pollInterval,
		failedCh:     make(chan error, 1),
		result:       make(map[addr.NetAddress]struct{}),
	}
}

// Subscribe registers a new consumer. The current result set is replayed
// into the subscription as add events first, so a consumer attaching
// after the first scan still learns every live address; subsequent scans
// deliver only the delta.
func (e *Enumerator) Subscribe() *Subscription {
	sub := &Subscription{
		addCh: make(chan addr.NetAddress, subBuffer),
		delCh: make(chan addr.NetAddress, subBuffer),
	}

	e.mu.Lock()
	snapshot := make([]addr.NetAddress, 0, len(e.result))
	for a := range e.result {
		snapshot = append(snapshot, a)
	}
	e.subs = append(e.subs, sub)
	e.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Less(snapshot[j]) })
	for _, a := range snapshot {
		select {
		case sub.addCh <- a:
		default:
			logger.Printf(logger.WARN, "[netenum] replay overflow, dropping %s", a.Value)
		}
	}
	return sub
}

// Unsubscribe detaches sub; no further events are delivered to it.
func (e *Enumerator) Unsubscribe(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Failed reports errors encountered while scanning; a failed scan is
// skipped but does not stop the enumerator, while a deliberate Stop is
// quiet shutdown with no error reported.
func (e *Enumerator) Failed() <-chan error { return e.failedCh }

// Start seeds the result with the interfaces present right now, then
// begins polling for changes until ctx is cancelled or Stop is called.
func (e *Enumerator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.scanOnce(ctx)
	go e.run(ctx)
}

// Stop cancels the background scan loop and waits for it to exit.
func (e *Enumerator) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

func (e *Enumerator) run(ctx context.Context) {
	defer close(e.done)
	t := time.NewTicker(e.pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.scanOnce(ctx)
		}
	}
}

func (e *Enumerator) scanOnce(ctx context.Context) {
	current, err := currentAddresses()
	if err != nil {
		select {
		case e.failedCh <- err:
		default:
		}
		return
	}
	e.updateResult(ctx, current)
}

// currentAddresses lists the scoped addresses of every up interface.
func currentAddresses() (map[addr.NetAddress]struct{}, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make(map[addr.NetAddress]struct{})
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			scope := addr.ScopeOf(ipnet.IP)
			out[addr.NetAddress{Scope: scope, Value: ipnet.IP.String()}] = struct{}{}
		}
	}
	return out, nil
}

// updateResult diffs current against the last known result, fanning every
// deletion out to all subscriptions before any addition, both in a stable
// order.
func (e *Enumerator) updateResult(ctx context.Context, current map[addr.NetAddress]struct{}) {
	e.mu.Lock()
	var toAdd, toDel []addr.NetAddress
	for a := range current {
		if _, ok := e.result[a]; !ok {
			toAdd = append(toAdd, a)
		}
	}
	for a := range e.result {
		if _, ok := current[a]; !ok {
			toDel = append(toDel, a)
		}
	}
	e.result = current
	subs := make([]*Subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	sort.Slice(toDel, func(i, j int) bool { return toDel[i].Less(toDel[j]) })
	sort.Slice(toAdd, func(i, j int) bool { return toAdd[i].Less(toAdd[j]) })

	for _, a := range toDel {
		logger.Printf(logger.DBG, "[netenum] del %v %s", a.Scope, a.Value)
		for _, sub := range subs {
			select {
			case sub.delCh <- a:
			case <-ctx.Done():
				return
			}
		}
	}
	for _, a := range toAdd {
		logger.Printf(logger.DBG, "[netenum] add %v %s", a.Scope, a.Value)
		for _, sub := range subs {
			select {
			case sub.addCh <- a:
			case <-ctx.Done():
				return
			}
		}
	}
}
