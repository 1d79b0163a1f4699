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

// Package discovery is a node feature that finds other nodes by
// periodically resolving a DNS-SD SRV name and feeding every resolved
// "host:port" to the feature service as a discovered peer, then asking it
// to connect. It decides nothing about routing; it only supplies
// addresses.
package discovery

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"ppn/addr"
	"ppn/config"
	"ppn/featuresvc"
	"ppn/link"

	"github.com/bfix/gospel/logger"
	"github.com/miekg/dns"
)

// DefaultInterval is how often the SRV name is re-resolved when the
// config subtree does not name one explicitly.
const DefaultInterval = 30 * time.Second

// DefaultServer is the DNS server queried when the config subtree does
// not name one explicitly.
const DefaultServer = "8.8.8.8:53"

// ErrNoName is returned by Configure when the "name" entry (the SRV name
// to resolve, e.g. "_ppn._tcp.example.org") is missing.
var ErrNoName = errors.New("discovery: no SRV name configured")

// Feature resolves a DNS-SD SRV name on an interval and surfaces every
// resolved target to the feature service.
type Feature struct {
	name     string
	server   string
	interval time.Duration

	mu     sync.Mutex
	seen   map[addr.Address]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// Configure reads "name" (required), "server" (default DefaultServer),
// and "interval" (a Go duration string, default DefaultInterval).
func (f *Feature) Configure(conf *config.Tree) error {
	f.name = conf.Get("name", "")
	if f.name == "" {
		return ErrNoName
	}
	f.server = conf.Get("server", DefaultServer)
	f.interval = DefaultInterval
	if s := conf.Get("interval", ""); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("discovery: bad interval %q: %w", s, err)
		}
		f.interval = d
	}
	f.seen = make(map[addr.Address]struct{})
	return nil
}

// Start begins polling, satisfying the node coordinator's NodeFeature
// capability.
func (f *Feature) Start(ctx context.Context, fsvc *featuresvc.Service) error {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.run(ctx, fsvc)
	return nil
}

// Stop cancels the polling loop and waits for it to exit.
func (f *Feature) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	if f.done != nil {
		<-f.done
	}
}

// markSeen reports whether a is newly discovered (and records it), so a
// target already resolved on a previous poll is not re-fired at the
// feature service every interval.
func (f *Feature) markSeen(a addr.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[a]; ok {
		return false
	}
	f.seen[a] = struct{}{}
	return true
}

func (f *Feature) run(ctx context.Context, fsvc *featuresvc.Service) {
	defer close(f.done)
	f.resolveOnce(ctx, fsvc)
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f.resolveOnce(ctx, fsvc)
		}
	}
}

// resolveOnce queries the SRV name in a retry loop: up to 5 attempts, a
// fresh query id each retry, i/o errors retried rather than treated as
// terminal.
func (f *Feature) resolveOnce(ctx context.Context, fsvc *featuresvc.Service) {
	m := &dns.Msg{
		MsgHdr: dns.MsgHdr{
			RecursionDesired: true,
			Opcode:           dns.OpcodeQuery,
		},
		Question: []dns.Question{{
			Name:   dns.Fqdn(f.name),
			Qtype:  dns.TypeSRV,
			Qclass: dns.ClassINET,
		}},
	}

	var in *dns.Msg
	for retry := 0; retry < 5; retry++ {
		m.Id = dns.Id()
		resp, err := dns.Exchange(m, f.server)
		if err != nil {
			logger.Printf(logger.WARN, "[discovery] query for %s failed (%d/5): %s", f.name, retry+1, err.Error())
			continue
		}
		in = resp
		break
	}
	if in == nil {
		logger.Printf(logger.WARN, "[discovery] giving up resolving %s", f.name)
		return
	}

	for _, rr := range in.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		target := net.JoinHostPort(srv.Target, strconv.Itoa(int(srv.Port)))
		a := addr.NewAddress(addr.SchemeTCP, target)

		if !f.markSeen(a) {
			continue
		}

		id, err := link.RandomID(16, rand.Read)
		if err != nil {
			logger.Printf(logger.WARN, "[discovery] unable to generate provisional id: %s", err.Error())
			continue
		}
		logger.Printf(logger.INFO, "[discovery] discovered %s at %s", id, a)
		fsvc.FireDiscovered(id, a)
		fsvc.Connect(id, a)
	}
}
