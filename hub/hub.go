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

// Package hub implements the generic transport hub: it owns a reference
// counted set of low-level transport endpoints (inproc/local sockets,
// scope-filtered TCP listeners or connectors, and explicit "custom"
// addresses from configuration) and adds/removes them from a high-level
// port as their use count transitions to/from zero.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ppn/addr"
	"ppn/config"
	"ppn/netenum"

	"github.com/bfix/gospel/logger"
)

// Endpoint is the capability a low-level transport instance (an acceptor
// or a connector) must offer the hub: a way to learn when the endpoint
// stops being usable on its own (e.g. the underlying socket died), so the
// hub can remove it without a caller calling Del explicitly.
type Endpoint interface {
	InvolvedChanged(cb func(involved bool))
}

// HiPort is the high-level port the hub adds/removes live endpoints to/from.
type HiPort[Lo Endpoint] interface {
	Add(lo Lo)
	Del(lo Lo)
}

// AddressFixer rewrites an address before it is instantiated, e.g.
// expanding "%auto%" into a concrete generated name.
type AddressFixer func(a addr.Address) addr.Address

// LoMaker instantiates a low-level endpoint bound to the given address.
type LoMaker[Lo Endpoint] func(a addr.Address) (Lo, error)

// NetEnumeratorProvider returns the net enumerator instances should be
// filtered against; it is deferred so auto-IP configuration can be skipped
// entirely when ip4/ip6 are both disabled.
type NetEnumeratorProvider func() *netenum.Enumerator

type loInstance[Lo Endpoint] struct {
	useCounter int
	lo         Lo
	live       bool
	pending    *buildState
}

// buildState tracks a single in-flight loMaker call for an address so that
// concurrent addLo callers for the same not-yet-live address wait on the
// one call already in progress instead of each starting their own.
type buildState struct {
	ready chan struct{}
	err   error
}

// Hub owns a set of low-level endpoints keyed by address, reference
// counted so the same address requested from multiple sources (auto
// config, "custom" config entries, scope-filtered enumeration) is only
// instantiated once.
type Hub[Lo Endpoint] struct {
	mu sync.Mutex

	hi           HiPort[Lo]
	addressFixer AddressFixer
	loMaker      LoMaker[Lo]

	loAddedCh   chan addr.Address
	loDeletedCh chan addr.Address

	instances map[addr.Address]*loInstance[Lo]

	cancel    context.CancelFunc
	watchers  sync.WaitGroup
	done      chan struct{}
}

// New creates an empty hub; call Start to configure and populate it.
func New[Lo Endpoint]() *Hub[Lo] {
	return &Hub[Lo]{
		loAddedCh:   make(chan addr.Address, 16),
		loDeletedCh: make(chan addr.Address, 16),
		instances:   make(map[addr.Address]*loInstance[Lo]),
	}
}

// LoAdded reports addresses as their first live instance is created.
func (h *Hub[Lo]) LoAdded() <-chan addr.Address { return h.loAddedCh }

// LoDeleted reports addresses as their last instance is torn down.
func (h *Hub[Lo]) LoDeleted() <-chan addr.Address { return h.loDeletedCh }

// Start binds hi as the hub's high-level port and populates the hub from
// configuration: inproc/local auto endpoints, scope-filtered ip4/ip6
// endpoints tracking the supplied net enumerator, and any explicit
// "custom" address entries.
func (h *Hub[Lo]) Start(ctx context.Context, hi HiPort[Lo], addressFixer AddressFixer, loMaker LoMaker[Lo], conf *config.Tree, neProvider NetEnumeratorProvider) error {
	h.hi = hi
	h.addressFixer = addressFixer
	h.loMaker = loMaker

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	if err := h.autoConf(ctx, conf, neProvider); err != nil {
		return err
	}

	for _, c := range conf.Children("custom") {
		a := addr.Address(c.Value)
		if !addr.Valid(string(a)) {
			return fmt.Errorf("%w: %s", ErrBadAddress, a)
		}
		if err := h.addLo(a); err != nil {
			return err
		}
	}

	go func() {
		h.watchers.Wait()
		close(h.done)
	}()
	return nil
}

// Stop tears down every live instance and stops watching the enumerator.
func (h *Hub[Lo]) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.done != nil {
		<-h.done
	}

	h.mu.Lock()
	instances := h.instances
	h.instances = make(map[addr.Address]*loInstance[Lo])
	h.mu.Unlock()

	for a, i := range instances {
		if i.live {
			h.hi.Del(i.lo)
			h.loDeletedCh <- a
		}
	}
}

// boolOpt reads an optional boolean entry; an absent entry yields def, a
// present entry must parse (a typo like "maybe" is a config error, not a
// silent default).
func boolOpt(conf *config.Tree, key string, def bool) (bool, error) {
	s := conf.Get(key, "")
	if s == "" {
		return def, nil
	}
	return config.ParseBool(s)
}

func (h *Hub[Lo]) autoConf(ctx context.Context, conf *config.Tree, neProvider NetEnumeratorProvider) error {
	inproc, err := boolOpt(conf, "inproc", true)
	if err != nil {
		return err
	}
	if inproc {
		a := h.addressFixer(addr.NewAddress(addr.SchemeInproc, addr.AutoPlaceholder))
		if err := h.addLo(a); err != nil {
			return err
		}
	}

	local, err := boolOpt(conf, "local", true)
	if err != nil {
		return err
	}
	if local {
		a := h.addressFixer(addr.NewAddress(addr.SchemeLocal, addr.AutoPlaceholder))
		if err := h.addLo(a); err != nil {
			return err
		}
	}

	ip4, err := boolOpt(conf, "ip4", true)
	if err != nil {
		return err
	}
	if ip4 {
		if err := h.autoConfIP(ctx, conf.GetChild("ip4"), neProvider, addr.IP4); err != nil {
			return err
		}
	}

	ip6, err := boolOpt(conf, "ip6", true)
	if err != nil {
		return err
	}
	if ip6 {
		if err := h.autoConfIP(ctx, conf.GetChild("ip6"), neProvider, addr.IP6); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub[Lo]) autoConfIP(ctx context.Context, conf *config.Tree, neProvider NetEnumeratorProvider, scope addr.Scope) error {
	port := conf.Get("port", "")

	var scopes addr.Scope
	for _, s := range []struct {
		key  string
		mask addr.Scope
	}{
		{"host", addr.Host},
		{"link", addr.Link},
		{"lan", addr.Lan},
		{"wan", addr.Wan},
	} {
		on, err := boolOpt(conf, s.key, true)
		if err != nil {
			return err
		}
		if on {
			scopes |= s.mask
		}
	}

	filter := func(a addr.NetAddress) (addr.Address, bool) {
		if !a.Scope.Has(scope) || !a.Scope.Any(scopes) {
			return "", false
		}
		suffix := ""
		if port != "" {
			suffix = ":" + port
		}
		if a.Scope.Has(addr.IP4) {
			return addr.NewAddress(addr.SchemeTCP4, a.Value+suffix), true
		}
		return addr.NewAddress(addr.SchemeTCP6, "["+a.Value+"]"+suffix), true
	}

	ne := neProvider()
	if ne == nil {
		return nil
	}

	// Every hub gets its own subscription: the enumerator multicasts, so
	// the acceptor and connector hubs sharing one enumerator each observe
	// the complete add/del history independently.
	sub := ne.Subscribe()

	h.watchers.Add(1)
	go func() {
		defer h.watchers.Done()
		defer ne.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-sub.Add():
				if !ok {
					return
				}
				if ta, match := filter(a); match {
					if err := h.addLo(ta); err != nil {
						logger.Printf(logger.WARN, "[hub] unable to use address %s: %s", ta, err)
					}
				}
			case a, ok := <-sub.Del():
				if !ok {
					return
				}
				if ta, match := filter(a); match {
					h.delLo(ta)
				}
			}
		}
	}()
	return nil
}

// addLo instantiates a, or bumps its use count if already live or already
// being instantiated by a concurrent caller.
func (h *Hub[Lo]) addLo(a addr.Address) error {
	h.mu.Lock()
	i, ok := h.instances[a]
	if !ok {
		i = &loInstance[Lo]{}
		h.instances[a] = i
	}
	i.useCounter++
	if i.live {
		h.mu.Unlock()
		return nil
	}
	if p := i.pending; p != nil {
		h.mu.Unlock()
		<-p.ready
		return p.err
	}

	p := &buildState{ready: make(chan struct{})}
	i.pending = p
	h.mu.Unlock()

	lo, err := h.loMaker(a)

	h.mu.Lock()
	i.pending = nil
	if err != nil {
		h.mu.Unlock()
		p.err = fmt.Errorf("unable to use address %s: %w", a, err)
		close(p.ready)
		return p.err
	}
	i.lo = lo
	i.live = true
	h.mu.Unlock()
	close(p.ready)

	lo.InvolvedChanged(func(involved bool) {
		if !involved {
			h.delLo(a)
		}
	})
	h.hi.Add(lo)
	h.loAddedCh <- a
	logger.Printf(logger.DBG, "[hub] added %s", a)
	return nil
}

// delLo decrements a's use count, tearing it down once it reaches zero.
func (h *Hub[Lo]) delLo(a addr.Address) {
	h.mu.Lock()
	i, ok := h.instances[a]
	if !ok {
		h.mu.Unlock()
		return
	}
	if i.useCounter > 1 {
		i.useCounter--
		h.mu.Unlock()
		return
	}
	delete(h.instances, a)
	live := i.live
	lo := i.lo
	h.mu.Unlock()

	if live {
		h.hi.Del(lo)
		h.loDeletedCh <- a
		logger.Printf(logger.DBG, "[hub] removed %s", a)
	}
}

// ErrBadAddress is returned when a configured address fails URL validation.
var ErrBadAddress = errors.New("bad address value in config")
