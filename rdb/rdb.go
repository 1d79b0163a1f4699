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

// Package rdb implements the replicated-database feature: it keeps an
// in-memory registry of every currently joined remote peer and mirrors it
// into a configurable key/value backend (SQL or Redis), fed by the
// session workers at the end of every successful join.
package rdb

import (
	"encoding/json"
	"sync"
	"time"

	"ppn/link"

	"github.com/bfix/gospel/logger"
)

// record is the value persisted into the key/value backend for a joined
// remote; only the bookkeeping the node coordinator actually has is
// recorded, never link-layer internals.
type record struct {
	JoinedAt time.Time `json:"joined_at"`
}

// Instance is the replicated-database feature, one per running node.
type Instance struct {
	mu      sync.Mutex
	remotes map[link.Id]link.Remote
	store   KVStore
}

// NewInstance creates an rdb instance. store may be nil, in which case
// joined remotes are tracked in memory only; a feature set with no rdb
// backend selected is a valid configuration.
func NewInstance(store KVStore) *Instance {
	return &Instance{
		remotes: make(map[link.Id]link.Remote),
		store:   store,
	}
}

// AddRemote records r as joined under id. It persists a lightweight
// record to the backend (if any) and removes the bookkeeping entry once
// r closes.
func (i *Instance) AddRemote(id link.Id, r link.Remote) {
	i.mu.Lock()
	i.remotes[id] = r
	i.mu.Unlock()

	if i.store != nil {
		rec := record{JoinedAt: time.Now()}
		b, err := json.Marshal(rec)
		if err == nil {
			if err := i.store.Put(string(id), string(b)); err != nil {
				logger.Printf(logger.WARN, "[rdb] persisting remote %s failed: %s", id, err.Error())
			}
		}
	}

	go func() {
		<-r.Closed()
		i.mu.Lock()
		delete(i.remotes, id)
		i.mu.Unlock()
	}()
}

// Lookup returns the currently joined remote for id, if any.
func (i *Instance) Lookup(id link.Id) (link.Remote, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	r, ok := i.remotes[id]
	return r, ok
}

// Remotes returns the ids of every currently joined remote.
func (i *Instance) Remotes() []link.Id {
	i.mu.Lock()
	defer i.mu.Unlock()
	ids := make([]link.Id, 0, len(i.remotes))
	for id := range i.remotes {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of currently joined remotes.
func (i *Instance) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.remotes)
}
