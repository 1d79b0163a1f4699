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

package rdb

import (
	"ppn/config"
)

// Feature wraps Instance as a node plug-in configured from a
// "features.rdb" config subtree. The node coordinator discovers this role
// with a plain interface capability test (does this feature implement
// Rdb() *rdb.Instance?), not by feature name.
type Feature struct {
	inst *Instance
}

// Configure builds the backing Instance. An empty or missing "mode" keeps
// every joined remote in memory only, matching NewInstance(nil)'s
// tolerance of a feature set with no persistence backend selected; "sql"
// and "redis" build a KVStore from the subtree's remaining keys via
// NewKVStore.
func (f *Feature) Configure(conf *config.Tree) error {
	mode := conf.Get("mode", "")
	if mode == "" {
		f.inst = NewInstance(nil)
		return nil
	}

	spec := map[string]string{
		"connect": conf.Get("connect", ""),
		"addr":    conf.Get("addr", ""),
		"passwd":  conf.Get("passwd", ""),
	}
	store, err := NewKVStore(mode, spec)
	if err != nil {
		return err
	}
	f.inst = NewInstance(store)
	return nil
}

// Rdb returns the configured Instance, satisfying the node coordinator's
// RdbProvider capability.
func (f *Feature) Rdb() *Instance {
	return f.inst
}
