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

package node

import (
	"context"
	"fmt"

	"ppn/config"
	"ppn/discovery"
	"ppn/featuresvc"
	"ppn/introspect"
	"ppn/rdb"
)

// Feature is the minimal capability every configured feature must offer:
// build itself from its own config subtree. A feature is instantiated
// from `features.<name>` and then asked which roles (rdb, node-level
// start/stop, ...) it actually plays, rather than having its name
// switched on at every use site.
type Feature interface {
	Configure(conf *config.Tree) error
}

// RdbProvider is the capability a feature offers if it supplies the
// node's replicated-database instance. Exactly one configured feature is
// expected to implement this; instantiateFeatures keeps the last one it
// sees.
type RdbProvider interface {
	Rdb() *rdb.Instance
}

// NodeFeature is the capability a feature offers if it runs alongside the
// node's own lifecycle (background polling, an HTTP server, ...), started
// and stopped by the owning node rather than running unconditionally.
type NodeFeature interface {
	Start(ctx context.Context, fsvc *featuresvc.Service) error
	Stop()
}

// featureFactories maps a "features.<name>" config key to the
// constructor for the Feature it configures. Adding a feature means
// adding one entry here; the node coordinator never needs to know more
// about a feature than the capabilities (RdbProvider, NodeFeature) it
// happens to implement.
var featureFactories = map[string]func() Feature{
	"rdb":        func() Feature { return &rdb.Feature{} },
	"discovery":  func() Feature { return &discovery.Feature{} },
	"introspect": func() Feature { return &introspect.Feature{} },
}

// namedFeature pairs a NodeFeature with its config name so lifecycle
// failures can be reported against the feature that caused them.
type namedFeature struct {
	name string
	feat NodeFeature
}

// instantiateFeatures builds and configures every feature named as a
// direct child of conf, dispatching each by capability: an RdbProvider
// supplies n.rdbInstance, a NodeFeature is started/stopped alongside the
// node. A feature implementing neither capability is configured but
// otherwise inert; a feature with no externally visible role is allowed.
func (n *Node) instantiateFeatures(conf *config.Tree) error {
	for _, e := range conf.All() {
		factory, ok := featureFactories[e.Key]
		if !ok {
			return fmt.Errorf("node: unknown feature %q", e.Key)
		}
		f := factory()
		if err := f.Configure(e.Tree); err != nil {
			return fmt.Errorf("node: unable to initialize feature %q: %w", e.Key, err)
		}
		if rp, ok := f.(RdbProvider); ok {
			n.rdbInstance = rp.Rdb()
		}
		if nf, ok := f.(NodeFeature); ok {
			n.nodeFeatures = append(n.nodeFeatures, namedFeature{name: e.Key, feat: nf})
		}
	}
	return nil
}
