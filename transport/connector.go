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

package transport

import (
	"context"
	"fmt"
	"sync"

	"ppn/addr"
)

// Connector is the high-level port a hub.Hub[ConnectorDownstream] adds/
// removes live dialers to/from; it routes Connect(a) to whichever live
// downstream instance matches a's scheme.
type Connector struct {
	mu  sync.Mutex
	los map[string]ConnectorDownstream
}

// NewConnector creates an empty high-level connector port.
func NewConnector() *Connector {
	return &Connector{los: make(map[string]ConnectorDownstream)}
}

// Add registers lo as the dialer for its scheme.
func (c *Connector) Add(lo ConnectorDownstream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.los[lo.Address().Scheme()] = lo
}

// Del unregisters lo if it is still the active dialer for its scheme.
func (c *Connector) Del(lo ConnectorDownstream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.los[lo.Address().Scheme()] == lo {
		delete(c.los, lo.Address().Scheme())
	}
}

// Connect dials a using whichever registered downstream handles its scheme.
func (c *Connector) Connect(ctx context.Context, a addr.Address) (Channel, error) {
	c.mu.Lock()
	lo, ok := c.los[a.Scheme()]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no connector available for scheme %q", a.Scheme())
	}
	return lo.Dial(ctx, a)
}
