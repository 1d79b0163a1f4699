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

// Package natt manages UPnP/NAT-PMP port mappings for locally accepted
// addresses, declaring and undeclaring the externally reachable address
// that results as a listener's mapping is established or torn down.
package natt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ppn/addr"

	"github.com/bfix/gospel/logger"
	"github.com/bfix/gospel/network"
)

// ErrNattNoMapper is returned when no port mapper is available on this host
// (no UPnP/NAT-PMP gateway was found at startup).
var ErrNattNoMapper = errors.New("no NAT port mapper available")

// Protocol names a Mapping can lease a port forward for.
const (
	ProtocolTCP = "TCP"
	ProtocolUDP = "UDP"
)

// Manager owns the host's single UPnP/NAT-PMP gateway session and hands out
// Mappings for individual locally-bound addresses.
type Manager struct {
	mu     sync.Mutex
	mapper *network.PortMapper
}

// NewManager probes for a gateway tagged with the given application name.
// A failed probe is not an error: Manager still works, it just refuses
// every subsequent mapping attempt with ErrNattNoMapper, since a router
// with no UPnP/NAT-PMP support is a normal deployment, not a fault.
func NewManager(tag string) *Manager {
	mapper, err := network.NewPortMapper(tag)
	if err != nil {
		logger.Printf(logger.INFO, "[natt] no port mapper available: %s", err.Error())
		mapper = nil
	}
	return &Manager{mapper: mapper}
}

// Close releases the gateway session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mapper != nil {
		m.mapper.Close()
		m.mapper = nil
	}
}

// Mapping is one internal-address-to-external-port-forward lease: as the
// lease is established, replaced, or lost, the node's externally
// reachable address is declared or undeclared accordingly.
type Mapping struct {
	mgr      *Manager
	internal addr.Address
	protocol string

	mu            sync.Mutex
	isEstablished bool
	external      addr.Address
	leaseID       string

	declare   func(a addr.Address)
	undeclare func(a addr.Address)
}

// NewMapping creates a mapping for internal (a "tcp4://host:port"-shaped
// local listen address), to be declared/undeclared through the given
// callbacks as its NAT mapping comes and goes.
func NewMapping(mgr *Manager, internal addr.Address, protocol string, declare, undeclare func(a addr.Address)) *Mapping {
	return &Mapping{
		mgr:       mgr,
		internal:  internal,
		protocol:  protocol,
		declare:   declare,
		undeclare: undeclare,
	}
}

// Start attempts to establish the mapping, declaring the resulting
// external address on success.
func (m *Mapping) Start() error {
	m.mgr.mu.Lock()
	mapper := m.mgr.mapper
	m.mgr.mu.Unlock()
	if mapper == nil {
		return ErrNattNoMapper
	}

	_, portStr, err := splitHostPort(m.internal.Rest())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("natt: bad port in %q: %w", m.internal, err)
	}

	// Assign returns the externally reachable "host:port" directly as
	// remote; the gateway, not this process, knows its own public host.
	id, _, remote, err := mapper.Assign(strings.ToLower(m.protocol), port)
	if err != nil {
		logger.Printf(logger.INFO, "[natt] mapping failed for %s: %s", m.internal, err.Error())
		m.unestablished()
		return err
	}
	m.mu.Lock()
	m.leaseID = id
	m.mu.Unlock()

	external := addr.NewAddress(m.internal.Scheme(), remote)
	m.established(external)
	return nil
}

// established records and declares the external address. A previously
// established, different external address is undeclared first.
func (m *Mapping) established(external addr.Address) {
	m.mu.Lock()
	prev := m.external
	hadPrev := m.isEstablished && prev != "" && prev != external
	m.isEstablished = true
	m.external = external
	m.mu.Unlock()

	if hadPrev {
		logger.Printf(logger.INFO, "[natt] mapping replaced: %s -> %s (was %s)", m.internal, external, prev)
		if m.undeclare != nil {
			m.undeclare(prev)
		}
	}

	logger.Printf(logger.INFO, "[natt] mapping established: %s -> %s", m.internal, external)
	if m.declare != nil {
		m.declare(external)
	}
}

// unestablished undeclares any previously-declared external address;
// without one it is a no-op.
func (m *Mapping) unestablished() {
	m.mu.Lock()
	wasEstablished := m.isEstablished
	external := m.external
	m.isEstablished = false
	m.external = ""
	m.mu.Unlock()

	if wasEstablished {
		logger.Printf(logger.INFO, "[natt] mapping lost: %s", m.internal)
		if m.undeclare != nil {
			m.undeclare(external)
		}
	}
}

// InvolvedChanged tears the mapping down once nothing references the
// underlying endpoint any more.
func (m *Mapping) InvolvedChanged(involved bool) {
	if !involved {
		m.Stop()
	}
}

// Stop tears the mapping down, releasing the gateway lease and
// undeclaring its external address if one was established. Safe to call
// more than once.
func (m *Mapping) Stop() {
	m.mu.Lock()
	id := m.leaseID
	m.leaseID = ""
	m.mu.Unlock()

	if id != "" {
		m.mgr.mu.Lock()
		mapper := m.mgr.mapper
		m.mgr.mu.Unlock()
		if mapper != nil {
			if err := mapper.Unassign(id); err != nil {
				logger.Printf(logger.WARN, "[natt] unassign of %s failed: %s", m.internal, err.Error())
			}
		}
	}
	m.unestablished()
}

func splitHostPort(rest string) (host, port string, err error) {
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return "", "", fmt.Errorf("natt: no port in address %q", rest)
	}
	return rest[:i], rest[i+1:], nil
}
