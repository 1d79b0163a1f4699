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

// Package addr implements the address and scope data model used by the
// node runtime: URL-shaped transport addresses and the IP scope
// classification produced by the network enumerator.
package addr

import (
	"errors"
	"net/url"
	"strings"
)

// Error codes for address handling
var (
	ErrAddrBadURL        = errors.New("invalid address url")
	ErrAddrUnknownScheme = errors.New("unknown address scheme")
)

// Schemes recognized by the node runtime.
const (
	SchemeTCP    = "tcp"
	SchemeTCP4   = "tcp4"
	SchemeTCP6   = "tcp6"
	SchemeLocal  = "local"
	SchemeInproc = "inproc"
)

// AutoPlaceholder is expanded at bind time: acceptors replace it with a
// random filename/name, connectors replace it with the empty string.
const AutoPlaceholder = "%auto%"

// Address is a URL-shaped transport address: "<scheme>://<host>[:<port>]".
// Equality is plain string equality after normalization.
type Address string

// NewAddress builds an Address from a scheme and opaque remainder.
func NewAddress(scheme, rest string) Address {
	return Address(scheme + "://" + rest)
}

// Parse validates that s looks like a "<scheme>://..." URL and returns it
// as an Address. It does not resolve hosts or require the scheme to be
// one of the known transport schemes (custom config entries are merely
// validated as URLs, per the hub's "custom" address source).
func Parse(s string) (Address, error) {
	if !Valid(s) {
		return "", ErrAddrBadURL
	}
	return Address(s), nil
}

// Valid reports whether s parses as a "<scheme>://..." URL.
func Valid(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != ""
}

// Scheme returns the scheme component of the address ("tcp", "local", ...).
func (a Address) Scheme() string {
	i := strings.Index(string(a), "://")
	if i < 0 {
		return ""
	}
	return string(a)[:i]
}

// Rest returns everything after "scheme://".
func (a Address) Rest() string {
	i := strings.Index(string(a), "://")
	if i < 0 {
		return ""
	}
	return string(a)[i+3:]
}

// String returns the address in its URL form.
func (a Address) String() string {
	return string(a)
}

// Equals reports whether two addresses are the same after normalization.
// Normalization is limited to trimming whitespace; address identity is
// plain string equality.
func (a Address) Equals(b Address) bool {
	return strings.TrimSpace(string(a)) == strings.TrimSpace(string(b))
}

// HasAuto reports whether the address still carries an unexpanded
// "%auto%" placeholder.
func (a Address) HasAuto() bool {
	return strings.Contains(string(a), AutoPlaceholder)
}

// ExpandAuto replaces the "%auto%" placeholder (if any) with repl.
func (a Address) ExpandAuto(repl string) Address {
	if !a.HasAuto() {
		return a
	}
	return Address(strings.Replace(string(a), AutoPlaceholder, repl, 1))
}
