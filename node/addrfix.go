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
	"crypto/rand"

	"ppn/addr"
)

// randomNameLen is the number of random letters generated for an
// acceptor's auto-named local/inproc endpoint.
const randomNameLen = 32

// randomName returns a string of randomNameLen lower-case letters, drawn
// from CSPRNG bytes, used to turn a "%auto%" placeholder into a concrete,
// collision-resistant endpoint name.
func randomName() string {
	buf := make([]byte, randomNameLen)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	out := make([]byte, randomNameLen)
	for i, b := range buf {
		out[i] = 'a' + b%24
	}
	return string(out)
}

// acceptorAddressFixer expands a "%auto%" placeholder into a concrete,
// freshly generated local/inproc endpoint name: "local://%auto%" becomes
// "local://dci-ppn-node-<32 random letters>.sock" and "inproc://%auto%"
// becomes "inproc://<32 random letters>".
func acceptorAddressFixer(a addr.Address) addr.Address {
	if !a.HasAuto() {
		return a
	}
	switch a.Scheme() {
	case addr.SchemeLocal:
		return a.ExpandAuto("dci-ppn-node-" + randomName() + ".sock")
	default:
		return a.ExpandAuto(randomName())
	}
}

// connectorAddressFixer expands a "%auto%" placeholder into the empty
// string: a connector has no endpoint identity of its own to name, it
// only dials addresses supplied by a caller.
func connectorAddressFixer(a addr.Address) addr.Address {
	return a.ExpandAuto("")
}
