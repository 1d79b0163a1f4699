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

package keymat

import (
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// barrierMark is written between logical chunks so that reordering or
// concatenating fetcher output changes the resulting digest; it is not
// itself meant to be cryptographically significant, only to break up the
// byte stream at chunk boundaries.
var barrierMark = []byte{0x00, 0xff, 'b', 'a', 'r', 'r', 'i', 'e', 'r', 0xff, 0x00}

// Accumulator is a streaming BLAKE2b-512 accumulator with explicit
// domain-separation barriers, matching the "add(bytes); add(integer);
// barrier(); finish(out)" shape the key derivation is specified against.
type Accumulator struct {
	h hash.Hash
}

// NewAccumulator creates a fresh accumulator producing KeySize bytes.
func NewAccumulator() (*Accumulator, error) {
	h, err := blake2b.New(KeySize, nil)
	if err != nil {
		return nil, err
	}
	return &Accumulator{h: h}, nil
}

// Add feeds raw bytes into the accumulator.
func (a *Accumulator) Add(b []byte) {
	a.h.Write(b)
}

// AddInt feeds a fixed-width big-endian integer into the accumulator.
func (a *Accumulator) AddInt(n int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	a.h.Write(buf[:])
}

// Barrier inserts a domain-separation marker between logical chunks.
func (a *Accumulator) Barrier() {
	a.h.Write(barrierMark)
}

// Finish writes the digest into out, which must be KeySize bytes long.
func (a *Accumulator) Finish(out []byte) {
	sum := a.h.Sum(nil)
	copy(out, sum)
}

// DigestSize returns the number of bytes Finish will produce.
func (a *Accumulator) DigestSize() int {
	return a.h.Size()
}
