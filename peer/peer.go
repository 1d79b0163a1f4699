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

// Package peer derives the node's long-term signing identity from its
// keymat.NodeKey: a local node carries an EdDSA key pair and is identified
// by its public key, while a remote peer carries only the public half
// needed to verify it. Session encryption and any further handshake state
// belong to the link layer; this package keeps only the identity and
// signing operations the node and link packages actually need.
package peer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"ppn/keymat"
	"ppn/link"

	"github.com/bfix/gospel/crypto/ed25519"
)

// ErrNoPrivateKey is returned by Sign on a peer with no private key (a
// remote peer constructed from an id string rather than local key
// material).
var ErrNoPrivateKey = errors.New("peer: no private key")

// Peer is a node's cryptographic identity: a local peer can sign, a remote
// peer (built from an id alone) can only be used to verify.
type Peer struct {
	prv *ed25519.PrivateKey
	pub *ed25519.PublicKey
	id  link.Id
}

// New derives the local node's long-term signing identity from key: the
// first 32 bytes of the accumulated NodeKey seed the EdDSA key pair, so
// the signing identity traces back to the same key-material configuration
// as everything else keyed on the node's identity.
func New(key keymat.NodeKey) *Peer {
	seed := key.Bytes()[:32]
	prv := ed25519.NewPrivateKeyFromSeed(seed)
	pub := prv.Public()
	return &Peer{
		prv: prv,
		pub: pub,
		id:  link.Id(hex.EncodeToString(pub.Bytes())),
	}
}

// FromID builds a remote peer from its hex-encoded public key. It has no
// private key and can only verify.
func FromID(id link.Id) (*Peer, error) {
	data, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("peer: bad id %q: %w", id, err)
	}
	return &Peer{pub: ed25519.NewPublicKeyFromBytes(data), id: id}, nil
}

// ID returns the peer's id, the same value the link handshake exchanges
// and the one session/rdb bookkeeping keys on.
func (p *Peer) ID() link.Id { return p.id }

// PubKey returns the peer's public key.
func (p *Peer) PubKey() *ed25519.PublicKey { return p.pub }

// Sign signs msg with the peer's long-term private key.
func (p *Peer) Sign(msg []byte) (*ed25519.EdSignature, error) {
	if p.prv == nil {
		return nil, ErrNoPrivateKey
	}
	return p.prv.EdSign(msg)
}

// Verify checks sig against msg using the peer's public key.
func (p *Peer) Verify(msg []byte, sig *ed25519.EdSignature) (bool, error) {
	return p.pub.EdVerify(msg, sig)
}
