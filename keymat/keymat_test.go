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
	"bytes"
	"testing"

	"ppn/config"
)

func TestParseKeyDeterministic(t *testing.T) {
	conf := config.NewTree("")
	conf.PutValue("constant", "fixed-environment-marker")

	k1, err := ParseKey(conf)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	k2, err := ParseKey(conf)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("ParseKey must be deterministic for the same configuration")
	}
}

func TestParseKeyDiffersByOrder(t *testing.T) {
	a := config.NewTree("")
	a.PutValue("constant", "alpha")
	a.PutValue("constant", "beta")

	b := config.NewTree("")
	b.PutValue("constant", "beta")
	b.PutValue("constant", "alpha")

	ka, err := ParseKey(a)
	if err != nil {
		t.Fatalf("ParseKey(a): %v", err)
	}
	kb, err := ParseKey(b)
	if err != nil {
		t.Fatalf("ParseKey(b): %v", err)
	}
	if bytes.Equal(ka.Bytes(), kb.Bytes()) {
		t.Fatal("swapping fetcher order must change the derived key")
	}
}

func TestParseKeySingleKind(t *testing.T) {
	conf := config.NewTree("constant")
	conf.PutValue("constant", "literal-value")
	key, err := ParseKey(conf)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if len(key.Bytes()) != KeySize {
		t.Fatalf("expected %d byte key, got %d", KeySize, len(key.Bytes()))
	}
}

func TestParseKeySingleKindUsesEmptySubtree(t *testing.T) {
	conf := config.NewTree("constant")
	key, err := ParseKey(conf)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}

	auto := config.NewTree("auto")
	autoKey, err := ParseKey(auto)
	if err != nil {
		t.Fatalf("ParseKey(auto): %v", err)
	}

	want, err := NewAccumulator()
	if err != nil {
		t.Fatalf("NewAccumulator: %v", err)
	}
	want.Add([]byte("constant"))
	if err := fetchConstant(config.NewTree(""), want); err != nil {
		t.Fatalf("fetchConstant: %v", err)
	}
	want.Barrier()
	var wantKey [KeySize]byte
	want.Finish(wantKey[:])

	if !bytes.Equal(key.Bytes(), wantKey[:]) {
		t.Fatal("single-kind \"constant\" must hash an empty subtree value, not the kind name itself")
	}
	if bytes.Equal(key.Bytes(), autoKey.Bytes()) {
		t.Fatal("single-kind \"constant\" must differ from the auto path's constant(\"auto\") barrier")
	}
}

func TestParseKeyUnknownKind(t *testing.T) {
	conf := config.NewTree("")
	conf.PutValue("no-such-fetcher", "x")
	if _, err := ParseKey(conf); err == nil {
		t.Fatal("expected an error for an unknown fetcher kind")
	}
}

func TestParseKeyRandomNonDeterministic(t *testing.T) {
	conf := config.NewTree("random")
	k1, err := ParseKey(conf)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	k2, err := ParseKey(conf)
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("the random fetcher must not repeat across invocations")
	}
}

func TestAccumulatorBarrierChangesDigest(t *testing.T) {
	a1, _ := NewAccumulator()
	a1.Add([]byte("foo"))
	a1.Add([]byte("bar"))
	var d1 [KeySize]byte
	a1.Finish(d1[:])

	a2, _ := NewAccumulator()
	a2.Add([]byte("foo"))
	a2.Barrier()
	a2.Add([]byte("bar"))
	var d2 [KeySize]byte
	a2.Finish(d2[:])

	if bytes.Equal(d1[:], d2[:]) {
		t.Fatal("a barrier between chunks must change the digest")
	}
}
