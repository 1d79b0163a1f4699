// This file is part of ppn-node, a peer-to-peer node runtime in Golang.
// Copyright (C) 2019, 2020 Bernd Fix  >Y<
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

package config

import "testing"

func TestDecodeTreeScalarsAndNesting(t *testing.T) {
	tree, err := DecodeTree([]byte(`{
		"key": "auto",
		"accept": {"inproc": "true", "ip4": {"port": "4001"}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := tree.Get("key", ""); got != "auto" {
		t.Fatalf("expected key=auto, got %q", got)
	}
	accept := tree.GetChild("accept")
	if got := accept.Get("inproc", ""); got != "true" {
		t.Fatalf("expected inproc=true, got %q", got)
	}
	if got := accept.GetChild("ip4").Get("port", ""); got != "4001" {
		t.Fatalf("expected port=4001, got %q", got)
	}
}

func TestDecodeTreeArrayBecomesRepeatedKey(t *testing.T) {
	tree, err := DecodeTree([]byte(`{
		"connect": {"custom": ["tcp4://10.0.0.1:4001", "tcp4://10.0.0.2:4001"]}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	children := tree.GetChild("connect").Children("custom")
	if len(children) != 2 {
		t.Fatalf("expected 2 custom entries, got %d", len(children))
	}
	if children[0].Value != "tcp4://10.0.0.1:4001" || children[1].Value != "tcp4://10.0.0.2:4001" {
		t.Fatalf("unexpected custom entries: %v / %v", children[0].Value, children[1].Value)
	}
}

func TestDecodeTreePreservesDuplicateObjectKeys(t *testing.T) {
	// Valid JSON permits a repeated object key; encoding/json's map-based
	// decoding would silently keep only the last one.
	tree, err := DecodeTree([]byte(`{"custom": "tcp4://10.0.0.1:4001", "custom": "tcp4://10.0.0.2:4001"}`))
	if err != nil {
		t.Fatal(err)
	}
	children := tree.Children("custom")
	if len(children) != 2 {
		t.Fatalf("expected both duplicate keys preserved, got %d entries", len(children))
	}
}

func TestDecodeTreePreservesInsertionOrder(t *testing.T) {
	tree, err := DecodeTree([]byte(`{"b": "1", "a": "2", "c": "3"}`))
	if err != nil {
		t.Fatal(err)
	}
	entries := tree.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	order := []string{entries[0].Key, entries[1].Key, entries[2].Key}
	want := []string{"b", "a", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected insertion order %v, got %v", want, order)
		}
	}
}

func TestDecodeTreeRejectsNonObjectTopLevel(t *testing.T) {
	if _, err := DecodeTree([]byte(`"just a string"`)); err == nil {
		t.Fatal("expected an error for a non-object top-level value")
	}
}

func TestDecodeTreeNumbersAndBooleans(t *testing.T) {
	tree, err := DecodeTree([]byte(`{"dhtReplLevel": 3, "enabled": true}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := tree.Get("dhtReplLevel", ""); got != "3" {
		t.Fatalf("expected \"3\", got %q", got)
	}
	if got := tree.Get("enabled", ""); got != "true" {
		t.Fatalf("expected \"true\", got %q", got)
	}
}
