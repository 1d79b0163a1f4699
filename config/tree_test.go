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

func TestParseBoolVocabulary(t *testing.T) {
	trues := []string{"t", "true", "TRUE", "on", "On", "enable", "allow", "1"}
	for _, s := range trues {
		v, err := ParseBool(s)
		if err != nil || !v {
			t.Fatalf("ParseBool(%q) = %v, %v; want true", s, v, err)
		}
	}
	falses := []string{"f", "false", "FALSE", "off", "disable", "deny", "0"}
	for _, s := range falses {
		v, err := ParseBool(s)
		if err != nil || v {
			t.Fatalf("ParseBool(%q) = %v, %v; want false", s, v, err)
		}
	}
}

func TestParseBoolRejectsAnythingElse(t *testing.T) {
	for _, s := range []string{"maybe", "yes", "no", "", "10", "truthy"} {
		if _, err := ParseBool(s); err == nil {
			t.Fatalf("ParseBool(%q) should have failed", s)
		}
	}
}

func TestTreeGetReturnsFirstChildAndDefault(t *testing.T) {
	tr := NewTree("")
	tr.PutValue("port", "4001")
	tr.PutValue("port", "4002")
	if got := tr.Get("port", ""); got != "4001" {
		t.Fatalf("expected first child value, got %q", got)
	}
	if got := tr.Get("missing", "fallback"); got != "fallback" {
		t.Fatalf("expected the default for a missing key, got %q", got)
	}
}

func TestTreeGetChildOnMissingBranchIsSafe(t *testing.T) {
	tr := NewTree("")
	if got := tr.GetChild("a").GetChild("b").Get("c", "d"); got != "d" {
		t.Fatalf("expected chained defaults on a missing branch, got %q", got)
	}
}

func TestTreeChildrenPreservesOrderAndDuplicates(t *testing.T) {
	tr := NewTree("")
	tr.PutValue("custom", "tcp4://10.0.0.1:1")
	tr.PutValue("other", "x")
	tr.PutValue("custom", "tcp4://10.0.0.2:1")

	cs := tr.Children("custom")
	if len(cs) != 2 || cs[0].Value != "tcp4://10.0.0.1:1" || cs[1].Value != "tcp4://10.0.0.2:1" {
		t.Fatalf("unexpected custom children: %+v", cs)
	}

	all := tr.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries from All, got %d", len(all))
	}
}
