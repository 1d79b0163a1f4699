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

package config

import (
	"regexp"
)

// Tree is an ordered key/value configuration tree: every node carries a
// scalar Value plus an ordered list of named children, and the same key
// may appear more than once (e.g. repeated "custom" address entries or
// repeated key-material children).
type Tree struct {
	Value    string
	order    []string
	children map[string][]*Tree
}

// NewTree builds a leaf tree node with the given scalar value.
func NewTree(value string) *Tree {
	return &Tree{Value: value}
}

// Put appends a named child, preserving insertion order and allowing
// duplicate keys.
func (t *Tree) Put(key string, child *Tree) *Tree {
	if t.children == nil {
		t.children = make(map[string][]*Tree)
	}
	if _, ok := t.children[key]; !ok {
		t.order = append(t.order, key)
	}
	t.children[key] = append(t.children[key], child)
	return t
}

// PutValue is a convenience wrapper around Put for scalar children.
func (t *Tree) PutValue(key, value string) *Tree {
	return t.Put(key, NewTree(value))
}

// Get returns the scalar value of the first child named key, or def if
// no such child exists.
func (t *Tree) Get(key, def string) string {
	if t == nil {
		return def
	}
	if cs, ok := t.children[key]; ok && len(cs) > 0 {
		return cs[0].Value
	}
	return def
}

// GetChild returns the first child tree named key, or an empty tree if
// none exists (so chained Get/GetChild calls on a missing branch are
// safe and return defaults throughout).
func (t *Tree) GetChild(key string) *Tree {
	if t == nil {
		return &Tree{}
	}
	if cs, ok := t.children[key]; ok && len(cs) > 0 {
		return cs[0]
	}
	return &Tree{}
}

// Children returns every child named key, in insertion order.
func (t *Tree) Children(key string) []*Tree {
	if t == nil {
		return nil
	}
	return t.children[key]
}

// Entry pairs a child key with its tree, for ordered whole-tree iteration.
type Entry struct {
	Key  string
	Tree *Tree
}

// All returns every direct child in insertion order, duplicates included.
func (t *Tree) All() []Entry {
	if t == nil {
		return nil
	}
	var out []Entry
	for _, k := range t.order {
		for _, c := range t.children[k] {
			out = append(out, Entry{Key: k, Tree: c})
		}
	}
	return out
}

// boolean literals accepted by ParseBool, case-insensitively.
var (
	reTrue  = regexp.MustCompile(`(?i)^(t|true|on|enable|allow|1)$`)
	reFalse = regexp.MustCompile(`(?i)^(f|false|off|disable|deny|0)$`)
)

// ParseBool parses the node runtime's accepted boolean vocabulary.
func ParseBool(s string) (bool, error) {
	if reTrue.MatchString(s) {
		return true, nil
	}
	if reFalse.MatchString(s) {
		return false, nil
	}
	return false, ErrBadBoolValue(s)
}

// ErrBadBoolValue reports a value that isn't a recognized boolean literal.
type ErrBadBoolValue string

func (e ErrBadBoolValue) Error() string {
	return "bad node boolean value provided: " + string(e)
}
