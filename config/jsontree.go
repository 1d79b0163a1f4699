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

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeTree parses a JSON object into a Tree, preserving both key order
// and duplicate keys, something decoding into a plain
// map[string]interface{} cannot do, since encoding/json folds duplicate
// object keys down to their last occurrence and Go maps carry no order at
// all. A repeated key in the config grammar (several "custom" address
// entries, several explicit key-material children) needs both, so this
// walks the token stream by hand instead.
//
// A JSON array value is a second, more ergonomic way to write a repeated
// key: {"custom": ["tcp4://...", "tcp4://..."]} puts two "custom"
// children, in array order, same as writing the key twice.
func DecodeTree(data []byte) (*Tree, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("config: top-level JSON value must be an object")
	}
	return decodeObject(dec)
}

// decodeObject reads object members up to (and including) the closing
// '}' delimiter, the opening '{' having already been consumed by the
// caller, returning the tree they build.
func decodeObject(dec *json.Decoder) (*Tree, error) {
	tree := &Tree{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("config: expected a string object key, got %v", keyTok)
		}
		if err := decodeChild(dec, tree, key); err != nil {
			return nil, err
		}
	}
	// consume the closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return tree, nil
}

// decodeChild reads exactly one JSON value (object, array, string, number,
// bool, or null) and Puts the resulting child(ren) into parent under key.
// An array Puts one child per element, in order, reusing key for each:
// the token-stream equivalent of writing the same key more than once.
func decodeChild(dec *json.Decoder, parent *Tree, key string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			child, err := decodeObject(dec)
			if err != nil {
				return err
			}
			parent.Put(key, child)
		case '[':
			for dec.More() {
				if err := decodeChild(dec, parent, key); err != nil {
					return err
				}
			}
			// consume the closing ']'
			if _, err := dec.Token(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("config: unexpected delimiter %q", t)
		}
	case string:
		parent.Put(key, NewTree(t))
	case float64:
		parent.Put(key, NewTree(strconv.FormatFloat(t, 'f', -1, 64)))
	case bool:
		parent.Put(key, NewTree(strconv.FormatBool(t)))
	case nil:
		parent.Put(key, NewTree(""))
	default:
		return fmt.Errorf("config: unsupported JSON token %v", tok)
	}
	return nil
}
