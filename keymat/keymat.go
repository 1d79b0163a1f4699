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

// Package keymat derives the node's cryptographic identity (a NodeKey)
// from labelled environment material, following the key configuration
// grammar described for the ppn node.
package keymat

import (
	"errors"
	"fmt"

	"ppn/config"

	"github.com/bfix/gospel/logger"
)

// KeySize is the digest size of a NodeKey: the accumulator's default
// matches a 512-bit cryptographic hash (BLAKE2b-512).
const KeySize = 64

// NodeKey is the fixed-width output of the key material accumulator.
type NodeKey [KeySize]byte

// Bytes returns the key's binary representation.
func (k NodeKey) Bytes() []byte {
	return k[:]
}

// KeyMaterialError wraps a failure to collect key material from a
// particular source (environment not available, permission denied, ...).
type KeyMaterialError struct {
	Kind string
	Err  error
}

func (e *KeyMaterialError) Error() string {
	return fmt.Sprintf("key material %q unavailable: %s", e.Kind, e.Err)
}

func (e *KeyMaterialError) Unwrap() error { return e.Err }

// ErrBadKind is returned when a config entry names an unknown fetcher.
var ErrBadKind = errors.New("bad key material kind")

// fetcher collects key material of one kind into the accumulator.
type fetcher func(conf *config.Tree, acc *Accumulator) error

// defaultKinds is the order of fetchers run when the "key" configuration
// entry is empty or the literal "auto".
var defaultKinds = []string{
	"memInfo", "cpuInfo", "diskInfo", "netMacAddress", "osInfo",
	"appPath", "domainname", "hostname", "username",
}

var fetchers = map[string]fetcher{
	"memInfo":       fetchMemInfo,
	"cpuInfo":       fetchCPUInfo,
	"diskInfo":      fetchDiskInfo,
	"netMacAddress": fetchNetMacAddress,
	"osInfo":        fetchOSInfo,
	"appPath":       fetchAppPath,
	"appPid":        fetchAppPid,
	"domainname":    fetchDomainname,
	"hostname":      fetchHostname,
	"username":      fetchUsername,
	"random":        fetchRandom,
	"constant":      fetchConstant,
}

// ParseKey derives a NodeKey from the "key" configuration subtree.
//
// If the subtree's scalar value is empty or "auto", defaultKinds run in
// order, followed by a constant("auto") barrier; any additional explicit
// children of the subtree then run afterwards. If the scalar value names
// a single kind, only that kind runs.
func ParseKey(conf *config.Tree) (key NodeKey, err error) {
	acc, err := NewAccumulator()
	if err != nil {
		return key, err
	}

	run := func(kind string, sub *config.Tree) error {
		f, ok := fetchers[kind]
		if !ok {
			return fmt.Errorf("%w: %s", ErrBadKind, kind)
		}
		acc.Add([]byte(kind))
		if err := f(sub, acc); err != nil {
			return err
		}
		acc.Barrier()
		return nil
	}

	// default kinds run against an empty subtree; a same-named explicit
	// child is not consumed here, it runs again in the children loop below
	// with its own subtree.
	kind := conf.Value
	if kind == "" || kind == "auto" {
		for _, k := range defaultKinds {
			if err = run(k, config.NewTree("")); err != nil {
				return key, err
			}
		}
		if err = run("constant", config.NewTree("auto")); err != nil {
			return key, err
		}
	} else {
		if err = run(kind, config.NewTree("")); err != nil {
			return key, err
		}
	}

	for _, e := range conf.All() {
		if err = run(e.Key, e.Tree); err != nil {
			return key, err
		}
	}

	var out [KeySize]byte
	acc.Finish(out[:])
	logger.Printf(logger.DBG, "[keymat] derived node key (%d bytes)", KeySize)
	return NodeKey(out), nil
}
