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
	"os"
	"regexp"
	"strings"

	"github.com/bfix/gospel/logger"
)

// Environ holds the "environ" object of a config file: plain string
// variables substituted into every other string value in the tree.
type Environ map[string]string

// Config is the node's parsed configuration: Env is the substitution
// dictionary, Root is everything else in the file (the "key"/"connect"/
// "accept"/"natt"/"features" subtrees the node coordinator reads).
type Config struct {
	Env  Environ
	Root *Tree
}

// Cfg is the global configuration, set by ParseConfig.
var Cfg *Config

// ParseConfig reads a JSON-encoded configuration file into Cfg, using
// DecodeTree so that repeated keys and key order survive, then applies
// "${VAR}" substitutions from its "environ" object to every other string
// value in the tree.
func ParseConfig(fileName string) (err error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	root, err := DecodeTree(data)
	if err != nil {
		return err
	}

	env := make(Environ)
	for _, e := range root.GetChild("environ").All() {
		env[e.Key] = e.Tree.Value
	}

	applySubstitutions(root, env)
	Cfg = &Config{Env: env, Root: root}
	return nil
}

var rxSubst = regexp.MustCompile(`\$\{([^\}]*)\}`)

// substString substitutes every "${VAR}" occurrence in s using env,
// leaving unresolved variables untouched.
func substString(s string, env map[string]string) string {
	matches := rxSubst.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		if len(m[1]) == 0 {
			continue
		}
		subst, ok := env[m[1]]
		if !ok {
			continue
		}
		s = strings.Replace(s, "${"+m[1]+"}", subst, -1)
	}
	return s
}

// applySubstitutions walks every child value in tree, repeatedly
// substituting "${VAR}" references (so a substituted value that itself
// names another variable keeps resolving) before recursing into
// grandchildren.
func applySubstitutions(tree *Tree, env map[string]string) {
	for _, key := range tree.order {
		for _, child := range tree.children[key] {
			s := child.Value
			for {
				s1 := substString(s, env)
				if s1 == s {
					break
				}
				logger.Printf(logger.DBG, "[config] %s --> %s\n", s, s1)
				s = s1
			}
			child.Value = s
			applySubstitutions(child, env)
		}
	}
}
