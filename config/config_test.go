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
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node-config.json")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseConfigMissingFile(t *testing.T) {
	if err := ParseConfig(filepath.Join(t.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestParseConfigPopulatesCfg(t *testing.T) {
	path := writeConfig(t, `{
		"environ": {"HOME": "/var/lib/ppn-node"},
		"key": "auto",
		"accept": {"inproc": "true", "ip4": {"port": "4001"}}
	}`)
	if err := ParseConfig(path); err != nil {
		t.Fatal(err)
	}
	if Cfg == nil {
		t.Fatal("expected Cfg to be populated")
	}
	if Cfg.Env["HOME"] != "/var/lib/ppn-node" {
		t.Fatalf("expected environ HOME captured, got %q", Cfg.Env["HOME"])
	}
	if got := Cfg.Root.Get("key", ""); got != "auto" {
		t.Fatalf("expected key=auto, got %q", got)
	}
	if got := Cfg.Root.GetChild("accept").GetChild("ip4").Get("port", ""); got != "4001" {
		t.Fatalf("expected port=4001, got %q", got)
	}
}

func TestParseConfigSubstitutesEnvironVariables(t *testing.T) {
	path := writeConfig(t, `{
		"environ": {"BASE": "/srv/ppn", "SUB": "${BASE}/data"},
		"storage": {"path": "${SUB}/rdb"}
	}`)
	if err := ParseConfig(path); err != nil {
		t.Fatal(err)
	}
	if got := Cfg.Root.GetChild("storage").Get("path", ""); got != "/srv/ppn/data/rdb" {
		t.Fatalf("expected fully substituted path, got %q", got)
	}
}

func TestParseConfigLeavesUnresolvedVariablesUntouched(t *testing.T) {
	path := writeConfig(t, `{
		"environ": {"KNOWN": "value"},
		"storage": {"path": "${UNKNOWN}/x"}
	}`)
	if err := ParseConfig(path); err != nil {
		t.Fatal(err)
	}
	if got := Cfg.Root.GetChild("storage").Get("path", ""); got != "${UNKNOWN}/x" {
		t.Fatalf("expected unresolved variable left untouched, got %q", got)
	}
}
