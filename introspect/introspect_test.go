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

package introspect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ppn/addr"
	"ppn/config"
	"ppn/featuresvc"
)

func TestConfigureDefaultEndpoint(t *testing.T) {
	f := &Feature{}
	if err := f.Configure(config.NewTree("")); err != nil {
		t.Fatal(err)
	}
	if f.endpoint != DefaultEndpoint {
		t.Fatalf("expected default endpoint %q, got %q", DefaultEndpoint, f.endpoint)
	}
}

func TestConfigureCustomEndpoint(t *testing.T) {
	f := &Feature{}
	conf := config.NewTree("")
	conf.PutValue("endpoint", "127.0.0.1:9999")
	if err := f.Configure(conf); err != nil {
		t.Fatal(err)
	}
	if f.endpoint != "127.0.0.1:9999" {
		t.Fatalf("expected custom endpoint, got %q", f.endpoint)
	}
}

func TestHandleDeclaredReportsCurrentSet(t *testing.T) {
	fsvc := featuresvc.New()
	fsvc.NoteDeclared(addr.NewAddress(addr.SchemeTCP4, "203.0.113.1:4001"))

	f := &Feature{fsvc: fsvc}
	req := httptest.NewRequest(http.MethodGet, "/declared", nil)
	rec := httptest.NewRecorder()
	f.handleDeclared(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body declaredResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Declared) != 1 || body.Declared[0] != "tcp4://203.0.113.1:4001" {
		t.Fatalf("unexpected declared set: %v", body.Declared)
	}
}

func TestAddressStringsEmpty(t *testing.T) {
	out := addressStrings(nil)
	if len(out) != 0 {
		t.Fatalf("expected an empty slice, got %v", out)
	}
}
