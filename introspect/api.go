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
	"net/http"

	"ppn/featuresvc"
)

// API is the JSON-RPC service registered at "/rpc", following
// gorilla/rpc's method shape: func(r *http.Request, args *In, reply
// *Out) error.
type API struct {
	fsvc *featuresvc.Service
}

// GetDeclaredArgs takes no parameters; it exists so the method shape
// matches what gorilla/rpc's codec expects to unmarshal into.
type GetDeclaredArgs struct{}

// GetDeclaredReply reports the node's current declared-address set.
type GetDeclaredReply struct {
	Declared []string `json:"declared"`
}

// GetDeclared mirrors the HTTP /declared endpoint, exposed over JSON-RPC
// for clients that already speak gorilla/rpc.
func (a *API) GetDeclared(r *http.Request, args *GetDeclaredArgs, reply *GetDeclaredReply) error {
	reply.Declared = addressStrings(a.fsvc.GetDeclared())
	return nil
}
