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

// Package introspect is a node feature exposing read-only visibility
// into the running node over HTTP: a plain JSON endpoint and a JSON-RPC
// service, served by a gorilla/mux Router wrapped in an http.Server whose
// lifetime is tied to a context, shut down on cancellation rather than
// left running.
package introspect

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ppn/addr"
	"ppn/config"
	"ppn/featuresvc"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/rpc"
	rpcjson "github.com/gorilla/rpc/json"
)

// DefaultEndpoint is used when the config subtree does not name one.
const DefaultEndpoint = "127.0.0.1:4040"

// Feature serves the node's declared-address set over HTTP
// (GET /declared) and JSON-RPC (POST /rpc).
type Feature struct {
	endpoint string
	fsvc     *featuresvc.Service
	srv      *http.Server
}

// Configure reads "endpoint" (default DefaultEndpoint).
func (f *Feature) Configure(conf *config.Tree) error {
	f.endpoint = conf.Get("endpoint", DefaultEndpoint)
	return nil
}

// Start builds the router and begins serving, satisfying the node
// coordinator's NodeFeature capability.
func (f *Feature) Start(ctx context.Context, fsvc *featuresvc.Service) error {
	f.fsvc = fsvc

	router := mux.NewRouter()
	router.HandleFunc("/declared", f.handleDeclared).Methods(http.MethodGet)

	rpcSrv := rpc.NewServer()
	rpcSrv.RegisterCodec(rpcjson.NewCodec(), "application/json")
	if err := rpcSrv.RegisterService(&API{fsvc: fsvc}, ""); err != nil {
		return err
	}
	router.Handle("/rpc", rpcSrv)

	f.srv = &http.Server{
		Handler:      router,
		Addr:         f.endpoint,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	go func() {
		if err := f.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf(logger.WARN, "[introspect] server listen failed: %s", err.Error())
		}
	}()
	go func() {
		<-ctx.Done()
		if err := f.srv.Shutdown(context.Background()); err != nil {
			logger.Printf(logger.WARN, "[introspect] server shutdown failed: %s", err.Error())
		}
	}()
	return nil
}

// Stop shuts the server down; the context-driven goroutine started in
// Start also does this, so Stop only matters when the node is torn down
// without its context already being cancelled.
func (f *Feature) Stop() {
	if f.srv != nil {
		_ = f.srv.Shutdown(context.Background())
	}
}

func (f *Feature) handleDeclared(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(declaredResponse{
		Declared: addressStrings(f.fsvc.GetDeclared()),
	})
}

type declaredResponse struct {
	Declared []string `json:"declared"`
}

func addressStrings(addrs []addr.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
