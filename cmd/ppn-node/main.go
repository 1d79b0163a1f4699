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

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"ppn/config"
	"ppn/node"

	"github.com/bfix/gospel/logger"
)

func main() {
	defer func() {
		logger.Println(logger.INFO, "[node] Bye.")
		logger.Flush()
	}()
	logger.Println(logger.INFO, "[node] Starting node...")

	var (
		cfgFile  string
		logLevel int
	)
	flag.StringVar(&cfgFile, "c", "node-config.json", "node configuration file")
	flag.IntVar(&logLevel, "L", logger.DBG, "node log level (default: DBG)")
	flag.Parse()

	if err := config.ParseConfig(cfgFile); err != nil {
		logger.Printf(logger.ERROR, "[node] invalid configuration file: %s\n", err.Error())
		return
	}
	logger.SetLogLevel(logLevel)

	ctx, cancel := context.WithCancel(context.Background())

	n := node.New()
	if err := n.Start(ctx, config.Cfg.Root); err != nil {
		logger.Printf(logger.ERROR, "[node] failed to start: %s\n", err.Error())
		cancel()
		return
	}
	logger.Printf(logger.INFO, "[node] running as %s\n", n.ID())

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Printf(logger.INFO, "[node] terminating (on signal '%s')\n", sig)

	cancel()
	n.Stop()
}
