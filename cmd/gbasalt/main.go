// Copyright 2014 The go-ethereum Authors
// Copyright 2025 The Basalt Network Authors
// This file is part of gbasalt.
//
// gbasalt is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// gbasalt is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with gbasalt. If not, see <http://www.gnu.org/licenses/>.

// gbasalt is the command-line entry point into the Basalt network.
package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/basalt-network/gbasalt/core"
	"github.com/basalt-network/gbasalt/crypto/bls"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
	"github.com/basalt-network/gbasalt/node"
	"github.com/basalt-network/gbasalt/params"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file with chain parameters and genesis accounts",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the chain database (in-memory when empty)",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "Network name used in logs",
		Value: "dev",
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chainid",
		Usage: "Chain identifier (overrides the config file)",
	}
	httpPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP-RPC server listening port",
		Value: 8545,
	}
	p2pPortFlag = &cli.IntFlag{
		Name:  "p2p.port",
		Usage: "Network listening port",
		Value: 30303,
	}
	peersFlag = &cli.StringFlag{
		Name:  "peers",
		Usage: "Comma separated host:port list of initial peers",
	}
	validatorIndexFlag = &cli.IntFlag{
		Name:  "validator.index",
		Usage: "Index of this node in the genesis validator set (-1 observes)",
		Value: -1,
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging level (debug, info, warn, error)",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:  "gbasalt",
		Usage: "the Basalt network node",
		Flags: []cli.Flag{
			configFlag, dataDirFlag, networkFlag, chainIDFlag,
			httpPortFlag, p2pPortFlag, peersFlag, validatorIndexFlag,
			verbosityFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Fatal:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(ctx.String(verbosityFlag.Name))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	chainCfg := *params.DefaultChainConfig
	chain := &chainCfg
	genesis := core.DeveloperGenesis(nil)
	if path := ctx.String(configFlag.Name); path != "" {
		chain, genesis, err = node.LoadConfigFile(path)
		if err != nil {
			return err
		}
	}
	cfg := node.Config{
		Chain:          chain,
		Genesis:        genesis,
		DataDir:        ctx.String(dataDirFlag.Name),
		Network:        ctx.String(networkFlag.Name),
		HTTPPort:       ctx.Int(httpPortFlag.Name),
		P2PPort:        ctx.Int(p2pPortFlag.Name),
		ValidatorIndex: ctx.Int(validatorIndexFlag.Name),
	}
	if ctx.IsSet(chainIDFlag.Name) {
		cfg.Chain.ChainID = ctx.Uint64(chainIDFlag.Name)
	}
	if peers := ctx.String(peersFlag.Name); peers != "" {
		cfg.Peers = strings.Split(peers, ",")
	}
	// Environment hints override flags, so orchestrated deployments can
	// configure identical images per node.
	if err := cfg.ApplyEnvironment(); err != nil {
		return err
	}
	genesis.Config = cfg.Chain

	// Ephemeral identity keys; persistent key management is the operator's
	// wallet tooling, not the node's.
	if _, cfg.NodeKey, err = ed25519.GenerateKey(rand.Reader); err != nil {
		return err
	}
	if cfg.BlsKey, err = bls.GenerateKey(); err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	n.Start()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.WithField("signal", sig.String()).Info("shutting down")
	n.Stop()
	return nil
}
