// Copyright 2015 The go-ethereum Authors
// Copyright 2025 The Basalt Network Authors
// This file is part of the gbasalt library.
//
// The gbasalt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gbasalt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gbasalt library. If not, see <http://www.gnu.org/licenses/>.

// Package node composes the subsystems into a running validator: chain,
// mempool, stake registry, epoch manager, consensus engine and routing
// table, wired through one event loop.
package node

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/basdb"
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/consensus/bft"
	"github.com/basalt-network/gbasalt/core"
	"github.com/basalt-network/gbasalt/core/txpool"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
	"github.com/basalt-network/gbasalt/p2p/discover"
	"github.com/basalt-network/gbasalt/staking"
	"github.com/basalt-network/gbasalt/validator"
)

// SubmitResult is what a transaction submitter gets back.
type SubmitResult struct {
	Hash   common.Hash
	Status string // "pending" on acceptance
	Code   string // machine-readable rejection code
	Reason string
}

// Node is the composition root owning every subsystem. Nothing here is a
// process-wide global: two nodes can run in one process.
type Node struct {
	config Config

	db      basdb.Database
	chain   *core.BlockChain
	pool    *txpool.TxPool
	staking *staking.StakingState
	epochs  *validator.EpochManager
	engine  *bft.Engine
	table   *discover.Table

	quit chan struct{}
	wg   sync.WaitGroup
	log  *logrus.Entry
}

// New assembles a node from its config.
func New(config Config) (*Node, error) {
	if config.Chain == nil {
		return nil, errors.New("node: chain config required")
	}
	if err := config.Chain.Sanitize(); err != nil {
		return nil, err
	}
	if err := ValidateDataDir(config.DataDir); err != nil {
		return nil, err
	}
	if config.Genesis == nil {
		return nil, errors.New("node: genesis required")
	}

	var (
		db  basdb.Database
		err error
	)
	if config.DataDir == "" {
		db = basdb.NewMemoryDatabase()
	} else {
		db, err = basdb.NewLevelDBDatabase(filepath.Join(config.DataDir, "chaindata"))
		if err != nil {
			return nil, fmt.Errorf("node: cannot open database: %w", err)
		}
	}

	st := staking.New(config.Chain.MinStake(), config.Chain.UnbondingPeriod)
	chain, err := core.NewBlockChain(config.Chain, db, config.Genesis, st, nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	pool := txpool.New(txpool.Config{ChainID: config.Chain.ChainID})
	pool.SetBaseFee(chain.NextBaseFee())

	epochs := validator.NewEpochManager(st, config.Chain.EpochLength, config.Chain.ValidatorSetSize)
	set := bft.NewValidatorSet(config.GenesisValidators)
	epochs.Bootstrap(set)

	var self common.Address
	if config.ValidatorIndex >= 0 && config.ValidatorIndex < set.Len() {
		self = set.ByIndex(config.ValidatorIndex).Address
	}
	engine := bft.New(bft.Config{
		Self:        self,
		SecretKey:   config.BlsKey,
		ViewTimeout: time.Duration(config.Chain.ViewTimeoutMs) * time.Millisecond,
		MaxInFlight: config.Chain.MaxPipelinedBlocks,
	}, set, bft.StakeWeightedSelector{}, config.Broadcaster, chain.CurrentBlock().Number()+1)

	var table *discover.Table
	if config.NodeKey != nil {
		table = discover.NewTable(discover.PubkeyID(ed25519.PublicFromPrivate(config.NodeKey)))
	}

	return &Node{
		config:  config,
		db:      db,
		chain:   chain,
		pool:    pool,
		staking: st,
		epochs:  epochs,
		engine:  engine,
		table:   table,
		quit:    make(chan struct{}),
		log:     logrus.WithField("module", "node"),
	}, nil
}

// Chain exposes the block chain.
func (n *Node) Chain() *core.BlockChain { return n.chain }

// Pool exposes the mempool.
func (n *Node) Pool() *txpool.TxPool { return n.pool }

// Staking exposes the stake registry.
func (n *Node) Staking() *staking.StakingState { return n.staking }

// Engine exposes the consensus engine.
func (n *Node) Engine() *bft.Engine { return n.engine }

// Table exposes the routing table, nil when no node key is configured.
func (n *Node) Table() *discover.Table { return n.table }

// Start launches the consensus engine, the finality event loop and the
// block production driver.
func (n *Node) Start() {
	n.engine.Start()
	n.wg.Add(2)
	go n.eventLoop()
	go n.productionLoop()
	n.log.WithFields(logrus.Fields{
		"chain":   n.config.Chain.ChainID,
		"network": n.config.Network,
	}).Info("node started")
}

// Stop shuts everything down and releases the database.
func (n *Node) Stop() {
	close(n.quit)
	n.engine.Stop()
	n.wg.Wait()
	n.db.Close()
	n.log.Info("node stopped")
}

// SubmitTransaction runs the admission ladder and admits the transaction to
// the mempool. Rejections carry the stable error code.
func (n *Node) SubmitTransaction(tx *types.Transaction) SubmitResult {
	if err := n.chain.ValidateForPool(tx); err != nil {
		return SubmitResult{Hash: tx.Hash(), Code: core.ErrorCode(err), Reason: err.Error()}
	}
	if err := n.pool.Add(tx); err != nil {
		code := "MalformedTx"
		if errors.Is(err, txpool.ErrAlreadyKnown) {
			code = "AlreadyKnown"
		} else if errors.Is(err, txpool.ErrPoolFull) {
			code = "PoolFull"
		} else if errors.Is(err, txpool.ErrWrongChain) {
			code = "WrongChain"
		}
		return SubmitResult{Hash: tx.Hash(), Code: code, Reason: err.Error()}
	}
	return SubmitResult{Hash: tx.Hash(), Status: "pending"}
}

// eventLoop is the single subscriber of the consensus event channel. It
// applies finalized blocks, evicts confirmed transactions, drives epoch
// transitions and swaps the validator set.
func (n *Node) eventLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.quit:
			return
		case ev := <-n.engine.Events():
			switch ev := ev.(type) {
			case bft.BlockFinalizedEvent:
				n.applyFinalized(ev)
			case bft.ViewChangedEvent:
				n.log.WithField("view", ev.View).Warn("consensus moved to new view")
			}
		}
	}
}

func (n *Node) applyFinalized(ev bft.BlockFinalizedEvent) {
	block, err := types.DecodeBlock(ev.Block)
	if err != nil {
		n.log.WithField("number", ev.Number).Error("finalized block does not decode")
		return
	}
	if err := n.chain.InsertBlock(block); err != nil {
		if errors.Is(err, core.ErrKnownBlock) {
			return
		}
		// A finalized block that fails to apply means state corruption or a
		// quorum of dishonest validators; neither is recoverable here.
		n.log.WithFields(logrus.Fields{
			"number": ev.Number,
			"hash":   ev.BlockHash.TerminalString(),
			"err":    err,
		}).Fatal("finalized block refused by chain")
		return
	}
	n.pool.RemoveConfirmed(block.Transactions())
	n.pool.SetBaseFee(n.chain.NextBaseFee())

	if set, epoch, ok := n.epochs.OnBlockFinalized(block.Number()); ok {
		n.engine.UpdateValidatorSet(set)
		n.log.WithFields(logrus.Fields{
			"epoch":      epoch,
			"validators": set.Len(),
		}).Info("validator set swapped")
	}
}

// productionLoop proposes a block every block interval while this node
// leads the current view.
func (n *Node) productionLoop() {
	defer n.wg.Done()
	interval := time.Duration(n.config.Chain.BlockTimeMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.quit:
			return
		case <-ticker.C:
			leader := n.engine.Leader()
			if leader == nil || !n.engine.IsLeader() {
				continue
			}
			head := n.chain.CurrentBlock()
			if n.engine.NextFinalize() != head.Number()+1 {
				continue // previous proposal still in flight
			}
			candidates := n.pool.Pending(n.config.Chain.MaxTransactionsPerBlock)
			block, err := n.chain.BuildBlock(candidates, leader.Address, uint64(time.Now().UnixMilli()))
			if err != nil {
				n.log.WithField("err", err).Error("block build failed")
				continue
			}
			if err := n.engine.Propose(block.Number(), block.Hash(), block.Encode()); err != nil {
				n.log.WithFields(logrus.Fields{
					"number": block.Number(),
					"err":    err,
				}).Debug("proposal not submitted")
			}
		}
	}
}
