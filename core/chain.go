// Copyright 2014 The go-ethereum Authors
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

package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/basdb"
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/consensus/misc"
	"github.com/basalt-network/gbasalt/core/state"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/core/vm"
	"github.com/basalt-network/gbasalt/params"
	"github.com/basalt-network/gbasalt/staking"
)

const blockCacheSize = 256

var (
	headBlockKey = []byte("LastBlock")

	blockPrefix  = []byte("b") // blockPrefix + hash -> block body
	numberPrefix = []byte("n") // numberPrefix + number -> hash
)

// BlockChain holds the finalized chain: the block store, the replicated
// state and the stake registry. Its lock is the single-writer guard the
// concurrency model requires: an entire block application runs under the
// write lock, and every reader is blocked for that whole span.
type BlockChain struct {
	mu sync.RWMutex

	config  *params.ChainConfig
	db      basdb.Database
	statedb *state.StateDB
	staking *staking.StakingState
	machine vm.VM

	current    *types.Block
	blockCache *lru.Cache // hash -> *types.Block

	log *logrus.Entry
}

// NewBlockChain opens the chain over db. An empty store is initialized from
// genesis; a populated one is recovered by replaying its blocks from block
// one, which also rebuilds the state and the registry.
func NewBlockChain(config *params.ChainConfig, db basdb.Database, genesis *Genesis, st *staking.StakingState, machine vm.VM) (*BlockChain, error) {
	cache, _ := lru.New(blockCacheSize)
	bc := &BlockChain{
		config:     config,
		db:         db,
		statedb:    state.New(),
		staking:    st,
		machine:    machine,
		blockCache: cache,
		log:        logrus.WithField("module", "chain"),
	}
	genesisBlock := genesis.Commit(bc.statedb)
	if stored, err := db.Get(numberKey(0)); err == nil {
		if common.BytesToHash(stored) != genesisBlock.Hash() {
			return nil, fmt.Errorf("genesis mismatch: store %x computed %s", stored, genesisBlock.Hash().Hex())
		}
	}
	if err := bc.writeBlock(genesisBlock); err != nil {
		return nil, err
	}
	bc.current = genesisBlock

	head, err := bc.readHead()
	if err != nil {
		return nil, err
	}
	if head != nil && head.Number() > 0 {
		if err := bc.replay(head.Number()); err != nil {
			return nil, fmt.Errorf("chain recovery failed: %w", err)
		}
	} else if err := bc.db.Put(headBlockKey, genesisBlock.Hash().Bytes()); err != nil {
		return nil, err
	}
	bc.log.WithFields(logrus.Fields{
		"number":  bc.current.Number(),
		"hash":    bc.current.Hash().TerminalString(),
		"chainID": config.ChainID,
	}).Info("chain loaded")
	return bc, nil
}

// CurrentBlock returns the head of the finalized chain.
func (bc *BlockChain) CurrentBlock() *types.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.current
}

// Config returns the chain parameters.
func (bc *BlockChain) Config() *params.ChainConfig { return bc.config }

// GetAccount reads an account from the current state.
func (bc *BlockChain) GetAccount(addr common.Address) *types.StateAccount {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.statedb.GetAccount(addr)
}

// GetBalance reads a balance from the current state.
func (bc *BlockChain) GetBalance(addr common.Address) *uint256.Int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.statedb.GetBalance(addr)
}

// GetNonce reads a nonce from the current state.
func (bc *BlockChain) GetNonce(addr common.Address) uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.statedb.GetNonce(addr)
}

// NextBaseFee returns the base fee of the block that would follow the head.
func (bc *BlockChain) NextBaseFee() *uint256.Int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return misc.CalcBaseFee(bc.config, bc.current.Header())
}

// ValidateForPool runs the admission ladder against the current state, for
// the mempool and RPC submission paths.
func (bc *BlockChain) ValidateForPool(tx *types.Transaction) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return ValidateTransaction(bc.config, bc.statedb, tx, misc.CalcBaseFee(bc.config, bc.current.Header()))
}

// BuildBlock assembles a candidate block on the current head. The read lock
// covers the state copy, so a concurrent insert cannot tear it.
func (bc *BlockChain) BuildBlock(candidates []*types.Transaction, proposer common.Address, nowMs uint64) (*types.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return BuildBlock(bc.config, bc.current.Header(), bc.statedb, candidates, proposer, bc.staking, bc.machine, nowMs)
}

// InsertBlock verifies and applies a finalized block on top of the head.
//
// Verification is two-pass: the block is first replayed on a throwaway state
// copy against a staking simulator, checking every header commitment. Only
// a fully verified block is applied to the canonical state and the live
// registry. A refused block therefore leaves no side effects anywhere.
func (bc *BlockChain) InsertBlock(block *types.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.insert(block)
}

func (bc *BlockChain) insert(block *types.Block) error {
	parent := bc.current
	header := block.Header()

	if block.Hash() == parent.Hash() {
		return ErrKnownBlock
	}
	if header.Number != parent.Number()+1 {
		return fmt.Errorf("%w: have %d want %d", ErrBadBlockNumber, header.Number, parent.Number()+1)
	}
	if header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: have %s want %s", ErrBadParentHash, header.ParentHash.TerminalString(), parent.Hash().TerminalString())
	}
	if header.TimestampMs <= parent.TimestampMs() {
		return fmt.Errorf("%w: have %d parent %d", ErrBadTimestamp, header.TimestampMs, parent.TimestampMs())
	}
	if header.ChainID != bc.config.ChainID {
		return fmt.Errorf("%w: block %d node %d", ErrWrongChain, header.ChainID, bc.config.ChainID)
	}
	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("%w: used %d limit %d", ErrGasOverLimit, header.GasUsed, header.GasLimit)
	}
	if len(block.Transactions()) > bc.config.MaxTransactionsPerBlock {
		return fmt.Errorf("%w: %d txs", ErrTooManyTransactions, len(block.Transactions()))
	}
	if want := misc.CalcBaseFee(bc.config, parent.Header()); !header.BaseFee.Eq(want) {
		return fmt.Errorf("%w: have %v want %v", ErrBaseFeeMismatch, header.BaseFee, want)
	}
	if got := types.DeriveTxsRoot(block.Transactions()); got != header.TransactionsRoot {
		return fmt.Errorf("%w: have %s header %s", ErrTxRootMismatch, got.Hex(), header.TransactionsRoot.Hex())
	}

	// First pass: full replay on a copy. Any mismatch refuses the block.
	if err := VerifyBlockReceipts(bc.config, bc.statedb, block, bc.staking, bc.machine); err != nil {
		return err
	}

	// Second pass: canonical apply. The registry takes the real staking
	// side effects and the unbonding queue pops its completed entries.
	unbonded := bc.staking.ProcessUnbonding(header.Number)
	if _, _, err := Process(bc.config, bc.statedb, block, bc.staking, unbonded, bc.machine); err != nil {
		// The copy replay succeeded, so the canonical one cannot fail
		// without the database being corrupted underneath us.
		return fmt.Errorf("canonical apply diverged from verification: %w", err)
	}
	bc.statedb.Finalise()

	if err := bc.writeBlock(block); err != nil {
		return err
	}
	if err := bc.db.Put(headBlockKey, block.Hash().Bytes()); err != nil {
		return err
	}
	bc.current = block
	bc.log.WithFields(logrus.Fields{
		"number": header.Number,
		"hash":   block.Hash().TerminalString(),
		"txs":    len(block.Transactions()),
		"gas":    header.GasUsed,
	}).Info("imported block")
	return nil
}

// GetBlockByHash retrieves a block from the cache or the store.
func (bc *BlockChain) GetBlockByHash(hash common.Hash) *types.Block {
	if cached, ok := bc.blockCache.Get(hash); ok {
		return cached.(*types.Block)
	}
	enc, err := bc.db.Get(append(blockPrefix, hash.Bytes()...))
	if err != nil {
		return nil
	}
	block, err := types.DecodeBlock(enc)
	if err != nil {
		bc.log.WithField("hash", hash.Hex()).Error("corrupted block in store")
		return nil
	}
	bc.blockCache.Add(hash, block)
	return block
}

// GetBlockByNumber retrieves a canonical block by height.
func (bc *BlockChain) GetBlockByNumber(number uint64) *types.Block {
	hashBytes, err := bc.db.Get(numberKey(number))
	if err != nil {
		return nil
	}
	return bc.GetBlockByHash(common.BytesToHash(hashBytes))
}

// writeBlock persists the block body and its number index.
func (bc *BlockChain) writeBlock(block *types.Block) error {
	if err := bc.db.Put(append(blockPrefix, block.Hash().Bytes()...), block.Encode()); err != nil {
		return err
	}
	if err := bc.db.Put(numberKey(block.Number()), block.Hash().Bytes()); err != nil {
		return err
	}
	bc.blockCache.Add(block.Hash(), block)
	return nil
}

// readHead resolves the stored head block, nil when the store is fresh.
func (bc *BlockChain) readHead() (*types.Block, error) {
	hashBytes, err := bc.db.Get(headBlockKey)
	if errors.Is(err, basdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bc.GetBlockByHash(common.BytesToHash(hashBytes)), nil
}

// replay re-applies blocks 1..head after a restart, rebuilding the state
// and the stake registry from the stored chain.
func (bc *BlockChain) replay(head uint64) error {
	bc.log.WithField("head", head).Info("replaying stored chain")
	for n := uint64(1); n <= head; n++ {
		block := bc.GetBlockByNumber(n)
		if block == nil {
			return fmt.Errorf("missing block %d in store", n)
		}
		if err := bc.insert(block); err != nil {
			return fmt.Errorf("block %d: %w", n, err)
		}
	}
	return nil
}

func numberKey(number uint64) []byte {
	key := make([]byte, len(numberPrefix)+8)
	copy(key, numberPrefix)
	binary.BigEndian.PutUint64(key[len(numberPrefix):], number)
	return key
}
