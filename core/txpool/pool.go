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

// Package txpool holds pending transactions between submission and block
// inclusion.
package txpool

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

var (
	ErrAlreadyKnown = errors.New("txpool: transaction already known")
	ErrPoolFull     = errors.New("txpool: pool is full")
	ErrWrongChain   = errors.New("txpool: wrong chain id")
	ErrMalformed    = errors.New("txpool: malformed transaction")
)

// DefaultCapacity bounds the pending set when the config leaves it zero.
const DefaultCapacity = 16384

// Config tunes the pool.
type Config struct {
	ChainID  uint64
	Capacity int
}

type entry struct {
	tx         *types.Transaction
	arrival    uint64 // admission sequence, the deterministic tiebreak
	receivedTs int64
}

// TxPool is the pending transaction set. Admission checks the transaction
// shape only; the full admission ladder is the executor's job at block time.
// Ordering is deterministic for a given arrival log: effective priority fee
// descending, then arrival ascending.
type TxPool struct {
	mu sync.RWMutex

	config  Config
	all     map[common.Hash]*entry
	baseFee *uint256.Int
	seq     uint64

	log *logrus.Entry
}

// New creates an empty pool.
func New(config Config) *TxPool {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	return &TxPool{
		config:  config,
		all:     make(map[common.Hash]*entry),
		baseFee: new(uint256.Int),
		log:     logrus.WithField("module", "txpool"),
	}
}

// Add admits a transaction. Duplicates (by hash), shape failures, foreign
// chain ids and a full pool are all rejected.
func (p *TxPool) Add(tx *types.Transaction) error {
	if tx.ChainID != p.config.ChainID {
		return ErrWrongChain
	}
	if len(tx.Signature) != ed25519.SignatureSize || len(tx.SenderPublicKey) != ed25519.PublicKeySize {
		return ErrMalformed
	}
	if crypto.DeriveAddress(tx.SenderPublicKey) != tx.Sender {
		return ErrMalformed
	}
	if !tx.VerifySignature() {
		return ErrMalformed
	}
	hash := tx.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.all[hash]; ok {
		return ErrAlreadyKnown
	}
	if len(p.all) >= p.config.Capacity {
		return ErrPoolFull
	}
	p.all[hash] = &entry{
		tx:         tx,
		arrival:    p.seq,
		receivedTs: time.Now().UnixMilli(),
	}
	p.seq++
	return nil
}

// Pending returns up to limit transactions ordered by effective priority
// fee descending, arrival ascending. limit <= 0 means no bound.
func (p *TxPool) Pending(limit int) []*types.Transaction {
	p.mu.RLock()
	entries := make([]*entry, 0, len(p.all))
	for _, e := range p.all {
		entries = append(entries, e)
	}
	baseFee := new(uint256.Int).Set(p.baseFee)
	p.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		ti := entries[i].tx.EffectiveTip(baseFee)
		tj := entries[j].tx.EffectiveTip(baseFee)
		if cmp := ti.Cmp(tj); cmp != 0 {
			return cmp > 0
		}
		return entries[i].arrival < entries[j].arrival
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	txs := make([]*types.Transaction, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}
	return txs
}

// RemoveConfirmed evicts the given transactions by hash, typically after
// their block finalized.
func (p *TxPool) RemoveConfirmed(txs []*types.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, tx := range txs {
		delete(p.all, tx.Hash())
	}
}

// Remove evicts a single transaction by hash, e.g. after a validation
// failure surfaced to the submitter.
func (p *TxPool) Remove(hash common.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.all, hash)
}

// Has reports whether the pool holds the given hash.
func (p *TxPool) Has(hash common.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.all[hash]
	return ok
}

// Get returns the pooled transaction with the given hash, or nil.
func (p *TxPool) Get(hash common.Hash) *types.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.all[hash]; ok {
		return e.tx
	}
	return nil
}

// Count returns the number of pending transactions.
func (p *TxPool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.all)
}

// SetBaseFee updates the fee the ordering is computed against; called when
// a new head block lands.
func (p *TxPool) SetBaseFee(baseFee *uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseFee.Set(baseFee)
}
