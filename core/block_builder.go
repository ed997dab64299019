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

package core

import (
	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/consensus/misc"
	"github.com/basalt-network/gbasalt/core/state"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/core/vm"
	"github.com/basalt-network/gbasalt/params"
	"github.com/basalt-network/gbasalt/staking"
)

// BuildBlock assembles a candidate block on top of parent. Candidates must
// arrive in pool order (effective priority fee descending, arrival
// ascending); the builder executes them against a copy of db, skipping any
// that fail admission or would blow the gas or count budget, and seals the
// header with the resulting roots.
//
// The canonical state and the stake registry stay untouched: execution runs
// on a state copy, staking side effects run against a simulator.
func BuildBlock(config *params.ChainConfig, parent *types.Header, db *state.StateDB, candidates []*types.Transaction, proposer common.Address, st *staking.StakingState, machine vm.VM, nowMs uint64) (*types.Block, error) {
	timestamp := nowMs
	if timestamp <= parent.TimestampMs {
		timestamp = parent.TimestampMs + 1
	}
	// Receipts are generated against a preliminary header whose roots are
	// still zero; the roots only exist after execution.
	header := &types.Header{
		Number:          parent.Number + 1,
		ParentHash:      parent.Hash(),
		TimestampMs:     timestamp,
		Proposer:        proposer,
		ChainID:         config.ChainID,
		GasLimit:        config.BlockGasLimit,
		BaseFee:         misc.CalcBaseFee(config, parent),
		ProtocolVersion: config.ProtocolVersion,
	}

	var (
		workdb      = db.Copy()
		sim         = st.NewSimulator()
		gp          = new(GasPool).AddGas(header.GasLimit)
		usedGas     uint64
		gasReserved uint64
		txs         []*types.Transaction
		receipts    []*types.Receipt
		log         = logrus.WithField("module", "builder")
	)
	for _, tx := range candidates {
		if len(txs) >= config.MaxTransactionsPerBlock {
			break
		}
		if gasReserved+tx.GasLimit > header.GasLimit {
			continue
		}
		receipt, err := ApplyTransaction(config, workdb, header, tx, sim, machine, gp, &usedGas)
		if err != nil {
			log.WithFields(logrus.Fields{
				"tx":  tx.Hash().TerminalString(),
				"err": err,
			}).Debug("skipping transaction")
			continue
		}
		txs = append(txs, tx)
		receipts = append(receipts, receipt)
		gasReserved += tx.GasLimit
	}
	for _, entry := range st.UnbondingDue(header.Number) {
		workdb.AddBalance(entry.Withdrawer, entry.Amount)
	}
	workdb.Finalise()

	header.GasUsed = usedGas
	header.StateRoot = workdb.ComputeStateRoot()
	header.TransactionsRoot = types.DeriveTxsRoot(txs)
	header.ReceiptsRoot = types.DeriveReceiptsRoot(receipts)
	return types.NewBlock(header, txs, receipts), nil
}
