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
	"fmt"

	"github.com/basalt-network/gbasalt/core/state"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/core/vm"
	"github.com/basalt-network/gbasalt/params"
	"github.com/basalt-network/gbasalt/staking"
)

// Process replays a block's transactions against db in order, credits the
// given completed unbonding entries, and returns the receipts. The caller
// owns snapshotting: Process mutates db as it goes.
func Process(config *params.ChainConfig, db *state.StateDB, block *types.Block, stakingState StakingBackend, unbonded []staking.UnbondingEntry, machine vm.VM) ([]*types.Receipt, uint64, error) {
	var (
		header   = block.Header()
		gp       = new(GasPool).AddGas(header.GasLimit)
		usedGas  uint64
		receipts = make([]*types.Receipt, 0, len(block.Transactions()))
	)
	for i, tx := range block.Transactions() {
		receipt, err := ApplyTransaction(config, db, header, tx, stakingState, machine, gp, &usedGas)
		if err != nil {
			return nil, 0, fmt.Errorf("could not apply tx %d [%s]: %w", i, tx.Hash().TerminalString(), err)
		}
		receipts = append(receipts, receipt)
	}
	for _, entry := range unbonded {
		db.AddBalance(entry.Withdrawer, entry.Amount)
	}
	return receipts, usedGas, nil
}

// VerifyBlockReceipts replays block on a throwaway state copy and checks
// every commitment in the header: receipts (pairwise), receipts root, state
// root and gas usage. It is the applier's first pass; nothing durable is
// touched, so a refused block leaves no trace.
func VerifyBlockReceipts(config *params.ChainConfig, db *state.StateDB, block *types.Block, st *staking.StakingState, machine vm.VM) error {
	workdb := db.Copy()
	receipts, usedGas, err := Process(config, workdb, block, st.NewSimulator(), st.UnbondingDue(block.Number()), machine)
	if err != nil {
		return err
	}
	if usedGas != block.GasUsed() {
		return fmt.Errorf("%w: replayed %d header %d", ErrGasOverLimit, usedGas, block.GasUsed())
	}
	blockReceipts := block.Receipts()
	if len(blockReceipts) != len(receipts) {
		return ErrReceiptsRootMismatch
	}
	for i, receipt := range receipts {
		if receipt.Hash() != blockReceipts[i].Hash() {
			return fmt.Errorf("%w: receipt %d differs", ErrReceiptsRootMismatch, i)
		}
	}
	if got := types.DeriveReceiptsRoot(receipts); got != block.Header().ReceiptsRoot {
		return fmt.Errorf("%w: have %s header %s", ErrReceiptsRootMismatch, got.Hex(), block.Header().ReceiptsRoot.Hex())
	}
	if got := workdb.ComputeStateRoot(); got != block.StateRoot() {
		return fmt.Errorf("%w: have %s header %s", ErrStateRootMismatch, got.Hex(), block.StateRoot().Hex())
	}
	return nil
}
