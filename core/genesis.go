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
	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/state"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/params"
)

// Genesis describes block zero: the chain parameters and the initial
// balance allocation.
type Genesis struct {
	Config      *params.ChainConfig
	TimestampMs uint64
	ExtraData   []byte
	Alloc       map[common.Address]*uint256.Int
}

// Commit writes the allocation into db and returns the genesis block.
func (g *Genesis) Commit(db *state.StateDB) *types.Block {
	for addr, balance := range g.Alloc {
		db.AddBalance(addr, balance)
	}
	db.Finalise()

	header := &types.Header{
		Number:          0,
		ParentHash:      common.Hash{},
		StateRoot:       db.ComputeStateRoot(),
		TimestampMs:     g.TimestampMs,
		ChainID:         g.Config.ChainID,
		GasLimit:        g.Config.BlockGasLimit,
		BaseFee:         uint256.NewInt(g.Config.MinBaseFee),
		ProtocolVersion: g.Config.ProtocolVersion,
		ExtraData:       g.ExtraData,
	}
	return types.NewBlock(header, nil, nil)
}

// DeveloperGenesis returns a genesis for the local test network with the
// given pre-funded accounts.
func DeveloperGenesis(alloc map[common.Address]*uint256.Int) *Genesis {
	return &Genesis{
		Config:      params.TestChainConfig,
		TimestampMs: 0,
		Alloc:       alloc,
	}
}
