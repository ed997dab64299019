// Copyright 2016 The go-ethereum Authors
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

// Package vm declares the contract between the execution engine and the
// external virtual machine that runs user contracts. The engine never
// interprets contract code itself; it hands the VM a gas meter and a state
// view and trusts neither further than this interface.
package vm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
)

var (
	ErrOutOfGas             = errors.New("vm: out of gas")
	ErrExecutionReverted    = errors.New("vm: execution reverted")
	ErrMemoryLimitExceeded  = errors.New("vm: memory limit exceeded")
	ErrCpuTimeLimitExceeded = errors.New("vm: cpu time limit exceeded")
)

// StateView is the slice of the state database the VM may touch. The engine
// backs it with a snapshot-scoped StateDB, so a revert discards everything
// the VM wrote.
type StateView interface {
	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int)
	SubBalance(addr common.Address, amount *uint256.Int)
	GetNonce(addr common.Address) uint64
	GetCodeHash(addr common.Address) common.Hash
	GetStorage(addr common.Address, key common.Hash) []byte
	SetStorage(addr common.Address, key common.Hash, value []byte)
	DeleteStorage(addr common.Address, key common.Hash)
}

// GasMeter meters VM execution against the transaction gas limit.
type GasMeter struct {
	limit uint64
	used  uint64
}

func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{limit: limit}
}

// Consume charges amount units, failing with ErrOutOfGas once the limit is
// exhausted. A failed charge still consumes the remainder.
func (m *GasMeter) Consume(amount uint64) error {
	if m.limit-m.used < amount {
		m.used = m.limit
		return ErrOutOfGas
	}
	m.used += amount
	return nil
}

func (m *GasMeter) Used() uint64      { return m.used }
func (m *GasMeter) Remaining() uint64 { return m.limit - m.used }

// Context carries the execution environment for one contract invocation.
type Context struct {
	Caller       common.Address
	ContractAddr common.Address
	Value        *uint256.Int
	BlockTimeMs  uint64
	BlockNumber  uint64
	ChainID      uint64
	Gas          *GasMeter
	State        StateView
}

// Result is what the VM reports back for one invocation.
type Result struct {
	Success    bool
	ReturnData []byte
	Logs       []*types.Log
	GasUsed    uint64
	Err        error
}

// VM executes contract code. Implementations must honor ctx.Gas and must not
// step outside ctx.State.
type VM interface {
	Execute(code, input []byte, ctx *Context) *Result
}
