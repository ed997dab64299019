// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package params

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ChainConfig is the set of consensus-critical parameters a node runs under.
// Every honest node of a network must agree on these values; they are loaded
// from the genesis description (TOML) and never change at runtime.
type ChainConfig struct {
	ChainID uint64 `toml:"chain_id"` // Chain identifier for replay protection

	BlockTimeMs             uint64 `toml:"block_time_ms"`              // Target block interval in milliseconds
	BlockGasLimit           uint64 `toml:"block_gas_limit"`            // Upper bound on the gas spent per block
	MaxTransactionsPerBlock int    `toml:"max_transactions_per_block"` // Upper bound on the tx count per block

	MinGasPrice              uint64 `toml:"min_gas_price"`               // Floor for legacy gas prices accepted by the pool
	TransferGasCost          uint64 `toml:"transfer_gas_cost"`           // Intrinsic gas of a plain transfer
	BaseFeeChangeDenominator uint64 `toml:"base_fee_change_denominator"` // Bounds base fee movement between blocks
	MinBaseFee               uint64 `toml:"min_base_fee"`                // Floor the base fee can never drop below

	EpochLength        uint64 `toml:"epoch_length"`            // Blocks per validator-set epoch
	ValidatorSetSize   int    `toml:"validator_set_size"`      // Maximum validators in the active set
	MinValidatorStake  uint64 `toml:"min_validator_stake"`     // Minimum total stake to stay active
	UnbondingPeriod    uint64 `toml:"unbonding_period_blocks"` // Blocks between unstake and withdrawal
	ViewTimeoutMs      uint64 `toml:"view_timeout_ms"`         // Consensus round deadline before a view change
	ProtocolVersion    uint32 `toml:"protocol_version"`        // Header protocol version stamp
	MaxPipelinedBlocks int    `toml:"max_pipelined_blocks"`    // Consensus rounds allowed in flight at once
}

// DefaultChainConfig are the parameters every field not set by the operator
// falls back to.
var DefaultChainConfig = &ChainConfig{
	ChainID:                  1,
	BlockTimeMs:              1000,
	BlockGasLimit:            30_000_000,
	MaxTransactionsPerBlock:  5000,
	MinGasPrice:              1,
	TransferGasCost:          TxGas,
	BaseFeeChangeDenominator: BaseFeeChangeDenominator,
	MinBaseFee:               MinBaseFee,
	EpochLength:              100,
	ValidatorSetSize:         64,
	MinValidatorStake:        100_000,
	UnbondingPeriod:          1000,
	ViewTimeoutMs:            2000,
	ProtocolVersion:          1,
	MaxPipelinedBlocks:       3,
}

// TestChainConfig mirrors the local development network.
var TestChainConfig = &ChainConfig{
	ChainID:                  31337,
	BlockTimeMs:              100,
	BlockGasLimit:            30_000_000,
	MaxTransactionsPerBlock:  5000,
	MinGasPrice:              1,
	TransferGasCost:          TxGas,
	BaseFeeChangeDenominator: BaseFeeChangeDenominator,
	MinBaseFee:               MinBaseFee,
	EpochLength:              10,
	ValidatorSetSize:         16,
	MinValidatorStake:        100_000,
	UnbondingPeriod:          20,
	ViewTimeoutMs:            2000,
	ProtocolVersion:          1,
	MaxPipelinedBlocks:       3,
}

// GasTarget returns the per-block gas usage the base fee steers towards.
func (c *ChainConfig) GasTarget() uint64 {
	return c.BlockGasLimit / 2
}

// MinStake returns the minimum validator stake as a 256-bit integer.
func (c *ChainConfig) MinStake() *uint256.Int {
	return uint256.NewInt(c.MinValidatorStake)
}

// Sanitize fills zero-valued fields from the defaults and validates the rest.
func (c *ChainConfig) Sanitize() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chain_id must be non-zero")
	}
	if c.BlockTimeMs == 0 {
		c.BlockTimeMs = DefaultChainConfig.BlockTimeMs
	}
	if c.BlockGasLimit == 0 {
		c.BlockGasLimit = DefaultChainConfig.BlockGasLimit
	}
	if c.BlockGasLimit < MinGasLimit {
		return fmt.Errorf("block_gas_limit %d below minimum %d", c.BlockGasLimit, MinGasLimit)
	}
	if c.MaxTransactionsPerBlock <= 0 {
		c.MaxTransactionsPerBlock = DefaultChainConfig.MaxTransactionsPerBlock
	}
	if c.MinGasPrice == 0 {
		c.MinGasPrice = DefaultChainConfig.MinGasPrice
	}
	if c.TransferGasCost == 0 {
		c.TransferGasCost = TxGas
	}
	if c.BaseFeeChangeDenominator == 0 {
		c.BaseFeeChangeDenominator = BaseFeeChangeDenominator
	}
	if c.MinBaseFee == 0 {
		c.MinBaseFee = MinBaseFee
	}
	if c.EpochLength == 0 {
		c.EpochLength = DefaultChainConfig.EpochLength
	}
	if c.ValidatorSetSize <= 0 {
		c.ValidatorSetSize = DefaultChainConfig.ValidatorSetSize
	}
	if c.MinValidatorStake == 0 {
		c.MinValidatorStake = DefaultChainConfig.MinValidatorStake
	}
	if c.UnbondingPeriod == 0 {
		c.UnbondingPeriod = DefaultChainConfig.UnbondingPeriod
	}
	if c.ViewTimeoutMs == 0 {
		c.ViewTimeoutMs = DefaultChainConfig.ViewTimeoutMs
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = DefaultChainConfig.ProtocolVersion
	}
	if c.MaxPipelinedBlocks <= 0 {
		c.MaxPipelinedBlocks = DefaultChainConfig.MaxPipelinedBlocks
	}
	return nil
}

// String implements fmt.Stringer for log output.
func (c *ChainConfig) String() string {
	return fmt.Sprintf("{ChainID: %d EpochLength: %d Validators: %d GasLimit: %d}",
		c.ChainID, c.EpochLength, c.ValidatorSetSize, c.BlockGasLimit)
}
