// Copyright 2021 The go-ethereum Authors
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

package misc

import (
	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/params"
)

// CalcBaseFee computes the base fee of the block following parent.
//
// The fee moves towards the gas target: above target it rises by
// baseFee * excess / target / denominator (at least one unit), below target
// it falls by the symmetric amount but never under the configured floor.
func CalcBaseFee(config *params.ChainConfig, parent *types.Header) *uint256.Int {
	var (
		gasTarget = parent.GasLimit / 2
		baseFee   = new(uint256.Int).Set(parent.BaseFee)
		minBase   = uint256.NewInt(config.MinBaseFee)
	)
	if gasTarget == 0 || parent.GasUsed == gasTarget {
		if baseFee.Lt(minBase) {
			return minBase
		}
		return baseFee
	}

	var diff uint64
	if parent.GasUsed > gasTarget {
		diff = parent.GasUsed - gasTarget
	} else {
		diff = gasTarget - parent.GasUsed
	}
	delta := new(uint256.Int).Mul(baseFee, uint256.NewInt(diff))
	delta.Div(delta, uint256.NewInt(gasTarget))
	delta.Div(delta, uint256.NewInt(config.BaseFeeChangeDenominator))

	if parent.GasUsed > gasTarget {
		if delta.IsZero() {
			delta.SetUint64(1)
		}
		return baseFee.Add(baseFee, delta)
	}
	if baseFee.Lt(delta) {
		baseFee.Clear()
	} else {
		baseFee.Sub(baseFee, delta)
	}
	if baseFee.Lt(minBase) {
		return minBase
	}
	return baseFee
}
