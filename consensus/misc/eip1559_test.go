package misc

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/params"
)

func parentWith(gasUsed, gasLimit, baseFee uint64) *types.Header {
	return &types.Header{
		GasUsed:  gasUsed,
		GasLimit: gasLimit,
		BaseFee:  uint256.NewInt(baseFee),
	}
}

func TestCalcBaseFee(t *testing.T) {
	config := params.TestChainConfig
	tests := []struct {
		gasUsed uint64
		baseFee uint64
		want    uint64
	}{
		{15_000_000, 1000, 1000}, // at target: unchanged
		{30_000_000, 1000, 1125}, // full block: +1/8
		{0, 1000, 875},           // empty block: -1/8
		{15_000_001, 1000, 1001}, // barely above target: delta floors at 1
		{0, 1, 1},                // at the floor already: stays at MinBaseFee
	}
	for i, tt := range tests {
		parent := parentWith(tt.gasUsed, 30_000_000, tt.baseFee)
		if got := CalcBaseFee(config, parent); !got.Eq(uint256.NewInt(tt.want)) {
			t.Errorf("test %d: have %v want %d", i, got, tt.want)
		}
	}
}

func TestCalcBaseFeeNeverBelowFloor(t *testing.T) {
	config := params.TestChainConfig
	fee := uint256.NewInt(1000)
	for i := 0; i < 200; i++ {
		parent := &types.Header{GasUsed: 0, GasLimit: 30_000_000, BaseFee: fee}
		fee = CalcBaseFee(config, parent)
	}
	if fee.Lt(uint256.NewInt(config.MinBaseFee)) {
		t.Fatalf("base fee fell below floor: have %v want >= %d", fee, config.MinBaseFee)
	}
}
