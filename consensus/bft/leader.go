package bft

import (
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/crypto"
)

// LeaderSelector elects the proposer for a view. Implementations must be
// pure functions of (view, set) so every honest node agrees on the leader.
type LeaderSelector interface {
	Leader(view uint64, set *ValidatorSet) *ValidatorInfo
}

// RoundRobinSelector walks the set in index order.
type RoundRobinSelector struct{}

func (RoundRobinSelector) Leader(view uint64, set *ValidatorSet) *ValidatorInfo {
	if set.Len() == 0 {
		return nil
	}
	return set.ByIndex(int(view % uint64(set.Len())))
}

// StakeWeightedSelector draws a pseudo-random pick from BLAKE3(view) over
// the cumulative stake distribution, so proposal frequency follows stake.
// With zero total stake it degrades to round robin.
type StakeWeightedSelector struct{}

func (StakeWeightedSelector) Leader(view uint64, set *ValidatorSet) *ValidatorInfo {
	if set.Len() == 0 {
		return nil
	}
	total := set.TotalStake()
	if total.IsZero() {
		return RoundRobinSelector{}.Leader(view, set)
	}
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], view)
	draw := new(uint256.Int).SetBytes(crypto.Blake3(seed[:]))
	draw.Mod(draw, total)

	acc := new(uint256.Int)
	for _, v := range set.Validators() {
		if v.Stake != nil {
			acc.Add(acc, v.Stake)
		}
		if draw.Lt(acc) {
			return v
		}
	}
	// Unreachable while draw < total, but keep the walk total-safe.
	return set.ByIndex(set.Len() - 1)
}
