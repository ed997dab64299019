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

package types

import (
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
)

// MerkleRoot folds a list of leaf hashes into a single BLAKE3 root.
//
// Rules: the root of zero leaves is the zero hash, the root of one leaf is
// that leaf, and an odd element at any level is promoted to the next level
// unchanged rather than paired with a copy of itself.
func MerkleRoot(leaves []common.Hash) common.Hash {
	switch len(leaves) {
	case 0:
		return common.Hash{}
	case 1:
		return leaves[0]
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := level[:0:len(level)]
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, crypto.Blake3Hash(level[i][:], level[i+1][:]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// DeriveTxsRoot computes the merkle root over the hashes of txs.
func DeriveTxsRoot(txs []*Transaction) common.Hash {
	leaves := make([]common.Hash, len(txs))
	for i, tx := range txs {
		leaves[i] = tx.Hash()
	}
	return MerkleRoot(leaves)
}

// DeriveReceiptsRoot computes the merkle root over the hashes of receipts.
func DeriveReceiptsRoot(receipts []*Receipt) common.Hash {
	leaves := make([]common.Hash, len(receipts))
	for i, r := range receipts {
		leaves[i] = r.Hash()
	}
	return MerkleRoot(leaves)
}
