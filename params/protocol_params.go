// Copyright 2015 The go-ethereum Authors
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

const (
	MinGasLimit          uint64 = 5000  // Minimum the block gas limit may ever be.
	MaximumExtraDataSize uint64 = 32    // Maximum size extra data may be after Genesis.
	MaxCodeSize                 = 24576 // Maximum bytecode to permit for a contract.

	// Gas costs
	TxGas            uint64 = 21000 // Per transaction.
	TxDataGas        uint64 = 16    // Per byte of tx data on every non-transfer transaction.
	TxContractCreate uint64 = 32000 // Added for contract-deploy transactions.

	// Fee market
	BaseFeeChangeDenominator uint64 = 8 // Bounds the amount the base fee can change between blocks.
	MinBaseFee               uint64 = 1 // Floor of the base fee.

	// Staking penalties in percent of total stake.
	SlashPercentDoubleSign uint64 = 100
	SlashPercentInactivity uint64 = 5
	SlashPercentBadBlock   uint64 = 1

	// Routing table dimensions.
	BucketSize        = 20 // Kademlia k
	MaxBucketsPerHost = 2  // Peers admitted per /24 (or /48) subnet per bucket
	MaxProtectedPeers = 4  // Outbound slots immune to eviction
	LookupAlpha       = 3  // Concurrent probes per lookup round
	LookupMaxRounds   = 20 // Bound on lookup iterations
)
