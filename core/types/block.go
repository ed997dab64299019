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
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/codec"
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
)

// Header is the consensus view of a block.
type Header struct {
	Number           uint64
	ParentHash       common.Hash
	StateRoot        common.Hash
	TransactionsRoot common.Hash
	ReceiptsRoot     common.Hash
	TimestampMs      uint64
	Proposer         common.Address
	ChainID          uint64
	GasUsed          uint64
	GasLimit         uint64
	BaseFee          *uint256.Int
	ProtocolVersion  uint32
	ExtraData        []byte
}

// Encode returns the canonical header encoding, the preimage of the block hash.
func (h *Header) Encode() []byte {
	w := codec.NewWriter(192 + len(h.ExtraData))
	w.WriteUint64(h.Number)
	w.WriteHash(h.ParentHash)
	w.WriteHash(h.StateRoot)
	w.WriteHash(h.TransactionsRoot)
	w.WriteHash(h.ReceiptsRoot)
	w.WriteUint64(h.TimestampMs)
	w.WriteAddress(h.Proposer)
	w.WriteUint64(h.ChainID)
	w.WriteUint64(h.GasUsed)
	w.WriteUint64(h.GasLimit)
	w.WriteUint256(h.BaseFee)
	w.WriteUint32(h.ProtocolVersion)
	w.WriteBytes(h.ExtraData)
	return w.Bytes()
}

func readHeader(r *codec.Reader) *Header {
	return &Header{
		Number:           r.ReadUint64(),
		ParentHash:       r.ReadHash(),
		StateRoot:        r.ReadHash(),
		TransactionsRoot: r.ReadHash(),
		ReceiptsRoot:     r.ReadHash(),
		TimestampMs:      r.ReadUint64(),
		Proposer:         r.ReadAddress(),
		ChainID:          r.ReadUint64(),
		GasUsed:          r.ReadUint64(),
		GasLimit:         r.ReadUint64(),
		BaseFee:          r.ReadUint256(),
		ProtocolVersion:  r.ReadUint32(),
		ExtraData:        r.ReadBytes(),
	}
}

// DecodeHeader parses a canonical header encoding.
func DecodeHeader(data []byte) (*Header, error) {
	r := codec.NewReader(data)
	h := readHeader(r)
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return h, nil
}

// Hash is the BLAKE3 digest of the canonical header encoding.
func (h *Header) Hash() common.Hash {
	return crypto.Blake3Hash(h.Encode())
}

// Copy returns a deep copy of the header.
func (h *Header) Copy() *Header {
	cpy := *h
	if h.BaseFee != nil {
		cpy.BaseFee = new(uint256.Int).Set(h.BaseFee)
	}
	cpy.ExtraData = common.CopyBytes(h.ExtraData)
	return &cpy
}

// Block bundles a header with its transactions and their receipts.
type Block struct {
	header       *Header
	transactions []*Transaction
	receipts     []*Receipt

	hash atomic.Value
}

// NewBlock assembles a block. The caller is responsible for the header roots
// matching the given lists; VerifyRoots can be used to check.
func NewBlock(header *Header, txs []*Transaction, receipts []*Receipt) *Block {
	return &Block{header: header.Copy(), transactions: txs, receipts: receipts}
}

func (b *Block) Header() *Header              { return b.header.Copy() }
func (b *Block) Number() uint64               { return b.header.Number }
func (b *Block) ParentHash() common.Hash      { return b.header.ParentHash }
func (b *Block) StateRoot() common.Hash       { return b.header.StateRoot }
func (b *Block) GasUsed() uint64              { return b.header.GasUsed }
func (b *Block) GasLimit() uint64             { return b.header.GasLimit }
func (b *Block) TimestampMs() uint64          { return b.header.TimestampMs }
func (b *Block) Proposer() common.Address     { return b.header.Proposer }
func (b *Block) BaseFee() *uint256.Int        { return new(uint256.Int).Set(b.header.BaseFee) }
func (b *Block) Transactions() []*Transaction { return b.transactions }
func (b *Block) Receipts() []*Receipt         { return b.receipts }

// Hash returns the header hash, cached.
func (b *Block) Hash() common.Hash {
	if hash := b.hash.Load(); hash != nil {
		return hash.(common.Hash)
	}
	h := b.header.Hash()
	b.hash.Store(h)
	return h
}

// VerifyRoots recomputes the transaction and receipt merkle roots and
// reports whether both match the header.
func (b *Block) VerifyRoots() bool {
	return DeriveTxsRoot(b.transactions) == b.header.TransactionsRoot &&
		DeriveReceiptsRoot(b.receipts) == b.header.ReceiptsRoot
}

// Encode returns the full block wire encoding: header, transactions, receipts.
func (b *Block) Encode() []byte {
	w := codec.NewWriter(512)
	hdr := b.header.Encode()
	w.WriteBytes(hdr)
	w.WriteUint32(uint32(len(b.transactions)))
	for _, tx := range b.transactions {
		w.WriteBytes(tx.Encode())
	}
	w.WriteUint32(uint32(len(b.receipts)))
	for _, rec := range b.receipts {
		rw := codec.NewWriter(128)
		rec.encode(rw)
		w.WriteBytes(rw.Bytes())
	}
	return w.Bytes()
}

// DecodeBlock parses a full block wire encoding.
func DecodeBlock(data []byte) (*Block, error) {
	r := codec.NewReader(data)
	hdrBytes := r.ReadBytes()
	if err := r.Err(); err != nil {
		return nil, err
	}
	header, err := DecodeHeader(hdrBytes)
	if err != nil {
		return nil, err
	}
	b := &Block{header: header}
	txCount := r.ReadUint32()
	for i := uint32(0); i < txCount && r.Err() == nil; i++ {
		tx, err := DecodeTransaction(r.ReadBytes())
		if err != nil {
			return nil, err
		}
		b.transactions = append(b.transactions, tx)
	}
	recCount := r.ReadUint32()
	for i := uint32(0); i < recCount && r.Err() == nil; i++ {
		rr := codec.NewReader(r.ReadBytes())
		rec := readReceipt(rr)
		if err := rr.Finish(); err != nil {
			return nil, err
		}
		b.receipts = append(b.receipts, rec)
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return b, nil
}
