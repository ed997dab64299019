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
	"encoding/binary"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/codec"
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
)

// Log is an event emitted by contract execution.
type Log struct {
	Contract       common.Address
	EventSignature common.Hash
	Data           []byte
}

// Receipt records the outcome of one executed transaction.
type Receipt struct {
	TxHash            common.Hash
	Success           bool
	GasUsed           uint64
	EffectiveGasPrice *uint256.Int
	Logs              []*Log
	ErrorCode         string // machine-readable failure code, empty on success
}

// LogsHash folds the receipt's logs into one digest: zero when there are no
// logs, otherwise BLAKE3 over contract || event_signature || data per log.
func (r *Receipt) LogsHash() common.Hash {
	if len(r.Logs) == 0 {
		return common.Hash{}
	}
	parts := make([][]byte, 0, 3*len(r.Logs))
	for _, l := range r.Logs {
		parts = append(parts, l.Contract.Bytes(), l.EventSignature.Bytes(), l.Data)
	}
	return crypto.Blake3Hash(parts...)
}

// Hash is BLAKE3 over the fixed tuple
// success || gas_used_LE64 || tx_hash || logs_hash.
func (r *Receipt) Hash() common.Hash {
	var buf [1 + 8 + common.HashLength + common.HashLength]byte
	if r.Success {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint64(buf[1:9], r.GasUsed)
	copy(buf[9:41], r.TxHash[:])
	logsHash := r.LogsHash()
	copy(buf[41:], logsHash[:])
	return crypto.Blake3Hash(buf[:])
}

// encode writes the full receipt for block transport.
func (r *Receipt) encode(w *codec.Writer) {
	w.WriteHash(r.TxHash)
	w.WriteBool(r.Success)
	w.WriteUint64(r.GasUsed)
	w.WriteUint256(r.EffectiveGasPrice)
	w.WriteUint32(uint32(len(r.Logs)))
	for _, l := range r.Logs {
		w.WriteAddress(l.Contract)
		w.WriteHash(l.EventSignature)
		w.WriteBytes(l.Data)
	}
	w.WriteString(r.ErrorCode)
}

func readReceipt(r *codec.Reader) *Receipt {
	rec := &Receipt{
		TxHash:            r.ReadHash(),
		Success:           r.ReadBool(),
		GasUsed:           r.ReadUint64(),
		EffectiveGasPrice: r.ReadUint256(),
	}
	n := r.ReadUint32()
	for i := uint32(0); i < n && r.Err() == nil; i++ {
		rec.Logs = append(rec.Logs, &Log{
			Contract:       r.ReadAddress(),
			EventSignature: r.ReadHash(),
			Data:           r.ReadBytes(),
		})
	}
	rec.ErrorCode = r.ReadString()
	return rec
}
