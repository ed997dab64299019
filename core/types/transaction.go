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
	"errors"
	"sync/atomic"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/codec"
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

// TxType discriminates the built-in transaction kinds.
type TxType uint8

const (
	TxTransfer TxType = iota
	TxContractDeploy
	TxContractCall
	TxStakeDeposit
	TxStakeWithdraw
	TxValidatorRegister
)

// IsContract reports whether the type is executed by the external VM.
func (t TxType) IsContract() bool {
	return t == TxContractDeploy || t == TxContractCall
}

func (t TxType) String() string {
	switch t {
	case TxTransfer:
		return "transfer"
	case TxContractDeploy:
		return "contract-deploy"
	case TxContractCall:
		return "contract-call"
	case TxStakeDeposit:
		return "stake-deposit"
	case TxStakeWithdraw:
		return "stake-withdraw"
	case TxValidatorRegister:
		return "validator-register"
	default:
		return "unknown"
	}
}

var ErrInvalidTxType = errors.New("types: invalid transaction type")

// Transaction is a signed state mutation. The canonical field order below is
// also the canonical wire order.
type Transaction struct {
	Type                 TxType
	Nonce                uint64
	Sender               common.Address
	To                   common.Address
	Value                *uint256.Int
	GasLimit             uint64
	GasPrice             *uint256.Int
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
	Data                 []byte
	Priority             uint8
	ChainID              uint64
	Signature            []byte
	SenderPublicKey      []byte

	// caches
	hash atomic.Value
	size atomic.Value
}

// encodeFields writes every field through signature and public key inclusion
// controlled by withSig. The signing payload is the encoding without them.
func (tx *Transaction) encodeFields(w *codec.Writer, withSig bool) {
	w.WriteUint8(uint8(tx.Type))
	w.WriteUint64(tx.Nonce)
	w.WriteAddress(tx.Sender)
	w.WriteAddress(tx.To)
	w.WriteUint256(tx.Value)
	w.WriteUint64(tx.GasLimit)
	w.WriteUint256(tx.GasPrice)
	w.WriteUint256(tx.MaxFeePerGas)
	w.WriteUint256(tx.MaxPriorityFeePerGas)
	w.WriteBytes(tx.Data)
	w.WriteUint8(tx.Priority)
	w.WriteUint64(tx.ChainID)
	if withSig {
		w.WriteBytes(tx.Signature)
		w.WriteBytes(tx.SenderPublicKey)
	}
}

// Encode returns the full canonical encoding including the signature.
func (tx *Transaction) Encode() []byte {
	w := codec.NewWriter(128 + len(tx.Data))
	tx.encodeFields(w, true)
	return w.Bytes()
}

// SigningPayload returns the canonical encoding of every field except the
// signature and the sender public key.
func (tx *Transaction) SigningPayload() []byte {
	w := codec.NewWriter(128 + len(tx.Data))
	tx.encodeFields(w, false)
	return w.Bytes()
}

// SigningHash is the BLAKE3 digest the sender actually signs.
func (tx *Transaction) SigningHash() common.Hash {
	return crypto.Blake3Hash(tx.SigningPayload())
}

// Hash returns the BLAKE3 hash of the full canonical encoding. It is cached
// after the first call; a transaction must not be mutated afterwards.
func (tx *Transaction) Hash() common.Hash {
	if hash := tx.hash.Load(); hash != nil {
		return hash.(common.Hash)
	}
	h := crypto.Blake3Hash(tx.Encode())
	tx.hash.Store(h)
	return h
}

// Size returns the encoded length of the transaction, cached.
func (tx *Transaction) Size() int {
	if size := tx.size.Load(); size != nil {
		return size.(int)
	}
	n := len(tx.Encode())
	tx.size.Store(n)
	return n
}

// DecodeTransaction parses a full canonical encoding. The input must be
// consumed exactly.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := codec.NewReader(data)
	tx, err := readTransaction(r)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return tx, nil
}

// readTransaction decodes one transaction from r, leaving any trailing bytes
// unread so callers can embed transactions inside larger messages.
func readTransaction(r *codec.Reader) (*Transaction, error) {
	tx := &Transaction{
		Type:                 TxType(r.ReadUint8()),
		Nonce:                r.ReadUint64(),
		Sender:               r.ReadAddress(),
		To:                   r.ReadAddress(),
		Value:                r.ReadUint256(),
		GasLimit:             r.ReadUint64(),
		GasPrice:             r.ReadUint256(),
		MaxFeePerGas:         r.ReadUint256(),
		MaxPriorityFeePerGas: r.ReadUint256(),
		Data:                 r.ReadBytes(),
		Priority:             r.ReadUint8(),
		ChainID:              r.ReadUint64(),
		Signature:            r.ReadBytes(),
		SenderPublicKey:      r.ReadBytes(),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if tx.Type > TxValidatorRegister {
		return nil, ErrInvalidTxType
	}
	return tx, nil
}

// EffectiveGasPrice resolves the price actually paid per unit of gas under
// the given base fee: min(maxFeePerGas, baseFee+tip) when the dynamic-fee
// fields are set, the legacy gas price otherwise.
func (tx *Transaction) EffectiveGasPrice(baseFee *uint256.Int) *uint256.Int {
	if tx.MaxFeePerGas == nil || tx.MaxFeePerGas.IsZero() {
		if tx.GasPrice == nil {
			return new(uint256.Int)
		}
		return new(uint256.Int).Set(tx.GasPrice)
	}
	price := new(uint256.Int).Add(baseFee, tx.tipCap())
	if price.Gt(tx.MaxFeePerGas) {
		price.Set(tx.MaxFeePerGas)
	}
	return price
}

// EffectiveTip is the portion of the effective gas price above the base fee,
// credited to the block proposer. Zero when the price is below the base fee.
func (tx *Transaction) EffectiveTip(baseFee *uint256.Int) *uint256.Int {
	price := tx.EffectiveGasPrice(baseFee)
	if price.Lt(baseFee) {
		return new(uint256.Int)
	}
	return price.Sub(price, baseFee)
}

func (tx *Transaction) tipCap() *uint256.Int {
	if tx.MaxPriorityFeePerGas == nil {
		return new(uint256.Int)
	}
	return tx.MaxPriorityFeePerGas
}

// Cost returns value + gasLimit * effectiveGasPrice, the maximum the sender
// can be debited up front.
func (tx *Transaction) Cost(baseFee *uint256.Int) *uint256.Int {
	cost := new(uint256.Int).Mul(tx.EffectiveGasPrice(baseFee), uint256.NewInt(tx.GasLimit))
	if tx.Value != nil {
		cost.Add(cost, tx.Value)
	}
	return cost
}

// SignTx fills in the sender public key, derived sender address and the
// ed25519 signature over the signing hash.
func SignTx(tx *Transaction, priv ed25519.PrivateKey) (*Transaction, error) {
	pub := ed25519.PublicFromPrivate(priv)
	if pub == nil {
		return nil, errors.New("types: cannot derive public key")
	}
	tx.SenderPublicKey = common.CopyBytes(pub)
	tx.Sender = crypto.DeriveAddress(pub)
	tx.Signature = ed25519.Sign(priv, tx.SigningHash().Bytes())
	return tx, nil
}

// VerifySignature checks the ed25519 signature against the embedded sender
// public key. Shape errors and bad signatures are both reported as false.
func (tx *Transaction) VerifySignature() bool {
	if len(tx.SenderPublicKey) != ed25519.PublicKeySize || len(tx.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(tx.SenderPublicKey, tx.SigningHash().Bytes(), tx.Signature)
}
