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

package core

import "errors"

var (
	// Transaction validation errors.
	ErrWrongChain       = errors.New("wrong chain id")
	ErrMalformedTx      = errors.New("malformed transaction")
	ErrSenderMismatch   = errors.New("sender does not match public key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnknownSender    = errors.New("unknown sender account")
	ErrNonceTooLow      = errors.New("nonce too low")
	ErrNonceTooHigh     = errors.New("nonce too high")
	ErrNonceMax         = errors.New("nonce has max value")

	// Economic errors.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")
	ErrUnderpriced       = errors.New("effective gas price below base fee")
	ErrIntrinsicGas      = errors.New("intrinsic gas too low")
	ErrGasUintOverflow   = errors.New("gas uint64 overflow")

	// Block linkage and verification errors.
	ErrBadParentHash        = errors.New("parent hash mismatch")
	ErrBadBlockNumber       = errors.New("block number not parent+1")
	ErrBadTimestamp         = errors.New("timestamp not after parent")
	ErrGasOverLimit         = errors.New("gas used exceeds block gas limit")
	ErrTooManyTransactions  = errors.New("transaction count exceeds block limit")
	ErrBaseFeeMismatch      = errors.New("base fee does not follow fee rule")
	ErrTxRootMismatch       = errors.New("transactions root mismatch")
	ErrStateRootMismatch    = errors.New("state root mismatch")
	ErrReceiptsRootMismatch = errors.New("receipts root mismatch")
	ErrKnownBlock           = errors.New("block already known")
)

// errorCodes maps sentinels to the stable machine-readable codes surfaced to
// transaction submitters and peers.
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrWrongChain, "WrongChain"},
	{ErrMalformedTx, "MalformedTx"},
	{ErrSenderMismatch, "SenderMismatch"},
	{ErrInvalidSignature, "InvalidSignature"},
	{ErrUnknownSender, "UnknownSender"},
	{ErrNonceTooLow, "NonceMismatch.Stale"},
	{ErrNonceTooHigh, "NonceMismatch.Future"},
	{ErrNonceMax, "NonceMismatch.Max"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrUnderpriced, "UnderpricedForBlock"},
	{ErrIntrinsicGas, "GasLimitTooLow"},
	{ErrGasUintOverflow, "GasLimitTooLow"},
	{ErrBadParentHash, "BadParentHash"},
	{ErrBadBlockNumber, "BadBlockNumber"},
	{ErrBadTimestamp, "BadBlockNumber"},
	{ErrGasOverLimit, "GasOverLimit"},
	{ErrTooManyTransactions, "GasOverLimit"},
	{ErrBaseFeeMismatch, "BaseFeeMismatch"},
	{ErrTxRootMismatch, "TransactionsRootMismatch"},
	{ErrStateRootMismatch, "StateRootMismatch"},
	{ErrReceiptsRootMismatch, "ReceiptsRootMismatch"},
}

// ErrorCode resolves the stable code for err, or "Internal" when the error
// is not part of the public taxonomy.
func ErrorCode(err error) string {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "Internal"
}
