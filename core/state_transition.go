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

import (
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/state"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/core/vm"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
	"github.com/basalt-network/gbasalt/params"
	"github.com/basalt-network/gbasalt/staking"
)

// StakingBackend receives the staking side effects of executed transactions.
// The canonical apply path plugs in the live registry; the block builder
// plugs in a non-mutating simulator that gives the same answers.
type StakingBackend interface {
	RegisterValidator(addr common.Address, initialStake *uint256.Int, block uint64, p2pEndpoint string, edPub, blsPub []byte) error
	AddStake(addr common.Address, amount *uint256.Int) error
	Delegate(delegator, validator common.Address, amount *uint256.Int) error
	InitiateUnstake(addr common.Address, amount *uint256.Int, currentBlock uint64) error
	InitiateUndelegate(delegator, validator common.Address, amount *uint256.Int, currentBlock uint64) error
}

// codeSlot is the storage slot contract code bytes live under. The code hash
// on the account commits to them; the VM receives the bytes as its input.
var codeSlot = crypto.Keccak256Hash([]byte("code"))

// IntrinsicGas computes the gas charged before any execution happens.
// Plain transfers cost the flat transfer price; contract and staking
// payloads add a per-byte cost, and deployment adds a creation surcharge.
func IntrinsicGas(txType types.TxType, dataLen int, config *params.ChainConfig) (uint64, error) {
	gas := config.TransferGasCost
	if txType == types.TxContractDeploy {
		gas += params.TxContractCreate
	}
	if dataLen > 0 && txType != types.TxTransfer {
		byteGas := params.TxDataGas
		if (math.MaxUint64-gas)/byteGas < uint64(dataLen) {
			return 0, ErrGasUintOverflow
		}
		gas += uint64(dataLen) * byteGas
	}
	return gas, nil
}

// ValidateTransaction runs the full admission ladder against the current
// state. The checks run in a fixed order so every node reports the same
// failure for the same transaction.
func ValidateTransaction(config *params.ChainConfig, db *state.StateDB, tx *types.Transaction, baseFee *uint256.Int) error {
	if tx.ChainID != config.ChainID {
		return fmt.Errorf("%w: tx %d node %d", ErrWrongChain, tx.ChainID, config.ChainID)
	}
	if len(tx.Signature) != ed25519.SignatureSize || len(tx.SenderPublicKey) != ed25519.PublicKeySize {
		return ErrMalformedTx
	}
	if crypto.DeriveAddress(tx.SenderPublicKey) != tx.Sender {
		return ErrSenderMismatch
	}
	if !tx.VerifySignature() {
		return ErrInvalidSignature
	}
	acct := db.GetAccount(tx.Sender)
	if acct == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSender, tx.Sender.Hex())
	}
	if acct.Nonce == math.MaxUint64 {
		return ErrNonceMax
	}
	if tx.Nonce > acct.Nonce {
		return fmt.Errorf("%w: tx %d state %d", ErrNonceTooHigh, tx.Nonce, acct.Nonce)
	}
	if tx.Nonce < acct.Nonce {
		return fmt.Errorf("%w: tx %d state %d", ErrNonceTooLow, tx.Nonce, acct.Nonce)
	}
	intrinsic, err := IntrinsicGas(tx.Type, len(tx.Data), config)
	if err != nil {
		return err
	}
	if tx.GasLimit < intrinsic {
		return fmt.Errorf("%w: have %d want %d", ErrIntrinsicGas, tx.GasLimit, intrinsic)
	}
	price := tx.EffectiveGasPrice(baseFee)
	if price.Lt(baseFee) {
		return fmt.Errorf("%w: price %v base fee %v", ErrUnderpriced, price, baseFee)
	}
	if acct.Balance.Lt(tx.Cost(baseFee)) {
		return fmt.Errorf("%w: address %s have %v want %v", ErrInsufficientFunds, tx.Sender.Hex(), acct.Balance, tx.Cost(baseFee))
	}
	return nil
}

// ApplyTransaction executes one validated transaction against db in the
// environment of header. The admission ladder runs first; a ladder failure
// aborts with an error and leaves the state untouched. Execution failures
// past admission produce a failed receipt instead: gas up to the failure
// point stays consumed and the block remains valid.
func ApplyTransaction(config *params.ChainConfig, db *state.StateDB, header *types.Header, tx *types.Transaction, stakingState StakingBackend, machine vm.VM, gp *GasPool, usedGas *uint64) (*types.Receipt, error) {
	if err := ValidateTransaction(config, db, tx, header.BaseFee); err != nil {
		return nil, err
	}
	if err := gp.SubGas(tx.GasLimit); err != nil {
		return nil, err
	}
	var (
		price     = tx.EffectiveGasPrice(header.BaseFee)
		intrinsic uint64
	)
	intrinsic, _ = IntrinsicGas(tx.Type, len(tx.Data), config) // validated above

	// Debit the full gas allowance up front and bump the nonce. These
	// survive even a failed execution; the value moves inside the snapshot
	// so a revert hands it back.
	db.SubBalance(tx.Sender, new(uint256.Int).Mul(price, uint256.NewInt(tx.GasLimit)))
	db.SetNonce(tx.Sender, tx.Nonce+1)

	var (
		snap    = db.Snapshot()
		gasUsed = intrinsic
		logs    []*types.Log
		execErr error
	)
	// Stake deposits and registrations debit the sender too: the funds
	// leave the account space and sit in the staking module until unbonding
	// returns them.
	if tx.Value != nil && !tx.Value.IsZero() && tx.Type != types.TxStakeWithdraw {
		db.SubBalance(tx.Sender, tx.Value)
	}
	switch tx.Type {
	case types.TxTransfer:
		// A transfer to the zero address burns the value.
		if !tx.To.IsZero() && tx.Value != nil && !tx.Value.IsZero() {
			db.AddBalance(tx.To, tx.Value)
		}

	case types.TxStakeDeposit:
		if tx.To == tx.Sender {
			execErr = stakingState.AddStake(tx.Sender, tx.Value)
		} else {
			execErr = stakingState.Delegate(tx.Sender, tx.To, tx.Value)
		}

	case types.TxStakeWithdraw:
		execErr = applyStakeWithdraw(tx, header.Number, stakingState)

	case types.TxValidatorRegister:
		var payload *staking.RegisterPayload
		payload, execErr = staking.DecodeRegisterPayload(tx.Data)
		if execErr == nil {
			execErr = stakingState.RegisterValidator(tx.Sender, tx.Value, header.Number, payload.P2PEndpoint, tx.SenderPublicKey, payload.BlsPublicKey)
		}

	case types.TxContractDeploy, types.TxContractCall:
		var vmGas uint64
		logs, vmGas, execErr = applyContract(db, header, tx, machine, intrinsic)
		gasUsed += vmGas
	}

	if execErr != nil {
		db.RevertToSnapshot(snap)
		logs = nil
	}
	if gasUsed > tx.GasLimit {
		gasUsed = tx.GasLimit
	}

	// Refund the unused portion, pay the tip, burn the base share. The base
	// part of the fee is simply never credited to anyone.
	refund := new(uint256.Int).Mul(price, uint256.NewInt(tx.GasLimit-gasUsed))
	db.AddBalance(tx.Sender, refund)
	tip := new(uint256.Int).Mul(tx.EffectiveTip(header.BaseFee), uint256.NewInt(gasUsed))
	if !tip.IsZero() && !header.Proposer.IsZero() {
		db.AddBalance(header.Proposer, tip)
	}
	gp.AddGas(tx.GasLimit - gasUsed)
	*usedGas += gasUsed

	receipt := &types.Receipt{
		TxHash:            tx.Hash(),
		Success:           execErr == nil,
		GasUsed:           gasUsed,
		EffectiveGasPrice: price,
		Logs:              logs,
	}
	if execErr != nil {
		receipt.ErrorCode = executionErrorCode(execErr)
	}
	return receipt, nil
}

// applyStakeWithdraw parses the withdrawal amount out of tx.Data (a 32-byte
// big-endian integer) and routes it to unstake or undelegate. The value
// field must be zero: withdrawals move no funds until unbonding completes.
func applyStakeWithdraw(tx *types.Transaction, blockNumber uint64, stakingState StakingBackend) error {
	if tx.Value != nil && !tx.Value.IsZero() {
		return errors.New("stake withdrawal must not carry value")
	}
	if len(tx.Data) != 32 {
		return errors.New("stake withdrawal needs a 32-byte amount")
	}
	amount := new(uint256.Int).SetBytes(tx.Data)
	if tx.To == tx.Sender {
		return stakingState.InitiateUnstake(tx.Sender, amount, blockNumber)
	}
	return stakingState.InitiateUndelegate(tx.Sender, tx.To, amount, blockNumber)
}

// applyContract hands a deploy or call to the external VM under a gas meter
// scoped to the gas left after the intrinsic charge.
func applyContract(db *state.StateDB, header *types.Header, tx *types.Transaction, machine vm.VM, intrinsic uint64) ([]*types.Log, uint64, error) {
	if machine == nil {
		return nil, 0, errors.New("no contract vm attached")
	}
	var (
		meter    = vm.NewGasMeter(tx.GasLimit - intrinsic)
		code     []byte
		contract common.Address
	)
	if tx.Type == types.TxContractDeploy {
		contract = crypto.ContractAddress(tx.Sender, tx.Nonce)
		code = tx.Data
	} else {
		contract = tx.To
		code = db.GetStorage(tx.To, codeSlot)
		if len(code) == 0 {
			return nil, 0, errors.New("no code at call destination")
		}
	}
	if tx.Value != nil && !tx.Value.IsZero() {
		db.AddBalance(contract, tx.Value)
	}
	result := machine.Execute(code, tx.Data, &vm.Context{
		Caller:       tx.Sender,
		ContractAddr: contract,
		Value:        tx.Value,
		BlockTimeMs:  header.TimestampMs,
		BlockNumber:  header.Number,
		ChainID:      header.ChainID,
		Gas:          meter,
		State:        db,
	})
	if result.Err != nil {
		return nil, result.GasUsed, result.Err
	}
	if !result.Success {
		return nil, result.GasUsed, vm.ErrExecutionReverted
	}
	if tx.Type == types.TxContractDeploy {
		db.SetStorage(contract, codeSlot, tx.Data)
		db.SetCode(contract, crypto.Blake3Hash(tx.Data))
	}
	return result.Logs, result.GasUsed, nil
}

// executionErrorCode maps an in-block execution failure to its receipt code.
func executionErrorCode(err error) string {
	switch {
	case errors.Is(err, vm.ErrOutOfGas):
		return "OutOfGas"
	case errors.Is(err, vm.ErrExecutionReverted):
		return "Reverted"
	case errors.Is(err, vm.ErrMemoryLimitExceeded):
		return "MemoryLimitExceeded"
	case errors.Is(err, vm.ErrCpuTimeLimitExceeded):
		return "CpuTimeLimitExceeded"
	case errors.Is(err, staking.ErrAlreadyRegistered):
		return "AlreadyRegistered"
	case errors.Is(err, staking.ErrStakeTooLow):
		return "StakeTooLow"
	case errors.Is(err, staking.ErrInsufficientStake):
		return "InsufficientStake"
	case errors.Is(err, staking.ErrRemainingBelowMinimum):
		return "RemainingBelowMinimum"
	case errors.Is(err, staking.ErrNotRegistered):
		return "UnknownValidator"
	default:
		return "ContractCallFailed"
	}
}
