package types

import (
	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
)

// AccountType separates externally owned accounts from contract accounts.
type AccountType uint8

const (
	AccountEOA AccountType = iota
	AccountContract
)

// StateAccount is the consensus representation of accounts.
// These objects are the leaves of the state merkle computation.
type StateAccount struct {
	Balance     *uint256.Int
	Nonce       uint64
	AccountType AccountType
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// NewStateAccount returns an empty externally owned account.
func NewStateAccount() *StateAccount {
	return &StateAccount{Balance: new(uint256.Int)}
}

// Copy returns a deep copy of the account.
func (a *StateAccount) Copy() *StateAccount {
	cpy := *a
	cpy.Balance = new(uint256.Int).Set(a.Balance)
	return &cpy
}

// IsContract reports whether the account holds code.
func (a *StateAccount) IsContract() bool {
	return a.AccountType == AccountContract
}
