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

// Package state provides the replicated account and storage database.
package state

import (
	"encoding/binary"
	"sort"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/crypto"
)

type revision struct {
	id           int
	journalIndex int
}

// StateDB holds every account and its storage. Mutations are recorded in a
// journal so a slice of them can be reverted; Snapshot and RevertToSnapshot
// bracket the execution of a single transaction.
//
// StateDB performs no internal locking. The block chain owns one instance
// and holds its writer guard across an entire block application; concurrent
// readers are blocked for that whole span (see core.BlockChain).
type StateDB struct {
	accounts map[common.Address]*types.StateAccount
	storage  map[common.Address]map[common.Hash][]byte

	journal        []journalEntry
	validRevisions []revision
	nextRevisionID int
}

// New creates an empty state database.
func New() *StateDB {
	return &StateDB{
		accounts: make(map[common.Address]*types.StateAccount),
		storage:  make(map[common.Address]map[common.Hash][]byte),
	}
}

// Exist reports whether the given account exists in state.
func (s *StateDB) Exist(addr common.Address) bool {
	_, ok := s.accounts[addr]
	return ok
}

// GetAccount retrieves the account for addr, or nil when absent. The
// returned value is a copy; mutations must go through the setters.
func (s *StateDB) GetAccount(addr common.Address) *types.StateAccount {
	if acct, ok := s.accounts[addr]; ok {
		return acct.Copy()
	}
	return nil
}

// SetAccount writes the full account value for addr.
func (s *StateDB) SetAccount(addr common.Address, acct *types.StateAccount) {
	if prev, ok := s.accounts[addr]; ok {
		s.journal = append(s.journal, accountChange{account: addr, prev: prev})
	} else {
		s.journal = append(s.journal, createAccountChange{account: addr})
	}
	s.accounts[addr] = acct.Copy()
}

// mutable returns the live account for addr, creating it when absent, with
// the prior value journaled.
func (s *StateDB) mutable(addr common.Address) *types.StateAccount {
	if acct, ok := s.accounts[addr]; ok {
		s.journal = append(s.journal, accountChange{account: addr, prev: acct.Copy()})
		return acct
	}
	s.journal = append(s.journal, createAccountChange{account: addr})
	acct := types.NewStateAccount()
	s.accounts[addr] = acct
	return acct
}

// GetBalance returns the balance for addr, zero for absent accounts.
func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if acct, ok := s.accounts[addr]; ok {
		return new(uint256.Int).Set(acct.Balance)
	}
	return new(uint256.Int)
}

// AddBalance adds amount to the account associated with addr.
func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int) {
	acct := s.mutable(addr)
	acct.Balance.Add(acct.Balance, amount)
}

// SubBalance removes amount from the account associated with addr, clamping
// at zero. Callers validate funds beforehand; the clamp only keeps a logic
// error from wrapping into a 2^256 balance.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int) {
	acct := s.mutable(addr)
	if acct.Balance.Lt(amount) {
		acct.Balance.Clear()
		return
	}
	acct.Balance.Sub(acct.Balance, amount)
}

// GetNonce returns the nonce for addr, zero for absent accounts.
func (s *StateDB) GetNonce(addr common.Address) uint64 {
	if acct, ok := s.accounts[addr]; ok {
		return acct.Nonce
	}
	return 0
}

// SetNonce writes the nonce for addr.
func (s *StateDB) SetNonce(addr common.Address, nonce uint64) {
	s.mutable(addr).Nonce = nonce
}

// GetCodeHash returns the code hash for addr, the zero hash for absent or
// codeless accounts.
func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	if acct, ok := s.accounts[addr]; ok {
		return acct.CodeHash
	}
	return common.Hash{}
}

// SetCode marks addr as a contract account with the given code hash.
func (s *StateDB) SetCode(addr common.Address, codeHash common.Hash) {
	acct := s.mutable(addr)
	acct.AccountType = types.AccountContract
	acct.CodeHash = codeHash
}

// GetStorage retrieves the value stored under (addr, key), or nil.
func (s *StateDB) GetStorage(addr common.Address, key common.Hash) []byte {
	if slots, ok := s.storage[addr]; ok {
		if val, ok := slots[key]; ok {
			return common.CopyBytes(val)
		}
	}
	return nil
}

// SetStorage writes value under (addr, key).
func (s *StateDB) SetStorage(addr common.Address, key common.Hash, value []byte) {
	slots, ok := s.storage[addr]
	if !ok {
		slots = make(map[common.Hash][]byte)
		s.storage[addr] = slots
	}
	prev, existed := slots[key]
	s.journal = append(s.journal, storageChange{account: addr, key: key, prev: prev, existed: existed})
	slots[key] = common.CopyBytes(value)
}

// DeleteStorage removes the slot under (addr, key). Deleting an absent slot
// is a no-op.
func (s *StateDB) DeleteStorage(addr common.Address, key common.Hash) {
	slots, ok := s.storage[addr]
	if !ok {
		return
	}
	prev, existed := slots[key]
	if !existed {
		return
	}
	s.journal = append(s.journal, storageChange{account: addr, key: key, prev: prev, existed: true})
	delete(slots, key)
}

// Snapshot returns an identifier for the current revision of the state.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id, len(s.journal)})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *StateDB) RevertToSnapshot(revid int) {
	// Find the snapshot in the stack of valid snapshots.
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		panic("revision id cannot be reverted")
	}
	snapshot := s.validRevisions[idx].journalIndex

	for i := len(s.journal) - 1; i >= snapshot; i-- {
		s.journal[i].revert(s)
	}
	s.journal = s.journal[:snapshot]
	s.validRevisions = s.validRevisions[:idx]
}

// Finalise commits all journaled changes: they can no longer be reverted.
func (s *StateDB) Finalise() {
	s.journal = s.journal[:0]
	s.validRevisions = s.validRevisions[:0]
	s.nextRevisionID = 0
}

// storageRoot folds an account's storage into a merkle root over the sorted
// slot keys; the leaf of a slot is BLAKE3(key || value).
func (s *StateDB) storageRoot(addr common.Address) common.Hash {
	slots := s.storage[addr]
	if len(slots) == 0 {
		return common.Hash{}
	}
	keys := make([]common.Hash, 0, len(slots))
	for key := range slots {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i][:]) < string(keys[j][:])
	})
	leaves := make([]common.Hash, len(keys))
	for i, key := range keys {
		leaves[i] = crypto.Blake3Hash(key[:], slots[key])
	}
	return types.MerkleRoot(leaves)
}

// ComputeStateRoot derives the merkle root over all accounts. Accounts are
// sorted by address before hashing; the sort is what makes the root a pure
// function of the account map.
func (s *StateDB) ComputeStateRoot() common.Hash {
	addrs := make([]common.Address, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Cmp(addrs[j]) < 0
	})
	leaves := make([]common.Hash, len(addrs))
	for i, addr := range addrs {
		acct := s.accounts[addr]
		acct.StorageRoot = s.storageRoot(addr)
		leaves[i] = accountLeaf(addr, acct)
	}
	return types.MerkleRoot(leaves)
}

// accountLeaf hashes one account into its state-root leaf:
// BLAKE3(addr || balance_BE32 || nonce_LE64 || account_type || storage_root || code_hash).
func accountLeaf(addr common.Address, acct *types.StateAccount) common.Hash {
	balance := acct.Balance.Bytes32()
	var nonce [8]byte
	binary.LittleEndian.PutUint64(nonce[:], acct.Nonce)
	return crypto.Blake3Hash(
		addr.Bytes(),
		balance[:],
		nonce[:],
		[]byte{byte(acct.AccountType)},
		acct.StorageRoot.Bytes(),
		acct.CodeHash.Bytes(),
	)
}

// Copy duplicates the state database, detached from the original. Journals
// are not carried over; the copy starts clean.
func (s *StateDB) Copy() *StateDB {
	cpy := New()
	for addr, acct := range s.accounts {
		cpy.accounts[addr] = acct.Copy()
	}
	for addr, slots := range s.storage {
		dst := make(map[common.Hash][]byte, len(slots))
		for key, val := range slots {
			dst[key] = common.CopyBytes(val)
		}
		cpy.storage[addr] = dst
	}
	return cpy
}
