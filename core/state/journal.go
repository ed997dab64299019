// Copyright 2016 The go-ethereum Authors
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

package state

import (
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
)

// journalEntry is a modification entry in the state change journal that can
// be reverted on demand.
type journalEntry interface {
	// revert undoes the change introduced by this journal entry.
	revert(*StateDB)
}

type (
	// createAccountChange records the creation of a previously absent account.
	createAccountChange struct {
		account common.Address
	}
	// accountChange records the full prior value of a mutated account.
	accountChange struct {
		account common.Address
		prev    *types.StateAccount
	}
	// storageChange records the prior value of a mutated storage slot.
	storageChange struct {
		account  common.Address
		key      common.Hash
		prev     []byte
		existed  bool
	}
)

func (ch createAccountChange) revert(s *StateDB) {
	delete(s.accounts, ch.account)
	delete(s.storage, ch.account)
}

func (ch accountChange) revert(s *StateDB) {
	s.accounts[ch.account] = ch.prev
}

func (ch storageChange) revert(s *StateDB) {
	slots := s.storage[ch.account]
	if ch.existed {
		slots[ch.key] = ch.prev
	} else {
		delete(slots, ch.key)
	}
}
