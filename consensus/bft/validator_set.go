package bft

import (
	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
)

// ValidatorInfo identifies one member of the active set.
type ValidatorInfo struct {
	PeerID           common.Hash
	Ed25519PublicKey []byte
	BlsPublicKey     []byte // compressed G1, 48 bytes
	Address          common.Address
	Stake            *uint256.Int
	Index            int
}

// Copy returns a deep copy of the info.
func (v *ValidatorInfo) Copy() *ValidatorInfo {
	cpy := *v
	cpy.Ed25519PublicKey = common.CopyBytes(v.Ed25519PublicKey)
	cpy.BlsPublicKey = common.CopyBytes(v.BlsPublicKey)
	if v.Stake != nil {
		cpy.Stake = new(uint256.Int).Set(v.Stake)
	}
	return &cpy
}

// ValidatorSet is an immutable, index-ordered collection of validators.
// The epoch manager builds new instances; the consensus engine swaps whole
// references, so a set is never mutated after construction.
type ValidatorSet struct {
	validators []*ValidatorInfo
	byAddress  map[common.Address]*ValidatorInfo
	totalStake *uint256.Int
}

// NewValidatorSet builds a set from an index-ordered list. The given infos
// are copied; Index fields are normalized to the slice position.
func NewValidatorSet(infos []*ValidatorInfo) *ValidatorSet {
	set := &ValidatorSet{
		validators: make([]*ValidatorInfo, len(infos)),
		byAddress:  make(map[common.Address]*ValidatorInfo, len(infos)),
		totalStake: new(uint256.Int),
	}
	for i, info := range infos {
		cpy := info.Copy()
		cpy.Index = i
		set.validators[i] = cpy
		set.byAddress[cpy.Address] = cpy
		if cpy.Stake != nil {
			set.totalStake.Add(set.totalStake, cpy.Stake)
		}
	}
	return set
}

// Len returns the number of validators.
func (s *ValidatorSet) Len() int { return len(s.validators) }

// Quorum returns the vote count needed to advance a phase: 2n/3 + 1.
func (s *ValidatorSet) Quorum() int {
	return (2*len(s.validators))/3 + 1
}

// MaxFaults returns the number of Byzantine validators the set tolerates.
func (s *ValidatorSet) MaxFaults() int {
	if len(s.validators) == 0 {
		return 0
	}
	return (len(s.validators) - 1) / 3
}

// ByIndex returns the validator at position i, or nil when out of range.
func (s *ValidatorSet) ByIndex(i int) *ValidatorInfo {
	if i < 0 || i >= len(s.validators) {
		return nil
	}
	return s.validators[i]
}

// ByAddress returns the validator with the given address, or nil.
func (s *ValidatorSet) ByAddress(addr common.Address) *ValidatorInfo {
	return s.byAddress[addr]
}

// Contains reports whether addr is a member of the set.
func (s *ValidatorSet) Contains(addr common.Address) bool {
	_, ok := s.byAddress[addr]
	return ok
}

// Validators returns the members in index order. The slice is fresh, the
// infos are the set's own immutable records.
func (s *ValidatorSet) Validators() []*ValidatorInfo {
	out := make([]*ValidatorInfo, len(s.validators))
	copy(out, s.validators)
	return out
}

// TotalStake returns the combined stake of the set.
func (s *ValidatorSet) TotalStake() *uint256.Int {
	return new(uint256.Int).Set(s.totalStake)
}
