package staking

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
)

// Sentinel errors returned by staking operations.
var (
	ErrAlreadyRegistered     = errors.New("staking: already registered")
	ErrNotRegistered         = errors.New("staking: validator not registered")
	ErrStakeTooLow           = errors.New("staking: stake below minimum")
	ErrInsufficientStake     = errors.New("staking: insufficient stake")
	ErrRemainingBelowMinimum = errors.New("staking: remaining stake below minimum")
	ErrInvalidAmount         = errors.New("staking: amount must be positive")
	ErrNoDelegation          = errors.New("staking: no delegation to withdraw")
)

// SlashingReason identifies why a validator was penalized.
type SlashingReason uint8

const (
	ReasonDoubleSign SlashingReason = iota
	ReasonInactivity
	ReasonInvalidBlock
)

func (r SlashingReason) String() string {
	switch r {
	case ReasonDoubleSign:
		return "double-sign"
	case ReasonInactivity:
		return "inactivity"
	case ReasonInvalidBlock:
		return "invalid-block"
	default:
		return "unknown"
	}
}

// StakeInfo is the registry record for one validator.
type StakeInfo struct {
	Validator         common.Address
	SelfStake         *uint256.Int
	DelegatedStake    *uint256.Int
	TotalStake        *uint256.Int // always SelfStake + DelegatedStake
	Active            bool
	RegisteredAtBlock uint64
	P2PEndpoint       string
	Ed25519PublicKey  []byte
	BlsPublicKey      []byte
	Delegators        map[common.Address]*uint256.Int
}

// Copy returns a deep copy of the record.
func (s *StakeInfo) Copy() *StakeInfo {
	cpy := &StakeInfo{
		Validator:         s.Validator,
		SelfStake:         new(uint256.Int).Set(s.SelfStake),
		DelegatedStake:    new(uint256.Int).Set(s.DelegatedStake),
		TotalStake:        new(uint256.Int).Set(s.TotalStake),
		Active:            s.Active,
		RegisteredAtBlock: s.RegisteredAtBlock,
		P2PEndpoint:       s.P2PEndpoint,
		Ed25519PublicKey:  common.CopyBytes(s.Ed25519PublicKey),
		BlsPublicKey:      common.CopyBytes(s.BlsPublicKey),
		Delegators:        make(map[common.Address]*uint256.Int, len(s.Delegators)),
	}
	for addr, amount := range s.Delegators {
		cpy.Delegators[addr] = new(uint256.Int).Set(amount)
	}
	return cpy
}

// UnbondingEntry is stake waiting out the unbonding period.
type UnbondingEntry struct {
	Validator       common.Address
	Withdrawer      common.Address
	Amount          *uint256.Int
	CompleteAtBlock uint64
}

// SlashingEvent is the audit record written for every applied penalty.
type SlashingEvent struct {
	Validator   common.Address
	Reason      SlashingReason
	Penalty     *uint256.Int
	Block       uint64
	Description string
	TimestampMs uint64
}
