// Package staking tracks validator registrations, delegations, unbonding and
// penalties. All mutations are serialized under one guard: a slash observed
// concurrently with another slash or an unstake must never release more than
// the validator's total stake.
package staking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/params"
)

// StakingState is the in-memory validator registry.
type StakingState struct {
	mu sync.Mutex

	minStake        *uint256.Int
	unbondingPeriod uint64

	validators map[common.Address]*StakeInfo
	unbonding  []UnbondingEntry
	events     []SlashingEvent

	log *logrus.Entry
}

// New creates an empty registry with the given activation threshold and
// unbonding period (in blocks).
func New(minStake *uint256.Int, unbondingPeriod uint64) *StakingState {
	return &StakingState{
		minStake:        new(uint256.Int).Set(minStake),
		unbondingPeriod: unbondingPeriod,
		validators:      make(map[common.Address]*StakeInfo),
		log:             logrus.WithField("module", "staking"),
	}
}

// RegisterValidator creates a new stake record. The initial stake must meet
// the activation threshold; a second registration for the same address fails.
func (s *StakingState) RegisterValidator(addr common.Address, initialStake *uint256.Int, block uint64, p2pEndpoint string, edPub, blsPub []byte) error {
	if initialStake == nil || initialStake.IsZero() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.validators[addr]; ok {
		return ErrAlreadyRegistered
	}
	if initialStake.Lt(s.minStake) {
		return fmt.Errorf("%w: have %v want %v", ErrStakeTooLow, initialStake, s.minStake)
	}
	s.validators[addr] = &StakeInfo{
		Validator:         addr,
		SelfStake:         new(uint256.Int).Set(initialStake),
		DelegatedStake:    new(uint256.Int),
		TotalStake:        new(uint256.Int).Set(initialStake),
		Active:            true,
		RegisteredAtBlock: block,
		P2PEndpoint:       p2pEndpoint,
		Ed25519PublicKey:  common.CopyBytes(edPub),
		BlsPublicKey:      common.CopyBytes(blsPub),
		Delegators:        make(map[common.Address]*uint256.Int),
	}
	s.log.WithFields(logrus.Fields{
		"validator": addr.Hex(),
		"stake":     initialStake.String(),
		"block":     block,
	}).Info("validator registered")
	return nil
}

// AddStake increases the validator's self stake.
func (s *StakingState) AddStake(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[addr]
	if !ok {
		return ErrNotRegistered
	}
	info.SelfStake.Add(info.SelfStake, amount)
	info.TotalStake.Add(info.TotalStake, amount)
	s.refreshActive(info)
	return nil
}

// Delegate adds delegated stake from delegator to the validator.
func (s *StakingState) Delegate(delegator, addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[addr]
	if !ok {
		return ErrNotRegistered
	}
	cur, ok := info.Delegators[delegator]
	if !ok {
		cur = new(uint256.Int)
		info.Delegators[delegator] = cur
	}
	cur.Add(cur, amount)
	info.DelegatedStake.Add(info.DelegatedStake, amount)
	info.TotalStake.Add(info.TotalStake, amount)
	s.refreshActive(info)
	return nil
}

// InitiateUnstake removes amount from the validator's self stake and queues
// it for withdrawal after the unbonding period. The remaining self stake must
// either be zero (full exit) or stay at or above the minimum.
func (s *StakingState) InitiateUnstake(addr common.Address, amount *uint256.Int, currentBlock uint64) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[addr]
	if !ok {
		return ErrNotRegistered
	}
	if info.SelfStake.Lt(amount) {
		return fmt.Errorf("%w: have %v want %v", ErrInsufficientStake, info.SelfStake, amount)
	}
	remaining := new(uint256.Int).Sub(info.SelfStake, amount)
	if !remaining.IsZero() && remaining.Lt(s.minStake) {
		return fmt.Errorf("%w: %v left after unstake", ErrRemainingBelowMinimum, remaining)
	}
	info.SelfStake.Set(remaining)
	info.TotalStake.Sub(info.TotalStake, amount)
	s.refreshActive(info)

	s.unbonding = append(s.unbonding, UnbondingEntry{
		Validator:       addr,
		Withdrawer:      addr,
		Amount:          new(uint256.Int).Set(amount),
		CompleteAtBlock: currentBlock + s.unbondingPeriod,
	})
	return nil
}

// InitiateUndelegate removes amount of the delegator's stake from the
// validator and queues it for withdrawal after the unbonding period.
func (s *StakingState) InitiateUndelegate(delegator, addr common.Address, amount *uint256.Int, currentBlock uint64) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[addr]
	if !ok {
		return ErrNotRegistered
	}
	cur, ok := info.Delegators[delegator]
	if !ok || cur.Lt(amount) {
		return ErrNoDelegation
	}
	cur.Sub(cur, amount)
	if cur.IsZero() {
		delete(info.Delegators, delegator)
	}
	info.DelegatedStake.Sub(info.DelegatedStake, amount)
	info.TotalStake.Sub(info.TotalStake, amount)
	s.refreshActive(info)

	s.unbonding = append(s.unbonding, UnbondingEntry{
		Validator:       addr,
		Withdrawer:      delegator,
		Amount:          new(uint256.Int).Set(amount),
		CompleteAtBlock: currentBlock + s.unbondingPeriod,
	})
	return nil
}

// ProcessUnbonding removes and returns every entry whose unbonding period
// has elapsed at currentBlock. The caller credits the returned amounts back
// to the withdrawers.
func (s *StakingState) ProcessUnbonding(currentBlock uint64) []UnbondingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		done    []UnbondingEntry
		pending []UnbondingEntry
	)
	for _, entry := range s.unbonding {
		if currentBlock >= entry.CompleteAtBlock {
			done = append(done, entry)
		} else {
			pending = append(pending, entry)
		}
	}
	s.unbonding = pending
	return done
}

// ApplySlash burns a percentage of the validator's total stake, consuming
// self stake first. The whole read-modify-write runs under the registry
// guard, so two concurrent slashes can never double-spend the same stake.
// Returns the amount actually removed.
func (s *StakingState) ApplySlash(addr common.Address, reason SlashingReason, block uint64, description string) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.validators[addr]
	if !ok {
		return new(uint256.Int)
	}
	penalty := new(uint256.Int).Mul(info.TotalStake, uint256.NewInt(slashPercent(reason)))
	penalty.Div(penalty, uint256.NewInt(100))
	if penalty.Gt(info.TotalStake) {
		penalty.Set(info.TotalStake)
	}

	// Self stake absorbs the penalty first, delegations cover the rest.
	remaining := new(uint256.Int).Set(penalty)
	if info.SelfStake.Lt(remaining) {
		remaining.Sub(remaining, info.SelfStake)
		info.SelfStake.Clear()
		s.consumeDelegations(info, remaining)
	} else {
		info.SelfStake.Sub(info.SelfStake, remaining)
	}
	info.TotalStake.Sub(info.TotalStake, penalty)
	s.refreshActive(info)

	s.events = append(s.events, SlashingEvent{
		Validator:   addr,
		Reason:      reason,
		Penalty:     new(uint256.Int).Set(penalty),
		Block:       block,
		Description: description,
		TimestampMs: uint64(time.Now().UnixMilli()),
	})
	s.log.WithFields(logrus.Fields{
		"validator": addr.Hex(),
		"reason":    reason.String(),
		"penalty":   penalty.String(),
		"block":     block,
	}).Warn("validator slashed")
	return penalty
}

// SlashDoubleSign records a 100% slash for signing two blocks at one height.
func (s *StakingState) SlashDoubleSign(addr common.Address, block uint64, first, second common.Hash) *uint256.Int {
	desc := fmt.Sprintf("double sign at block %d: %s vs %s", block, first.TerminalString(), second.TerminalString())
	return s.ApplySlash(addr, ReasonDoubleSign, block, desc)
}

// consumeDelegations drains amount out of the delegations, walking
// delegators in address order so every node burns the same balances.
func (s *StakingState) consumeDelegations(info *StakeInfo, amount *uint256.Int) {
	if amount.IsZero() || info.DelegatedStake.IsZero() {
		return
	}
	if info.DelegatedStake.Lt(amount) {
		amount.Set(info.DelegatedStake)
	}
	info.DelegatedStake.Sub(info.DelegatedStake, amount)

	// Walk delegators in address order, draining until covered.
	addrs := make([]common.Address, 0, len(info.Delegators))
	for addr := range info.Delegators {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })
	left := new(uint256.Int).Set(amount)
	for _, addr := range addrs {
		if left.IsZero() {
			break
		}
		bal := info.Delegators[addr]
		if bal.Lt(left) {
			left.Sub(left, bal)
			delete(info.Delegators, addr)
			continue
		}
		bal.Sub(bal, left)
		left.Clear()
		if bal.IsZero() {
			delete(info.Delegators, addr)
		}
	}
}

// refreshActive flips the active flag against the minimum-stake threshold.
func (s *StakingState) refreshActive(info *StakeInfo) {
	wasActive := info.Active
	info.Active = !info.TotalStake.Lt(s.minStake)
	if wasActive && !info.Active {
		s.log.WithField("validator", info.Validator.Hex()).Info("validator deactivated below minimum stake")
	}
}

// Validator returns a copy of the record for addr.
func (s *StakingState) Validator(addr common.Address) (*StakeInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.validators[addr]
	if !ok {
		return nil, false
	}
	return info.Copy(), true
}

// ActiveValidators returns copies of every active record.
func (s *StakingState) ActiveValidators() []*StakeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StakeInfo, 0, len(s.validators))
	for _, info := range s.validators {
		if info.Active {
			out = append(out, info.Copy())
		}
	}
	return out
}

// SlashingEvents returns a copy of the audit log.
func (s *StakingState) SlashingEvents() []SlashingEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlashingEvent, len(s.events))
	copy(out, s.events)
	return out
}

// PendingUnbonding returns a copy of the unbonding queue.
func (s *StakingState) PendingUnbonding() []UnbondingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UnbondingEntry, len(s.unbonding))
	copy(out, s.unbonding)
	return out
}

func slashPercent(reason SlashingReason) uint64 {
	switch reason {
	case ReasonDoubleSign:
		return params.SlashPercentDoubleSign
	case ReasonInactivity:
		return params.SlashPercentInactivity
	case ReasonInvalidBlock:
		return params.SlashPercentBadBlock
	default:
		return 0
	}
}
