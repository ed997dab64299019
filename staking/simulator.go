package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
)

// UnbondingDue returns copies of every entry completed at currentBlock
// without removing them. The block builder uses this to credit withdrawals
// speculatively; the canonical apply later pops the same entries with
// ProcessUnbonding.
func (s *StakingState) UnbondingDue(currentBlock uint64) []UnbondingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []UnbondingEntry
	for _, entry := range s.unbonding {
		if currentBlock >= entry.CompleteAtBlock {
			due = append(due, entry)
		}
	}
	return due
}

// Simulator answers staking operations with the same accept/reject decision
// as the live registry but never mutates it. The block builder executes
// candidate transactions against a state copy; routing their staking side
// effects here keeps the registry untouched until the block is finalized
// and canonically applied.
//
// The answers stay truthful because the registry only changes on canonical
// block application, which is strictly serialized with block building.
type Simulator struct {
	state *StakingState

	// Operations applied earlier in the same simulated block shadow the
	// registry, so tx #2 sees tx #1's registration.
	registered map[common.Address]*uint256.Int // address -> simulated self stake
	deposited  map[common.Address]*uint256.Int
}

// NewSimulator wraps the registry for one block-building session.
func (s *StakingState) NewSimulator() *Simulator {
	return &Simulator{
		state:      s,
		registered: make(map[common.Address]*uint256.Int),
		deposited:  make(map[common.Address]*uint256.Int),
	}
}

func (sim *Simulator) RegisterValidator(addr common.Address, initialStake *uint256.Int, block uint64, p2pEndpoint string, edPub, blsPub []byte) error {
	if initialStake == nil || initialStake.IsZero() {
		return ErrInvalidAmount
	}
	if _, ok := sim.registered[addr]; ok {
		return ErrAlreadyRegistered
	}
	sim.state.mu.Lock()
	_, exists := sim.state.validators[addr]
	minStake := new(uint256.Int).Set(sim.state.minStake)
	sim.state.mu.Unlock()
	if exists {
		return ErrAlreadyRegistered
	}
	if initialStake.Lt(minStake) {
		return fmt.Errorf("%w: have %v want %v", ErrStakeTooLow, initialStake, minStake)
	}
	sim.registered[addr] = new(uint256.Int).Set(initialStake)
	return nil
}

func (sim *Simulator) AddStake(addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if !sim.known(addr) {
		return ErrNotRegistered
	}
	cur, ok := sim.deposited[addr]
	if !ok {
		cur = new(uint256.Int)
		sim.deposited[addr] = cur
	}
	cur.Add(cur, amount)
	return nil
}

func (sim *Simulator) Delegate(delegator, addr common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if !sim.known(addr) {
		return ErrNotRegistered
	}
	return nil
}

func (sim *Simulator) InitiateUnstake(addr common.Address, amount *uint256.Int, currentBlock uint64) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	sim.state.mu.Lock()
	defer sim.state.mu.Unlock()
	info, ok := sim.state.validators[addr]
	if !ok {
		if _, simOnly := sim.registered[addr]; !simOnly {
			return ErrNotRegistered
		}
		// Registered earlier in this simulated block; treat the simulated
		// stake as the balance.
		self := sim.registered[addr]
		if self.Lt(amount) {
			return ErrInsufficientStake
		}
		remaining := new(uint256.Int).Sub(self, amount)
		if !remaining.IsZero() && remaining.Lt(sim.state.minStake) {
			return ErrRemainingBelowMinimum
		}
		return nil
	}
	self := new(uint256.Int).Set(info.SelfStake)
	if dep, ok := sim.deposited[addr]; ok {
		self.Add(self, dep)
	}
	if self.Lt(amount) {
		return fmt.Errorf("%w: have %v want %v", ErrInsufficientStake, self, amount)
	}
	remaining := new(uint256.Int).Sub(self, amount)
	if !remaining.IsZero() && remaining.Lt(sim.state.minStake) {
		return fmt.Errorf("%w: %v left after unstake", ErrRemainingBelowMinimum, remaining)
	}
	return nil
}

func (sim *Simulator) InitiateUndelegate(delegator, addr common.Address, amount *uint256.Int, currentBlock uint64) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	sim.state.mu.Lock()
	defer sim.state.mu.Unlock()
	info, ok := sim.state.validators[addr]
	if !ok {
		return ErrNotRegistered
	}
	cur, ok := info.Delegators[delegator]
	if !ok || cur.Lt(amount) {
		return ErrNoDelegation
	}
	return nil
}

func (sim *Simulator) known(addr common.Address) bool {
	if _, ok := sim.registered[addr]; ok {
		return true
	}
	sim.state.mu.Lock()
	defer sim.state.mu.Unlock()
	_, ok := sim.state.validators[addr]
	return ok
}
