// Package validator builds the active validator set from stake at epoch
// boundaries and hands it to the consensus engine.
package validator

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/consensus/bft"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/staking"
)

// EpochManager recomputes the validator set every EpochLength blocks.
type EpochManager struct {
	mu sync.Mutex

	staking     *staking.StakingState
	epochLength uint64
	setSize     int
	current     *bft.ValidatorSet

	log *logrus.Entry
}

// NewEpochManager wires the manager to the stake registry.
func NewEpochManager(st *staking.StakingState, epochLength uint64, setSize int) *EpochManager {
	return &EpochManager{
		staking:     st,
		epochLength: epochLength,
		setSize:     setSize,
		log:         logrus.WithField("module", "epoch"),
	}
}

// Current returns the active set.
func (m *EpochManager) Current() *bft.ValidatorSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Bootstrap installs the genesis validator set.
func (m *EpochManager) Bootstrap(set *bft.ValidatorSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = set
}

// OnBlockFinalized checks whether number closes an epoch and, if so, builds
// and installs the next set. The returned set is non-nil exactly when an
// epoch transition happened; the caller swaps it into the consensus engine
// before the next block is proposed.
func (m *EpochManager) OnBlockFinalized(number uint64) (*bft.ValidatorSet, uint64, bool) {
	if m.epochLength == 0 || number == 0 || number%m.epochLength != 0 {
		return nil, 0, false
	}
	epoch := number / m.epochLength

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.buildSet(m.current)
	if next.Len() == 0 {
		// An empty set cannot reach any quorum; keep the old one alive
		// rather than halting the chain.
		m.log.WithField("epoch", epoch).Warn("no active validators at epoch boundary, keeping previous set")
		return nil, 0, false
	}
	m.current = next
	m.log.WithFields(logrus.Fields{
		"epoch":      epoch,
		"validators": next.Len(),
		"quorum":     next.Quorum(),
	}).Info("epoch transition")
	return next, epoch, true
}

// buildSet selects the top-stake active validators and orders them for
// consensus.
//
// Selection runs in three phases: collect the active records, sort by total
// stake descending (address ascending as tiebreak) and truncate to the set
// size, then re-sort the survivors by address ascending and assign indices.
// The final address sort is what makes every node derive the same index for
// the same validator.
func (m *EpochManager) buildSet(prev *bft.ValidatorSet) *bft.ValidatorSet {
	active := m.staking.ActiveValidators()

	sort.SliceStable(active, func(i, j int) bool {
		cmp := active[i].TotalStake.Cmp(active[j].TotalStake)
		if cmp != 0 {
			return cmp > 0 // higher stake first
		}
		return active[i].Validator.Cmp(active[j].Validator) < 0
	})
	if len(active) > m.setSize {
		active = active[:m.setSize]
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Validator.Cmp(active[j].Validator) < 0
	})

	infos := make([]*bft.ValidatorInfo, len(active))
	for i, rec := range active {
		info := &bft.ValidatorInfo{
			Address:          rec.Validator,
			Stake:            rec.TotalStake,
			Ed25519PublicKey: rec.Ed25519PublicKey,
			BlsPublicKey:     rec.BlsPublicKey,
			Index:            i,
		}
		if len(rec.Ed25519PublicKey) > 0 {
			info.PeerID = crypto.PeerID(rec.Ed25519PublicKey)
		}
		// Validators surviving from the previous epoch keep their identity
		// so network connections and key bindings carry over untouched.
		if prev != nil {
			if old := prev.ByAddress(rec.Validator); old != nil {
				info.PeerID = old.PeerID
				info.Ed25519PublicKey = old.Ed25519PublicKey
				info.BlsPublicKey = old.BlsPublicKey
			}
		}
		infos[i] = info
	}
	return bft.NewValidatorSet(infos)
}
