package bft

import (
	"encoding/binary"
	"errors"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
)

var (
	ErrInvalidProposal  = errors.New("bft: invalid proposal")
	ErrInvalidVote      = errors.New("bft: invalid vote")
	ErrDuplicateVote    = errors.New("bft: duplicate vote")
	ErrEquivocation     = errors.New("bft: equivocation detected")
	ErrUnknownValidator = errors.New("bft: unknown validator")
	ErrNotLeader        = errors.New("bft: not the leader for this view")
	ErrTooManyInFlight  = errors.New("bft: pipeline full")
	ErrViewMismatch     = errors.New("bft: message view does not match")
	ErrStaleRound       = errors.New("bft: round already finalized")
)

// Phase is one rung of the vote ladder. The view-change sentinel is disjoint
// from the block phases so its tallies can never mix with them.
type Phase uint8

const (
	PhaseProposal   Phase = 0x00
	PhasePrepare    Phase = 0x01
	PhasePreCommit  Phase = 0x02
	PhaseCommit     Phase = 0x03
	PhaseViewChange Phase = 0xff
)

func (p Phase) String() string {
	switch p {
	case PhaseProposal:
		return "proposal"
	case PhasePrepare:
		return "prepare"
	case PhasePreCommit:
		return "pre-commit"
	case PhaseCommit:
		return "commit"
	case PhaseViewChange:
		return "view-change"
	default:
		return "unknown"
	}
}

// State is the lifecycle of one consensus round.
type State uint8

const (
	StateIdle State = iota
	StateProposing
	StatePreparing
	StatePreCommitting
	StateCommitting
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProposing:
		return "proposing"
	case StatePreparing:
		return "preparing"
	case StatePreCommitting:
		return "pre-committing"
	case StateCommitting:
		return "committing"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// VoteDigest is the message every BLS consensus signature covers:
// BLAKE3(block_hash || view_LE64 || phase).
func VoteDigest(blockHash common.Hash, view uint64, phase Phase) []byte {
	var buf [common.HashLength + 9]byte
	copy(buf[:], blockHash[:])
	binary.LittleEndian.PutUint64(buf[common.HashLength:], view)
	buf[common.HashLength+8] = byte(phase)
	return crypto.Blake3(buf[:])
}

// Vote is one validator's signature for a block at a given phase.
type Vote struct {
	BlockNumber uint64
	View        uint64
	BlockHash   common.Hash
	Phase       Phase
	Voter       common.Address
	Signature   []byte // compressed BLS G2 point
	PublicKey   []byte // compressed BLS G1 point
}

// Proposal carries a candidate block from the view's leader.
type Proposal struct {
	View        uint64
	BlockNumber uint64
	BlockHash   common.Hash
	Block       []byte // full encoded block
	Proposer    common.Address
	Signature   []byte
}

// ViewChange asks to abandon the current view for the proposed one.
type ViewChange struct {
	CurrentView  uint64
	ProposedView uint64
	Voter        common.Address
	Signature    []byte
	PublicKey    []byte
}
