package bft

import (
	"bytes"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto/bls"
)

// Broadcaster fans consensus messages out to the validator peers.
// Implementations must not block; the engine calls them under its guard.
type Broadcaster interface {
	BroadcastProposal(*Proposal)
	BroadcastVote(*Vote)
	BroadcastViewChange(*ViewChange)
}

// Event is delivered on the engine's event channel.
type Event interface{}

// BlockFinalizedEvent reports a block that collected COMMIT quorum and whose
// predecessors are all finalized. Certificate carries the aggregated commit
// signatures; it is nil only if aggregation failed on a malformed vote that
// slipped through verification.
type BlockFinalizedEvent struct {
	Number      uint64
	BlockHash   common.Hash
	Block       []byte
	Certificate *CommitCertificate
}

// ViewChangedEvent reports that quorum abandoned a view.
type ViewChangedEvent struct {
	View uint64
}

// Config are the per-node consensus settings.
type Config struct {
	Self        common.Address
	SecretKey   *bls.SecretKey
	ViewTimeout time.Duration
	MaxInFlight int
	EventBuffer int
}

// round is one pipelined consensus instance: a single block number at a
// single view, with its own state machine and vote tallies.
type round struct {
	number    uint64
	view      uint64
	blockHash common.Hash
	block     []byte
	state     State
	votes     map[Phase]map[common.Address]*Vote
	signed    map[Phase]bool // phases this node has already signed
	deadline  time.Time
	committed bool
	cert      *CommitCertificate
}

func (r *round) tally(phase Phase) map[common.Address]*Vote {
	m, ok := r.votes[phase]
	if !ok {
		m = make(map[common.Address]*Vote)
		r.votes[phase] = m
	}
	return m
}

// Engine drives the three-phase vote protocol with up to MaxInFlight block
// numbers in flight. All vote state is owned by the engine and touched only
// under its guard; finalization is strictly sequential in block number.
type Engine struct {
	mu sync.Mutex

	cfg         Config
	set         *ValidatorSet
	selector    LeaderSelector
	broadcaster Broadcaster

	currentView  uint64
	nextFinalize uint64
	rounds       map[uint64]*round
	pendingVotes map[uint64][]*Vote

	// viewVotes tracks view-change tallies per proposed view, under the
	// reserved sentinel phase so they can never mix with block votes.
	viewVotes map[uint64]map[common.Address]*ViewChange
	vcSigned  map[uint64]bool

	events chan Event
	quit   chan struct{}
	wg     sync.WaitGroup

	log *logrus.Entry
}

// New creates an engine. nextBlock is the first block number the engine will
// finalize (the current chain head + 1).
func New(cfg Config, set *ValidatorSet, selector LeaderSelector, broadcaster Broadcaster, nextBlock uint64) *Engine {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 3
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 128
	}
	if cfg.ViewTimeout <= 0 {
		cfg.ViewTimeout = 2 * time.Second
	}
	if selector == nil {
		selector = RoundRobinSelector{}
	}
	return &Engine{
		cfg:          cfg,
		set:          set,
		selector:     selector,
		broadcaster:  broadcaster,
		nextFinalize: nextBlock,
		rounds:       make(map[uint64]*round),
		pendingVotes: make(map[uint64][]*Vote),
		viewVotes:    make(map[uint64]map[common.Address]*ViewChange),
		vcSigned:     make(map[uint64]bool),
		events:       make(chan Event, cfg.EventBuffer),
		quit:         make(chan struct{}),
		log:          logrus.WithField("module", "consensus"),
	}
}

// Events returns the channel finalization and view-change events arrive on.
// A single subscriber must drain it; the channel is bounded.
func (e *Engine) Events() <-chan Event { return e.events }

// Start launches the view-timeout watchdog.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.timeoutLoop()
}

// Stop terminates the watchdog and waits for it.
func (e *Engine) Stop() {
	close(e.quit)
	e.wg.Wait()
}

// CurrentView returns the active view number.
func (e *Engine) CurrentView() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentView
}

// NextFinalize returns the lowest block number not yet finalized.
func (e *Engine) NextFinalize() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextFinalize
}

// Leader returns the proposer for the current view.
func (e *Engine) Leader() *ValidatorInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selector.Leader(e.currentView, e.set)
}

// IsLeader reports whether this node proposes in the current view.
func (e *Engine) IsLeader() bool {
	leader := e.Leader()
	return leader != nil && leader.Address == e.cfg.Self
}

// Propose submits a block built by this node. The node must be the leader of
// the current view; the proposal is broadcast together with the leader's own
// PREPARE vote, which is counted locally first.
func (e *Engine) Propose(number uint64, blockHash common.Hash, block []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	leader := e.selector.Leader(e.currentView, e.set)
	if leader == nil || leader.Address != e.cfg.Self || e.cfg.SecretKey == nil {
		return ErrNotLeader
	}
	if number < e.nextFinalize {
		return ErrStaleRound
	}
	if _, ok := e.rounds[number]; ok {
		return ErrInvalidProposal
	}
	if len(e.rounds) >= e.cfg.MaxInFlight || number >= e.nextFinalize+uint64(e.cfg.MaxInFlight) {
		return ErrTooManyInFlight
	}

	r := e.newRound(number, blockHash, block)
	r.state = StateProposing

	proposal := &Proposal{
		View:        e.currentView,
		BlockNumber: number,
		BlockHash:   blockHash,
		Block:       block,
		Proposer:    e.cfg.Self,
		Signature:   e.cfg.SecretKey.Sign(VoteDigest(blockHash, e.currentView, PhaseProposal)).Marshal(),
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastProposal(proposal)
	}
	// The leader's own PREPARE counts immediately; without this a
	// single-validator network could never reach quorum.
	r.state = StatePreparing
	e.castVote(r, PhasePrepare)
	return nil
}

// HandleProposal processes a proposal received from the view leader.
func (e *Engine) HandleProposal(p *Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.View != e.currentView {
		return ErrViewMismatch
	}
	leader := e.selector.Leader(p.View, e.set)
	if leader == nil || leader.Address != p.Proposer {
		return ErrInvalidProposal
	}
	if err := verifySig(leader.BlsPublicKey, VoteDigest(p.BlockHash, p.View, PhaseProposal), p.Signature); err != nil {
		return ErrInvalidProposal
	}
	if p.BlockNumber < e.nextFinalize {
		return ErrStaleRound
	}
	if p.BlockNumber >= e.nextFinalize+uint64(e.cfg.MaxInFlight) {
		return ErrTooManyInFlight
	}
	if existing, ok := e.rounds[p.BlockNumber]; ok {
		if existing.blockHash != p.BlockHash {
			return ErrEquivocation
		}
		return nil
	}

	r := e.newRound(p.BlockNumber, p.BlockHash, p.Block)
	r.state = StatePreparing
	// Accepting the proposal implies our own PREPARE, counted locally first.
	e.castVote(r, PhasePrepare)

	// Apply any votes that raced ahead of the proposal.
	for _, v := range e.pendingVotes[p.BlockNumber] {
		e.applyVote(r, v)
	}
	delete(e.pendingVotes, p.BlockNumber)
	return nil
}

// HandleVote processes a consensus vote from a peer. Malformed or duplicate
// votes are reported as errors but never advance or corrupt any tally.
func (e *Engine) HandleVote(v *Vote) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.verifyVote(v); err != nil {
		return err
	}
	r, ok := e.rounds[v.BlockNumber]
	if !ok {
		if v.BlockNumber < e.nextFinalize {
			return ErrStaleRound
		}
		if v.BlockNumber >= e.nextFinalize+uint64(e.cfg.MaxInFlight) {
			return ErrTooManyInFlight
		}
		// The proposal has not arrived yet; hold the vote.
		e.pendingVotes[v.BlockNumber] = append(e.pendingVotes[v.BlockNumber], v)
		return nil
	}
	return e.applyVote(r, v)
}

// HandleViewChange processes a view-change vote. On quorum for the proposed
// view, every in-flight round is aborted and the engine re-enters Idle under
// the new leader.
func (e *Engine) HandleViewChange(vc *ViewChange) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addViewChange(vc)
}

// UpdateValidatorSet atomically swaps the validator set. All in-flight vote
// state is cleared: tallies from the old set must never count toward quorum
// in the new one.
func (e *Engine) UpdateValidatorSet(set *ValidatorSet) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.set = set
	e.rounds = make(map[uint64]*round)
	e.pendingVotes = make(map[uint64][]*Vote)
	e.viewVotes = make(map[uint64]map[common.Address]*ViewChange)
	e.vcSigned = make(map[uint64]bool)
	e.log.WithFields(logrus.Fields{
		"validators": set.Len(),
		"quorum":     set.Quorum(),
	}).Info("validator set updated")
}

// newRound registers a fresh consensus instance for number.
func (e *Engine) newRound(number uint64, blockHash common.Hash, block []byte) *round {
	r := &round{
		number:    number,
		view:      e.currentView,
		blockHash: blockHash,
		block:     block,
		state:     StateIdle,
		votes:     make(map[Phase]map[common.Address]*Vote),
		signed:    make(map[Phase]bool),
		deadline:  time.Now().Add(e.cfg.ViewTimeout),
	}
	e.rounds[number] = r
	return r
}

// castVote signs and counts this node's vote for a phase, then broadcasts
// it. A correct node signs at most once per (number, view, phase).
func (e *Engine) castVote(r *round, phase Phase) {
	if r.signed[phase] || e.cfg.SecretKey == nil {
		return
	}
	if !e.set.Contains(e.cfg.Self) {
		return // observers follow the protocol but never vote
	}
	r.signed[phase] = true
	v := &Vote{
		BlockNumber: r.number,
		View:        r.view,
		BlockHash:   r.blockHash,
		Phase:       phase,
		Voter:       e.cfg.Self,
		Signature:   e.cfg.SecretKey.Sign(VoteDigest(r.blockHash, r.view, phase)).Marshal(),
		PublicKey:   e.cfg.SecretKey.PublicKey().Marshal(),
	}
	r.tally(phase)[e.cfg.Self] = v
	if e.broadcaster != nil {
		e.broadcaster.BroadcastVote(v)
	}
	e.checkQuorum(r, phase)
}

// applyVote adds a verified peer vote to the round's tally.
func (e *Engine) applyVote(r *round, v *Vote) error {
	if v.View != r.view {
		return ErrViewMismatch
	}
	tally := r.tally(v.Phase)
	if prev, ok := tally[v.Voter]; ok {
		if prev.BlockHash != v.BlockHash {
			return ErrEquivocation
		}
		return ErrDuplicateVote
	}
	if v.BlockHash != r.blockHash {
		// Vote for a competing block at this number: a correct node never
		// does this, so surface it for slashing evidence.
		return ErrEquivocation
	}
	tally[v.Voter] = v
	e.checkQuorum(r, v.Phase)
	return nil
}

// checkQuorum advances the round's state machine when a phase fills up. At
// each transition the node counts its next-phase vote locally before the
// broadcast goes out.
func (e *Engine) checkQuorum(r *round, phase Phase) {
	if len(r.tally(phase)) < e.set.Quorum() {
		return
	}
	switch {
	case phase == PhasePrepare && r.state == StatePreparing:
		r.state = StatePreCommitting
		e.castVote(r, PhasePreCommit)
	case phase == PhasePreCommit && r.state == StatePreCommitting:
		r.state = StateCommitting
		e.castVote(r, PhaseCommit)
	case phase == PhaseCommit && r.state == StateCommitting && !r.committed:
		r.committed = true
		cert, err := buildCommitCertificate(r, r.tally(PhaseCommit))
		if err != nil {
			e.log.WithFields(logrus.Fields{
				"number": r.number,
				"err":    err,
			}).Error("commit certificate aggregation failed")
		}
		r.cert = cert
		e.tryFinalize()
	}
}

// tryFinalize drains committed rounds in strict block-number order. A round
// that reached COMMIT quorum early stays buffered until its predecessor is
// finalized.
func (e *Engine) tryFinalize() {
	for {
		r, ok := e.rounds[e.nextFinalize]
		if !ok || !r.committed {
			return
		}
		r.state = StateFinalized
		delete(e.rounds, e.nextFinalize)
		delete(e.pendingVotes, e.nextFinalize)
		e.log.WithFields(logrus.Fields{
			"number": r.number,
			"hash":   r.blockHash.TerminalString(),
			"view":   r.view,
		}).Info("block finalized")
		e.emit(BlockFinalizedEvent{Number: r.number, BlockHash: r.blockHash, Block: r.block, Certificate: r.cert})
		e.nextFinalize++
	}
}

// addViewChange records one view-change vote and performs the switch on
// quorum.
func (e *Engine) addViewChange(vc *ViewChange) error {
	if vc.ProposedView <= e.currentView {
		return ErrViewMismatch
	}
	info := e.set.ByAddress(vc.Voter)
	if info == nil {
		return ErrUnknownValidator
	}
	if !bytes.Equal(info.BlsPublicKey, vc.PublicKey) {
		return ErrUnknownValidator
	}
	digest := VoteDigest(common.Hash{}, vc.ProposedView, PhaseViewChange)
	if err := verifySig(vc.PublicKey, digest, vc.Signature); err != nil {
		return ErrInvalidVote
	}
	tally, ok := e.viewVotes[vc.ProposedView]
	if !ok {
		tally = make(map[common.Address]*ViewChange)
		e.viewVotes[vc.ProposedView] = tally
	}
	if _, ok := tally[vc.Voter]; ok {
		return ErrDuplicateVote
	}
	tally[vc.Voter] = vc

	if len(tally) >= e.set.Quorum() {
		e.performViewChange(vc.ProposedView)
	}
	return nil
}

// performViewChange aborts every non-finalized round and installs the view.
func (e *Engine) performViewChange(view uint64) {
	e.rounds = make(map[uint64]*round)
	e.pendingVotes = make(map[uint64][]*Vote)
	e.viewVotes = make(map[uint64]map[common.Address]*ViewChange)
	e.vcSigned = make(map[uint64]bool)
	e.currentView = view
	leader := e.selector.Leader(view, e.set)
	fields := logrus.Fields{"view": view}
	if leader != nil {
		fields["leader"] = leader.Address.Hex()
	}
	e.log.WithFields(fields).Warn("view change")
	e.emit(ViewChangedEvent{View: view})
}

// requestViewChange signs and counts this node's own view-change vote, then
// broadcasts it.
func (e *Engine) requestViewChange() {
	proposed := e.currentView + 1
	if e.vcSigned[proposed] || e.cfg.SecretKey == nil || !e.set.Contains(e.cfg.Self) {
		return
	}
	e.vcSigned[proposed] = true
	vc := &ViewChange{
		CurrentView:  e.currentView,
		ProposedView: proposed,
		Voter:        e.cfg.Self,
		Signature:    e.cfg.SecretKey.Sign(VoteDigest(common.Hash{}, proposed, PhaseViewChange)).Marshal(),
		PublicKey:    e.cfg.SecretKey.PublicKey().Marshal(),
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastViewChange(vc)
	}
	e.addViewChange(vc)
}

// verifyVote validates membership, key binding and the BLS signature.
func (e *Engine) verifyVote(v *Vote) error {
	switch v.Phase {
	case PhasePrepare, PhasePreCommit, PhaseCommit:
	default:
		return ErrInvalidVote
	}
	info := e.set.ByAddress(v.Voter)
	if info == nil {
		return ErrUnknownValidator
	}
	if !bytes.Equal(info.BlsPublicKey, v.PublicKey) {
		return ErrUnknownValidator
	}
	return verifySig(v.PublicKey, VoteDigest(v.BlockHash, v.View, v.Phase), v.Signature)
}

// timeoutLoop fires view changes for rounds that blow their deadline.
func (e *Engine) timeoutLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ViewTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-e.quit:
			return
		case now := <-ticker.C:
			e.mu.Lock()
			expired := false
			for _, r := range e.rounds {
				if r.state != StateFinalized && now.After(r.deadline) {
					expired = true
					break
				}
			}
			if expired {
				e.requestViewChange()
			}
			e.mu.Unlock()
		}
	}
}

// emit delivers an event without ever blocking consensus: if the subscriber
// has fallen EventBuffer events behind, the oldest event is dropped.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
		return
	default:
	}
	select {
	case dropped := <-e.events:
		e.log.WithField("event", dropped).Error("event subscriber too slow, dropping oldest")
	default:
	}
	select {
	case e.events <- ev:
	default:
	}
}

func verifySig(pub, msg, sig []byte) error {
	pk, err := bls.PublicKeyFromBytes(pub)
	if err != nil {
		return ErrInvalidVote
	}
	s, err := bls.SignatureFromBytes(sig)
	if err != nil {
		return ErrInvalidVote
	}
	if !s.Verify(pk, msg) {
		return ErrInvalidVote
	}
	return nil
}
