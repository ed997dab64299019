// Copyright 2015 The go-ethereum Authors
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

package node

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/consensus/bft"
	"github.com/basalt-network/gbasalt/core"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/p2p"
)

// maxSyncBatch bounds the blocks served for one SyncRequest so a single peer
// cannot make the node stream its whole chain in one reply.
const maxSyncBatch = 128

var errThrottled = errors.New("node: peer announce rate exceeded")

// HandleMessage dispatches one decoded inbound message to the subsystem it
// belongs to and returns the replies owed to the sending peer. Transport
// workers call this once per message; consensus faults are logged and
// swallowed here so a malicious peer can never crash the node.
func (n *Node) HandleMessage(peer *p2p.Peer, msg p2p.Message) ([]p2p.Message, error) {
	switch msg := msg.(type) {
	case *p2p.ConsensusProposal:
		n.consensusError("proposal", n.engine.HandleProposal(&bft.Proposal{
			View:        msg.View,
			BlockNumber: msg.BlockNumber,
			BlockHash:   msg.BlockHash,
			Block:       msg.Block,
			Proposer:    msg.Proposer,
			Signature:   msg.ProposerSig,
		}))
		return nil, nil

	case *p2p.ConsensusVote:
		n.consensusError("vote", n.engine.HandleVote(&bft.Vote{
			BlockNumber: msg.BlockNumber,
			View:        msg.View,
			BlockHash:   msg.BlockHash,
			Phase:       bft.Phase(msg.Phase),
			Voter:       msg.VoterAddr,
			Signature:   msg.VoterSig,
			PublicKey:   msg.VoterPubkey,
		}))
		return nil, nil

	case *p2p.ViewChange:
		n.consensusError("view change", n.engine.HandleViewChange(&bft.ViewChange{
			CurrentView:  msg.CurrentView,
			ProposedView: msg.ProposedView,
			Voter:        msg.VoterAddr,
			Signature:    msg.VoterSig,
			PublicKey:    msg.VoterPubkey,
		}))
		return nil, nil

	case *p2p.TxAnnounce:
		if !peer.AcceptTxAnnounce(len(msg.Hashes)) {
			return nil, errThrottled
		}
		var want []common.Hash
		for _, hash := range msg.Hashes {
			peer.MarkTransaction(hash)
			if !n.pool.Has(hash) {
				want = append(want, hash)
			}
		}
		if len(want) == 0 {
			return nil, nil
		}
		return []p2p.Message{&p2p.TxRequest{Hashes: want}}, nil

	case *p2p.TxRequest:
		var txs [][]byte
		for _, hash := range msg.Hashes {
			if tx := n.pool.Get(hash); tx != nil {
				txs = append(txs, tx.Encode())
			}
		}
		if len(txs) == 0 {
			return nil, nil
		}
		return []p2p.Message{&p2p.TxPayload{Txs: txs}}, nil

	case *p2p.TxPayload:
		for _, enc := range msg.Txs {
			tx, err := types.DecodeTransaction(enc)
			if err != nil {
				return nil, fmt.Errorf("undecodable transaction from peer: %w", err)
			}
			peer.MarkTransaction(tx.Hash())
			// Rejections are normal gossip noise (already known, stale
			// nonce); the submitter path reports them to the peer's log only.
			if result := n.SubmitTransaction(tx); result.Code != "" && result.Code != "AlreadyKnown" {
				n.log.WithFields(logrus.Fields{
					"tx":   tx.Hash().TerminalString(),
					"code": result.Code,
				}).Debug("gossiped transaction rejected")
			}
		}
		return nil, nil

	case *p2p.BlockAnnounce:
		peer.MarkBlock(msg.Hash)
		if n.chain.GetBlockByHash(msg.Hash) != nil {
			return nil, nil
		}
		return []p2p.Message{&p2p.BlockRequest{Hash: msg.Hash}}, nil

	case *p2p.BlockRequest:
		block := n.chain.GetBlockByHash(msg.Hash)
		if block == nil {
			return nil, nil
		}
		return []p2p.Message{&p2p.BlockPayload{Block: block.Encode()}}, nil

	case *p2p.BlockPayload:
		block, err := types.DecodeBlock(msg.Block)
		if err != nil {
			return nil, fmt.Errorf("undecodable block from peer: %w", err)
		}
		peer.MarkBlock(block.Hash())
		if err := n.chain.InsertBlock(block); err != nil && !errors.Is(err, core.ErrKnownBlock) {
			// Any root or linkage mismatch refuses the block; the transport
			// layer scores the source down on the returned error.
			return nil, err
		}
		n.pool.RemoveConfirmed(block.Transactions())
		return nil, nil

	case *p2p.SyncRequest:
		head := n.chain.CurrentBlock().Number()
		to := msg.ToNumber
		if to > head {
			to = head
		}
		if to >= msg.FromNumber && to-msg.FromNumber+1 > maxSyncBatch {
			to = msg.FromNumber + maxSyncBatch - 1
		}
		var out []p2p.Message
		for number := msg.FromNumber; number <= to; number++ {
			block := n.chain.GetBlockByNumber(number)
			if block == nil {
				break
			}
			out = append(out, &p2p.BlockPayload{Block: block.Encode()})
		}
		return out, nil

	case *p2p.Ping:
		return []p2p.Message{&p2p.Pong{Nonce: msg.Nonce}}, nil

	case *p2p.Pong, *p2p.IHave, *p2p.IWant, *p2p.Graft, *p2p.Prune:
		// Gossip-mesh control is handled by the transport's mesh manager;
		// nothing for the core to do with it.
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %T", p2p.ErrUnknownMessage, msg)
	}
}

// consensusError logs a rejected consensus message. Duplicates and stale
// rounds are routine in gossip; everything else is worth a warning.
func (n *Node) consensusError(kind string, err error) {
	if err == nil {
		return
	}
	entry := n.log.WithFields(logrus.Fields{"msg": kind, "err": err})
	switch {
	case errors.Is(err, bft.ErrDuplicateVote), errors.Is(err, bft.ErrStaleRound), errors.Is(err, bft.ErrViewMismatch):
		entry.Debug("consensus message ignored")
	default:
		entry.Warn("consensus message rejected")
	}
}
