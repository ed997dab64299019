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

package p2p

import (
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/time/rate"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

const (
	// maxKnownTxs is the maximum transaction hashes to keep in the known
	// list before old ones get evicted.
	maxKnownTxs = 32768
	// maxKnownBlocks is the maximum block hashes to keep in the known list.
	maxKnownBlocks = 1024

	// txAnnounceRate bounds how many transaction announcements per second a
	// peer may push before we start dropping them.
	txAnnounceRate  = 1000
	txAnnounceBurst = 4000
)

var ErrHandshakeFailed = errors.New("p2p: handshake failed")

// VerifyHandshake checks the identity proof a connecting peer presents: a
// signature over our challenge with the public key its id is derived from.
// The returned id is the only one the caller may insert into the routing
// table for this peer.
func VerifyHandshake(pub ed25519.PublicKey, challenge, sig []byte) (common.Hash, error) {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return common.Hash{}, ErrHandshakeFailed
	}
	if !ed25519.Verify(pub, challenge, sig) {
		return common.Hash{}, ErrHandshakeFailed
	}
	return crypto.PeerID(pub), nil
}

// Peer is the gossip-side view of a connected node.
type Peer struct {
	id common.Hash

	knownTxs    mapset.Set // hashes of transactions known to this peer
	knownBlocks mapset.Set // hashes of blocks known to this peer

	txLimiter *rate.Limiter
}

// NewPeer wraps a handshaken connection.
func NewPeer(id common.Hash) *Peer {
	return &Peer{
		id:          id,
		knownTxs:    mapset.NewSet(),
		knownBlocks: mapset.NewSet(),
		txLimiter:   rate.NewLimiter(txAnnounceRate, txAnnounceBurst),
	}
}

// ID returns the peer's node id.
func (p *Peer) ID() common.Hash { return p.id }

// KnownTransaction reports whether the peer is known to already have the
// transaction.
func (p *Peer) KnownTransaction(hash common.Hash) bool {
	return p.knownTxs.Contains(hash)
}

// KnownBlock reports whether the peer is known to already have the block.
func (p *Peer) KnownBlock(hash common.Hash) bool {
	return p.knownBlocks.Contains(hash)
}

// MarkTransaction marks a transaction as known to the peer, so it will
// never be re-announced to it.
func (p *Peer) MarkTransaction(hash common.Hash) {
	for p.knownTxs.Cardinality() >= maxKnownTxs {
		p.knownTxs.Pop()
	}
	p.knownTxs.Add(hash)
}

// MarkBlock marks a block as known to the peer.
func (p *Peer) MarkBlock(hash common.Hash) {
	for p.knownBlocks.Cardinality() >= maxKnownBlocks {
		p.knownBlocks.Pop()
	}
	p.knownBlocks.Add(hash)
}

// AcceptTxAnnounce applies the per-peer announce throttle: false means the
// announcement should be dropped.
func (p *Peer) AcceptTxAnnounce(count int) bool {
	return p.txLimiter.AllowN(time.Now(), count)
}
