package node

import (
	"crypto/rand"
	"testing"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
	"github.com/basalt-network/gbasalt/p2p"
)

func newHandlerFixture(t *testing.T) (*Node, *p2p.Peer, *types.Transaction) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	sender := crypto.DeriveAddress(ed25519.PublicFromPrivate(priv))
	n := newSoloNode(t, sender)
	t.Cleanup(func() { n.db.Close() })

	tx := &types.Transaction{
		Type:     types.TxTransfer,
		Nonce:    0,
		To:       common.HexToAddress("0x01"),
		Value:    uint256.NewInt(1),
		GasLimit: 21000,
		GasPrice: uint256.NewInt(1),
		ChainID:  n.Chain().Config().ChainID,
	}
	types.SignTx(tx, priv)
	return n, p2p.NewPeer(crypto.Blake3Hash([]byte("remote"))), tx
}

func TestHandlePingRepliesPong(t *testing.T) {
	n, peer, _ := newHandlerFixture(t)
	replies, err := n.HandleMessage(peer, &p2p.Ping{Nonce: 99})
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	pong, ok := replies[0].(*p2p.Pong)
	if len(replies) != 1 || !ok || pong.Nonce != 99 {
		t.Fatalf("unexpected ping reply: %+v", replies)
	}
}

func TestHandleTxExchange(t *testing.T) {
	n, peer, tx := newHandlerFixture(t)

	// Announcing an unknown hash earns a request for it.
	replies, err := n.HandleMessage(peer, &p2p.TxAnnounce{Hashes: []common.Hash{tx.Hash()}})
	if err != nil {
		t.Fatalf("announce failed: %v", err)
	}
	req, ok := replies[0].(*p2p.TxRequest)
	if len(replies) != 1 || !ok || len(req.Hashes) != 1 || req.Hashes[0] != tx.Hash() {
		t.Fatalf("unexpected announce reply: %+v", replies)
	}
	if !peer.KnownTransaction(tx.Hash()) {
		t.Fatalf("announced hash should be marked known to the peer")
	}

	// Delivering the payload admits it to the pool.
	if _, err := n.HandleMessage(peer, &p2p.TxPayload{Txs: [][]byte{tx.Encode()}}); err != nil {
		t.Fatalf("payload failed: %v", err)
	}
	if !n.Pool().Has(tx.Hash()) {
		t.Fatalf("gossiped transaction not in pool")
	}

	// A second announce of the now-known hash earns nothing.
	replies, err = n.HandleMessage(peer, &p2p.TxAnnounce{Hashes: []common.Hash{tx.Hash()}})
	if err != nil || len(replies) != 0 {
		t.Fatalf("known hash should not be re-requested: %+v %v", replies, err)
	}

	// And the pool serves it back out on request.
	replies, err = n.HandleMessage(peer, &p2p.TxRequest{Hashes: []common.Hash{tx.Hash()}})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	payload, ok := replies[0].(*p2p.TxPayload)
	if len(replies) != 1 || !ok || len(payload.Txs) != 1 {
		t.Fatalf("unexpected request reply: %+v", replies)
	}
	decoded, err := types.DecodeTransaction(payload.Txs[0])
	if err != nil || decoded.Hash() != tx.Hash() {
		t.Fatalf("served transaction does not round trip: %v", err)
	}
}

func TestHandleBlockExchange(t *testing.T) {
	n, peer, _ := newHandlerFixture(t)
	genesis := n.Chain().CurrentBlock()

	// A known block is served on request; an unknown one stays silent.
	replies, err := n.HandleMessage(peer, &p2p.BlockRequest{Hash: genesis.Hash()})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	payload, ok := replies[0].(*p2p.BlockPayload)
	if len(replies) != 1 || !ok {
		t.Fatalf("unexpected block reply: %+v", replies)
	}
	decoded, err := types.DecodeBlock(payload.Block)
	if err != nil || decoded.Hash() != genesis.Hash() {
		t.Fatalf("served block does not round trip: %v", err)
	}
	replies, err = n.HandleMessage(peer, &p2p.BlockRequest{Hash: crypto.Blake3Hash([]byte("nope"))})
	if err != nil || len(replies) != 0 {
		t.Fatalf("unknown block should yield no reply: %+v %v", replies, err)
	}

	// Announcing the known head earns no request.
	replies, err = n.HandleMessage(peer, &p2p.BlockAnnounce{Number: 0, Hash: genesis.Hash()})
	if err != nil || len(replies) != 0 {
		t.Fatalf("known block should not be requested: %+v %v", replies, err)
	}

	// A sync request past the head serves exactly the stored chain.
	replies, err = n.HandleMessage(peer, &p2p.SyncRequest{FromNumber: 0, ToNumber: 50})
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected only the genesis payload, have %d", len(replies))
	}
}

func TestHandleBadBlockPayloadRefused(t *testing.T) {
	n, peer, _ := newHandlerFixture(t)
	genesis := n.Chain().CurrentBlock()

	header := genesis.Header()
	header.Number = 1
	header.ParentHash = genesis.Hash()
	header.TimestampMs = genesis.TimestampMs() + 1
	header.StateRoot = crypto.Blake3Hash([]byte("forged"))
	forged := types.NewBlock(header, nil, nil)
	if _, err := n.HandleMessage(peer, &p2p.BlockPayload{Block: forged.Encode()}); err == nil {
		t.Fatalf("forged block should be refused")
	}
	if n.Chain().CurrentBlock().Number() != 0 {
		t.Fatalf("refused block must not advance the chain")
	}
	if _, err := n.HandleMessage(peer, &p2p.BlockPayload{Block: []byte{0x01}}); err == nil {
		t.Fatalf("undecodable block should be refused")
	}
}

func TestHandleConsensusFaultsNeverError(t *testing.T) {
	n, peer, _ := newHandlerFixture(t)
	// A vote from a validator outside the set is a consensus fault: logged
	// and dropped, never an error to the transport.
	if _, err := n.HandleMessage(peer, &p2p.ConsensusVote{
		BlockNumber: 1,
		View:        0,
		BlockHash:   crypto.Blake3Hash([]byte("b")),
		Phase:       uint8(1),
		VoterAddr:   common.HexToAddress("0xbad"),
		VoterSig:    make([]byte, 96),
		VoterPubkey: make([]byte, 48),
	}); err != nil {
		t.Fatalf("consensus fault should be swallowed: %v", err)
	}
}
