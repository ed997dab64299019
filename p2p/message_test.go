package p2p

import (
	"bytes"
	"crypto/rand"
	"errors"
	"reflect"
	"testing"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

func testPrefix() Prefix {
	return Prefix{
		SenderID:    crypto.Blake3Hash([]byte("sender")),
		TimestampMs: 1_700_000_000_123,
	}
}

func TestMessageRoundTrips(t *testing.T) {
	hashes := []common.Hash{
		crypto.Blake3Hash([]byte("h1")),
		crypto.Blake3Hash([]byte("h2")),
	}
	msgs := []Message{
		&ConsensusProposal{
			Prefix:      testPrefix(),
			View:        3,
			BlockNumber: 42,
			BlockHash:   hashes[0],
			Proposer:    common.HexToAddress("0x01"),
			Block:       []byte{0xbb, 0x01},
			ProposerSig: bytes.Repeat([]byte{0x05}, 96),
		},
		&ConsensusVote{
			Prefix:      testPrefix(),
			BlockNumber: 42,
			View:        3,
			BlockHash:   hashes[0],
			Phase:       0x02,
			VoterAddr:   common.HexToAddress("0x02"),
			VoterSig:    bytes.Repeat([]byte{0x06}, 96),
			VoterPubkey: bytes.Repeat([]byte{0x07}, 48),
		},
		&ViewChange{
			Prefix:       testPrefix(),
			CurrentView:  3,
			ProposedView: 4,
			VoterAddr:    common.HexToAddress("0x03"),
			VoterSig:     bytes.Repeat([]byte{0x08}, 96),
			VoterPubkey:  bytes.Repeat([]byte{0x09}, 48),
		},
		&TxAnnounce{Prefix: testPrefix(), Hashes: hashes},
		&TxRequest{Prefix: testPrefix(), Hashes: hashes[:1]},
		&TxPayload{Prefix: testPrefix(), Txs: [][]byte{{0x01}, {0x02, 0x03}}},
		&BlockAnnounce{Prefix: testPrefix(), Number: 42, Hash: hashes[0]},
		&BlockRequest{Prefix: testPrefix(), Hash: hashes[1]},
		&BlockPayload{Prefix: testPrefix(), Block: []byte{0xaa}},
		&SyncRequest{Prefix: testPrefix(), FromNumber: 10, ToNumber: 20},
		&Ping{Prefix: testPrefix(), Nonce: 7},
		&Pong{Prefix: testPrefix(), Nonce: 7},
		&IHave{Prefix: testPrefix(), Hashes: hashes},
		&IWant{Prefix: testPrefix(), Hashes: hashes[:1]},
		&Graft{Prefix: testPrefix()},
		&Prune{Prefix: testPrefix()},
	}
	for _, msg := range msgs {
		enc := Encode(msg)
		if enc[0] != msg.Tag() {
			t.Fatalf("%T: encoding does not start with the tag", msg)
		}
		decoded, err := Decode(enc)
		if err != nil {
			t.Fatalf("%T: decode failed: %v", msg, err)
		}
		if !reflect.DeepEqual(msg, decoded) {
			t.Fatalf("%T: round trip mismatch:\nhave %#v\nwant %#v", msg, decoded, msg)
		}
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{0x7f, 0x00}); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, have %v", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	enc := Encode(&Ping{Prefix: testPrefix(), Nonce: 1})
	if _, err := Decode(enc[:len(enc)-3]); err == nil {
		t.Fatalf("truncated message should fail to decode")
	}
	if _, err := Decode(append(enc, 0x00)); err == nil {
		t.Fatalf("trailing bytes should fail to decode")
	}
}

func TestVerifyHandshake(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	challenge := []byte("prove yourself")
	sig := ed25519.Sign(priv, challenge)

	id, err := VerifyHandshake(pub, challenge, sig)
	if err != nil {
		t.Fatalf("handshake should verify: %v", err)
	}
	if id != crypto.PeerID(pub) {
		t.Fatalf("handshake id mismatch")
	}
	if _, err := VerifyHandshake(pub, []byte("other"), sig); !errors.Is(err, ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, have %v", err)
	}
}

func TestPeerKnownSets(t *testing.T) {
	peer := NewPeer(crypto.Blake3Hash([]byte("peer")))
	h := crypto.Blake3Hash([]byte("tx"))
	if peer.KnownTransaction(h) {
		t.Fatalf("fresh peer should not know the tx")
	}
	peer.MarkTransaction(h)
	if !peer.KnownTransaction(h) {
		t.Fatalf("marked tx should be known")
	}
	b := crypto.Blake3Hash([]byte("block"))
	peer.MarkBlock(b)
	if !peer.KnownBlock(b) {
		t.Fatalf("marked block should be known")
	}
}
