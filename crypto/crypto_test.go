package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

func TestBlake3MultiSliceEquivalence(t *testing.T) {
	whole := Blake3([]byte("hello world"))
	split := Blake3([]byte("hello "), []byte("world"))
	if !bytes.Equal(whole, split) {
		t.Fatalf("slice boundaries must not change the digest")
	}
	if len(whole) != 32 {
		t.Fatalf("unexpected digest length: %d", len(whole))
	}
	if Blake3Hash([]byte("hello world")).Bytes()[0] != whole[0] {
		t.Fatalf("Blake3 and Blake3Hash disagree")
	}
}

func TestKeccak256(t *testing.T) {
	// Known vector: Keccak-256 of the empty input.
	want := "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := Keccak256Hash().Hex(); got != "0x"+want {
		t.Fatalf("empty keccak mismatch: have %s", got)
	}
}

func TestDeriveAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	addr := DeriveAddress(pub)
	if addr.IsZero() {
		t.Fatalf("derived address should not be zero")
	}
	if addr != DeriveAddress(pub) {
		t.Fatalf("derivation not deterministic")
	}
	if DeriveAddress(pub[:31]) != (common.Address{}) {
		t.Fatalf("short key should derive the zero address")
	}
	if PeerID(pub).IsZero() {
		t.Fatalf("peer id should not be zero")
	}
}

func TestContractAddressDependsOnNonce(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	creator := DeriveAddress(pub)
	if ContractAddress(creator, 0) == ContractAddress(creator, 1) {
		t.Fatalf("contract address must depend on the nonce")
	}
}
