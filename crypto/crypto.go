// Package crypto bundles the hashing primitives of the chain: BLAKE3 for
// content addressing and Keccak-256 for storage-slot derivation.
package crypto

import (
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
)

// Blake3 calculates and returns the BLAKE3 hash of the input data.
func Blake3(data ...[]byte) []byte {
	h := blake3.New(common.HashLength, nil)
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Blake3Hash calculates and returns the BLAKE3 hash of the input data,
// converting it to an internal Hash data structure.
func Blake3Hash(data ...[]byte) (h common.Hash) {
	d := blake3.New(common.HashLength, nil)
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates and returns the Keccak256 hash of the input data,
// converting it to an internal Hash data structure.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}

// DeriveAddress derives the account address from an ed25519 public key as the
// trailing 20 bytes of its BLAKE3 hash.
func DeriveAddress(pub ed25519.PublicKey) common.Address {
	if len(pub) != ed25519.PublicKeySize {
		return common.Address{}
	}
	return common.BytesToAddress(Blake3(pub)[12:])
}

// PeerID derives the network identity of a node from its ed25519 public key.
// The full 32-byte BLAKE3 digest is kept so peers can prove ownership during
// the handshake.
func PeerID(pub ed25519.PublicKey) common.Hash {
	return Blake3Hash(pub)
}

// ContractAddress deterministically derives the address of a deployed
// contract from the creator and its account nonce at deployment time.
func ContractAddress(creator common.Address, nonce uint64) common.Address {
	var n [8]byte
	for i := 0; i < 8; i++ {
		n[i] = byte(nonce >> (8 * i))
	}
	return common.BytesToAddress(Keccak256(creator.Bytes(), n[:])[12:])
}
