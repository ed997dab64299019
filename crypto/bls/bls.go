// Package bls wraps BLS12-381 signing over the G2 group for consensus votes.
// Public keys live in G1 (48 byte compressed), signatures in G2 (96 byte
// compressed) and are aggregable across voters of the same message.
package bls

import (
	"crypto/rand"
	"errors"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

const (
	PublicKeySize = 48
	SignatureSize = 96
	SecretKeySize = 32
)

// Domain separation tag for the ciphersuite, matching the ETH2 convention.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

var (
	ErrSecretKeyGen     = errors.New("bls: secret key generation failed")
	ErrInvalidPublicKey = errors.New("bls: invalid public key")
	ErrInvalidSignature = errors.New("bls: invalid signature")
	ErrNoSignatures     = errors.New("bls: nothing to aggregate")
)

type (
	blstPublicKey = blst.P1Affine
	blstSignature = blst.P2Affine
)

// SecretKey is a scalar in the BLS12-381 field.
type SecretKey struct {
	p *blst.SecretKey
}

// PublicKey is a point on G1.
type PublicKey struct {
	p *blstPublicKey
}

// Signature is a point on G2.
type Signature struct {
	p *blstSignature
}

// GenerateKey produces a fresh secret key from the system entropy source.
func GenerateKey() (*SecretKey, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretKeyGen, err)
	}
	sk := blst.KeyGen(ikm[:])
	if sk == nil {
		return nil, ErrSecretKeyGen
	}
	return &SecretKey{p: sk}, nil
}

// SecretKeyFromBytes rehydrates a secret key from its 32-byte encoding.
func SecretKeyFromBytes(b []byte) (*SecretKey, error) {
	if len(b) != SecretKeySize {
		return nil, ErrSecretKeyGen
	}
	sk := new(blst.SecretKey).Deserialize(b)
	if sk == nil {
		return nil, ErrSecretKeyGen
	}
	return &SecretKey{p: sk}, nil
}

// Marshal returns the 32-byte secret scalar.
func (sk *SecretKey) Marshal() []byte {
	return sk.p.Serialize()
}

// PublicKey derives the G1 public key for sk.
func (sk *SecretKey) PublicKey() *PublicKey {
	return &PublicKey{p: new(blstPublicKey).From(sk.p)}
}

// Sign signs msg with sk.
func (sk *SecretKey) Sign(msg []byte) *Signature {
	return &Signature{p: new(blstSignature).Sign(sk.p, msg, dst)}
}

// PublicKeyFromBytes decodes and subgroup-checks a compressed G1 point.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	p := new(blstPublicKey).Uncompress(b)
	if p == nil || !p.KeyValidate() {
		return nil, ErrInvalidPublicKey
	}
	return &PublicKey{p: p}, nil
}

// Marshal returns the 48-byte compressed encoding.
func (pk *PublicKey) Marshal() []byte {
	return pk.p.Compress()
}

// SignatureFromBytes decodes and group-checks a compressed G2 point.
func SignatureFromBytes(b []byte) (*Signature, error) {
	if len(b) != SignatureSize {
		return nil, ErrInvalidSignature
	}
	p := new(blstSignature).Uncompress(b)
	if p == nil || !p.SigValidate(false) {
		return nil, ErrInvalidSignature
	}
	return &Signature{p: p}, nil
}

// Marshal returns the 96-byte compressed encoding.
func (sig *Signature) Marshal() []byte {
	return sig.p.Compress()
}

// Verify reports whether sig is a valid signature of msg under pk.
func (sig *Signature) Verify(pk *PublicKey, msg []byte) bool {
	return sig.p.Verify(false, pk.p, false, msg, dst)
}

// AggregateSignatures combines signatures over the same message into one.
func AggregateSignatures(sigs []*Signature) (*Signature, error) {
	if len(sigs) == 0 {
		return nil, ErrNoSignatures
	}
	raw := make([]*blstSignature, len(sigs))
	for i, s := range sigs {
		raw[i] = s.p
	}
	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(raw, false) {
		return nil, ErrInvalidSignature
	}
	return &Signature{p: agg.ToAffine()}, nil
}

// FastAggregateVerify reports whether sig is the aggregate signature of msg
// under every public key in pks.
func (sig *Signature) FastAggregateVerify(pks []*PublicKey, msg []byte) bool {
	if len(pks) == 0 {
		return false
	}
	raw := make([]*blstPublicKey, len(pks))
	for i, pk := range pks {
		raw[i] = pk.p
	}
	return sig.p.FastAggregateVerify(true, raw, msg, dst)
}
