package bls

import (
	"bytes"
	"testing"
)

func TestSignVerify(t *testing.T) {
	sk, err := GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	msg := []byte("vote digest")
	sig := sk.Sign(msg)
	if !sig.Verify(sk.PublicKey(), msg) {
		t.Fatalf("signature did not verify")
	}
	if sig.Verify(sk.PublicKey(), []byte("other")) {
		t.Fatalf("signature verified for wrong message")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	sk, err := GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	pkb := sk.PublicKey().Marshal()
	if len(pkb) != PublicKeySize {
		t.Fatalf("unexpected pubkey size: have %d want %d", len(pkb), PublicKeySize)
	}
	pk2, err := PublicKeyFromBytes(pkb)
	if err != nil {
		t.Fatalf("pubkey decode failed: %v", err)
	}
	if !bytes.Equal(pk2.Marshal(), pkb) {
		t.Fatalf("pubkey round trip mismatch")
	}

	sig := sk.Sign([]byte("m"))
	sigb := sig.Marshal()
	if len(sigb) != SignatureSize {
		t.Fatalf("unexpected signature size: have %d want %d", len(sigb), SignatureSize)
	}
	sig2, err := SignatureFromBytes(sigb)
	if err != nil {
		t.Fatalf("signature decode failed: %v", err)
	}
	if !sig2.Verify(sk.PublicKey(), []byte("m")) {
		t.Fatalf("decoded signature did not verify")
	}

	skb := sk.Marshal()
	sk2, err := SecretKeyFromBytes(skb)
	if err != nil {
		t.Fatalf("secret key decode failed: %v", err)
	}
	if !sk2.Sign([]byte("m")).Verify(sk.PublicKey(), []byte("m")) {
		t.Fatalf("rehydrated secret key produced bad signature")
	}
}

func TestAggregate(t *testing.T) {
	msg := []byte("block hash || view || phase")
	var (
		sigs []*Signature
		pks  []*PublicKey
	)
	for i := 0; i < 4; i++ {
		sk, err := GenerateKey()
		if err != nil {
			t.Fatalf("key generation failed: %v", err)
		}
		sigs = append(sigs, sk.Sign(msg))
		pks = append(pks, sk.PublicKey())
	}
	agg, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("aggregation failed: %v", err)
	}
	if !agg.FastAggregateVerify(pks, msg) {
		t.Fatalf("aggregate signature did not verify")
	}
	if agg.FastAggregateVerify(pks[:3], msg) {
		t.Fatalf("aggregate verified with missing key")
	}
}

func TestBadEncodings(t *testing.T) {
	if _, err := PublicKeyFromBytes(make([]byte, PublicKeySize)); err == nil {
		t.Fatalf("all-zero pubkey should be rejected")
	}
	if _, err := SignatureFromBytes([]byte{0x01}); err == nil {
		t.Fatalf("short signature should be rejected")
	}
	if _, err := AggregateSignatures(nil); err != ErrNoSignatures {
		t.Fatalf("expected ErrNoSignatures, have %v", err)
	}
}
