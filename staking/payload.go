package staking

import (
	"errors"

	"github.com/basalt-network/gbasalt/codec"
	"github.com/basalt-network/gbasalt/crypto/bls"
)

var ErrInvalidRegisterPayload = errors.New("staking: invalid register payload")

// RegisterPayload is carried in the data field of a validator-register
// transaction: the BLS voting key plus the advertised p2p endpoint.
type RegisterPayload struct {
	BlsPublicKey []byte
	P2PEndpoint  string
}

// EncodeRegisterPayload serializes the payload for tx.Data.
func EncodeRegisterPayload(blsPub []byte, endpoint string) ([]byte, error) {
	if len(blsPub) != bls.PublicKeySize {
		return nil, ErrInvalidRegisterPayload
	}
	w := codec.NewWriter(bls.PublicKeySize + len(endpoint) + 4)
	w.WriteFixed(blsPub)
	w.WriteString(endpoint)
	return w.Bytes(), nil
}

// DecodeRegisterPayload parses tx.Data bytes into a register payload and
// group-checks the embedded key.
func DecodeRegisterPayload(data []byte) (*RegisterPayload, error) {
	r := codec.NewReader(data)
	pub := r.ReadFixed(bls.PublicKeySize)
	endpoint := r.ReadString()
	if err := r.Finish(); err != nil {
		return nil, ErrInvalidRegisterPayload
	}
	if _, err := bls.PublicKeyFromBytes(pub); err != nil {
		return nil, ErrInvalidRegisterPayload
	}
	return &RegisterPayload{BlsPublicKey: pub, P2PEndpoint: endpoint}, nil
}
