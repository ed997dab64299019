package bft

import (
	"sort"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/crypto/bls"
)

// CommitCertificate proves that a quorum signed COMMIT for a block: the
// voters' signatures over the commit digest folded into one aggregate. It
// rides along with the finalized block so light consumers can check
// finality without replaying the vote stream.
type CommitCertificate struct {
	BlockNumber  uint64
	View         uint64
	BlockHash    common.Hash
	Voters       []common.Address // ascending, the aggregation order
	AggregateSig []byte
}

// buildCommitCertificate folds the commit tally into a certificate. Voters
// are sorted by address so every node aggregates in the same order.
func buildCommitCertificate(r *round, tally map[common.Address]*Vote) (*CommitCertificate, error) {
	voters := make([]common.Address, 0, len(tally))
	for addr := range tally {
		voters = append(voters, addr)
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].Cmp(voters[j]) < 0 })

	sigs := make([]*bls.Signature, 0, len(voters))
	for _, addr := range voters {
		sig, err := bls.SignatureFromBytes(tally[addr].Signature)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	agg, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return nil, err
	}
	return &CommitCertificate{
		BlockNumber:  r.number,
		View:         r.view,
		BlockHash:    r.blockHash,
		Voters:       voters,
		AggregateSig: agg.Marshal(),
	}, nil
}

// Verify checks the certificate against a validator set: quorum membership
// and the aggregate signature over the commit digest.
func (cert *CommitCertificate) Verify(set *ValidatorSet) error {
	if len(cert.Voters) < set.Quorum() {
		return ErrInvalidVote
	}
	pks := make([]*bls.PublicKey, 0, len(cert.Voters))
	seen := make(map[common.Address]bool, len(cert.Voters))
	for _, addr := range cert.Voters {
		if seen[addr] {
			return ErrDuplicateVote
		}
		seen[addr] = true
		info := set.ByAddress(addr)
		if info == nil {
			return ErrUnknownValidator
		}
		pk, err := bls.PublicKeyFromBytes(info.BlsPublicKey)
		if err != nil {
			return ErrUnknownValidator
		}
		pks = append(pks, pk)
	}
	agg, err := bls.SignatureFromBytes(cert.AggregateSig)
	if err != nil {
		return ErrInvalidVote
	}
	if !agg.FastAggregateVerify(pks, VoteDigest(cert.BlockHash, cert.View, PhaseCommit)) {
		return ErrInvalidVote
	}
	return nil
}
