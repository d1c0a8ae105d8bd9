package bftdriver

import (
	"crypto/ecdsa"
	"encoding/binary"

	"github.com/axonium/axon-core/axontypes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner is a production-shaped Signer backed by a single secp256k1
// key, delegating the actual signature math to go-ethereum/crypto per
// spec §1's "cryptographic primitives are external collaborators"
// boundary. It is the validator-side counterpart of SignedTransaction's
// Sender() recovery in axontypes.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner wraps an already-loaded private key. Key management
// (file, HSM, remote signer) is out of core scope.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (s *LocalSigner) Address() common.Address { return s.addr }

func (s *LocalSigner) SignProposal(p axontypes.Proposal) ([]byte, error) {
	hash, err := p.Hash()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(hash.Bytes(), s.key)
}

func (s *LocalSigner) SignVote(height, round uint64, kind axontypes.VoteKind, hash common.Hash) ([]byte, error) {
	return crypto.Sign(voteSigningHash(height, round, kind, hash).Bytes(), s.key)
}

func (s *LocalSigner) SignChoke(height, round uint64) ([]byte, error) {
	return crypto.Sign(chokeSigningHash(height, round).Bytes(), s.key)
}

// voteSigningHash mirrors the proposal's content-address discipline for
// votes: a pure function of height, round, kind and hash, so every
// honest node signs byte-identical content for the same vote.
func voteSigningHash(height, round uint64, kind axontypes.VoteKind, hash common.Hash) common.Hash {
	buf := make([]byte, 17+common.HashLength)
	binary.BigEndian.PutUint64(buf[0:8], height)
	binary.BigEndian.PutUint64(buf[8:16], round)
	buf[16] = byte(kind)
	copy(buf[17:], hash.Bytes())
	return crypto.Keccak256Hash(buf)
}

func chokeSigningHash(height, round uint64) common.Hash {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], height)
	binary.BigEndian.PutUint64(buf[8:16], round)
	return crypto.Keccak256Hash(buf)
}

// VerifyVoteSignature recovers the signer of a SignedVote and reports
// whether it matches v.Voter, the authorization check the driver relies
// on before tallying a vote toward quorum.
func VerifyVoteSignature(v axontypes.SignedVote) (bool, error) {
	hash := voteSigningHash(v.Height, v.Round, v.Kind, v.Hash)
	pub, err := crypto.SigToPub(hash.Bytes(), v.Signature)
	if err != nil {
		return false, err
	}
	return crypto.PubkeyToAddress(*pub) == v.Voter, nil
}
