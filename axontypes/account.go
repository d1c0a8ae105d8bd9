package axontypes

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account is the value stored at an address in the world state trie.
// The default account (zero nonce, zero balance, EmptyStorageRoot, zero
// code hash) is the one NewAccount returns; the struct's zero value has
// a nil Balance and a zero StorageRoot instead.
type Account struct {
	Nonce       uint64
	Balance     *uint256.Int
	StorageRoot common.Hash
	CodeHash    common.Hash
}

// EmptyStorageRoot is the merkle root of an account with no storage slots.
// It is the go-ethereum empty-trie root, reused verbatim so accounts
// created by this executor are indistinguishable on the wire from ones
// produced by any other client sharing the same MPT scheme.
var EmptyStorageRoot = common.HexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")

// NewAccount returns the default account.
func NewAccount() *Account {
	return &Account{
		Balance:     uint256.NewInt(0),
		StorageRoot: EmptyStorageRoot,
	}
}

// Validator is a consensus participant identified by its public key;
// consensus messages name it by Address, the address derived from that
// key.
type Validator struct {
	PubKey        []byte
	Address       common.Address
	ProposeWeight uint32
	VoteWeight    uint32
}

// AuthorityList is the deterministic, total-ordered validator set for an
// epoch: ordered by public key ascending, stable across all honest nodes.
type AuthorityList struct {
	Validators []Validator
}

// NewAuthorityList sorts the given validators by public key and returns
// the resulting list. The input slice is not mutated.
func NewAuthorityList(validators []Validator) AuthorityList {
	sorted := make([]Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].PubKey) < string(sorted[j].PubKey)
	})
	return AuthorityList{Validators: sorted}
}

// TotalVoteWeight sums the vote weight of every validator in the list.
func (a AuthorityList) TotalVoteWeight() uint64 {
	var total uint64
	for _, v := range a.Validators {
		total += uint64(v.VoteWeight)
	}
	return total
}

// TotalProposeWeight sums the propose weight of every validator.
func (a AuthorityList) TotalProposeWeight() uint64 {
	var total uint64
	for _, v := range a.Validators {
		total += uint64(v.ProposeWeight)
	}
	return total
}

// IndexOf returns the position of addr in the list, or -1 if absent.
func (a AuthorityList) IndexOf(addr common.Address) int {
	for i, v := range a.Validators {
		if v.Address == addr {
			return i
		}
	}
	return -1
}

// Contains reports whether addr is present in the authority list.
func (a AuthorityList) Contains(addr common.Address) bool {
	return a.IndexOf(addr) >= 0
}

// Len returns the number of validators, used by proposer rotation.
func (a AuthorityList) Len() int {
	return len(a.Validators)
}
