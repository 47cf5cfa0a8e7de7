// Package utxo implements the note model of the shielded pool: a hidden
// amount bound to an owner keypair and a token mint through a Poseidon
// commitment, spendable by publishing a nullifier derived from the owner's
// private key and the note's position in the commitment tree.
package utxo

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/privacycash/privacycash-go/crypto/poseidon"
	"github.com/privacycash/privacycash-go/keypair"
	"github.com/privacycash/privacycash-go/types"
	"github.com/privacycash/privacycash-go/util"
)

// ErrMissingIndex is returned when a nullifier is requested for a real note
// that has not been anchored to a tree position yet.
var ErrMissingIndex = errors.New("utxo has no tree index; a real spend must be anchored to a position")

// Version selects the owner-derivation generation a note belongs to. Two
// generations coexist so that a key rotation does not strand old notes.
type Version uint8

const (
	// V1 is the original owner-key derivation.
	V1 Version = 1
	// V2 is the current owner-key derivation. All newly created notes are V2.
	V2 Version = 2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("v%d", uint8(v))
}

// UnassignedIndex marks a note that has not been inserted into the tree.
const UnassignedIndex = int64(-1)

// Utxo is a shielded note. Amount and Blinding are scalar field elements;
// Index is the leaf position in the commitment tree, or UnassignedIndex for
// planned and dummy notes.
type Utxo struct {
	Amount   *big.Int
	Blinding *big.Int
	Keypair  *keypair.Keypair
	Index    int64
	Mint     types.Address
	Version  Version
}

// New creates a note with a fresh random blinding factor. index may be
// UnassignedIndex for notes whose position is not known yet.
func New(amount *big.Int, kp *keypair.Keypair, index int64, mint types.Address, version Version) *Utxo {
	return &Utxo{
		Amount:   new(big.Int).Set(amount),
		Blinding: util.RandomFieldElement(),
		Keypair:  kp,
		Index:    index,
		Mint:     mint,
		Version:  version,
	}
}

// Dummy creates a zero-valued placeholder note used to fill the fixed
// two-input circuit arity. Its commitment and nullifier are well-formed but
// convey no value and are never checked for tree membership.
func Dummy(kp *keypair.Keypair, mint types.Address) *Utxo {
	return New(big.NewInt(0), kp, UnassignedIndex, mint, V2)
}

// IsDummy reports whether the note is a zero-valued placeholder.
func (u *Utxo) IsDummy() bool {
	return u.Amount.Sign() == 0 && u.Index == UnassignedIndex
}

// PathIndex returns the tree position used in circuit inputs. Dummy notes use
// position zero together with the empty-subtree path.
func (u *Utxo) PathIndex() *big.Int {
	if u.Index < 0 {
		return big.NewInt(0)
	}
	return big.NewInt(u.Index)
}

// Commitment computes the tree leaf of the note:
// Poseidon(amount, pubkey, blinding, mintField).
func (u *Utxo) Commitment() (*big.Int, error) {
	if u.Keypair == nil {
		return nil, fmt.Errorf("utxo has no keypair")
	}
	return poseidon.Hash(u.Amount, u.Keypair.PubKey(), u.Blinding, MintToField(u.Mint))
}

// Nullifier computes the value published when the note is spent:
// Poseidon(commitment, index, sig) with sig = Poseidon(privkey, commitment,
// index). It requires the owner's private key, and fails for a real note that
// has no tree position.
func (u *Utxo) Nullifier() (*big.Int, error) {
	if !u.IsDummy() && u.Index < 0 {
		return nil, ErrMissingIndex
	}
	commitment, err := u.Commitment()
	if err != nil {
		return nil, err
	}
	index := u.PathIndex()
	sig, err := u.Keypair.Sign(commitment, index)
	if err != nil {
		return nil, fmt.Errorf("sign commitment: %w", err)
	}
	return poseidon.Hash(commitment, index, sig)
}

// String implements fmt.Stringer. It intentionally omits the blinding factor.
func (u *Utxo) String() string {
	return fmt.Sprintf("Utxo{amount: %s, index: %d, mint: %s, version: %s}",
		u.Amount, u.Index, u.Mint, u.Version)
}

// MintToField encodes a token mint address as a scalar field element, the
// representation the circuit uses for the asset identifier.
func MintToField(mint types.Address) *big.Int {
	return util.BigToFF(new(big.Int).SetBytes(mint.Bytes()))
}
