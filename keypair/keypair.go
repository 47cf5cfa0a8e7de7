// Package keypair implements the note-ownership keypair of the shielded pool.
// It is unrelated to the wallet's ledger keypair: the private key is a scalar
// field element and the public key is its Poseidon hash, matching the
// ownership check performed inside the transaction circuit.
package keypair

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/privacycash/privacycash-go/crypto/poseidon"
	"github.com/privacycash/privacycash-go/util"
)

// Keypair is a note-ownership keypair. The private key never leaves the
// client; the public key is embedded in note commitments.
type Keypair struct {
	privKey *big.Int
	pubKey  *big.Int
}

// FromHex derives a keypair from a hex-encoded secret (with or without the
// "0x" prefix). The secret is reduced into the scalar field, so equal secrets
// always yield equal keypairs.
func FromHex(secret string) (*Keypair, error) {
	raw, err := hex.DecodeString(util.TrimHex(secret))
	if err != nil {
		return nil, fmt.Errorf("invalid secret hex: %w", err)
	}
	return FromBytes(raw)
}

// FromBytes derives a keypair from a big-endian secret, reduced into the
// scalar field.
func FromBytes(secret []byte) (*Keypair, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	privKey := new(big.Int).Mod(new(big.Int).SetBytes(secret), util.FieldSize)
	pubKey, err := poseidon.Hash(privKey)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &Keypair{privKey: privKey, pubKey: pubKey}, nil
}

// Generate creates a keypair from a fresh cryptographically random secret.
func Generate() (*Keypair, error) {
	return FromBytes(util.RandomBytes(32))
}

// PrivKey returns the private key scalar.
func (k *Keypair) PrivKey() *big.Int { return new(big.Int).Set(k.privKey) }

// PubKey returns the public key scalar.
func (k *Keypair) PubKey() *big.Int { return new(big.Int).Set(k.pubKey) }

// Sign computes the authorization value folded into a nullifier:
// Poseidon(privKey, commitment, merklePath). Only the holder of the private
// key can produce it, which is what binds a published nullifier to the note
// owner.
func (k *Keypair) Sign(commitment, merklePath *big.Int) (*big.Int, error) {
	if commitment == nil || merklePath == nil {
		return nil, fmt.Errorf("nil signature input")
	}
	return poseidon.Hash(k.privKey, commitment, merklePath)
}

// String implements fmt.Stringer without exposing the private key.
func (k *Keypair) String() string {
	return fmt.Sprintf("Keypair{pubkey: %s}", k.pubKey.String())
}
