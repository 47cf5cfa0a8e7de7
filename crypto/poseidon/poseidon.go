// Package poseidon exposes the circom-parameterized Poseidon hash used by the
// shielded-pool circuits. Round constants, MDS matrices and round counts are
// fixed by the circuit definition; changing any of them silently breaks
// on-chain verification, so this package is a thin arity-checked wrapper over
// the reference implementation rather than a tunable sponge.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// MaxInputs is the maximum number of field elements a single permutation can
// absorb (sponge width 13). Larger inputs would select parameters the circuit
// does not have.
const MaxInputs = 12

// Hash computes the Poseidon hash of 1 to MaxInputs field elements. The
// sponge state is seeded with a zero domain tag plus the inputs (state width =
// len(inputs)+1), runs the width-specific full/partial round schedule and
// returns the first state element.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) > MaxInputs {
		return nil, fmt.Errorf("too many inputs: %d, maximum is %d", len(inputs), MaxInputs)
	}
	return poseidon.Hash(inputs)
}
