// Package codec converts prover output into the fixed-width byte layout the
// on-chain verifier consumes: 32-byte big-endian coordinates, the G2 point
// with its (c1, c0) sub-order preserved, and the final instruction data with
// its discriminator, signals and length-prefixed ciphertexts.
package codec

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/vocdoni/circom2gnark/parser"

	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/txbuilder"
	"github.com/privacycash/privacycash-go/types"
)

// CoordSize is the byte width of one field coordinate.
const CoordSize = 32

// ProofBytes is a Groth16 proof in the verifier's layout: A and C are
// affine G1 points (x, y), B is an affine G2 point (x.c1, x.c0, y.c1, y.c0).
type ProofBytes struct {
	A [2 * CoordSize]byte
	B [4 * CoordSize]byte
	C [2 * CoordSize]byte
}

// ParseProofToBytes converts a circom proof (projective, decimal-string
// coordinates) into the verifier layout. The third projective coordinate of
// each point is dropped; snarkjs always emits affine points with z=1. The
// G2 sub-coordinate order is kept exactly as snarkjs emits it, (c1, c0),
// because the on-chain verifier reverses endianness per 32-byte chunk without
// reordering chunks.
func ParseProofToBytes(proof *parser.CircomProof) (*ProofBytes, error) {
	if len(proof.PiA) < 2 || len(proof.PiB) < 2 || len(proof.PiC) < 2 {
		return nil, fmt.Errorf("malformed proof: missing coordinates")
	}
	out := &ProofBytes{}
	for i, s := range proof.PiA[:2] {
		if err := putBaseCoord(out.A[i*CoordSize:], s); err != nil {
			return nil, fmt.Errorf("proof A coordinate %d: %w", i, err)
		}
	}
	for i, pair := range proof.PiB[:2] {
		if len(pair) < 2 {
			return nil, fmt.Errorf("malformed proof: G2 coordinate %d has %d components", i, len(pair))
		}
		for j, s := range pair[:2] {
			if err := putBaseCoord(out.B[(i*2+j)*CoordSize:], s); err != nil {
				return nil, fmt.Errorf("proof B coordinate (%d,%d): %w", i, j, err)
			}
		}
	}
	for i, s := range proof.PiC[:2] {
		if err := putBaseCoord(out.C[i*CoordSize:], s); err != nil {
			return nil, fmt.Errorf("proof C coordinate %d: %w", i, err)
		}
	}
	return out, nil
}

// ParsePublicSignalsToBytes converts the prover's public signals into 32-byte
// big-endian scalars. The expected order is root, publicAmount, extDataHash,
// nullifier0, nullifier1, commitment0, commitment1.
func ParsePublicSignalsToBytes(signals []string) ([][CoordSize]byte, error) {
	if len(signals) != types.NPublicSignals {
		return nil, fmt.Errorf("got %d public signals, verifier expects %d", len(signals), types.NPublicSignals)
	}
	out := make([][CoordSize]byte, len(signals))
	for i, s := range signals {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			// snarkjs occasionally emits hex without a prefix
			if n, ok = new(big.Int).SetString(s, 16); !ok {
				return nil, fmt.Errorf("invalid public signal %q", s)
			}
		}
		if n.Sign() < 0 || n.Cmp(fr.Modulus()) >= 0 {
			return nil, fmt.Errorf("public signal %d out of scalar field range", i)
		}
		var e fr.Element
		e.SetBigInt(n)
		out[i] = e.Bytes()
	}
	return out, nil
}

// putBaseCoord writes a decimal base-field coordinate as 32 big-endian bytes.
func putBaseCoord(dst []byte, s string) error {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid coordinate %q", s)
	}
	if n.Sign() < 0 || n.Cmp(fp.Modulus()) >= 0 {
		return fmt.Errorf("coordinate out of base field range")
	}
	var e fp.Element
	e.SetBigInt(n)
	b := e.Bytes()
	copy(dst, b[:])
	return nil
}

// SerializeInstruction builds the transact instruction data: discriminator,
// proof, the seven public signals, the minified ext data (extAmount, fee) and
// the length-prefixed output ciphertexts. The discriminator is selected by
// whether the bound mint is the native pool's placeholder.
func SerializeInstruction(proof *ProofBytes, signals [][CoordSize]byte, ext *txbuilder.ExtData) ([]byte, error) {
	if len(signals) != types.NPublicSignals {
		return nil, fmt.Errorf("got %d public signals, verifier expects %d", len(signals), types.NPublicSignals)
	}
	disc := config.TransactDiscriminator
	if ext.Mint != config.NativeMint {
		disc = config.TransactSplDiscriminator
	}

	size := len(disc) + len(proof.A) + len(proof.B) + len(proof.C) +
		types.NPublicSignals*CoordSize + 8 + 8 +
		4 + len(ext.EncryptedOutput1) + 4 + len(ext.EncryptedOutput2)
	data := make([]byte, 0, size)

	data = append(data, disc[:]...)
	data = append(data, proof.A[:]...)
	data = append(data, proof.B[:]...)
	data = append(data, proof.C[:]...)
	for _, s := range signals {
		data = append(data, s[:]...)
	}
	data = binary.LittleEndian.AppendUint64(data, uint64(ext.ExtAmount))
	data = binary.LittleEndian.AppendUint64(data, ext.Fee)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(ext.EncryptedOutput1)))
	data = append(data, ext.EncryptedOutput1...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(ext.EncryptedOutput2)))
	data = append(data, ext.EncryptedOutput2...)
	return data, nil
}
