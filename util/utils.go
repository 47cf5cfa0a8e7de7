package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// FieldSize is the modulus of the BN254 scalar field, the prime field in which
// every circuit value (amounts, blindings, commitments, nullifiers) lives.
var FieldSize, _ = new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)

// RandomBytes generates a random byte slice of length n.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}
	return b
}

// RandomHex generates a random hex string of length n bytes.
func RandomHex(n int) string {
	return fmt.Sprintf("%x", RandomBytes(n))
}

// RandomFieldElement generates a uniformly random element of the BN254 scalar
// field, used for note blinding factors.
func RandomFieldElement() *big.Int {
	n, err := rand.Int(rand.Reader, FieldSize)
	if err != nil {
		panic(err)
	}
	return n
}

// TrimHex trims the '0x' prefix from a hex string.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// BigToFF returns the finite field representation of the big.Int provided,
// using Euclidean modulus over the BN254 scalar field. Negative values wrap
// into [0, FieldSize).
func BigToFF(iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(FieldSize); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, FieldSize)
}
