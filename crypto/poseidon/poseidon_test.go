package poseidon

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/privacycash/privacycash-go/util"
)

func TestHashDeterminism(t *testing.T) {
	in := big.NewInt(12345)
	h1, err := Hash(in)
	qt.Assert(t, err, qt.IsNil)
	h2, err := Hash(in)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, h1.Cmp(h2), qt.Equals, 0)
}

func TestHashArity(t *testing.T) {
	_, err := Hash()
	qt.Assert(t, err, qt.IsNotNil)

	many := make([]*big.Int, MaxInputs+1)
	for i := range many {
		many[i] = big.NewInt(int64(i))
	}
	_, err = Hash(many...)
	qt.Assert(t, err, qt.IsNotNil)

	// every supported arity must work
	for n := 1; n <= MaxInputs; n++ {
		h, err := Hash(many[:n]...)
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, h.Sign() >= 0, qt.IsTrue)
		qt.Assert(t, h.Cmp(util.FieldSize) < 0, qt.IsTrue)
	}
}

func TestHashSensitivity(t *testing.T) {
	seen := map[string]bool{}
	for i := int64(0); i < 256; i++ {
		h, err := Hash(big.NewInt(i))
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, seen[h.String()], qt.IsFalse)
		seen[h.String()] = true
	}
}

func TestHashOrderMatters(t *testing.T) {
	a, b := big.NewInt(123), big.NewInt(456)
	h1, err := Hash(a, b)
	qt.Assert(t, err, qt.IsNil)
	h2, err := Hash(b, a)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, h1.Cmp(h2), qt.Not(qt.Equals), 0)
}
