package merkle

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/privacycash/privacycash-go/crypto/poseidon"
)

func TestZeros(t *testing.T) {
	z := Zeros()
	qt.Assert(t, z[0].Sign(), qt.Equals, 0)
	for i := 1; i <= Depth; i++ {
		want, err := poseidon.Hash(z[i-1], z[i-1])
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, z[i].Cmp(want), qt.Equals, 0)
	}
}

func TestZeroPathRoot(t *testing.T) {
	p := ZeroPath()
	qt.Assert(t, len(p.Elements), qt.Equals, Depth)
	qt.Assert(t, len(p.Indices), qt.Equals, Depth)

	// folding the zero leaf over the zero path yields the empty-tree root
	root, err := p.Root(big.NewInt(0))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, root.Cmp(Zeros()[Depth]), qt.Equals, 0)

	ok, err := p.Verify(root, big.NewInt(0))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsTrue)

	ok, err = p.Verify(root, big.NewInt(1))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, ok, qt.IsFalse)
}

func TestNewPathValidation(t *testing.T) {
	elements := make([]*big.Int, Depth)
	indices := make([]int, Depth)
	for i := range elements {
		elements[i] = big.NewInt(int64(i))
	}

	_, err := NewPath(elements[:Depth-1], indices)
	qt.Assert(t, err, qt.IsNotNil)

	_, err = NewPath(elements, indices[:Depth-1])
	qt.Assert(t, err, qt.IsNotNil)

	badBits := make([]int, Depth)
	badBits[3] = 2
	_, err = NewPath(elements, badBits)
	qt.Assert(t, err, qt.IsNotNil)

	elements[7] = nil
	_, err = NewPath(elements, indices)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestPathFromIndex(t *testing.T) {
	elements := make([]*big.Int, Depth)
	for i := range elements {
		elements[i] = big.NewInt(0)
	}

	p, err := PathFromIndex(elements, 5) // 0b101
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, p.Indices[0], qt.Equals, 1)
	qt.Assert(t, p.Indices[1], qt.Equals, 0)
	qt.Assert(t, p.Indices[2], qt.Equals, 1)
	for i := 3; i < Depth; i++ {
		qt.Assert(t, p.Indices[i], qt.Equals, 0)
	}

	_, err = PathFromIndex(elements, -1)
	qt.Assert(t, err, qt.IsNotNil)
	_, err = PathFromIndex(elements, 1<<Depth)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestSiblingOrder(t *testing.T) {
	// a single level: left child at bit 0 hashes (node, sibling), right child
	// hashes (sibling, node)
	leaf := big.NewInt(111)
	sibling := big.NewInt(222)

	left := ZeroPath()
	left.Elements[0] = sibling
	rootL, err := left.Root(leaf)
	qt.Assert(t, err, qt.IsNil)

	right := ZeroPath()
	right.Elements[0] = sibling
	right.Indices[0] = 1
	rootR, err := right.Root(leaf)
	qt.Assert(t, err, qt.IsNil)

	qt.Assert(t, rootL.Cmp(rootR), qt.Not(qt.Equals), 0)

	firstL, err := poseidon.Hash(leaf, sibling)
	qt.Assert(t, err, qt.IsNil)
	firstR, err := poseidon.Hash(sibling, leaf)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, firstL.Cmp(firstR), qt.Not(qt.Equals), 0)
}
