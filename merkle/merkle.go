// Package merkle implements the client side of the pool's commitment tree: it
// does not maintain the tree itself (the indexer does), it models inclusion
// paths, recomputes roots from them and produces the empty-subtree path used
// for dummy circuit inputs.
package merkle

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/privacycash/privacycash-go/crypto/poseidon"
	"github.com/privacycash/privacycash-go/types"
)

// Depth is the height of the commitment tree. It is fixed by the circuit.
const Depth = types.MerkleTreeDepth

// Path is an inclusion path from a leaf to the root. Elements[i] is the
// sibling at level i (leaf level first) and Indices[i] is the position bit of
// the running node at that level: 0 when it is the left child, 1 when right.
type Path struct {
	Elements []*big.Int
	Indices  []int
}

// NewPath validates and wraps a sibling list and position bits fetched from
// the indexer.
func NewPath(elements []*big.Int, indices []int) (*Path, error) {
	if len(elements) != Depth {
		return nil, fmt.Errorf("merkle path has %d elements, tree depth is %d", len(elements), Depth)
	}
	if len(indices) != Depth {
		return nil, fmt.Errorf("merkle path has %d indices, tree depth is %d", len(indices), Depth)
	}
	for i, e := range elements {
		if e == nil {
			return nil, fmt.Errorf("merkle path element %d is nil", i)
		}
	}
	for i, bit := range indices {
		if bit != 0 && bit != 1 {
			return nil, fmt.Errorf("merkle path index %d is %d, want 0 or 1", i, bit)
		}
	}
	return &Path{Elements: elements, Indices: indices}, nil
}

// PathFromIndex builds the position bits of a leaf index. The low bit of the
// index is the leaf-level bit.
func PathFromIndex(elements []*big.Int, index int64) (*Path, error) {
	if index < 0 || index >= 1<<Depth {
		return nil, fmt.Errorf("leaf index %d out of range for depth %d", index, Depth)
	}
	indices := make([]int, Depth)
	for i := range indices {
		indices[i] = int(index >> i & 1)
	}
	return NewPath(elements, indices)
}

var (
	zerosOnce sync.Once
	zeros     [Depth + 1]*big.Int
)

// Zeros returns the empty-subtree hashes of the tree, leaf level first:
// Zeros()[0] is the empty leaf (zero) and Zeros()[Depth] is the root of a
// fully empty tree.
func Zeros() [Depth + 1]*big.Int {
	zerosOnce.Do(func() {
		zeros[0] = big.NewInt(0)
		for i := 1; i <= Depth; i++ {
			h, err := poseidon.Hash(zeros[i-1], zeros[i-1])
			if err != nil {
				panic(fmt.Sprintf("empty subtree hash at level %d: %v", i, err))
			}
			zeros[i] = h
		}
	})
	return zeros
}

// ZeroPath returns the inclusion path of leaf zero in an empty tree. Dummy
// notes use it so the circuit always receives well-formed path inputs.
func ZeroPath() *Path {
	z := Zeros()
	elements := make([]*big.Int, Depth)
	indices := make([]int, Depth)
	for i := 0; i < Depth; i++ {
		elements[i] = new(big.Int).Set(z[i])
	}
	return &Path{Elements: elements, Indices: indices}
}

// Root folds the path over a leaf and returns the resulting tree root.
func (p *Path) Root(leaf *big.Int) (*big.Int, error) {
	node := new(big.Int).Set(leaf)
	for i := 0; i < Depth; i++ {
		var err error
		if p.Indices[i] == 0 {
			node, err = poseidon.Hash(node, p.Elements[i])
		} else {
			node, err = poseidon.Hash(p.Elements[i], node)
		}
		if err != nil {
			return nil, fmt.Errorf("hash level %d: %w", i, err)
		}
	}
	return node, nil
}

// Verify reports whether the path proves that leaf is included under root.
func (p *Path) Verify(root, leaf *big.Int) (bool, error) {
	computed, err := p.Root(leaf)
	if err != nil {
		return false, err
	}
	return computed.Cmp(root) == 0, nil
}
