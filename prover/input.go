package prover

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/privacycash/privacycash-go/types"
)

// CircuitInput is the witness record of the transact2 circuit. Field names
// and order match the circom signal names; all field elements are decimal
// strings, which is what the witness calculator parses.
type CircuitInput struct {
	Root             string   `json:"root"`
	InputNullifier   []string `json:"inputNullifier"`
	OutputCommitment []string `json:"outputCommitment"`
	PublicAmount     string   `json:"publicAmount"`
	ExtDataHash      string   `json:"extDataHash"`

	InAmount       []string   `json:"inAmount"`
	InPrivateKey   []string   `json:"inPrivateKey"`
	InBlinding     []string   `json:"inBlinding"`
	InPathIndices  []int64    `json:"inPathIndices"`
	InPathElements [][]string `json:"inPathElements"`

	OutAmount   []string `json:"outAmount"`
	OutBlinding []string `json:"outBlinding"`
	OutPubkey   []string `json:"outPubkey"`

	MintAddress string `json:"mintAddress"`
}

// Validate checks the record's arity against the circuit shape before it is
// handed to the witness calculator, which reports shape errors poorly.
func (ci *CircuitInput) Validate() error {
	checkLen := func(name string, got int, want int) error {
		if got != want {
			return fmt.Errorf("%s has %d entries, circuit expects %d", name, got, want)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		got  int
		want int
	}{
		{"inputNullifier", len(ci.InputNullifier), types.NInputs},
		{"inAmount", len(ci.InAmount), types.NInputs},
		{"inPrivateKey", len(ci.InPrivateKey), types.NInputs},
		{"inBlinding", len(ci.InBlinding), types.NInputs},
		{"inPathIndices", len(ci.InPathIndices), types.NInputs},
		{"inPathElements", len(ci.InPathElements), types.NInputs},
		{"outputCommitment", len(ci.OutputCommitment), types.NOutputs},
		{"outAmount", len(ci.OutAmount), types.NOutputs},
		{"outBlinding", len(ci.OutBlinding), types.NOutputs},
		{"outPubkey", len(ci.OutPubkey), types.NOutputs},
	} {
		if err := checkLen(c.name, c.got, c.want); err != nil {
			return err
		}
	}
	for i, path := range ci.InPathElements {
		if len(path) != types.MerkleTreeDepth {
			return fmt.Errorf("inPathElements[%d] has %d levels, tree depth is %d",
				i, len(path), types.MerkleTreeDepth)
		}
	}
	for _, s := range []string{ci.Root, ci.PublicAmount, ci.ExtDataHash, ci.MintAddress} {
		if _, ok := new(big.Int).SetString(s, 10); !ok {
			return fmt.Errorf("non-decimal field element %q", s)
		}
	}
	return nil
}

// MarshalInputs renders the record as the JSON document consumed by the
// witness calculator.
func (ci *CircuitInput) MarshalInputs() ([]byte, error) {
	if err := ci.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit input: %w", err)
	}
	return json.Marshal(ci)
}
