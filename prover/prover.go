// Package prover turns circuit input records into Groth16 proofs. The local
// implementation runs the circom witness calculator and rapidsnark in-process;
// proving takes seconds to tens of seconds depending on the host, so callers
// should treat Prove as a long blocking call.
package prover

import (
	"context"
	"fmt"

	rapidsnark "github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"
	"github.com/vocdoni/circom2gnark/parser"

	"github.com/privacycash/privacycash-go/log"
)

// Proof is a parsed Groth16 proof with its public signals, both in circom's
// JSON conventions (decimal-string coordinates).
type Proof struct {
	Proof         *parser.CircomProof
	PublicSignals []string
}

// Prover generates a proof for a circuit input record.
type Prover interface {
	Prove(ctx context.Context, input *CircuitInput) (*Proof, error)
}

// LocalProver proves with an in-process witness calculator and rapidsnark. It
// is safe for concurrent use; each Prove call builds its own calculator.
type LocalProver struct {
	wasm []byte
	zkey []byte
}

// NewLocalProver wraps witness-calculator wasm and a Groth16 proving key.
func NewLocalProver(wasm, zkey []byte) (*LocalProver, error) {
	if len(wasm) == 0 || len(zkey) == 0 {
		return nil, fmt.Errorf("empty circuit artifacts")
	}
	return &LocalProver{wasm: wasm, zkey: zkey}, nil
}

// Prove calculates the witness for the input record and generates the proof.
// The context is checked before each phase; the phases themselves are not
// interruptible.
func (p *LocalProver) Prove(ctx context.Context, input *CircuitInput) (*Proof, error) {
	inputsJSON, err := input.MarshalInputs()
	if err != nil {
		return nil, err
	}
	parsedInputs, err := witness.ParseInputs(inputsJSON)
	if err != nil {
		return nil, fmt.Errorf("parse witness inputs: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	calc, err := witness.NewCircom2WitnessCalculator(p.wasm, true)
	if err != nil {
		return nil, fmt.Errorf("instance witness calculator: %w", err)
	}
	wtns, err := calc.CalculateWTNSBin(parsedInputs, true)
	if err != nil {
		return nil, fmt.Errorf("calculate witness: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debugw("witness calculated", "bytes", len(wtns))
	proofJSON, pubSignalsJSON, err := rapidsnark.Groth16ProverRaw(p.zkey, wtns)
	if err != nil {
		return nil, fmt.Errorf("groth16 prover: %w", err)
	}
	return ParseProof(proofJSON, pubSignalsJSON)
}

// ParseProof decodes the prover's JSON output into a Proof.
func ParseProof(proofJSON, pubSignalsJSON string) (*Proof, error) {
	circomProof, err := parser.UnmarshalCircomProofJSON([]byte(proofJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal proof: %w", err)
	}
	pubSignals, err := parser.UnmarshalCircomPublicSignalsJSON([]byte(pubSignalsJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal public signals: %w", err)
	}
	return &Proof{Proof: circomProof, PublicSignals: pubSignals}, nil
}

// Verify checks a proof locally against a circom verification key JSON. It is
// a pre-flight check only; on-chain verification is authoritative.
func Verify(vkey []byte, proof *Proof) error {
	vkeyData, err := parser.UnmarshalCircomVerificationKeyJSON(vkey)
	if err != nil {
		return fmt.Errorf("unmarshal verification key: %w", err)
	}
	gnarkProof, err := parser.ConvertCircomToGnark(proof.Proof, vkeyData, proof.PublicSignals)
	if err != nil {
		return fmt.Errorf("convert proof: %w", err)
	}
	ok, err := parser.VerifyProof(gnarkProof)
	if err != nil {
		return fmt.Errorf("verify proof: %w", err)
	}
	if !ok {
		return fmt.Errorf("proof does not verify")
	}
	return nil
}
