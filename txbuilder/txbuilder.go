// Package txbuilder assembles two-input/two-output note transitions: it
// selects input notes, applies the fee and partial-withdrawal policy, binds
// the external transaction fields, and emits the circuit input record the
// prover consumes. It performs no I/O of its own beyond fetching Merkle paths
// through the injected fetcher; callers must serialize concurrent builds over
// the same note set or they risk double-selecting notes.
package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/privacycash/privacycash-go/encryption"
	"github.com/privacycash/privacycash-go/keypair"
	"github.com/privacycash/privacycash-go/log"
	"github.com/privacycash/privacycash-go/merkle"
	"github.com/privacycash/privacycash-go/prover"
	"github.com/privacycash/privacycash-go/types"
	"github.com/privacycash/privacycash-go/utxo"
)

// ErrNoNotes is returned when a withdrawal is requested and the owner has no
// spendable value at all.
var ErrNoNotes = errors.New("no spendable notes available")

// InsufficientBalanceError is returned when the owner's total value cannot
// cover the mandatory fee, so not even a partial withdrawal is possible.
type InsufficientBalanceError struct {
	Have uint64
	Need uint64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d", e.Have, e.Need)
}

// TreeState is the commitment tree snapshot a transition is built against.
// NextIndex determines the positions of the two output notes.
type TreeState struct {
	Root      *big.Int
	NextIndex int64
}

// PathFetcher obtains the inclusion path of a real input note from the
// indexer. Dummy inputs never reach it.
type PathFetcher interface {
	MerklePath(ctx context.Context, commitment *big.Int) (*merkle.Path, error)
}

// Builder assembles note transitions for one wallet.
type Builder struct {
	enc   *encryption.Service
	paths PathFetcher
}

// New creates a Builder over a derived encryption service and a path fetcher.
func New(enc *encryption.Service, paths PathFetcher) *Builder {
	return &Builder{enc: enc, paths: paths}
}

// DepositRequest describes a deposit: Amount base units enter the pool and
// are consolidated with up to two existing notes into a single output note.
type DepositRequest struct {
	Amount       uint64
	Fee          uint64
	Notes        []*utxo.Utxo
	Tree         TreeState
	Keypair      *keypair.Keypair
	Depositor    types.Address
	FeeRecipient types.Address
	Mint         types.Address
}

// WithdrawRequest describes a withdrawal of Amount base units to Recipient.
// Fee is charged on top of Amount, from the owner's balance.
type WithdrawRequest struct {
	Amount       uint64
	Fee          uint64
	Notes        []*utxo.Utxo
	Tree         TreeState
	Keypair      *keypair.Keypair
	Recipient    types.Address
	FeeRecipient types.Address
	Mint         types.Address
}

// Result is an assembled transition ready for proving. Amount is the public
// amount actually moved, which for a capped partial withdrawal is smaller
// than requested; Partial flags that case.
type Result struct {
	Inputs       [types.NInputs]*utxo.Utxo
	Outputs      [types.NOutputs]*utxo.Utxo
	ExtData      *ExtData
	ExtDataHash  *big.Int
	PublicAmount *big.Int
	CircuitInput *prover.CircuitInput
	Amount       uint64
	Partial      bool
}

// BuildDeposit assembles a deposit transition. Existing notes are consumed in
// the order given (the caller decides consolidation priority); with no
// existing notes both inputs are dummies.
func (b *Builder) BuildDeposit(ctx context.Context, req *DepositRequest) (*Result, error) {
	if req.Amount > math.MaxInt64 {
		return nil, fmt.Errorf("deposit amount %d overflows the external amount field", req.Amount)
	}
	if err := checkNoteMints(req.Notes, req.Mint); err != nil {
		return nil, err
	}

	inputs := selectInputs(req.Notes, req.Keypair, req.Mint)
	outputAmount := new(big.Int).Add(inputs[0].Amount, inputs[1].Amount)
	outputAmount.Add(outputAmount, new(big.Int).SetUint64(req.Amount))
	outputAmount.Sub(outputAmount, new(big.Int).SetUint64(req.Fee))
	if outputAmount.Sign() < 0 {
		return nil, fmt.Errorf("deposit fee %d exceeds deposited value", req.Fee)
	}

	log.Debugw("building deposit", "amount", req.Amount, "fee", req.Fee,
		"consolidated", countReal(inputs), "nextIndex", req.Tree.NextIndex)

	return b.assemble(ctx, assembly{
		inputs:       inputs,
		outputAmount: outputAmount,
		extAmount:    int64(req.Amount),
		fee:          req.Fee,
		tree:         req.Tree,
		keypair:      req.Keypair,
		recipient:    req.Depositor,
		feeRecipient: req.FeeRecipient,
		mint:         req.Mint,
		amount:       req.Amount,
	})
}

// BuildWithdraw assembles a withdrawal transition. The two largest notes are
// spent; when they cannot cover amount+fee the withdrawal is silently capped
// to everything-minus-fee and flagged Partial. A wallet with zero total value
// gets ErrNoNotes; one whose value cannot cover the fee gets an
// InsufficientBalanceError.
func (b *Builder) BuildWithdraw(ctx context.Context, req *WithdrawRequest) (*Result, error) {
	if len(req.Notes) == 0 {
		return nil, ErrNoNotes
	}
	if req.Amount > math.MaxInt64 {
		return nil, fmt.Errorf("withdraw amount %d overflows the external amount field", req.Amount)
	}
	if err := checkNoteMints(req.Notes, req.Mint); err != nil {
		return nil, err
	}

	sorted := make([]*utxo.Utxo, len(req.Notes))
	copy(sorted, req.Notes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.Cmp(sorted[j].Amount) > 0
	})
	inputs := selectInputs(sorted, req.Keypair, req.Mint)

	total := new(big.Int).Add(inputs[0].Amount, inputs[1].Amount)
	if total.Sign() == 0 {
		return nil, ErrNoNotes
	}

	amount := req.Amount
	partial := false
	required := new(big.Int).Add(new(big.Int).SetUint64(amount), new(big.Int).SetUint64(req.Fee))
	if total.Cmp(required) < 0 {
		partial = true
		if !total.IsUint64() {
			return nil, fmt.Errorf("input total %s overflows uint64", total)
		}
		totalU64 := total.Uint64()
		if totalU64 <= req.Fee {
			return nil, &InsufficientBalanceError{Have: totalU64, Need: req.Fee}
		}
		amount = totalU64 - req.Fee
		log.Infow("partial withdrawal", "requested", req.Amount, "capped", amount, "fee", req.Fee)
	}

	change := new(big.Int).Set(total)
	change.Sub(change, new(big.Int).SetUint64(amount))
	change.Sub(change, new(big.Int).SetUint64(req.Fee))

	log.Debugw("building withdrawal", "amount", amount, "fee", req.Fee,
		"change", change, "partial", partial, "nextIndex", req.Tree.NextIndex)

	result, err := b.assemble(ctx, assembly{
		inputs:       inputs,
		outputAmount: change,
		extAmount:    -int64(amount),
		fee:          req.Fee,
		tree:         req.Tree,
		keypair:      req.Keypair,
		recipient:    req.Recipient,
		feeRecipient: req.FeeRecipient,
		mint:         req.Mint,
		amount:       amount,
	})
	if err != nil {
		return nil, err
	}
	result.Partial = partial
	return result, nil
}

// assembly is the common tail of deposit and withdrawal building.
type assembly struct {
	inputs       [types.NInputs]*utxo.Utxo
	outputAmount *big.Int
	extAmount    int64
	fee          uint64
	tree         TreeState
	keypair      *keypair.Keypair
	recipient    types.Address
	feeRecipient types.Address
	mint         types.Address
	amount       uint64
}

func (b *Builder) assemble(ctx context.Context, a assembly) (*Result, error) {
	paths, err := b.fetchPaths(ctx, a.inputs)
	if err != nil {
		return nil, err
	}

	// output 0 carries the whole post-transition balance, output 1 is the
	// zero-valued placeholder required by the fixed circuit arity; both get
	// real tree positions
	outputs := [types.NOutputs]*utxo.Utxo{
		utxo.New(a.outputAmount, a.keypair, a.tree.NextIndex, a.mint, utxo.V2),
		utxo.New(big.NewInt(0), a.keypair, a.tree.NextIndex+1, a.mint, utxo.V2),
	}

	enc1, err := b.enc.EncryptNote(outputs[0])
	if err != nil {
		return nil, fmt.Errorf("encrypt output 0: %w", err)
	}
	enc2, err := b.enc.EncryptNote(outputs[1])
	if err != nil {
		return nil, fmt.Errorf("encrypt output 1: %w", err)
	}

	extData := &ExtData{
		Recipient:        a.recipient,
		ExtAmount:        a.extAmount,
		EncryptedOutput1: enc1,
		EncryptedOutput2: enc2,
		Fee:              a.fee,
		FeeRecipient:     a.feeRecipient,
		Mint:             a.mint,
	}
	extDataHash := extData.Hash()
	publicAmount := PublicAmount(a.extAmount, a.fee)

	circuitInput, err := buildCircuitInput(a.inputs, paths, outputs, a.tree.Root, publicAmount, extDataHash, a.mint)
	if err != nil {
		return nil, err
	}

	return &Result{
		Inputs:       a.inputs,
		Outputs:      outputs,
		ExtData:      extData,
		ExtDataHash:  extDataHash,
		PublicAmount: publicAmount,
		CircuitInput: circuitInput,
		Amount:       a.amount,
	}, nil
}

func (b *Builder) fetchPaths(ctx context.Context, inputs [types.NInputs]*utxo.Utxo) ([types.NInputs]*merkle.Path, error) {
	var paths [types.NInputs]*merkle.Path
	for i, in := range inputs {
		if in.IsDummy() {
			paths[i] = merkle.ZeroPath()
			continue
		}
		commitment, err := in.Commitment()
		if err != nil {
			return paths, fmt.Errorf("commitment of input %d: %w", i, err)
		}
		path, err := b.paths.MerklePath(ctx, commitment)
		if err != nil {
			return paths, fmt.Errorf("merkle path of input %d: %w", i, err)
		}
		paths[i] = path
	}
	return paths, nil
}

func buildCircuitInput(
	inputs [types.NInputs]*utxo.Utxo,
	paths [types.NInputs]*merkle.Path,
	outputs [types.NOutputs]*utxo.Utxo,
	root, publicAmount, extDataHash *big.Int,
	mint types.Address,
) (*prover.CircuitInput, error) {
	ci := &prover.CircuitInput{
		Root:         root.String(),
		PublicAmount: publicAmount.String(),
		ExtDataHash:  extDataHash.String(),
		MintAddress:  utxo.MintToField(mint).String(),
	}
	for _, in := range inputs {
		nullifier, err := in.Nullifier()
		if err != nil {
			return nil, fmt.Errorf("nullifier: %w", err)
		}
		ci.InputNullifier = append(ci.InputNullifier, nullifier.String())
		ci.InAmount = append(ci.InAmount, in.Amount.String())
		ci.InPrivateKey = append(ci.InPrivateKey, in.Keypair.PrivKey().String())
		ci.InBlinding = append(ci.InBlinding, in.Blinding.String())
		ci.InPathIndices = append(ci.InPathIndices, in.PathIndex().Int64())
	}
	for _, path := range paths {
		elements := make([]string, len(path.Elements))
		for i, e := range path.Elements {
			elements[i] = e.String()
		}
		ci.InPathElements = append(ci.InPathElements, elements)
	}
	for _, out := range outputs {
		commitment, err := out.Commitment()
		if err != nil {
			return nil, fmt.Errorf("output commitment: %w", err)
		}
		ci.OutputCommitment = append(ci.OutputCommitment, commitment.String())
		ci.OutAmount = append(ci.OutAmount, out.Amount.String())
		ci.OutBlinding = append(ci.OutBlinding, out.Blinding.String())
		ci.OutPubkey = append(ci.OutPubkey, out.Keypair.PubKey().String())
	}
	if err := ci.Validate(); err != nil {
		return nil, err
	}
	return ci, nil
}

// selectInputs takes the first two notes of candidates, padding with dummies
// up to the circuit arity.
func selectInputs(candidates []*utxo.Utxo, kp *keypair.Keypair, mint types.Address) [types.NInputs]*utxo.Utxo {
	var inputs [types.NInputs]*utxo.Utxo
	for i := range inputs {
		if i < len(candidates) {
			inputs[i] = candidates[i]
		} else {
			inputs[i] = utxo.Dummy(kp, mint)
		}
	}
	return inputs
}

func checkNoteMints(notes []*utxo.Utxo, mint types.Address) error {
	for _, n := range notes {
		if !n.IsDummy() && n.Mint != mint {
			return fmt.Errorf("note mint %s does not match transaction mint %s", n.Mint, mint)
		}
	}
	return nil
}

func countReal(inputs [types.NInputs]*utxo.Utxo) int {
	n := 0
	for _, in := range inputs {
		if !in.IsDummy() {
			n++
		}
	}
	return n
}
