package prover

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/privacycash/privacycash-go/types"
)

func validInput() *CircuitInput {
	path := make([]string, types.MerkleTreeDepth)
	for i := range path {
		path[i] = "0"
	}
	return &CircuitInput{
		Root:             "123",
		InputNullifier:   []string{"1", "2"},
		OutputCommitment: []string{"3", "4"},
		PublicAmount:     "1000",
		ExtDataHash:      "555",
		InAmount:         []string{"1000", "0"},
		InPrivateKey:     []string{"7", "7"},
		InBlinding:       []string{"11", "12"},
		InPathIndices:    []int64{0, 0},
		InPathElements:   [][]string{path, path},
		OutAmount:        []string{"1000", "0"},
		OutBlinding:      []string{"13", "14"},
		OutPubkey:        []string{"15", "15"},
		MintAddress:      "99",
	}
}

func TestCircuitInputMarshal(t *testing.T) {
	data, err := validInput().MarshalInputs()
	qt.Assert(t, err, qt.IsNil)

	// the witness calculator matches signals by JSON key
	var m map[string]json.RawMessage
	err = json.Unmarshal(data, &m)
	qt.Assert(t, err, qt.IsNil)
	for _, key := range []string{
		"root", "inputNullifier", "outputCommitment", "publicAmount",
		"extDataHash", "inAmount", "inPrivateKey", "inBlinding",
		"inPathIndices", "inPathElements", "outAmount", "outBlinding",
		"outPubkey", "mintAddress",
	} {
		_, ok := m[key]
		qt.Assert(t, ok, qt.IsTrue, qt.Commentf("missing signal %q", key))
	}
}

func TestCircuitInputValidate(t *testing.T) {
	in := validInput()
	qt.Assert(t, in.Validate(), qt.IsNil)

	in.InAmount = []string{"1"}
	qt.Assert(t, in.Validate(), qt.IsNotNil)

	in = validInput()
	in.InPathElements[1] = in.InPathElements[1][:5]
	qt.Assert(t, in.Validate(), qt.IsNotNil)

	in = validInput()
	in.Root = "0xdeadbeef"
	qt.Assert(t, in.Validate(), qt.IsNotNil)
}

func TestLocalProverRequiresArtifacts(t *testing.T) {
	_, err := NewLocalProver(nil, []byte{1})
	qt.Assert(t, err, qt.IsNotNil)
	_, err = NewLocalProver([]byte{1}, nil)
	qt.Assert(t, err, qt.IsNotNil)
	_, err = NewLocalProver([]byte{1}, []byte{1})
	qt.Assert(t, err, qt.IsNil)
}

func TestParseProof(t *testing.T) {
	proofJSON := `{
		"pi_a": ["1", "2", "1"],
		"pi_b": [["3", "4"], ["5", "6"], ["1", "0"]],
		"pi_c": ["7", "8", "1"],
		"protocol": "groth16",
		"curve": "bn128"
	}`
	signalsJSON := `["9", "10", "11", "12", "13", "14", "15"]`

	p, err := ParseProof(proofJSON, signalsJSON)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, len(p.PublicSignals), qt.Equals, types.NPublicSignals)
	qt.Assert(t, p.Proof.PiA[0], qt.Equals, "1")
	qt.Assert(t, p.Proof.PiB[0][0], qt.Equals, "3")
	qt.Assert(t, p.Proof.PiC[1], qt.Equals, "8")

	_, err = ParseProof("not json", signalsJSON)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestVerifyRejectsBadVerificationKey(t *testing.T) {
	proofJSON := `{
		"pi_a": ["1", "2", "1"],
		"pi_b": [["3", "4"], ["5", "6"], ["1", "0"]],
		"pi_c": ["7", "8", "1"],
		"protocol": "groth16",
		"curve": "bn128"
	}`
	p, err := ParseProof(proofJSON, `["9", "10", "11", "12", "13", "14", "15"]`)
	qt.Assert(t, err, qt.IsNil)

	err = Verify([]byte("not a verification key"), p)
	qt.Assert(t, err, qt.ErrorMatches, "unmarshal verification key.*")

	err = Verify(nil, p)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestArtifactCache(t *testing.T) {
	origBase := BaseDir
	BaseDir = t.TempDir()
	defer func() { BaseDir = origBase }()

	content := []byte("fake circuit artifact content")
	sum := sha256.Sum256(content)
	err := os.WriteFile(filepath.Join(BaseDir, hex.EncodeToString(sum[:])), content, 0o644)
	qt.Assert(t, err, qt.IsNil)

	a := &Artifact{Hash: sum[:]}
	qt.Assert(t, a.Load(), qt.IsNil)
	qt.Assert(t, string(a.Content), qt.Equals, string(content))

	// a missing artifact is reported, not silently empty
	missing := &Artifact{Hash: []byte{0xaa, 0xbb}}
	qt.Assert(t, missing.Load(), qt.IsNotNil)

	// corrupted cache entries are rejected
	bad := []byte("corrupted")
	err = os.WriteFile(filepath.Join(BaseDir, hex.EncodeToString(sum[:])), bad, 0o644)
	qt.Assert(t, err, qt.IsNil)
	corrupted := &Artifact{Hash: sum[:]}
	qt.Assert(t, corrupted.Load(), qt.IsNotNil)
}

func TestArtifactHashOverride(t *testing.T) {
	origBase := BaseDir
	origCheck := CheckHashes
	BaseDir = t.TempDir()
	CheckHashes = false
	defer func() { BaseDir, CheckHashes = origBase, origCheck }()

	// with hash checking disabled any cached content loads
	content := []byte("dev artifact " + strconv.Itoa(42))
	sum := sha256.Sum256([]byte("something else"))
	err := os.WriteFile(filepath.Join(BaseDir, hex.EncodeToString(sum[:])), content, 0o644)
	qt.Assert(t, err, qt.IsNil)

	a := &Artifact{Hash: sum[:]}
	qt.Assert(t, a.Load(), qt.IsNil)
	qt.Assert(t, string(a.Content), qt.Equals, string(content))
}
