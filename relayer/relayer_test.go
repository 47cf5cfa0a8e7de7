package relayer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/merkle"
	"github.com/privacycash/privacycash-go/types"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPclient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	qt.Assert(t, err, qt.IsNil)
	c.SetRetries(1)
	return c
}

func TestFeeConfig(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Path, qt.Equals, "/config")
		fmt.Fprint(w, `{
			"withdraw_fee_rate": 0.0025,
			"withdraw_rent_fee": 0.001,
			"deposit_fee_rate": 0,
			"minimum_withdrawal": {"sol": 0.01}
		}`)
	}))

	cfg, err := c.FeeConfig(context.Background())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, cfg.WithdrawFeeRate, qt.Equals, 0.0025)
	qt.Assert(t, cfg.Supported(config.NativeToken()), qt.IsTrue)
}

func TestTreeState(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Path, qt.Equals, "/tree/state")
		qt.Check(t, r.URL.Query().Get("token"), qt.Equals, "usdc")
		fmt.Fprint(w, `{"root": "12345678901234567890", "nextIndex": 42}`)
	}))

	usdc, err := config.TokenByName("usdc")
	qt.Assert(t, err, qt.IsNil)
	state, err := c.TreeState(context.Background(), usdc)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, state.Root.String(), qt.Equals, "12345678901234567890")
	qt.Assert(t, state.NextIndex, qt.Equals, int64(42))
}

func TestTreeStateRejectsBadRoot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"root": "0xabc", "nextIndex": 1}`)
	}))
	_, err := c.TreeState(context.Background(), config.NativeToken())
	qt.Assert(t, err, qt.IsNotNil)
}

func TestMerkleProof(t *testing.T) {
	elements := make([]string, merkle.Depth)
	indices := make([]int, merkle.Depth)
	for i := range elements {
		elements[i] = fmt.Sprintf("%d", i+100)
		indices[i] = i % 2
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Path, qt.Equals, "/tree/proof/555")
		err := json.NewEncoder(w).Encode(map[string]any{
			"pathElements": elements,
			"pathIndices":  indices,
		})
		qt.Check(t, err, qt.IsNil)
	}))

	path, err := c.MerkleProof(context.Background(), big.NewInt(555), config.NativeToken())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, len(path.Elements), qt.Equals, merkle.Depth)
	qt.Assert(t, path.Elements[0].String(), qt.Equals, "100")
	qt.Assert(t, path.Indices[1], qt.Equals, 1)

	// the same client also serves as a txbuilder path fetcher
	fetcher := c.PathFetcher(config.NativeToken())
	path2, err := fetcher.MerklePath(context.Background(), big.NewInt(555))
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, path2.Elements[5].String(), qt.Equals, "105")
}

func TestMerkleProofRejectsShortPath(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"pathElements": ["1", "2"], "pathIndices": [0, 1]}`)
	}))
	_, err := c.MerkleProof(context.Background(), big.NewInt(1), config.NativeToken())
	qt.Assert(t, err, qt.IsNotNil)
}

func TestUtxoRange(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Path, qt.Equals, "/utxos/range")
		qt.Check(t, r.URL.Query().Get("start"), qt.Equals, "0")
		qt.Check(t, r.URL.Query().Get("end"), qt.Equals, "20000")
		fmt.Fprint(w, `{"encryptedOutputs": ["aabb", "ccdd"], "total": 2}`)
	}))

	outputs, total, err := c.UtxoRange(context.Background(), 0, config.FetchUtxosGroupSize, config.NativeToken())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, total, qt.Equals, int64(2))
	qt.Assert(t, len(outputs), qt.Equals, 2)
	qt.Assert(t, []byte(outputs[0]), qt.DeepEquals, []byte{0xaa, 0xbb})
}

func TestExistenceChecks(t *testing.T) {
	ciphertext := []byte{1, 2, 3}
	var nullifier [32]byte
	nullifier[31] = 9

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/utxos/check/" + hex.EncodeToString(ciphertext):
			fmt.Fprint(w, `{"exists": true}`)
		case "/nullifiers/check/" + hex.EncodeToString(nullifier[:]):
			fmt.Fprint(w, `{"exists": false}`)
		default:
			http.NotFound(w, r)
		}
	}))

	exists, err := c.UtxoExists(context.Background(), ciphertext, config.NativeToken())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, exists, qt.IsTrue)

	spent, err := c.NullifierSpent(context.Background(), nullifier, config.NativeToken())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, spent, qt.IsFalse)
}

func TestSubmitWithdraw(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Path, qt.Equals, "/withdraw")
		qt.Check(t, r.Method, qt.Equals, http.MethodPost)
		var req WithdrawRequest
		qt.Check(t, json.NewDecoder(r.Body).Decode(&req), qt.IsNil)
		qt.Check(t, req.ExtAmount, qt.Equals, int64(-500))
		fmt.Fprint(w, `{"signature": "5KtP9qY"}`)
	}))

	sig, err := c.SubmitWithdraw(context.Background(), &WithdrawRequest{ExtAmount: -500})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, sig, qt.Equals, "5KtP9qY")
}

func TestSubmitWithdrawError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nullifier already spent", http.StatusConflict)
	}))
	_, err := c.SubmitWithdraw(context.Background(), &WithdrawRequest{})
	qt.Assert(t, err, qt.IsNotNil)
	qt.Assert(t, err, qt.ErrorMatches, ".*nullifier already spent.*")
}

func TestSubmitDeposit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		qt.Check(t, r.URL.Path, qt.Equals, "/deposit")
		var req DepositRequest
		qt.Check(t, json.NewDecoder(r.Body).Decode(&req), qt.IsNil)
		qt.Check(t, req.SignedTransaction, qt.Equals, "dGVzdA==")
		fmt.Fprint(w, `{"signature": "3xYz"}`)
	}))

	sig, err := c.SubmitDeposit(context.Background(), &DepositRequest{
		SignedTransaction: "dGVzdA==",
		SenderAddress:     types.Address{}.String(),
	})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, sig, qt.Equals, "3xYz")
}

func TestWaitForCiphertext(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		fmt.Fprintf(w, `{"exists": %v}`, calls >= 3)
	}))

	err := c.WaitForCiphertext(context.Background(), []byte{1}, config.NativeToken(), 5, time.Millisecond)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, calls, qt.Equals, 3)

	// exhausting the attempts is an error
	calls = -100
	err = c.WaitForCiphertext(context.Background(), []byte{1}, config.NativeToken(), 2, time.Millisecond)
	qt.Assert(t, err, qt.IsNotNil)
}
