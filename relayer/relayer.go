// Package relayer implements the HTTP client for the relayer/indexer service:
// fee schedule, commitment tree state, Merkle proofs, ciphertext scanning and
// transaction submission. The relayer never learns note contents; it only
// sees ciphertexts and proof bytes.
package relayer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/log"
	"github.com/privacycash/privacycash-go/merkle"
	"github.com/privacycash/privacycash-go/txbuilder"
	"github.com/privacycash/privacycash-go/types"
)

const (
	// DefaultRetries is how many times a failed connection is retried.
	DefaultRetries = 3
	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second

	errCodeNot200 = "relayer API error"
)

// HTTPclient is the relayer API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New returns a client for the relayer at host. Pass config.RelayerURL() for
// the production deployment.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer url %q: %w", host, err)
	}
	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("relayer client created", "host", hostURL.String())
	return c, nil
}

// SetRetries configures the number of retries for failed connections.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the per-request timeout.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a raw request against the relayer. params are query
// parameter pairs: [key1, val1, key2, val2, ...]. It returns the response
// body, the status code and an error; connection failures are retried,
// non-2xx statuses are not.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var body []byte
	var err error
	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	u, err := url.Parse(c.host.String())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse host URL: %w", err)
	}
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}

	log.Debugw("relayer request", "method", method, "url", u.String())

	var resp *http.Response
	for i := 1; i <= c.retries; i++ {
		var reqBody io.ReadCloser
		if body != nil {
			reqBody = io.NopCloser(bytes.NewReader(body))
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers

		resp, err = c.c.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		log.Warnw("relayer request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
		if i == c.retries {
			return nil, 0, fmt.Errorf("relayer request failed after %d attempts: %w", c.retries, err)
		}
		time.Sleep(500 * time.Millisecond)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *HTTPclient) get(ctx context.Context, out any, params []string, urlPath ...string) error {
	data, status, err := c.Request(ctx, http.MethodGet, nil, params, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode relayer response: %w", err)
	}
	return nil
}

// tokenParams builds the optional ?token= query for non-native assets.
func tokenParams(token config.TokenInfo) []string {
	if token.IsNative() {
		return nil
	}
	return []string{"token", token.Name}
}

// FeeConfig fetches the relayer's fee schedule.
func (c *HTTPclient) FeeConfig(ctx context.Context) (*config.FeeConfig, error) {
	cfg := &config.FeeConfig{}
	if err := c.get(ctx, cfg, nil, "config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

type treeStateResponse struct {
	Root      string `json:"root"`
	NextIndex int64  `json:"nextIndex"`
}

// TreeState fetches the current commitment tree root and next free leaf
// index for a token's pool.
func (c *HTTPclient) TreeState(ctx context.Context, token config.TokenInfo) (*txbuilder.TreeState, error) {
	var res treeStateResponse
	if err := c.get(ctx, &res, tokenParams(token), "tree", "state"); err != nil {
		return nil, err
	}
	root, ok := new(big.Int).SetString(res.Root, 10)
	if !ok {
		return nil, fmt.Errorf("relayer returned a non-decimal tree root %q", res.Root)
	}
	if res.NextIndex < 0 {
		return nil, fmt.Errorf("relayer returned a negative next index %d", res.NextIndex)
	}
	return &txbuilder.TreeState{Root: root, NextIndex: res.NextIndex}, nil
}

type merkleProofResponse struct {
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

// MerkleProof fetches the inclusion path of a commitment.
func (c *HTTPclient) MerkleProof(ctx context.Context, commitment *big.Int, token config.TokenInfo) (*merkle.Path, error) {
	var res merkleProofResponse
	if err := c.get(ctx, &res, tokenParams(token), "tree", "proof", commitment.String()); err != nil {
		return nil, err
	}
	elements := make([]*big.Int, len(res.PathElements))
	for i, s := range res.PathElements {
		e, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("non-decimal path element %q at level %d", s, i)
		}
		elements[i] = e
	}
	return merkle.NewPath(elements, res.PathIndices)
}

// PathFetcher returns a txbuilder.PathFetcher bound to one token's pool.
func (c *HTTPclient) PathFetcher(token config.TokenInfo) txbuilder.PathFetcher {
	return &pathFetcher{c: c, token: token}
}

type pathFetcher struct {
	c     *HTTPclient
	token config.TokenInfo
}

func (p *pathFetcher) MerklePath(ctx context.Context, commitment *big.Int) (*merkle.Path, error) {
	return p.c.MerkleProof(ctx, commitment, p.token)
}

type utxoRangeResponse struct {
	EncryptedOutputs []types.HexBytes `json:"encryptedOutputs"`
	Total            int64            `json:"total"`
}

// UtxoRange fetches observed note ciphertexts in [start, end) and the total
// count of ciphertexts the indexer holds. Callers page with
// config.FetchUtxosGroupSize.
func (c *HTTPclient) UtxoRange(ctx context.Context, start, end int64, token config.TokenInfo) ([]types.HexBytes, int64, error) {
	params := append(tokenParams(token),
		"start", fmt.Sprintf("%d", start),
		"end", fmt.Sprintf("%d", end))
	var res utxoRangeResponse
	if err := c.get(ctx, &res, params, "utxos", "range"); err != nil {
		return nil, 0, err
	}
	return res.EncryptedOutputs, res.Total, nil
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// UtxoExists reports whether the indexer has observed a ciphertext on-chain.
// Because encryption is deterministic, this doubles as the transaction
// confirmation check.
func (c *HTTPclient) UtxoExists(ctx context.Context, ciphertext []byte, token config.TokenInfo) (bool, error) {
	var res existsResponse
	if err := c.get(ctx, &res, tokenParams(token), "utxos", "check", hex.EncodeToString(ciphertext)); err != nil {
		return false, err
	}
	return res.Exists, nil
}

// NullifierSpent reports whether a nullifier has been published, i.e. the
// note it belongs to is already spent.
func (c *HTTPclient) NullifierSpent(ctx context.Context, nullifier [32]byte, token config.TokenInfo) (bool, error) {
	var res existsResponse
	if err := c.get(ctx, &res, tokenParams(token), "nullifiers", "check", hex.EncodeToString(nullifier[:])); err != nil {
		return false, err
	}
	return res.Exists, nil
}

type signatureResponse struct {
	Signature string `json:"signature"`
}

// DepositRequest is the body of a deposit submission: a fully signed
// transaction the relayer forwards to the chain.
type DepositRequest struct {
	SignedTransaction     string `json:"signedTransaction"`
	SenderAddress         string `json:"senderAddress"`
	ReferralWalletAddress string `json:"referralWalletAddress,omitempty"`
}

// SubmitDeposit relays a signed deposit transaction and returns the chain
// signature.
func (c *HTTPclient) SubmitDeposit(ctx context.Context, req *DepositRequest) (string, error) {
	data, status, err := c.Request(ctx, http.MethodPost, req, nil, "deposit")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("deposit relay failed: %d (%s)", status, data)
	}
	var res signatureResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("failed to decode deposit response: %w", err)
	}
	return res.Signature, nil
}

// WithdrawRequest is the body of a withdrawal submission. The relayer builds
// and pays for the transaction itself, which is what detaches the withdrawal
// from the owner's wallet on-chain.
type WithdrawRequest struct {
	SerializedProof       string `json:"serializedProof"`
	Recipient             string `json:"recipient"`
	FeeRecipientAccount   string `json:"feeRecipientAccount"`
	ExtAmount             int64  `json:"extAmount"`
	EncryptedOutput1      string `json:"encryptedOutput1"`
	EncryptedOutput2      string `json:"encryptedOutput2"`
	Fee                   uint64 `json:"fee"`
	LookupTableAddress    string `json:"lookupTableAddress"`
	SenderAddress         string `json:"senderAddress"`
	ReferralWalletAddress string `json:"referralWalletAddress,omitempty"`
	Token                 string `json:"token,omitempty"`
}

// NewWithdrawRequest assembles a withdrawal submission from serialized
// instruction data and the ext data it binds.
func NewWithdrawRequest(instructionData []byte, ext *txbuilder.ExtData, sender types.Address, token config.TokenInfo) *WithdrawRequest {
	b64 := base64.StdEncoding
	req := &WithdrawRequest{
		SerializedProof:     b64.EncodeToString(instructionData),
		Recipient:           ext.Recipient.String(),
		FeeRecipientAccount: ext.FeeRecipient.String(),
		ExtAmount:           ext.ExtAmount,
		EncryptedOutput1:    b64.EncodeToString(ext.EncryptedOutput1),
		EncryptedOutput2:    b64.EncodeToString(ext.EncryptedOutput2),
		Fee:                 ext.Fee,
		LookupTableAddress:  config.AddressLookupTable.String(),
		SenderAddress:       sender.String(),
	}
	if !token.IsNative() {
		req.Token = token.Name
	}
	return req
}

// SubmitWithdraw relays a withdrawal and returns the chain signature.
func (c *HTTPclient) SubmitWithdraw(ctx context.Context, req *WithdrawRequest) (string, error) {
	data, status, err := c.Request(ctx, http.MethodPost, req, nil, "withdraw")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("withdraw relay failed: %d (%s)", status, data)
	}
	var res signatureResponse
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("failed to decode withdraw response: %w", err)
	}
	return res.Signature, nil
}

// WaitForCiphertext polls the indexer until a transition's output ciphertext
// is observed on-chain or the attempts run out.
func (c *HTTPclient) WaitForCiphertext(ctx context.Context, ciphertext []byte, token config.TokenInfo, attempts int, interval time.Duration) error {
	for i := 1; i <= attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		exists, err := c.UtxoExists(ctx, ciphertext, token)
		if err != nil {
			log.Warnw("confirmation check failed", "error", err.Error(), "attempt", i)
			continue
		}
		if exists {
			return nil
		}
		log.Infow("waiting for confirmation", "attempt", i, "attempts", attempts)
	}
	return fmt.Errorf("transaction not confirmed after %d attempts", attempts)
}
