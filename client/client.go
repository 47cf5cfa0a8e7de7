// Package client is the high-level wallet client of the shielded pool: it
// derives the wallet's note secrets, scans the indexer for owned notes, and
// orchestrates deposits and withdrawals end to end (note selection, proving,
// encoding, relaying and confirmation). One Client serves one wallet; calls
// that spend notes must not run concurrently for the same wallet, or they may
// select the same notes twice.
package client

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.vocdoni.io/dvote/db"

	"github.com/privacycash/privacycash-go/codec"
	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/encryption"
	"github.com/privacycash/privacycash-go/log"
	"github.com/privacycash/privacycash-go/prover"
	"github.com/privacycash/privacycash-go/relayer"
	"github.com/privacycash/privacycash-go/storage"
	"github.com/privacycash/privacycash-go/txbuilder"
	"github.com/privacycash/privacycash-go/types"
	"github.com/privacycash/privacycash-go/utxo"
)

const (
	confirmAttempts = 10
	confirmInterval = 2 * time.Second
)

// TransactionSigner turns instruction data into a signed, serialized chain
// transaction (base64). Deposits need it because the depositor's wallet pays
// the deposited value; withdrawals do not, the relayer signs those.
type TransactionSigner interface {
	SignTransaction(ctx context.Context, instructionData []byte) (string, error)
}

// Options configures a Client.
type Options struct {
	// RelayerURL overrides the production relayer endpoint.
	RelayerURL string
	// DB is the scan cache database.
	DB db.Database
	// Wallet produces the deterministic signature the note secrets are
	// derived from.
	Wallet encryption.WalletSigner
	// Owner is the wallet's chain address.
	Owner types.Address
	// Prover overrides the default artifact-backed local prover.
	Prover prover.Prover
	// Referrer optionally credits a referral wallet on submissions.
	Referrer string
	// MaxDeposit rejects deposits above this many base units when nonzero.
	// The pool program enforces its own on-chain cap; callers that read it
	// from the ledger can mirror it here to fail before proving.
	MaxDeposit uint64
}

// Client is a wallet-bound shielded pool client.
type Client struct {
	relayer    *relayer.HTTPclient
	enc        *encryption.Service
	store      *storage.Storage
	owner      types.Address
	referrer   string
	signer     TransactionSigner
	maxDeposit uint64

	proverOnce sync.Once
	prover     prover.Prover
	proverErr  error

	confirmAttempts int
	confirmInterval time.Duration
}

// New derives the wallet's note secrets and returns a ready client.
func New(opts Options) (*Client, error) {
	if opts.Wallet == nil {
		return nil, fmt.Errorf("wallet signer is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("scan cache database is required")
	}
	host := opts.RelayerURL
	if host == "" {
		host = config.RelayerURL()
	}
	rc, err := relayer.New(host)
	if err != nil {
		return nil, err
	}
	enc := encryption.NewService()
	if err := enc.DeriveKeys(opts.Wallet); err != nil {
		return nil, fmt.Errorf("derive note secrets: %w", err)
	}
	c := &Client{
		relayer:         rc,
		enc:             enc,
		store:           storage.New(opts.DB),
		owner:           opts.Owner,
		referrer:        opts.Referrer,
		maxDeposit:      opts.MaxDeposit,
		prover:          opts.Prover,
		confirmAttempts: confirmAttempts,
		confirmInterval: confirmInterval,
	}
	if ts, ok := opts.Wallet.(TransactionSigner); ok {
		c.signer = ts
	}
	return c, nil
}

// SetTransactionSigner sets the signer used for deposits.
func (c *Client) SetTransactionSigner(s TransactionSigner) {
	c.signer = s
}

// Close releases the scan cache.
func (c *Client) Close() {
	c.store.Close()
}

func (c *Client) getProver(ctx context.Context) (prover.Prover, error) {
	c.proverOnce.Do(func() {
		if c.prover != nil {
			return
		}
		c.prover, c.proverErr = prover.DefaultArtifacts().Prover(ctx)
	})
	return c.prover, c.proverErr
}

// Notes scans for the wallet's unspent notes of a token. It advances the
// cached fetch offset, trial-decrypts newly observed ciphertexts with both
// key generations, and filters out notes whose nullifiers are already
// published.
func (c *Client) Notes(ctx context.Context, token config.TokenInfo) ([]*utxo.Utxo, error) {
	if err := c.syncCiphertexts(ctx, token); err != nil {
		return nil, err
	}
	owned, err := c.store.EncryptedOutputs(c.owner, token)
	if err != nil {
		return nil, err
	}
	var notes []*utxo.Utxo
	for _, ct := range owned {
		note, err := c.decryptAny(ct)
		if err != nil {
			// cache corruption; the entry was owned when it was stored
			log.Warnw("cached ciphertext no longer decrypts", "error", err.Error())
			continue
		}
		if note.Amount.Sign() == 0 || note.Mint != token.PoolMint() {
			continue
		}
		spent, err := c.noteSpent(ctx, note, token)
		if err != nil {
			return nil, err
		}
		if !spent {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// syncCiphertexts pages through the indexer's ciphertext log from the cached
// offset and stores the entries that decrypt under this wallet's keys.
func (c *Client) syncCiphertexts(ctx context.Context, token config.TokenInfo) error {
	offset, err := c.store.FetchOffset(c.owner, token)
	if err != nil {
		return err
	}
	for {
		batch, total, err := c.relayer.UtxoRange(ctx, offset, offset+config.FetchUtxosGroupSize, token)
		if err != nil {
			return fmt.Errorf("fetch ciphertext range: %w", err)
		}
		var owned []types.HexBytes
		for _, ct := range batch {
			if _, err := c.decryptAny(ct); err == nil {
				owned = append(owned, ct)
			}
		}
		if err := c.store.AppendEncryptedOutputs(c.owner, token, owned); err != nil {
			return err
		}
		offset += int64(len(batch))
		if err := c.store.SetFetchOffset(c.owner, token, offset); err != nil {
			return err
		}
		log.Debugw("scanned ciphertexts", "fetched", len(batch), "owned", len(owned),
			"offset", offset, "total", total)
		if offset >= total || len(batch) == 0 {
			return nil
		}
	}
}

// decryptAny tries the current key generation first, then the legacy one.
// Legacy notes predate multi-asset support, so their mint defaults to the
// native pool's placeholder.
func (c *Client) decryptAny(ct types.HexBytes) (*utxo.Utxo, error) {
	note, err := c.enc.DecryptNote(ct, utxo.V2, config.NativeMint)
	if err == nil {
		return note, nil
	}
	return c.enc.DecryptNote(ct, utxo.V1, config.NativeMint)
}

func (c *Client) noteSpent(ctx context.Context, note *utxo.Utxo, token config.TokenInfo) (bool, error) {
	nullifier, err := note.Nullifier()
	if err != nil {
		return false, err
	}
	var nb [32]byte
	nullifier.FillBytes(nb[:])
	return c.relayer.NullifierSpent(ctx, nb, token)
}

// Balance sums the wallet's unspent notes of a token, in base units.
func (c *Client) Balance(ctx context.Context, token config.TokenInfo) (*big.Int, error) {
	notes, err := c.Notes(ctx, token)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, n := range notes {
		total.Add(total, n.Amount)
	}
	return total, nil
}

// EstimateWithdrawFee returns the protocol fee for withdrawing amount base
// units of a token under the relayer's current schedule.
func (c *Client) EstimateWithdrawFee(ctx context.Context, amount uint64, token config.TokenInfo) (uint64, error) {
	cfg, err := c.relayer.FeeConfig(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.WithdrawFee(amount, token)
}

// DepositResult reports a relayed deposit.
type DepositResult struct {
	Signature string
	Amount    uint64
	Fee       uint64
}

// Deposit moves amount base units of token from the wallet's public balance
// into the pool, consolidating existing notes along the way. It requires a
// TransactionSigner, blocks through proving and relaying, and returns after
// the output ciphertext is observed on-chain.
func (c *Client) Deposit(ctx context.Context, amount uint64, token config.TokenInfo) (*DepositResult, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("deposits require a transaction signer")
	}
	if c.maxDeposit > 0 && amount > c.maxDeposit {
		return nil, fmt.Errorf("deposit of %d exceeds the pool cap of %d base units", amount, c.maxDeposit)
	}
	cfg, err := c.relayer.FeeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch fee config: %w", err)
	}
	fee := cfg.DepositFee(amount)

	notes, err := c.Notes(ctx, token)
	if err != nil {
		return nil, err
	}
	tree, err := c.relayer.TreeState(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch tree state: %w", err)
	}
	kp, err := c.enc.Keypair(utxo.V2)
	if err != nil {
		return nil, err
	}

	log.Infow("starting deposit", "amount", amount, "fee", fee, "token", token.Name)
	builder := txbuilder.New(c.enc, c.relayer.PathFetcher(token))
	result, err := builder.BuildDeposit(ctx, &txbuilder.DepositRequest{
		Amount:       amount,
		Fee:          fee,
		Notes:        notes,
		Tree:         *tree,
		Keypair:      kp,
		Depositor:    c.owner,
		FeeRecipient: config.FeeRecipient,
		Mint:         token.PoolMint(),
	})
	if err != nil {
		return nil, err
	}

	instructionData, err := c.proveAndEncode(ctx, result)
	if err != nil {
		return nil, err
	}
	signedTx, err := c.signer.SignTransaction(ctx, instructionData)
	if err != nil {
		return nil, fmt.Errorf("sign deposit transaction: %w", err)
	}
	sig, err := c.relayer.SubmitDeposit(ctx, &relayer.DepositRequest{
		SignedTransaction:     signedTx,
		SenderAddress:         c.owner.String(),
		ReferralWalletAddress: c.referrer,
	})
	if err != nil {
		return nil, err
	}
	log.Infow("deposit relayed", "signature", sig)
	if err := c.relayer.WaitForCiphertext(ctx, result.ExtData.EncryptedOutput1, token, c.confirmAttempts, c.confirmInterval); err != nil {
		return nil, err
	}
	return &DepositResult{Signature: sig, Amount: amount, Fee: fee}, nil
}

// WithdrawResult reports a relayed withdrawal. Amount is what actually left
// the pool, which for a partial withdrawal is less than requested.
type WithdrawResult struct {
	Signature string
	Recipient types.Address
	Amount    uint64
	Fee       uint64
	Partial   bool
}

// Withdraw moves amount base units of token from the pool to recipient. The
// fee is charged from the wallet's shielded balance on top of the amount;
// when the balance cannot cover amount+fee the withdrawal is capped and
// flagged Partial. Blocks through proving, relaying and confirmation.
func (c *Client) Withdraw(ctx context.Context, amount uint64, recipient types.Address, token config.TokenInfo) (*WithdrawResult, error) {
	cfg, err := c.relayer.FeeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch fee config: %w", err)
	}
	if !token.IsNative() && !cfg.Supported(token) {
		return nil, fmt.Errorf("relayer does not serve withdrawals for %q", token.Name)
	}
	if min := cfg.MinWithdrawal(token); amount < min {
		return nil, fmt.Errorf("withdrawal of %d below the minimum of %d base units", amount, min)
	}
	fee, err := cfg.WithdrawFee(amount, token)
	if err != nil {
		return nil, err
	}

	notes, err := c.Notes(ctx, token)
	if err != nil {
		return nil, err
	}
	tree, err := c.relayer.TreeState(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch tree state: %w", err)
	}
	kp, err := c.enc.Keypair(utxo.V2)
	if err != nil {
		return nil, err
	}

	log.Infow("starting withdrawal", "amount", amount, "fee", fee, "token", token.Name)
	builder := txbuilder.New(c.enc, c.relayer.PathFetcher(token))
	result, err := builder.BuildWithdraw(ctx, &txbuilder.WithdrawRequest{
		Amount:       amount,
		Fee:          fee,
		Notes:        notes,
		Tree:         *tree,
		Keypair:      kp,
		Recipient:    recipient,
		FeeRecipient: config.FeeRecipient,
		Mint:         token.PoolMint(),
	})
	if err != nil {
		return nil, err
	}

	instructionData, err := c.proveAndEncode(ctx, result)
	if err != nil {
		return nil, err
	}
	req := relayer.NewWithdrawRequest(instructionData, result.ExtData, c.owner, token)
	req.ReferralWalletAddress = c.referrer
	sig, err := c.relayer.SubmitWithdraw(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Infow("withdrawal relayed", "signature", sig, "partial", result.Partial)
	if err := c.relayer.WaitForCiphertext(ctx, result.ExtData.EncryptedOutput1, token, c.confirmAttempts, c.confirmInterval); err != nil {
		return nil, err
	}
	return &WithdrawResult{
		Signature: sig,
		Recipient: recipient,
		Amount:    result.Amount,
		Fee:       fee,
		Partial:   result.Partial,
	}, nil
}

// WithdrawAll withdraws the wallet's whole balance of a token to recipient.
// The fee is absorbed by the partial-withdrawal policy.
func (c *Client) WithdrawAll(ctx context.Context, recipient types.Address, token config.TokenInfo) (*WithdrawResult, error) {
	balance, err := c.Balance(ctx, token)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, txbuilder.ErrNoNotes
	}
	if !balance.IsUint64() {
		return nil, fmt.Errorf("balance %s overflows uint64", balance)
	}
	return c.Withdraw(ctx, balance.Uint64(), recipient, token)
}

// proveAndEncode runs the prover over an assembled transition and serializes
// the proof, signals and ext data into verifier-ready instruction bytes.
func (c *Client) proveAndEncode(ctx context.Context, result *txbuilder.Result) ([]byte, error) {
	p, err := c.getProver(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize prover: %w", err)
	}
	started := time.Now()
	proof, err := p.Prove(ctx, result.CircuitInput)
	if err != nil {
		return nil, fmt.Errorf("generate proof: %w", err)
	}
	log.Debugw("proof generated", "took", time.Since(started).String())

	proofBytes, err := codec.ParseProofToBytes(proof.Proof)
	if err != nil {
		return nil, err
	}
	signalBytes, err := codec.ParsePublicSignalsToBytes(proof.PublicSignals)
	if err != nil {
		return nil, err
	}
	return codec.SerializeInstruction(proofBytes, signalBytes, result.ExtData)
}

// ClearCache drops the wallet's local scan state for a token, forcing a full
// rescan on the next call.
func (c *Client) ClearCache(token config.TokenInfo) error {
	return c.store.Clear(c.owner, token)
}
