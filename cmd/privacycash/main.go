// Command privacycash is a minimal wallet CLI over the shielded pool client.
// It covers the relayer-signed operations (balance, note listing, fee
// estimation and withdrawals); deposits need a transaction signer with access
// to the wallet's chain balance, which a command line key file cannot provide
// safely, so they are left to SDK integrations.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/privacycash/privacycash-go/client"
	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/log"
	"github.com/privacycash/privacycash-go/types"
)

const usage = `usage: privacycash [flags] <command> [args]

commands:
  balance                         print the shielded balance in base units
  notes                           list unspent notes
  fee <amount>                    estimate the withdrawal fee for an amount
  withdraw <amount> <recipient>   withdraw base units to a base58 address
  withdraw-all <recipient>        withdraw the whole balance
  clear-cache                     drop the local scan cache
`

func main() {
	var (
		keyFile  = flag.String("key", "", "path to a hex-encoded ed25519 seed file")
		relayer  = flag.String("relayer", "", "relayer API base URL (default: production)")
		dataDir  = flag.String("datadir", defaultDataDir(), "scan cache directory")
		token    = flag.String("token", "sol", "pool asset name")
		logLevel = flag.String("loglevel", "info", "log level (debug, info, warn, error)")
		referrer = flag.String("referrer", "", "referral wallet address")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	log.Init(*logLevel, "stderr", nil)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Args(), *keyFile, *relayer, *dataDir, *token, *referrer); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(args []string, keyFile, relayerURL, dataDir, tokenName, referrer string) error {
	tok, err := config.TokenByName(tokenName)
	if err != nil {
		return err
	}
	wallet, err := loadWallet(keyFile)
	if err != nil {
		return err
	}
	database, err := metadb.New(db.TypePebble, dataDir)
	if err != nil {
		return fmt.Errorf("open scan cache at %s: %w", dataDir, err)
	}
	c, err := client.New(client.Options{
		RelayerURL: relayerURL,
		DB:         database,
		Wallet:     wallet,
		Owner:      wallet.Address(),
		Referrer:   referrer,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	switch cmd, rest := args[0], args[1:]; cmd {
	case "balance":
		balance, err := c.Balance(ctx, tok)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (base units)\n", balance, tok.Name)
		return nil
	case "notes":
		notes, err := c.Notes(ctx, tok)
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Println(n)
		}
		return nil
	case "fee":
		amount, err := amountArg(rest, 0)
		if err != nil {
			return err
		}
		fee, err := c.EstimateWithdrawFee(ctx, amount, tok)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s (base units)\n", fee, tok.Name)
		return nil
	case "withdraw":
		amount, err := amountArg(rest, 0)
		if err != nil {
			return err
		}
		recipient, err := addressArg(rest, 1)
		if err != nil {
			return err
		}
		result, err := c.Withdraw(ctx, amount, recipient, tok)
		if err != nil {
			return err
		}
		printWithdrawal(result)
		return nil
	case "withdraw-all":
		recipient, err := addressArg(rest, 0)
		if err != nil {
			return err
		}
		result, err := c.WithdrawAll(ctx, recipient, tok)
		if err != nil {
			return err
		}
		printWithdrawal(result)
		return nil
	case "clear-cache":
		return c.ClearCache(tok)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printWithdrawal(r *client.WithdrawResult) {
	fmt.Printf("signature: %s\n", r.Signature)
	fmt.Printf("withdrawn: %d (fee %d)\n", r.Amount, r.Fee)
	if r.Partial {
		fmt.Println("note: withdrawal was capped to the available balance")
	}
}

func amountArg(args []string, i int) (uint64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing amount argument")
	}
	amount, err := strconv.ParseUint(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", args[i], err)
	}
	return amount, nil
}

func addressArg(args []string, i int) (types.Address, error) {
	if i >= len(args) {
		return types.Address{}, fmt.Errorf("missing recipient argument")
	}
	return types.AddressFromString(args[i])
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".privacycash"
	}
	return filepath.Join(home, ".privacycash")
}

// keyWallet signs with an ed25519 key loaded from disk.
type keyWallet struct {
	priv ed25519.PrivateKey
}

func loadWallet(path string) (*keyWallet, error) {
	if path == "" {
		return nil, fmt.Errorf("a wallet key file is required (-key)")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode key file: %w", err)
	}
	switch len(seed) {
	case ed25519.SeedSize:
		return &keyWallet{priv: ed25519.NewKeyFromSeed(seed)}, nil
	case ed25519.PrivateKeySize:
		return &keyWallet{priv: ed25519.PrivateKey(seed)}, nil
	}
	return nil, fmt.Errorf("key file holds %d bytes, want a %d-byte seed", len(seed), ed25519.SeedSize)
}

func (w *keyWallet) SignMessage(msg []byte) ([]byte, error) {
	return ed25519.Sign(w.priv, msg), nil
}

func (w *keyWallet) Address() types.Address {
	var a types.Address
	copy(a[:], w.priv.Public().(ed25519.PublicKey))
	return a
}
