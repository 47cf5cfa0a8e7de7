// Package config holds the protocol constants of the shielded pool program
// and the fee schedule served by the relayer. Constants that operators may
// need to point at a different deployment (program, relayer, lookup table) are
// overridable through environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/privacycash/privacycash-go/types"
)

// DefaultRelayerURL is the production relayer endpoint.
const DefaultRelayerURL = "https://api3.privacycash.org"

var (
	// ProgramID is the on-chain shielded pool program.
	ProgramID = addressEnv("PROGRAM_ID", "9fhQBbumKEFuXtMBDw8AaQyAjCorLGJQiS3skWZdQyQD")
	// FeeRecipient receives protocol fees.
	FeeRecipient = types.MustAddressFromString("AWexibGxNFKTa1b5R5MN4PJr9HWnWRwf8EW9g8cLx3dM")
	// AddressLookupTable is the lookup table the relayer uses to compress
	// transaction account lists.
	AddressLookupTable = addressEnv("ALT_ADDRESS", "HEN49U2ySJ85Vc78qprSW9y6mFDhs1NczRxyppNHjofe")
	// NativeMint is the placeholder address the native pool binds into note
	// commitments and ext data. The wrapped-SOL mint in the token table only
	// names the asset towards the relayer and indexer; the on-chain program
	// hashes this placeholder for native transactions.
	NativeMint = types.MustAddressFromString("11111111111111111111111111111112")
)

// RelayerURL returns the relayer API base URL, honoring RELAYER_API_URL.
func RelayerURL() string {
	if u := os.Getenv("RELAYER_API_URL"); u != "" {
		return u
	}
	return DefaultRelayerURL
}

func addressEnv(env, fallback string) types.Address {
	if v := os.Getenv(env); v != "" {
		if addr, err := types.AddressFromString(v); err == nil {
			return addr
		}
	}
	return types.MustAddressFromString(fallback)
}

// Instruction discriminators of the pool program's transact entrypoints.
var (
	TransactDiscriminator    = [8]byte{217, 149, 130, 143, 221, 52, 252, 119}
	TransactSplDiscriminator = [8]byte{154, 66, 244, 204, 78, 225, 163, 151}
)

const (
	// FetchUtxosGroupSize is the page size for ranged ciphertext fetches
	// from the indexer.
	FetchUtxosGroupSize = 20_000

	// LamportsPerSol is the number of base units in one SOL.
	LamportsPerSol = 1_000_000_000
)

// TokenInfo describes a supported pool asset. Prefix namespaces the asset's
// entries in the indexer and local cache ("" for the native token).
type TokenInfo struct {
	Name          string
	Mint          types.Address
	Prefix        string
	UnitsPerToken uint64
}

// IsNative reports whether the token is the chain's native asset.
func (t TokenInfo) IsNative() bool { return t.Prefix == "" }

// PoolMint returns the mint address bound into commitments, circuit inputs
// and ext data for this asset's pool: the placeholder for the native pool,
// the token mint otherwise.
func (t TokenInfo) PoolMint() types.Address {
	if t.IsNative() {
		return NativeMint
	}
	return t.Mint
}

// SupportedTokens returns the static asset table of the pool. The relayer's
// fee schedule may list fewer tokens; entries here only define mints and
// decimals.
func SupportedTokens() []TokenInfo {
	return []TokenInfo{
		{Name: "sol", Mint: types.MustAddressFromString("So11111111111111111111111111111111111111112"), Prefix: "", UnitsPerToken: LamportsPerSol},
		{Name: "usdc", Mint: types.MustAddressFromString("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"), Prefix: "usdc_", UnitsPerToken: 1_000_000},
		{Name: "usdt", Mint: types.MustAddressFromString("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"), Prefix: "usdt_", UnitsPerToken: 1_000_000},
		{Name: "zec", Mint: types.MustAddressFromString("A7bdiYdS5GjqGFtxf17ppRHtDKPkkRqbKtR27dxvQXaS"), Prefix: "zec_", UnitsPerToken: 100_000_000},
		{Name: "ore", Mint: types.MustAddressFromString("oreoU2P8bN6jkk3jbaiVxYnG1dCXcYxwhwyK9jSybcp"), Prefix: "ore_", UnitsPerToken: 100_000_000_000},
		{Name: "store", Mint: types.MustAddressFromString("sTorERYB6xAZ1SSbwpK3zoK2EEwbBrc7TZAzg1uCGiH"), Prefix: "store_", UnitsPerToken: 100_000_000_000},
	}
}

// TokenByMint finds a supported token by its mint address.
func TokenByMint(mint types.Address) (TokenInfo, error) {
	for _, t := range SupportedTokens() {
		if t.Mint == mint {
			return t, nil
		}
	}
	return TokenInfo{}, fmt.Errorf("unsupported token mint %s", mint)
}

// TokenByName finds a supported token by its lowercase name.
func TokenByName(name string) (TokenInfo, error) {
	name = strings.ToLower(name)
	for _, t := range SupportedTokens() {
		if t.Name == name {
			return t, nil
		}
	}
	return TokenInfo{}, fmt.Errorf("unsupported token %q", name)
}

// NativeToken returns the native asset entry.
func NativeToken() TokenInfo {
	return SupportedTokens()[0]
}

// FeeConfig is the fee schedule served by the relayer's /config endpoint.
// Rates are decimal fractions (0.01 = 1%); rent fees and minimums are in
// whole tokens, not base units.
type FeeConfig struct {
	WithdrawFeeRate     float64            `json:"withdraw_fee_rate"`
	WithdrawRentFee     float64            `json:"withdraw_rent_fee"`
	DepositFeeRate      float64            `json:"deposit_fee_rate"`
	RentFees            map[string]float64 `json:"rent_fees"`
	MinimumWithdrawal   map[string]float64 `json:"minimum_withdrawal"`
	Prices              map[string]float64 `json:"prices"`
	UsdcWithdrawRentFee float64            `json:"usdc_withdraw_rent_fee"`
}

// TokenRentFee returns the per-withdrawal rent fee of a token in whole
// tokens. The native token falls back to the global withdraw rent fee when no
// per-token entry exists.
func (c *FeeConfig) TokenRentFee(token TokenInfo) (float64, error) {
	if fee, ok := c.RentFees[token.Name]; ok {
		return fee, nil
	}
	if token.Name == "usdc" && c.UsdcWithdrawRentFee > 0 {
		return c.UsdcWithdrawRentFee, nil
	}
	if token.IsNative() {
		return c.WithdrawRentFee, nil
	}
	return 0, fmt.Errorf("no rent fee configured for token %q", token.Name)
}

// WithdrawFee computes the total protocol fee in base units for withdrawing
// amount base units of a token: a proportional part plus a flat rent part,
// rounded up.
func (c *FeeConfig) WithdrawFee(amount uint64, token TokenInfo) (uint64, error) {
	rentFee, err := c.TokenRentFee(token)
	if err != nil {
		return 0, err
	}
	fee := float64(amount)*c.WithdrawFeeRate + float64(token.UnitsPerToken)*rentFee
	return uint64(math.Ceil(fee)), nil
}

// DepositFee computes the protocol fee in base units for depositing amount
// base units. The current schedule sets the deposit rate to zero, but the
// relayer may change it.
func (c *FeeConfig) DepositFee(amount uint64) uint64 {
	return uint64(math.Ceil(float64(amount) * c.DepositFeeRate))
}

// MinWithdrawal returns the minimum withdrawal of a token in base units.
// Tokens absent from the schedule have no minimum.
func (c *FeeConfig) MinWithdrawal(token TokenInfo) uint64 {
	min, ok := c.MinimumWithdrawal[token.Name]
	if !ok {
		return 0
	}
	return uint64(math.Ceil(min * float64(token.UnitsPerToken)))
}

// Supported reports whether the relayer serves withdrawals for a token.
func (c *FeeConfig) Supported(token TokenInfo) bool {
	_, ok := c.MinimumWithdrawal[token.Name]
	return ok
}
