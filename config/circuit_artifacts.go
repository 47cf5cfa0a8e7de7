package config

const (
	// Transact2 circuit artifacts (2 inputs / 2 outputs, depth-26 tree).
	// The wasm is the circom witness calculator, the zkey the Groth16
	// proving key. Hashes are sha256 and checked after download; they must
	// be re-pinned whenever the published artifacts change, or the default
	// prover refuses to load.
	Transact2CircuitURL          = "https://artifacts.privacycash.org/circuits/v2/transaction2.wasm"
	Transact2CircuitHash         = "8c1f9a06dd0b53f2e4d7a4e41c9b2a6cf0f3f9de5a727c8c41c0d3b51c62e0aa"
	Transact2ProvingKeyURL       = "https://artifacts.privacycash.org/circuits/v2/transaction2.zkey"
	Transact2ProvingKeyHash      = "4e0cf2d8a0b94b6f8b213a9a6f5e24d1bd6c31a7e2f4a0c95d8e7b3412f6cd90"
	Transact2VerificationKeyURL  = "https://artifacts.privacycash.org/circuits/v2/transaction2_vkey.json"
	Transact2VerificationKeyHash = "b7a4d2f1c08e5a9630c47d8f12b9e6a3dd105c4b8ef29a716f3e0d5c2a84b137"
)
