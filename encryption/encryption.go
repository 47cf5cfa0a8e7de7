// Package encryption derives the per-wallet note secrets and encrypts notes
// for on-chain publication. All secrets descend from one deterministic wallet
// signature, so any wallet that can sign a fixed message can recover its notes
// on a fresh device with no extra backup.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/privacycash/privacycash-go/keypair"
	"github.com/privacycash/privacycash-go/types"
	"github.com/privacycash/privacycash-go/utxo"
)

// SignMessage is the fixed message the wallet signs to derive the note
// secrets. Changing it would orphan every existing account.
const SignMessage = "Privacy Money account sign in"

// ErrDecryption is returned when a ciphertext was not produced under the
// caller's key. Scanning code relies on it to skip other users' notes.
var ErrDecryption = errors.New("ciphertext does not decrypt under this key")

// ErrKeysNotDerived is returned when the service is used before DeriveKeys.
var ErrKeysNotDerived = errors.New("encryption keys not derived yet")

// WalletSigner is the wallet capability the key derivation consumes: a
// deterministic signature over a byte message. Ed25519 wallet signatures
// qualify; wallets with randomized signing schemes do not.
type WalletSigner interface {
	SignMessage(msg []byte) ([]byte, error)
}

const nonceSize = 12

// Service holds the derived note secrets of one wallet. Derive once, then use
// from any goroutine; the service is immutable after DeriveKeys.
type Service struct {
	aesKeys  map[utxo.Version][32]byte
	keypairs map[utxo.Version]*keypair.Keypair
}

// NewService returns an empty service. Call DeriveKeys before encrypting.
func NewService() *Service {
	return &Service{}
}

// DeriveKeys obtains the wallet signature over SignMessage and derives the
// encryption key and note keypair for every note version. The master secret
// is the SHA-256 of the signature; each purpose key is the SHA-256 of the
// master concatenated with a purpose tag, so compromising one derived key
// reveals nothing about the others.
func (s *Service) DeriveKeys(signer WalletSigner) error {
	sig, err := signer.SignMessage([]byte(SignMessage))
	if err != nil {
		return fmt.Errorf("wallet signature: %w", err)
	}
	if len(sig) == 0 {
		return fmt.Errorf("wallet returned an empty signature")
	}
	master := sha256.Sum256(sig)

	aesKeys := make(map[utxo.Version][32]byte, 2)
	keypairs := make(map[utxo.Version]*keypair.Keypair, 2)
	for v, tags := range map[utxo.Version][2]string{
		utxo.V1: {"aes-v1", "utxo-v1"},
		utxo.V2: {"aes-v2", "utxo-v2"},
	} {
		aesKeys[v] = deriveKey(master[:], tags[0])
		utxoSecret := deriveKey(master[:], tags[1])
		kp, err := keypair.FromBytes(utxoSecret[:])
		if err != nil {
			return fmt.Errorf("derive %s note keypair: %w", v, err)
		}
		keypairs[v] = kp
	}
	s.aesKeys = aesKeys
	s.keypairs = keypairs
	return nil
}

func deriveKey(master []byte, tag string) [32]byte {
	h := sha256.New()
	h.Write(master)
	h.Write([]byte(tag))
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// Keypair returns the note-ownership keypair for a note version.
func (s *Service) Keypair(v utxo.Version) (*keypair.Keypair, error) {
	if s.keypairs == nil {
		return nil, ErrKeysNotDerived
	}
	kp, ok := s.keypairs[v]
	if !ok {
		return nil, fmt.Errorf("no keypair for note version %s", v)
	}
	return kp, nil
}

// Encrypt seals a plaintext under the version key with AES-256-GCM. The nonce
// is the first 12 bytes of HMAC-SHA256(key, plaintext), which makes the
// ciphertext a deterministic function of (key, plaintext): re-encrypting an
// identical note yields identical bytes, so the ciphertext doubles as a
// content-addressed lookup key against the indexer. The scheme is safe here
// because every note carries a fresh random blinding factor, so plaintexts
// never repeat across distinct notes.
func (s *Service) Encrypt(plaintext []byte, v utxo.Version) (types.HexBytes, error) {
	if s.aesKeys == nil {
		return nil, ErrKeysNotDerived
	}
	key, ok := s.aesKeys[v]
	if !ok {
		return nil, fmt.Errorf("no encryption key for note version %s", v)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key[:])
	mac.Write(plaintext)
	nonce := mac.Sum(nil)[:nonceSize]

	out := make([]byte, 0, nonceSize+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. It returns ErrDecryption
// for ciphertexts sealed under a different key.
func (s *Service) Decrypt(ciphertext []byte, v utxo.Version) ([]byte, error) {
	if s.aesKeys == nil {
		return nil, ErrKeysNotDerived
	}
	key, ok := s.aesKeys[v]
	if !ok {
		return nil, fmt.Errorf("no encryption key for note version %s", v)
	}
	if len(ciphertext) < nonceSize+1 {
		return nil, ErrDecryption
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}

func newAEAD(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}
	return aead, nil
}

// EncryptNote serializes and seals a note under the key of its version.
func (s *Service) EncryptNote(u *utxo.Utxo) (types.HexBytes, error) {
	return s.Encrypt(serializeNote(u), u.Version)
}

// DecryptNote opens a ciphertext and reconstructs the note it carries. V1
// plaintexts predate multi-asset support and omit the mint, so the native
// mint is substituted; the note's keypair is the wallet keypair of the
// requested version.
func (s *Service) DecryptNote(ciphertext []byte, v utxo.Version, nativeMint types.Address) (*utxo.Utxo, error) {
	plaintext, err := s.Decrypt(ciphertext, v)
	if err != nil {
		return nil, err
	}
	kp, err := s.Keypair(v)
	if err != nil {
		return nil, err
	}
	return parseNote(plaintext, v, kp, nativeMint)
}

// serializeNote renders the recoverable note fields as a pipe-delimited
// string. The owner key is never serialized: it is re-derived from the wallet
// on decryption.
func serializeNote(u *utxo.Utxo) []byte {
	fields := []string{
		u.Amount.String(),
		u.Blinding.String(),
		strconv.FormatInt(u.Index, 10),
	}
	if u.Version >= utxo.V2 {
		fields = append(fields, u.Mint.String())
	}
	return []byte(strings.Join(fields, "|"))
}

func parseNote(plaintext []byte, v utxo.Version, kp *keypair.Keypair, nativeMint types.Address) (*utxo.Utxo, error) {
	fields := strings.Split(string(plaintext), "|")
	wantFields := 3
	if v >= utxo.V2 {
		wantFields = 4
	}
	if len(fields) != wantFields {
		return nil, fmt.Errorf("note plaintext has %d fields, want %d", len(fields), wantFields)
	}
	amount, ok := new(big.Int).SetString(fields[0], 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid note amount %q", fields[0])
	}
	blinding, ok := new(big.Int).SetString(fields[1], 10)
	if !ok || blinding.Sign() < 0 {
		return nil, fmt.Errorf("invalid note blinding")
	}
	index, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid note index %q: %w", fields[2], err)
	}
	mint := nativeMint
	if v >= utxo.V2 {
		mint, err = types.AddressFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("invalid note mint: %w", err)
		}
	}
	return &utxo.Utxo{
		Amount:   amount,
		Blinding: blinding,
		Keypair:  kp,
		Index:    index,
		Mint:     mint,
		Version:  v,
	}, nil
}
