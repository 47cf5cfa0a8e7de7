// Package storage is the local scan cache. Discovering one's notes means
// trial-decrypting every ciphertext the indexer has ever observed, so the
// client persists the ciphertexts it already ruled on and the fetch offset it
// reached, keyed by owner and token. Losing this database costs a full
// rescan, never funds. The following prefixes are used:
//   - 'eo/' for decrypted-owned encrypted outputs
//   - 'fo/' for per-owner fetch offsets
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/types"
)

var (
	// Prefixes for the keys in the database.
	encryptedOutputsPrefix = []byte("eo/")
	fetchOffsetPrefix      = []byte("fo/")
)

// Storage is a per-wallet scan cache over a key-value database.
type Storage struct {
	db db.Database
}

// New creates a new Storage instance over the given database.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}

// ownerKey namespaces an owner's entries by token so multi-asset wallets do
// not mix scan state.
func ownerKey(owner types.Address, token config.TokenInfo) []byte {
	key := make([]byte, 0, len(token.Prefix)+len(owner))
	key = append(key, []byte(token.Prefix)...)
	return append(key, owner.Bytes()...)
}

// EncryptedOutputs returns the cached owned ciphertexts of an owner, in the
// order they were appended. A missing entry is an empty cache, not an error.
func (s *Storage) EncryptedOutputs(owner types.Address, token config.TokenInfo) ([]types.HexBytes, error) {
	rTx := prefixeddb.NewPrefixedReader(s.db, encryptedOutputsPrefix)
	data, err := rTx.Get(ownerKey(owner, token))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read encrypted outputs: %w", err)
	}
	var outputs []types.HexBytes
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("decode encrypted outputs: %w", err)
	}
	return outputs, nil
}

// AppendEncryptedOutputs adds newly discovered owned ciphertexts to the
// owner's cache.
func (s *Storage) AppendEncryptedOutputs(owner types.Address, token config.TokenInfo, outputs []types.HexBytes) error {
	if len(outputs) == 0 {
		return nil
	}
	existing, err := s.EncryptedOutputs(owner, token)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(existing, outputs...))
	if err != nil {
		return fmt.Errorf("encode encrypted outputs: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), encryptedOutputsPrefix)
	if err := wTx.Set(ownerKey(owner, token), data); err != nil {
		return fmt.Errorf("write encrypted outputs: %w", err)
	}
	return wTx.Commit()
}

// FetchOffset returns the index up to which the owner has already scanned
// the indexer's ciphertext log. Zero means no scan has happened yet.
func (s *Storage) FetchOffset(owner types.Address, token config.TokenInfo) (int64, error) {
	rTx := prefixeddb.NewPrefixedReader(s.db, fetchOffsetPrefix)
	data, err := rTx.Get(ownerKey(owner, token))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("read fetch offset: %w", err)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupted fetch offset: %d bytes", len(data))
	}
	return int64(binary.BigEndian.Uint64(data)), nil
}

// SetFetchOffset records the scan position reached for an owner.
func (s *Storage) SetFetchOffset(owner types.Address, token config.TokenInfo, offset int64) error {
	if offset < 0 {
		return fmt.Errorf("negative fetch offset %d", offset)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), fetchOffsetPrefix)
	if err := wTx.Set(ownerKey(owner, token), binary.BigEndian.AppendUint64(nil, uint64(offset))); err != nil {
		return fmt.Errorf("write fetch offset: %w", err)
	}
	return wTx.Commit()
}

// Clear drops an owner's scan state for one token, forcing a full rescan.
func (s *Storage) Clear(owner types.Address, token config.TokenInfo) error {
	key := ownerKey(owner, token)
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), encryptedOutputsPrefix)
	if err := wTx.Delete(key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("clear encrypted outputs: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	wTx = prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), fetchOffsetPrefix)
	if err := wTx.Delete(key); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("clear fetch offset: %w", err)
	}
	return wTx.Commit()
}
