package types

import (
	"encoding/hex"
	"encoding/json"
)

// HexBytes is a []byte which encodes as hexadecimal in JSON. Used for
// encrypted note payloads exchanged with the indexer.
type HexBytes []byte

// String returns the hexadecimal representation.
func (b HexBytes) String() string { return hex.EncodeToString(b) }

// MarshalJSON encodes the bytes as a hex string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(b))
}

// UnmarshalJSON decodes the bytes from a hex string.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}
