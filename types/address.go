package types

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLen is the length in bytes of a ledger account address.
const AddressLen = 32

// Address is a 32-byte ledger account identifier (program, wallet, token mint
// or fee recipient), rendered as base58 on the wire.
type Address [AddressLen]byte

// AddressFromString parses a base58-encoded address.
func AddressFromString(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressLen {
		return a, fmt.Errorf("invalid address %q: %d bytes, want %d", s, len(b), AddressLen)
	}
	copy(a[:], b)
	return a, nil
}

// MustAddressFromString parses a base58-encoded address, panicking on error.
// Intended for package-level constants only.
func MustAddressFromString(s string) Address {
	a, err := AddressFromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// String returns the base58 representation of the address.
func (a Address) String() string { return base58.Encode(a[:]) }

// IsZero reports whether the address is all zeroes.
func (a Address) IsZero() bool { return a == Address{} }

// MarshalJSON encodes the address as a base58 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes the address from a base58 string.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	addr, err := AddressFromString(s)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}
