package txbuilder

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/privacycash/privacycash-go/types"
	"github.com/privacycash/privacycash-go/util"
)

// ExtData carries the transaction fields that live outside the circuit but
// are bound to the proof through a hash that is a public circuit input. Any
// relayer-side tampering with these fields after proving invalidates the
// proof.
type ExtData struct {
	Recipient        types.Address
	ExtAmount        int64
	EncryptedOutput1 types.HexBytes
	EncryptedOutput2 types.HexBytes
	Fee              uint64
	FeeRecipient     types.Address
	Mint             types.Address
}

// Hash computes the binding hash over the canonical serialization of the
// fields, reduced into the scalar field. The on-chain program recomputes this
// over the same layout, so field order and widths here are part of the wire
// contract.
func (e *ExtData) Hash() *big.Int {
	h := sha256.New()
	h.Write(e.Recipient.Bytes())
	h.Write(binary.LittleEndian.AppendUint64(nil, uint64(e.ExtAmount)))
	h.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(e.EncryptedOutput1))))
	h.Write(e.EncryptedOutput1)
	h.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(e.EncryptedOutput2))))
	h.Write(e.EncryptedOutput2)
	h.Write(binary.LittleEndian.AppendUint64(nil, e.Fee))
	h.Write(e.FeeRecipient.Bytes())
	h.Write(e.Mint.Bytes())
	return util.BigToFF(new(big.Int).SetBytes(h.Sum(nil)))
}

// PublicAmount computes the circuit's public amount field element:
// (extAmount - fee) mod p, where extAmount is positive for deposits and
// negative for withdrawals. A negative balance wraps around the field
// modulus, which is how the circuit represents value leaving the pool.
func PublicAmount(extAmount int64, fee uint64) *big.Int {
	v := new(big.Int).SetInt64(extAmount)
	v.Sub(v, new(big.Int).SetUint64(fee))
	return util.BigToFF(v)
}
