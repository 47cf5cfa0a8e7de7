package codec

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/circom2gnark/parser"

	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/txbuilder"
	"github.com/privacycash/privacycash-go/types"
	"github.com/privacycash/privacycash-go/util"
)

func sampleProof() *parser.CircomProof {
	return &parser.CircomProof{
		PiA:      []string{"1", "2", "1"},
		PiB:      [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
		PiC:      []string{"7", "8", "1"},
		Protocol: "groth16",
	}
}

func TestParseProofToBytes(t *testing.T) {
	pb, err := ParseProofToBytes(sampleProof())
	qt.Assert(t, err, qt.IsNil)

	// coordinates are 32-byte big-endian
	qt.Assert(t, pb.A[31], qt.Equals, byte(1))
	qt.Assert(t, pb.A[63], qt.Equals, byte(2))
	qt.Assert(t, pb.C[31], qt.Equals, byte(7))
	qt.Assert(t, pb.C[63], qt.Equals, byte(8))

	// G2 keeps snarkjs sub-order: x.c1, x.c0, y.c1, y.c0
	qt.Assert(t, pb.B[31], qt.Equals, byte(3))
	qt.Assert(t, pb.B[63], qt.Equals, byte(4))
	qt.Assert(t, pb.B[95], qt.Equals, byte(5))
	qt.Assert(t, pb.B[127], qt.Equals, byte(6))

	// everything else is zero padding
	for i := 0; i < 31; i++ {
		qt.Assert(t, pb.A[i], qt.Equals, byte(0))
	}
}

func TestParseProofToBytesRejects(t *testing.T) {
	p := sampleProof()
	p.PiA[0] = "not-a-number"
	_, err := ParseProofToBytes(p)
	qt.Assert(t, err, qt.IsNotNil)

	p = sampleProof()
	p.PiB = [][]string{{"1"}}
	_, err = ParseProofToBytes(p)
	qt.Assert(t, err, qt.IsNotNil)

	// a coordinate at the base field modulus is out of range
	p = sampleProof()
	p.PiC[0] = "21888242871839275222246405745257275088696311157297823662689037894645226208583"
	_, err = ParseProofToBytes(p)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestParsePublicSignalsToBytes(t *testing.T) {
	signals := []string{"255", "1", "2", "3", "4", "5", "6"}
	out, err := ParsePublicSignalsToBytes(signals)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, len(out), qt.Equals, types.NPublicSignals)
	qt.Assert(t, out[0][31], qt.Equals, byte(0xff))
	qt.Assert(t, out[0][30], qt.Equals, byte(0))
	qt.Assert(t, out[6][31], qt.Equals, byte(6))

	// wrong arity
	_, err = ParsePublicSignalsToBytes(signals[:5])
	qt.Assert(t, err, qt.IsNotNil)

	// scalar field overflow
	signals[1] = util.FieldSize.String()
	_, err = ParsePublicSignalsToBytes(signals)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestParsePublicSignalsHexFallback(t *testing.T) {
	signals := []string{"ff", "0", "0", "0", "0", "0", "0"}
	out, err := ParsePublicSignalsToBytes(signals)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, out[0][31], qt.Equals, byte(0xff))
}

func TestSerializeInstruction(t *testing.T) {
	pb, err := ParseProofToBytes(sampleProof())
	qt.Assert(t, err, qt.IsNil)
	signals, err := ParsePublicSignalsToBytes([]string{"9", "10", "11", "12", "13", "14", "15"})
	qt.Assert(t, err, qt.IsNil)

	ext := &txbuilder.ExtData{
		ExtAmount:        -1000,
		Fee:              50,
		EncryptedOutput1: []byte{0xaa, 0xbb, 0xcc},
		EncryptedOutput2: []byte{0xdd},
		Mint:             config.NativeMint,
	}
	data, err := SerializeInstruction(pb, signals, ext)
	qt.Assert(t, err, qt.IsNil)

	wantLen := 8 + 64 + 128 + 64 + 7*32 + 8 + 8 + 4 + 3 + 4 + 1
	qt.Assert(t, len(data), qt.Equals, wantLen)

	// native discriminator
	qt.Assert(t, [8]byte(data[:8]), qt.Equals, config.TransactDiscriminator)

	// proof A starts right after the discriminator
	qt.Assert(t, data[8+31], qt.Equals, byte(1))

	// first signal after proof A|B|C
	sigOff := 8 + 64 + 128 + 64
	qt.Assert(t, data[sigOff+31], qt.Equals, byte(9))

	// extAmount as two's-complement little-endian i64
	extOff := sigOff + 7*32
	qt.Assert(t, int64(binary.LittleEndian.Uint64(data[extOff:])), qt.Equals, int64(-1000))
	qt.Assert(t, binary.LittleEndian.Uint64(data[extOff+8:]), qt.Equals, uint64(50))

	// length-prefixed ciphertexts
	encOff := extOff + 16
	qt.Assert(t, binary.LittleEndian.Uint32(data[encOff:]), qt.Equals, uint32(3))
	qt.Assert(t, data[encOff+4], qt.Equals, byte(0xaa))
	qt.Assert(t, binary.LittleEndian.Uint32(data[encOff+7:]), qt.Equals, uint32(1))
	qt.Assert(t, data[encOff+11], qt.Equals, byte(0xdd))
}

func TestSerializeInstructionSplDiscriminator(t *testing.T) {
	pb, err := ParseProofToBytes(sampleProof())
	qt.Assert(t, err, qt.IsNil)
	signals, err := ParsePublicSignalsToBytes([]string{"1", "2", "3", "4", "5", "6", "7"})
	qt.Assert(t, err, qt.IsNil)

	usdc, err := config.TokenByName("usdc")
	qt.Assert(t, err, qt.IsNil)
	data, err := SerializeInstruction(pb, signals, &txbuilder.ExtData{Mint: usdc.Mint})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, [8]byte(data[:8]), qt.Equals, config.TransactSplDiscriminator)

	// the wrapped-SOL table mint is not the native placeholder; only the
	// placeholder selects the native entrypoint
	data, err = SerializeInstruction(pb, signals, &txbuilder.ExtData{Mint: config.NativeToken().Mint})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, [8]byte(data[:8]), qt.Equals, config.TransactSplDiscriminator)
}
