package log

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

var errRelayer = errors.New("relayer API error: 409")

// capture re-initializes the global logger against a buffer so tests can
// inspect the emitted JSON lines.
func capture(level string, errorOutput io.Writer) *bytes.Buffer {
	buf := &bytes.Buffer{}
	logTestWriter = buf
	Init(level, logTestWriterName, errorOutput)
	return buf
}

func TestStructuredFields(t *testing.T) {
	buf := capture(LogLevelDebug, nil)

	Infow("withdrawal relayed", "signature", "5KtP9qY", "partial", false)
	Debugw("scanned ciphertexts", "fetched", 20000, "owned", 3, "offset", int64(40000))
	Warnw("confirmation check failed", "error", errRelayer.Error(), "attempt", 2)
	Debugw("proof generated", "took", 12*time.Second)

	out := buf.String()
	for _, want := range []string{
		`"signature":"5KtP9qY"`,
		`"partial":"false"`,
		`"message":"withdrawal relayed"`,
		`"fetched":20000`,
		`"offset":40000`,
		`"attempt":2`,
		"relayer API error",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(LogLevelWarn, nil)

	Debugw("trial decryption failed", "version", "v1")
	Infof("balance is %d lamports", 5000)
	Warnw("cached ciphertext no longer decrypts", "error", "cipher: message authentication failed")

	out := buf.String()
	if strings.Contains(out, "trial decryption") || strings.Contains(out, "balance is") {
		t.Errorf("suppressed levels leaked into output:\n%s", out)
	}
	if !strings.Contains(out, "no longer decrypts") {
		t.Errorf("warn entry missing from output:\n%s", out)
	}
}

func TestErrorOutputTee(t *testing.T) {
	errBuf := &bytes.Buffer{}
	capture(LogLevelDebug, errBuf)

	Infow("deposit relayed", "signature", "3xYz")
	Errorw(errRelayer, "cannot submit withdrawal")

	out := errBuf.String()
	if strings.Contains(out, "deposit relayed") {
		t.Errorf("non-error entry reached the error output:\n%s", out)
	}
	if !strings.Contains(out, "cannot submit withdrawal") {
		t.Errorf("error entry missing from the error output:\n%s", out)
	}
}

func TestCheckInvalidChars(t *testing.T) {
	t.Cleanup(func() { panicOnInvalidChars = false })

	// a ciphertext logged as a string is not valid utf8
	ciphertext := []byte{0x8f, 0xd3, 0xff, 0x41}

	panicOnInvalidChars = false
	Init(LogLevelDebug, "stderr", nil)
	Debugf("unparseable note %s", ciphertext)
	// must not panic with the check disabled

	panicOnInvalidChars = true
	Init(LogLevelDebug, "stderr", nil)
	defer func() { recover() }()
	Debugf("unparseable note %s", ciphertext)
	t.Errorf("Debugf(%x) should have panicked because of invalid chars", ciphertext)
}

func BenchmarkLogger(b *testing.B) {
	logTestWriter = io.Discard // to not grow a buffer
	Init(LogLevelDebug, logTestWriterName, nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Debugw("scanned ciphertexts", "fetched", 20000, "owned", i, "total", int64(123456))
		Infow("withdrawal relayed", "signature", "5KtP9qY", "partial", i%2 == 0)
		Errorf("cannot submit withdrawal to relayer: %v", errRelayer)
	}
}
