package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/privacycash/privacycash-go/config"
	"github.com/privacycash/privacycash-go/log"
)

// CheckHashes controls whether artifact hashes are verified on load and
// download. Set PRIVACYCASH_CHECK_HASHES=false to disable (local circuit
// development only).
var CheckHashes = true

// BaseDir is the local artifact cache. Defaults to
// $PRIVACYCASH_ARTIFACTS_DIR or ~/.cache/privacycash-artifacts.
var BaseDir string

func init() {
	if v := os.Getenv("PRIVACYCASH_CHECK_HASHES"); v != "" {
		if strings.EqualFold(v, "false") || v == "0" {
			CheckHashes = false
		}
	}
	if dir := os.Getenv("PRIVACYCASH_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			log.Warnf("unable to access user home directory, using temporary directory: %v", err)
			BaseDir = filepath.Join(os.TempDir(), "privacycash-artifacts")
		} else {
			BaseDir = filepath.Join(home, ".cache", "privacycash-artifacts")
		}
	}
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		log.Errorf("failed to create artifact cache %s: %v", BaseDir, err)
	}
}

// Artifact is a content-addressed circuit file: a remote URL, the sha256 of
// the content, and the content once loaded.
type Artifact struct {
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// Load reads the artifact from the local cache by hash. It returns an error
// when the artifact is not cached; call Download first in that case.
func (a *Artifact) Load() error {
	if len(a.Content) != 0 {
		return nil
	}
	if len(a.Hash) == 0 {
		return fmt.Errorf("artifact hash not provided")
	}
	content, err := readCached(a.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("artifact %x not found in cache", a.Hash)
	}
	a.Content = content
	return nil
}

// Download fetches the artifact into the local cache, resuming a previous
// partial download when possible, and verifies its hash.
func (a *Artifact) Download(ctx context.Context) error {
	if a.RemoteURL == "" {
		return fmt.Errorf("artifact not cached and no remote url provided")
	}
	return downloadAndStore(ctx, a.Hash, a.RemoteURL)
}

// TransactArtifacts are the witness-calculator wasm, proving key and
// verification key of the transact2 circuit.
type TransactArtifacts struct {
	Circuit         *Artifact
	ProvingKey      *Artifact
	VerificationKey *Artifact
}

// DefaultArtifacts returns the production transact2 artifact set.
func DefaultArtifacts() *TransactArtifacts {
	return &TransactArtifacts{
		Circuit: &Artifact{
			RemoteURL: config.Transact2CircuitURL,
			Hash:      mustHex(config.Transact2CircuitHash),
		},
		ProvingKey: &Artifact{
			RemoteURL: config.Transact2ProvingKeyURL,
			Hash:      mustHex(config.Transact2ProvingKeyHash),
		},
		VerificationKey: &Artifact{
			RemoteURL: config.Transact2VerificationKeyURL,
			Hash:      mustHex(config.Transact2VerificationKeyHash),
		},
	}
}

// Prover loads the artifacts (downloading any that are missing from the
// cache) and builds a LocalProver from them.
func (ta *TransactArtifacts) Prover(ctx context.Context) (*LocalProver, error) {
	for name, a := range map[string]*Artifact{
		"circuit":          ta.Circuit,
		"proving key":      ta.ProvingKey,
		"verification key": ta.VerificationKey,
	} {
		if err := a.Load(); err == nil {
			continue
		}
		log.Infow("downloading circuit artifact", "kind", name, "url", a.RemoteURL)
		if err := a.Download(ctx); err != nil {
			return nil, fmt.Errorf("download %s: %w", name, err)
		}
		if err := a.Load(); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return NewLocalProver(ta.Circuit.Content, ta.ProvingKey.Content)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid artifact hash %q: %v", s, err))
	}
	return b
}

func readCached(hash []byte) ([]byte, error) {
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(hash))
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cached artifact %s: %w", path, err)
	}
	if CheckHashes {
		sum := sha256.Sum256(content)
		if !bytes.Equal(sum[:], hash) {
			return nil, fmt.Errorf("hash mismatch for %s: expected %x, got %x", path, hash, sum)
		}
	}
	return content, nil
}

// progressReader tracks total bytes read for periodic progress logging.
type progressReader struct {
	reader        io.Reader
	total         int64 // updated atomically
	contentLength int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	atomic.AddInt64(&pr.total, int64(n))
	return n, err
}

func downloadAndStore(ctx context.Context, expectedHash []byte, fileURL string) error {
	path := filepath.Join(BaseDir, hex.EncodeToString(expectedHash))
	partialPath := path + ".partial"

	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("create artifact request: %w", err)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", fileURL, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Warnf("close artifact response body: %v", err)
		}
	}()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("download %s: http status %d", fileURL, res.StatusCode)
	}

	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if startByte > 0 && res.StatusCode == http.StatusPartialContent {
		fileMode = os.O_APPEND | os.O_WRONLY
	}
	fd, err := os.OpenFile(partialPath, fileMode, 0o644)
	if err != nil {
		return fmt.Errorf("open artifact file: %w", err)
	}
	defer func() {
		if err := fd.Close(); err != nil {
			log.Warnf("close artifact file: %v", err)
		}
	}()

	hasher := sha256.New()
	if startByte > 0 && res.StatusCode == http.StatusPartialContent {
		existing, err := os.Open(partialPath)
		if err == nil {
			if _, err := io.Copy(hasher, existing); err != nil {
				return fmt.Errorf("hash partial download: %w", err)
			}
			if err := existing.Close(); err != nil {
				log.Warnf("close partial artifact: %v", err)
			}
		}
	}

	pr := &progressReader{reader: res.Body, contentLength: res.ContentLength + startByte}
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.MultiWriter(fd, hasher), pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
			if CheckHashes {
				if computed := hasher.Sum(nil); !bytes.Equal(computed, expectedHash) {
					if err := os.Remove(partialPath); err != nil {
						log.Warnf("remove invalid artifact: %v", err)
					}
					return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, computed)
				}
			}
			return os.Rename(partialPath, path)
		case <-ticker.C:
			total := atomic.LoadInt64(&pr.total)
			var percentage float64
			if pr.contentLength > 0 {
				percentage = float64(total) / float64(pr.contentLength) * 100
			}
			log.Debugw("downloading circuit artifact", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", fmt.Sprintf("%.2f%%", percentage))
		}
	}
}
