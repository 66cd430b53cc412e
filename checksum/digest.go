// Package checksum verifies downloaded artifacts against the digests published by their repository.
package checksum

import (
	"crypto/md5" //nolint:gosec // published by maven repositories
	"crypto/sha1" //nolint:gosec // published by maven repositories
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrUnsupportedAlgorithm is returned for algorithms without a known hash implementation.
var ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

// Algorithms maps the sidecar extensions used by maven repositories to hash constructors.
var Algorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"md5":    md5.New,
	"sha256": digest.SHA256.Hash,
	"sha512": digest.SHA512.Hash,
	"sha384": digest.SHA384.Hash,
}

// headerAlgorithms maps X-Checksum-* response headers to algorithms.
var headerAlgorithms = map[string]string{
	"X-Checksum-Sha1":   "sha1",
	"X-Checksum-Md5":    "md5",
	"X-Checksum-Sha256": "sha256",
	"X-Checksum-Sha512": "sha512",
}

// NewHash returns a new hash for algorithm.
func NewHash(algorithm string) (hash.Hash, error) {
	newHash, ok := Algorithms[strings.ToLower(algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return newHash(), nil
}

// Digest returns the lowercase hex digest of r.
func Digest(r io.Reader, algorithm string) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("compute %s digest: %w", algorithm, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParseSidecar extracts the digest from the content of a sidecar file. Sidecars may carry the
// file name after the digest.
func ParseSidecar(content string) (string, error) {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return "", errors.New("empty checksum file")
	}
	value := strings.ToLower(fields[0])
	if _, err := hex.DecodeString(value); err != nil {
		return "", fmt.Errorf("invalid checksum %q: %w", fields[0], err)
	}
	return value, nil
}
