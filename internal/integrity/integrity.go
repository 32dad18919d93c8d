// Package integrity checks downloaded artifacts against their declared digests.
package integrity

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	apperrors "binstrap/internal/errors"
)

// Algorithm names a supported digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	SHA1   Algorithm = "sha1"
	MD5    Algorithm = "md5"
)

// DefaultAlgorithm is assumed when an expected hash carries no prefix.
const DefaultAlgorithm = SHA256

// Digest is a parsed expected hash.
type Digest struct {
	Algorithm Algorithm
	Hex       string
}

// String renders the digest in its canonical algo:hex form.
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + d.Hex
}

// IsZero reports whether the digest carries no value.
func (d Digest) IsZero() bool {
	return d.Hex == ""
}

// ParseDigest parses "[algorithm:]hex". An empty input yields the zero Digest.
func ParseDigest(expected string) (Digest, error) {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return Digest{}, nil
	}

	algo := DefaultAlgorithm
	value := expected
	if idx := strings.IndexByte(expected, ':'); idx >= 0 {
		algo = Algorithm(strings.ToLower(expected[:idx]))
		value = expected[idx+1:]
	}

	h, err := newHash(algo)
	if err != nil {
		return Digest{}, err
	}

	value = strings.ToLower(strings.TrimSpace(value))
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != h.Size() {
		return Digest{}, apperrors.ValidationError(apperrors.CodeHashFormat, "malformed expected hash", err).
			WithModule("integrity").
			WithOperation("ParseDigest").
			WithField("expected_hash", expected)
	}

	return Digest{Algorithm: algo, Hex: value}, nil
}

// Compute returns the hex digest of the file at path.
func Compute(path string, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", apperrors.SystemError(apperrors.CodeCacheIO, "failed to open file for hashing", err).
			WithModule("integrity").
			WithOperation("Compute").
			WithField("path", path)
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return "", apperrors.SystemError(apperrors.CodeCacheIO, "failed to read file for hashing", err).
			WithModule("integrity").
			WithOperation("Compute").
			WithField("path", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the file at path against expected. An empty expected hash
// always succeeds.
func Verify(path, expected string) error {
	digest, err := ParseDigest(expected)
	if err != nil {
		return err
	}
	return VerifyDigest(path, digest)
}

// VerifyDigest is Verify for an already parsed digest.
func VerifyDigest(path string, digest Digest) error {
	if digest.IsZero() {
		return nil
	}

	actual, err := Compute(path, digest.Algorithm)
	if err != nil {
		return err
	}
	if actual != digest.Hex {
		return apperrors.IntegrityError(apperrors.CodeHashMismatch,
			fmt.Sprintf("%s digest mismatch", digest.Algorithm), nil).
			WithModule("integrity").
			WithOperation("Verify").
			WithField("path", path).
			WithField("expected", digest.Hex).
			WithField("actual", actual)
	}
	return nil
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA1:
		return sha1.New(), nil
	case MD5:
		return md5.New(), nil
	}
	return nil, apperrors.ValidationError(apperrors.CodeHashFormat,
		fmt.Sprintf("unsupported hash algorithm %q", algo), nil).
		WithModule("integrity").
		WithOperation("ParseDigest")
}
