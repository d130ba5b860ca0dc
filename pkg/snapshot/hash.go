package snapshot

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// Algorithm selects the content hash used for file fingerprints.
type Algorithm string

const (
	// XXHash is xxHash64, hex encoded. The default.
	XXHash Algorithm = "xxhash"
	// XXH3 is the 128-bit XXH3 variant, hex encoded.
	XXH3 Algorithm = "xxh3"
)

// ParseAlgorithm maps a config value to an Algorithm. Empty means XXHash.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case "", XXHash:
		return XXHash, nil
	case XXH3:
		return XXH3, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q (want %q or %q)", s, XXHash, XXH3)
}

// HashFile hashes the file at path with algorithm a.
func (a Algorithm) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch a {
	case XXH3:
		h := xxh3.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("failed to hash file: %w", err)
		}
		sum := h.Sum128().Bytes()
		return hex.EncodeToString(sum[:]), nil
	default:
		return hashReader(xxhash.New(), f)
	}
}

func hashReader(h hash.Hash, r io.Reader) (string, error) {
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
