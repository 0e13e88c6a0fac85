package hashing

import (
	"fmt"
	"strings"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"

	"golang.org/x/crypto/sha3"
)

const (
	NameSHA256    = "sha256"
	NameKeccak256 = "keccak256"
)

// Keccak256 is the pre-standard Keccak used by EVM-style Merkle distributors.
func Keccak256(data []byte) merkle.Hash {
	var out merkle.Hash
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(out[:], h.Sum(nil))
	return out
}

// ByName resolves the configured leaf hash. Empty selects sha256.
func ByName(name string) (merkle.Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameSHA256:
		return merkle.SHA256, nil
	case NameKeccak256:
		return Keccak256, nil
	default:
		return nil, fmt.Errorf("unknown leaf hash %q", name)
	}
}
