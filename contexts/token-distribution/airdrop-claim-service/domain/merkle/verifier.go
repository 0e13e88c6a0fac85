// Package merkle holds the eligibility verifier and the off-line tree builder for
// sorted-pair Merkle commitments.
//
// Pairs are hashed as H(min(a,b) ++ max(a,b)) under byte-wise comparison, so a proof
// carries no left/right markers. Leaves and internal nodes share the same hash with no
// domain tag: a 64-byte leaf input equal to some internal pair would verify at another
// position. Account identities cannot contain ':' which keeps honest leaves short of
// that, but the scheme itself does not prevent it.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
)

const HashSize = 32

type Hash [HashSize]byte

// Hasher maps arbitrary bytes to a 32-byte digest.
type Hasher func(data []byte) Hash

func SHA256(data []byte) Hash {
	return sha256.Sum256(data)
}

func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// LeafInput is the committed encoding of one eligibility record.
func LeafInput(account string, amount string) []byte {
	return []byte(account + ":" + amount)
}

// DecodeHash parses one proof element. Anything but 32 bytes of hex is malformed.
func DecodeHash(value string) (Hash, error) {
	raw, err := hex.DecodeString(value)
	if err != nil || len(raw) != HashSize {
		return Hash{}, domainerrors.ErrProofMalformed
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

func DecodeProof(proof []string) ([]Hash, error) {
	siblings := make([]Hash, 0, len(proof))
	for _, element := range proof {
		h, err := DecodeHash(element)
		if err != nil {
			return nil, err
		}
		siblings = append(siblings, h)
	}
	return siblings, nil
}

// Verifier folds a proof path over a leaf and compares against a committed root.
// The zero value hashes with SHA256.
type Verifier struct {
	hasher Hasher
}

func NewVerifier(hasher Hasher) Verifier {
	if hasher == nil {
		hasher = SHA256
	}
	return Verifier{hasher: hasher}
}

// Verify reports whether leaf plus proof reconstructs root. The comparison is against
// the lowercase hex encoding and is case-sensitive. A structurally broken proof
// element yields (false, ErrProofMalformed); a well-formed wrong proof yields (false, nil).
func (v Verifier) Verify(leaf []byte, root string, proof []string) (bool, error) {
	siblings, err := DecodeProof(proof)
	if err != nil {
		return false, err
	}
	return v.ComputeRoot(leaf, siblings).Hex() == root, nil
}

// ComputeRoot applies siblings in the given order.
func (v Verifier) ComputeRoot(leaf []byte, siblings []Hash) Hash {
	h := v.hash(leaf)
	for _, sibling := range siblings {
		h = v.hashPair(h, sibling)
	}
	return h
}

func (v Verifier) hash(data []byte) Hash {
	if v.hasher == nil {
		return SHA256(data)
	}
	return v.hasher(data)
}

func (v Verifier) hashPair(a Hash, b Hash) Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	buf := make([]byte, 0, 2*HashSize)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return v.hash(buf)
}

// Verify checks a proof with the default SHA-256 hasher.
func Verify(leaf []byte, root string, proof []string) (bool, error) {
	return NewVerifier(SHA256).Verify(leaf, root, proof)
}
