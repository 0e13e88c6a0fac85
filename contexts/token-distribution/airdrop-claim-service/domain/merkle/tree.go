package merkle

import (
	"bytes"
	"errors"
	"sort"
)

var (
	ErrEmptyTree     = errors.New("merkle tree needs at least one leaf")
	ErrDuplicateLeaf = errors.New("account appears more than once")
	ErrLeafNotFound  = errors.New("account is not a leaf of this tree")
)

// Leaf is one (account, amount) commitment before hashing.
type Leaf struct {
	Account string
	Amount  string
}

// Tree is a sorted-pair Merkle tree built off-line from an allocation list.
// Leaf hashes are sorted so the layout is independent of input order; an odd node
// at the end of a layer is promoted unchanged.
type Tree struct {
	verifier Verifier
	layers   [][]Hash
	index    map[string]int
	leaves   map[string]Leaf
}

func BuildTree(leaves []Leaf, hasher Hasher) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	verifier := NewVerifier(hasher)

	type hashedLeaf struct {
		account string
		hash    Hash
	}
	hashed := make([]hashedLeaf, 0, len(leaves))
	byAccount := make(map[string]Leaf, len(leaves))
	for _, leaf := range leaves {
		if _, exists := byAccount[leaf.Account]; exists {
			return nil, ErrDuplicateLeaf
		}
		byAccount[leaf.Account] = leaf
		hashed = append(hashed, hashedLeaf{
			account: leaf.Account,
			hash:    verifier.hash(LeafInput(leaf.Account, leaf.Amount)),
		})
	}
	sort.Slice(hashed, func(i, j int) bool {
		return bytes.Compare(hashed[i].hash[:], hashed[j].hash[:]) < 0
	})

	base := make([]Hash, 0, len(hashed))
	index := make(map[string]int, len(hashed))
	for i, leaf := range hashed {
		base = append(base, leaf.hash)
		index[leaf.account] = i
	}

	layers := [][]Hash{base}
	for current := base; len(current) > 1; {
		next := make([]Hash, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 == len(current) {
				next = append(next, current[i])
				continue
			}
			next = append(next, verifier.hashPair(current[i], current[i+1]))
		}
		layers = append(layers, next)
		current = next
	}

	return &Tree{
		verifier: verifier,
		layers:   layers,
		index:    index,
		leaves:   byAccount,
	}, nil
}

func (t *Tree) Root() Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Proof returns the sibling path for account, leaf level first.
func (t *Tree) Proof(account string) ([]Hash, error) {
	position, ok := t.index[account]
	if !ok {
		return nil, ErrLeafNotFound
	}
	proof := make([]Hash, 0, len(t.layers)-1)
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := position ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		position /= 2
	}
	return proof, nil
}

// HexProof is Proof encoded the way claims submit it.
func (t *Tree) HexProof(account string) ([]string, error) {
	proof, err := t.Proof(account)
	if err != nil {
		return nil, err
	}
	encoded := make([]string, 0, len(proof))
	for _, h := range proof {
		encoded = append(encoded, h.Hex())
	}
	return encoded, nil
}

func (t *Tree) Leaf(account string) (Leaf, bool) {
	leaf, ok := t.leaves[account]
	return leaf, ok
}

// Accounts lists leaf accounts in tree order.
func (t *Tree) Accounts() []string {
	accounts := make([]string, len(t.index))
	for account, position := range t.index {
		accounts[position] = account
	}
	return accounts
}
