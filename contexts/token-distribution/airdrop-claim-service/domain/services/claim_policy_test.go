package services

import (
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policyFixture(t *testing.T) (entities.Registry, map[string][]string) {
	t.Helper()
	tree, err := merkle.BuildTree([]merkle.Leaf{
		{Account: "user1.testnet", Amount: "100"},
		{Account: "user2.testnet", Amount: "250"},
	}, merkle.SHA256)
	require.NoError(t, err)
	registry, err := entities.NewRegistry("default", "admin.testnet", "token.testnet", tree.Root().Hex(), time.Now())
	require.NoError(t, err)

	proofs := map[string][]string{}
	for _, account := range tree.Accounts() {
		proof, err := tree.HexProof(account)
		require.NoError(t, err)
		proofs[account] = proof
	}
	return registry, proofs
}

func TestEvaluateMerkleClaim(t *testing.T) {
	registry, proofs := policyFixture(t)
	verifier := merkle.NewVerifier(merkle.SHA256)

	assert.NoError(t, EvaluateMerkleClaim(registry, false, "user1.testnet", "100", proofs["user1.testnet"], verifier, 64))

	err := EvaluateMerkleClaim(registry, false, "user1.testnet", "101", proofs["user1.testnet"], verifier, 64)
	assert.ErrorIs(t, err, domainerrors.ErrProofInvalid)

	err = EvaluateMerkleClaim(registry, false, "user1.testnet", "100", []string{"beef"}, verifier, 64)
	assert.ErrorIs(t, err, domainerrors.ErrProofMalformed)
}

func TestEvaluateMerkleClaimChecksMembershipFirst(t *testing.T) {
	registry, _ := policyFixture(t)
	verifier := merkle.NewVerifier(merkle.SHA256)

	err := EvaluateMerkleClaim(registry, true, "user1.testnet", "100", []string{"not-hex"}, verifier, 64)
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyClaimed)
}

func TestEvaluateMerkleClaimCapsProofLength(t *testing.T) {
	registry, proofs := policyFixture(t)
	verifier := merkle.NewVerifier(merkle.SHA256)
	long := make([]string, 3)
	for i := range long {
		long[i] = proofs["user1.testnet"][0]
	}

	err := EvaluateMerkleClaim(registry, false, "user1.testnet", "100", long, verifier, 2)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidClaimRequest)
}

func TestEvaluateAllocationClaim(t *testing.T) {
	funded := entities.Allocation{Account: "user1.testnet", Amount: "10"}
	empty := entities.Allocation{Account: "user1.testnet", Amount: "0"}

	assert.NoError(t, EvaluateAllocationClaim(false, funded, true))
	assert.ErrorIs(t, EvaluateAllocationClaim(true, funded, true), domainerrors.ErrAlreadyClaimed)
	assert.ErrorIs(t, EvaluateAllocationClaim(false, empty, true), domainerrors.ErrNothingToClaim)
	assert.ErrorIs(t, EvaluateAllocationClaim(false, entities.Allocation{}, false), domainerrors.ErrNothingToClaim)
}
