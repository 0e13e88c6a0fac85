package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const (
	allocationsYAML = `allocations:
  - account: user1.testnet
    amount: "100"
  - account: user2.testnet
    amount: "250"
  - account: user3.testnet
    amount: "75"
  - account: user4.testnet
    amount: "1000"
`
	expectedRoot = "fa6c7dd49a87665fca2657e1a6a8e7daebe04c321caa24b8edceff5c8f5327f8"
)

func writeAllocations(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allocations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootShow(t *testing.T) {
	path := writeAllocations(t, allocationsYAML)

	out, err := run(t, "root", "show", "-a", path)
	require.NoError(t, err)
	assert.Equal(t, expectedRoot, strings.TrimSpace(out))

	out, err = run(t, "root", "show", "-a", path, "--hash", "keccak256")
	require.NoError(t, err)
	assert.NotEqual(t, expectedRoot, strings.TrimSpace(out))
}

func TestTreeBuildWritesVerifiableProofs(t *testing.T) {
	path := writeAllocations(t, allocationsYAML)
	outPath := filepath.Join(t.TempDir(), "proofs.yaml")

	out, err := run(t, "tree", "build", "--allocations", path, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "root "+expectedRoot+" written with 4 proofs")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var proofs proofFile
	require.NoError(t, yaml.Unmarshal(data, &proofs))
	assert.Equal(t, expectedRoot, proofs.Root)
	require.Len(t, proofs.Claims, 4)

	for _, claim := range proofs.Claims {
		out, err := run(t, "proof", "verify",
			"--root", proofs.Root,
			"--account", claim.Account,
			"--amount", claim.Amount,
			"--proof", strings.Join(claim.Proof, ","),
		)
		require.NoErrorf(t, err, "claim for %s", claim.Account)
		assert.Equal(t, "valid", strings.TrimSpace(out))
	}
}

func TestProofVerifyRejects(t *testing.T) {
	_, err := run(t, "proof", "verify",
		"--root", expectedRoot,
		"--account", "user1.testnet",
		"--amount", "100",
		"--proof", "80202399ca31110a8f2adb8bde9caebe3ae190700266014c5b4630f760c0a11c,b23042b759fda6421e9ad146b68731b572297f06394cb0abbe96b78c95eb99aa",
	)
	assert.ErrorIs(t, err, errProofRejected)

	_, err = run(t, "proof", "verify", "--root", expectedRoot, "--account", "user1.testnet")
	assert.ErrorContains(t, err, "--amount is required")
}

func TestTreeBuildRejectsBadAllocations(t *testing.T) {
	path := writeAllocations(t, "allocations:\n  - account: user1.testnet\n    amount: \"-3\"\n")
	_, err := run(t, "tree", "build", "-a", path)
	assert.ErrorContains(t, err, "invalid amount")

	path = writeAllocations(t, "allocations:\n  - account: user1.testnet\n    amount: \"1\"\n  - account: user1.testnet\n    amount: \"2\"\n")
	_, err = run(t, "tree", "build", "-a", path)
	assert.Error(t, err)

	_, err = run(t, "tree", "build")
	assert.ErrorContains(t, err, "--allocations is required")
}
