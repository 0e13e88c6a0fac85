package main

import (
	"fmt"
	"os"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/hashing"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"

	"gopkg.in/yaml.v2"
)

// allocationFile is the operator-maintained list the tree is built from:
//
//	allocations:
//	  - account: user1.testnet
//	    amount: "100"
type allocationFile struct {
	Allocations []allocationEntry `yaml:"allocations"`
}

type allocationEntry struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// proofFile is written by tree build and holds everything a claimant submits.
type proofFile struct {
	Root   string       `yaml:"root"`
	Hash   string       `yaml:"hash"`
	Claims []proofEntry `yaml:"claims"`
}

type proofEntry struct {
	Account string   `yaml:"account"`
	Amount  string   `yaml:"amount"`
	Proof   []string `yaml:"proof"`
}

func readAllocations(path string) ([]merkle.Leaf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file allocationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	leaves := make([]merkle.Leaf, 0, len(file.Allocations))
	for i, entry := range file.Allocations {
		account, err := valueobjects.NewAccountID(entry.Account)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: invalid account %q", i, entry.Account)
		}
		amount, err := valueobjects.ParsePositiveAmount(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: invalid amount %q", i, entry.Amount)
		}
		leaves = append(leaves, merkle.Leaf{Account: account.String(), Amount: amount.String()})
	}
	return leaves, nil
}

func buildTree(path string, hashName string) (*merkle.Tree, error) {
	hasher, err := hashing.ByName(hashName)
	if err != nil {
		return nil, err
	}
	leaves, err := readAllocations(path)
	if err != nil {
		return nil, err
	}
	return merkle.BuildTree(leaves, hasher)
}

func buildProofFile(tree *merkle.Tree, hashName string) (proofFile, error) {
	out := proofFile{Root: tree.Root().Hex(), Hash: hashName}
	for _, account := range tree.Accounts() {
		leaf, _ := tree.Leaf(account)
		proof, err := tree.HexProof(account)
		if err != nil {
			return proofFile{}, err
		}
		out.Claims = append(out.Claims, proofEntry{
			Account: leaf.Account,
			Amount:  leaf.Amount,
			Proof:   proof,
		})
	}
	return out, nil
}
