package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/hashing"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

var errProofRejected = errors.New("proof does not reconstruct the root")

func newTreeCmd(v *viper.Viper) *cobra.Command {
	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Merkle tree operations",
	}

	var allocations, out string
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build the tree and write the root with every claimant's proof",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("allocations", allocations); err != nil {
				return err
			}
			hashName := v.GetString("hash")
			tree, err := buildTree(allocations, hashName)
			if err != nil {
				return err
			}
			proofs, err := buildProofFile(tree, hashName)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(proofs)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "root %s written with %d proofs to %s\n", proofs.Root, len(proofs.Claims), out)
			return nil
		},
	}
	addAllocationsFlag(buildCmd.Flags(), &allocations)
	buildCmd.Flags().StringVarP(&out, "out", "o", "", "write proofs YAML here instead of stdout")

	treeCmd.AddCommand(buildCmd)
	return treeCmd
}

func newRootShowCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "root",
		Short: "Root commitment operations",
	}

	var allocations string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the root of an allocation file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag("allocations", allocations); err != nil {
				return err
			}
			tree, err := buildTree(allocations, v.GetString("hash"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tree.Root().Hex())
			return nil
		},
	}
	addAllocationsFlag(showCmd.Flags(), &allocations)

	rootCmd.AddCommand(showCmd)
	return rootCmd
}

func newProofCmd(v *viper.Viper) *cobra.Command {
	proofCmd := &cobra.Command{
		Use:   "proof",
		Short: "Proof operations",
	}

	var root, account, amount string
	var proof []string
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a claim proof against a root",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for name, value := range map[string]string{"root": root, "account": account, "amount": amount} {
				if err := requireFlag(name, value); err != nil {
					return err
				}
			}
			hasher, err := hashing.ByName(v.GetString("hash"))
			if err != nil {
				return err
			}
			ok, err := merkle.NewVerifier(hasher).Verify(
				merkle.LeafInput(strings.TrimSpace(account), strings.TrimSpace(amount)),
				strings.TrimSpace(root),
				proof,
			)
			if err != nil {
				return err
			}
			if !ok {
				return errProofRejected
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
	verifyCmd.Flags().StringVar(&root, "root", "", "committed root, 64 lowercase hex characters")
	verifyCmd.Flags().StringVar(&account, "account", "", "claiming account")
	verifyCmd.Flags().StringVar(&amount, "amount", "", "claimed amount")
	verifyCmd.Flags().StringSliceVar(&proof, "proof", nil, "sibling hashes, leaf level first")

	proofCmd.AddCommand(verifyCmd)
	return proofCmd
}
