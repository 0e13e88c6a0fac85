package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MERKLEDROP"

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "merkledrop",
		Short:         "Build and check Merkle airdrop commitments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("hash", "sha256", "leaf hash: sha256 or keccak256 (env MERKLEDROP_HASH)")
	_ = v.BindPFlag("hash", rootCmd.PersistentFlags().Lookup("hash"))

	rootCmd.AddCommand(
		newTreeCmd(v),
		newProofCmd(v),
		newRootShowCmd(v),
	)
	return rootCmd
}

func addAllocationsFlag(flags *pflag.FlagSet, target *string) {
	flags.StringVarP(target, "allocations", "a", "", "YAML allocation file")
}

func requireFlag(name string, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
