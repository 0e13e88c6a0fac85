package main

import (
	"fmt"
	"os"
)

// Off-line tooling for airdrop operators: build the tree from an allocation file,
// print its root, and check a proof before submitting it.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
